package types

import (
	"encoding/json"
	"time"
)

type SpikeDetected struct {
	SensorID         int64     `json:"sensorID"`
	Value            float64   `json:"value"`
	Delta            float64   `json:"delta"`
	ZScore           float64   `json:"zScore"`
	OscillationRatio float64   `json:"oscillationRatio"`
	Severity         string    `json:"severity"`
	Reason           string    `json:"reason"`
	Timestamp        time.Time `json:"timestamp"`
}

func (s *SpikeDetected) ContentType() string {
	return "application/json"
}
func (s *SpikeDetected) TopicName() string {
	return "analytics.spikeDetected"
}
func (s *SpikeDetected) Body() []byte {
	b, _ := json.Marshal(s)
	return b
}

type ThresholdBreached struct {
	SensorID       int64     `json:"sensorID"`
	PredictionID   int64     `json:"predictionID"`
	PredictedValue float64   `json:"predictedValue"`
	ThresholdID    int64     `json:"thresholdID"`
	EventType      string    `json:"eventType"`
	Timestamp      time.Time `json:"timestamp"`
}

func (t *ThresholdBreached) ContentType() string {
	return "application/json"
}
func (t *ThresholdBreached) TopicName() string {
	return "analytics.thresholdBreached"
}
func (t *ThresholdBreached) Body() []byte {
	b, _ := json.Marshal(t)
	return b
}
