package types

import (
	"time"
)

// Reading is a single sensor sample as received from the bus. SensorID is
// zero until the identity resolver has mapped the uuid pair to an internal id.
type Reading struct {
	SensorID   int64      `json:"sensorID,omitempty"`
	DeviceUUID string     `json:"deviceUuid"`
	SensorUUID string     `json:"sensorUuid"`
	SensorType string     `json:"sensorType,omitempty"`
	Value      float64    `json:"value"`
	DeviceTS   *time.Time `json:"deviceTimestamp,omitempty"`
	IngestedTS time.Time  `json:"ingestedTimestamp"`
	Sequence   *uint64    `json:"sequence,omitempty"`
	MsgID      string     `json:"msgId,omitempty"`
}

type Sensor struct {
	ID         int64  `json:"id"`
	DeviceID   int64  `json:"deviceID"`
	SensorUUID string `json:"sensorUuid"`
	SensorType string `json:"sensorType"`
	Unit       string `json:"unit,omitempty"`
	Active     bool   `json:"active"`
}

const (
	ConditionGreaterThan = "greater_than"
	ConditionLessThan    = "less_than"
	ConditionOutOfRange  = "out_of_range"
	ConditionEqualTo     = "equal_to"
)

const (
	SeverityNotice   = "notice"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

type ThresholdRule struct {
	ID        int64    `json:"id"`
	SensorID  int64    `json:"sensorID"`
	Name      string   `json:"name"`
	Condition string   `json:"conditionType"`
	ValueMin  *float64 `json:"thresholdValueMin,omitempty"`
	ValueMax  *float64 `json:"thresholdValueMax,omitempty"`
	Severity  string   `json:"severity"`
	Active    bool     `json:"active"`
}

type Watermark struct {
	SensorID        int64     `json:"sensorID"`
	LastReadingID   *int64    `json:"lastReadingID,omitempty"`
	LastProcessedAt time.Time `json:"lastProcessedAt"`
}

type Prediction struct {
	ID             int64     `json:"id"`
	ModelID        int64     `json:"modelID"`
	SensorID       int64     `json:"sensorID"`
	DeviceID       int64     `json:"deviceID"`
	PredictedValue float64   `json:"predictedValue"`
	Confidence     float64   `json:"confidence"`
	PredictedAt    time.Time `json:"predictedAt"`
	TargetTS       time.Time `json:"targetTimestamp"`
	IsAnomaly      bool      `json:"isAnomaly,omitempty"`
	AnomalyScore   *float64  `json:"anomalyScore,omitempty"`
	Explanation    []byte    `json:"explanation,omitempty"`
}

const (
	EventStatusActive       = "active"
	EventStatusAcknowledged = "acknowledged"
	EventStatusResolved     = "resolved"
)

const (
	EventTypeCritical = "critical"
	EventTypeWarning  = "warning"
	EventTypeNotice   = "notice"
)

const EventCodeThresholdBreach = "PRED_THRESHOLD_BREACH"

type Event struct {
	DeviceID     int64     `json:"deviceID"`
	SensorID     int64     `json:"sensorID"`
	PredictionID *int64    `json:"predictionID,omitempty"`
	EventType    string    `json:"eventType"`
	EventCode    string    `json:"eventCode"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	Payload      []byte    `json:"payload,omitempty"`
}

type Collection[T any] struct {
	Data       []T
	Count      uint64
	Offset     uint64
	Limit      uint64
	TotalCount uint64
}
