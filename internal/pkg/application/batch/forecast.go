package batch

import (
	"errors"
	"math"
	"time"

	"github.com/diwise/iot-sensor-analytics/internal/pkg/infrastructure/storage"
)

var ErrNotEnoughData = errors.New("not enough data points to forecast")

const (
	ModelMovingAverage   = "moving_average"
	ModelLinearRegress   = "linear"
	ModelRidgeRegress    = "ridge"
	regressionMinPoints  = 20
	regressionMaxPoints  = 500
	ridgeAlpha           = 1.0
	minRegressConfidence = 0.2
	maxRegressConfidence = 0.95
)

type Forecast struct {
	Value      float64
	Confidence float64
	ModelName  string
	ModelType  string
}

// MovingAverage predicts the mean of the most recent window values. The
// confidence grows linearly with fill grade until the window is full.
func MovingAverage(points []storage.ValuePoint, window int) (Forecast, error) {
	if len(points) < 2 {
		return Forecast{}, ErrNotEnoughData
	}

	if len(points) > window {
		points = points[len(points)-window:]
	}

	sum := 0.0
	for _, p := range points {
		sum += p.Value
	}

	return Forecast{
		Value:      sum / float64(len(points)),
		Confidence: math.Min(1.0, float64(len(points))/float64(window)),
		ModelName:  "baseline",
		ModelType:  ModelMovingAverage,
	}, nil
}

// Regression fits value against time in minutes since the first point and
// extrapolates horizon minutes past the last point. The ridge variant adds
// an L2 penalty on the slope. Confidence is the fit r squared, clamped so a
// perfect fit on noisy telemetry never reads as certainty.
func Regression(points []storage.ValuePoint, modelType string, horizon time.Duration) (Forecast, error) {
	if len(points) < regressionMinPoints {
		return Forecast{}, ErrNotEnoughData
	}

	if len(points) > regressionMaxPoints {
		points = points[len(points)-regressionMaxPoints:]
	}

	first := points[0].Timestamp

	n := float64(len(points))
	ts := make([]float64, len(points))
	sumT, sumY := 0.0, 0.0
	for i, p := range points {
		ts[i] = p.Timestamp.Sub(first).Minutes()
		sumT += ts[i]
		sumY += p.Value
	}
	meanT := sumT / n
	meanY := sumY / n

	covTY, varT := 0.0, 0.0
	for i, p := range points {
		covTY += (ts[i] - meanT) * (p.Value - meanY)
		varT += (ts[i] - meanT) * (ts[i] - meanT)
	}

	denom := varT
	if modelType == ModelRidgeRegress {
		denom += ridgeAlpha
	}
	if denom == 0 {
		denom = 1e-9
	}

	slope := covTY / denom
	intercept := meanY - slope*meanT

	ssRes, ssTot := 0.0, 0.0
	for i, p := range points {
		fitted := intercept + slope*ts[i]
		ssRes += (p.Value - fitted) * (p.Value - fitted)
		ssTot += (p.Value - meanY) * (p.Value - meanY)
	}

	r2 := 0.0
	if ssTot > 0 {
		r2 = 1.0 - ssRes/ssTot
	}

	targetT := points[len(points)-1].Timestamp.Add(horizon).Sub(first).Minutes()

	return Forecast{
		Value:      intercept + slope*targetT,
		Confidence: math.Max(minRegressConfidence, math.Min(maxRegressConfidence, r2)),
		ModelName:  "trend",
		ModelType:  modelType,
	}, nil
}

// ClampForecast bounds a prediction by how far the series can plausibly
// move in one horizon. The bound is the intersection of a last value delta
// band and a padded observed range.
func ClampForecast(predicted float64, points []storage.ValuePoint) float64 {
	if len(points) == 0 {
		return predicted
	}

	last := points[len(points)-1].Value
	min, max := points[0].Value, points[0].Value
	for _, p := range points {
		min = math.Min(min, p.Value)
		max = math.Max(max, p.Value)
	}

	maxDelta := math.Max(math.Abs(last)*0.5, 1.0)
	lo := last - maxDelta
	hi := last + maxDelta

	margin := math.Max(0.25*(max-min), 1.0)
	lo = math.Max(lo, min-margin)
	hi = math.Min(hi, max+margin)

	if lo > hi {
		lo, hi = hi, lo
	}

	return math.Max(lo, math.Min(hi, predicted))
}

// anomalyScore grades how far the latest value sits from the window mean,
// in units of three standard deviations, capped at 1.
func anomalyScore(points []storage.ValuePoint) (float64, bool) {
	if len(points) < 3 {
		return 0, false
	}

	n := float64(len(points))
	sum := 0.0
	for _, p := range points {
		sum += p.Value
	}
	mean := sum / n

	variance := 0.0
	for _, p := range points {
		variance += (p.Value - mean) * (p.Value - mean)
	}
	std := math.Sqrt(variance / n)
	if std < 1e-9 {
		return 0, false
	}

	last := points[len(points)-1].Value
	score := math.Min(1.0, math.Abs(last-mean)/(3*std))

	return score, score >= 0.8
}
