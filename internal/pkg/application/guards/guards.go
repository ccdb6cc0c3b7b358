package guards

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const (
	ReasonOK                    = "OK"
	ReasonValueIsNaN            = "VALUE_IS_NAN"
	ReasonValueIsInfinite       = "VALUE_IS_INFINITE"
	ReasonValueOutsideLimits    = "VALUE_OUTSIDE_PHYSICAL_LIMITS"
	ReasonTimestampInFuture     = "TIMESTAMP_IN_FUTURE"
	ReasonTimestampTooOld       = "TIMESTAMP_TOO_OLD"
	ReasonSensorIDInvalid       = "SENSOR_ID_INVALID"
)

const (
	maxFutureSkew = 300 * time.Second
	maxPastSkew   = 30 * 24 * time.Hour
)

type Result struct {
	Valid   bool
	Reason  string
	Details map[string]any
}

func ok() Result {
	return Result{Valid: true, Reason: ReasonOK}
}

func normalizeType(sensorType string) string {
	return strings.ToLower(strings.TrimSpace(sensorType))
}

type physicalRange struct {
	min, max float64
	unit     string
}

// Hard limits per sensor type. Values outside these intervals are not
// measurement noise, they are physically impossible.
var physicalLimits = map[string]physicalRange{
	"temperature": {-100, 500, "°C"},
	"humidity":    {0, 100, "%"},
	"pressure":    {0, 2000, "hPa"},
	"air_quality": {0, 10000, "ppm"},
	"voltage":     {0, 1000, "V"},
	"power":       {0, 1000000, "W"},
	"ph":          {0, 14, "pH"},
}

func CheckValue(value float64, sensorType string) Result {
	if value != value {
		return Result{Valid: false, Reason: ReasonValueIsNaN}
	}

	if math.IsInf(value, 0) {
		return Result{Valid: false, Reason: ReasonValueIsInfinite}
	}

	if sensorType != "" {
		limits, found := physicalLimits[normalizeType(sensorType)]
		if found && (value < limits.min || value > limits.max) {
			return Result{
				Valid:  false,
				Reason: ReasonValueOutsideLimits,
				Details: map[string]any{
					"value":       value,
					"sensor_type": sensorType,
					"min":         limits.min,
					"max":         limits.max,
					"unit":        limits.unit,
				},
			}
		}
	}

	return ok()
}

func CheckTimestamp(ts *time.Time, reference time.Time) Result {
	if ts == nil {
		return ok()
	}

	if ts.After(reference.Add(maxFutureSkew)) {
		return Result{
			Valid:  false,
			Reason: ReasonTimestampInFuture,
			Details: map[string]any{
				"timestamp": ts.Format(time.RFC3339),
				"reference": reference.Format(time.RFC3339),
			},
		}
	}

	if ts.Before(reference.Add(-maxPastSkew)) {
		return Result{
			Valid:  false,
			Reason: ReasonTimestampTooOld,
			Details: map[string]any{
				"timestamp": ts.Format(time.RFC3339),
				"reference": reference.Format(time.RFC3339),
			},
		}
	}

	return ok()
}

func CheckSensorID(sensorID int64) Result {
	if sensorID <= 0 {
		return Result{
			Valid:   false,
			Reason:  ReasonSensorIDInvalid,
			Details: map[string]any{"sensor_id": sensorID},
		}
	}

	return ok()
}

// GuardReading runs all checks in fixed order and returns the first failure.
// Rejections are logged at warn, never returned as errors.
func GuardReading(ctx context.Context, sensorID int64, value float64, deviceTS *time.Time, sensorType string) Result {
	log := logging.GetFromContext(ctx)

	result := CheckValue(value, sensorType)
	if !result.Valid {
		log.Warn("reading rejected by guard", "sensor_id", sensorID, "value", value, "reason", result.Reason)
		return result
	}

	result = CheckTimestamp(deviceTS, time.Now().UTC())
	if !result.Valid {
		log.Warn("reading rejected by guard", "sensor_id", sensorID, "reason", result.Reason)
		return result
	}

	result = CheckSensorID(sensorID)
	if !result.Valid {
		log.Warn("reading rejected by guard", "sensor_id", sensorID, "reason", result.Reason)
		return result
	}

	return ok()
}
