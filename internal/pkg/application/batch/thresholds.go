package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/iot-sensor-analytics/internal/pkg/infrastructure/storage"
	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

type thresholdStore interface {
	ActiveThreshold(ctx context.Context, sensorID int64) (types.ThresholdRule, error)
	WarningRangeThreshold(ctx context.Context, sensorID int64) (types.ThresholdRule, error)
	HasRecentEvent(ctx context.Context, sensorID int64, eventCode string, within time.Duration) (bool, error)
	AddEvent(ctx context.Context, e types.Event) (int64, error)
}

// ThresholdEvaluator turns predictions into events. One sensor has at most
// one governing rule, the active one with the lowest id.
type ThresholdEvaluator struct {
	dedupeWindow time.Duration
	messenger    messaging.MsgContext
}

func NewThresholdEvaluator(dedupeWindow time.Duration, messenger messaging.MsgContext) *ThresholdEvaluator {
	return &ThresholdEvaluator{
		dedupeWindow: dedupeWindow,
		messenger:    messenger,
	}
}

// Evaluate checks the prediction against the sensor's governing rule and
// persists an event when it breaches. It returns true when an event was
// created. No event is ever emitted while the predicted value sits inside
// the sensor's warning band, and emission is suppressed when a recent
// unresolved event of the same code exists.
func (e *ThresholdEvaluator) Evaluate(ctx context.Context, store thresholdStore, p types.Prediction) (bool, error) {
	log := logging.GetFromContext(ctx)

	warning, err := store.WarningRangeThreshold(ctx, p.SensorID)
	if err != nil && !errors.Is(err, storage.ErrNoRows) {
		return false, err
	}
	if err == nil && insideBand(warning, p.PredictedValue) {
		log.Debug("prediction inside warning range, no event", "sensor_id", p.SensorID, "threshold_id", warning.ID)
		return false, nil
	}

	rule, err := store.ActiveThreshold(ctx, p.SensorID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if !breaches(rule, p.PredictedValue) {
		return false, nil
	}

	recent, err := store.HasRecentEvent(ctx, p.SensorID, types.EventCodeThresholdBreach, e.dedupeWindow)
	if err != nil {
		return false, err
	}
	if recent {
		log.Debug("breach event deduplicated", "sensor_id", p.SensorID, "threshold_id", rule.ID)
		return false, nil
	}

	payload, _ := json.Marshal(map[string]any{
		"threshold_id":        rule.ID,
		"condition_type":      rule.Condition,
		"threshold_value_min": rule.ValueMin,
		"threshold_value_max": rule.ValueMax,
		"predicted_value":     p.PredictedValue,
	})

	event := types.Event{
		DeviceID:     p.DeviceID,
		SensorID:     p.SensorID,
		PredictionID: &p.ID,
		EventType:    eventTypeFor(rule.Severity),
		EventCode:    types.EventCodeThresholdBreach,
		Title:        rule.Name,
		Message:      fmt.Sprintf("predicted_value=%.5f threshold_id=%d", p.PredictedValue, rule.ID),
		Status:       types.EventStatusActive,
		CreatedAt:    time.Now().UTC(),
		Payload:      payload,
	}

	_, err = store.AddEvent(ctx, event)
	if err != nil {
		return false, err
	}

	log.Info("threshold breach event created",
		"sensor_id", p.SensorID, "threshold_id", rule.ID,
		"predicted_value", p.PredictedValue, "event_type", event.EventType)

	err = e.messenger.PublishOnTopic(ctx, &types.ThresholdBreached{
		SensorID:       p.SensorID,
		PredictionID:   p.ID,
		PredictedValue: p.PredictedValue,
		ThresholdID:    rule.ID,
		EventType:      event.EventType,
		Timestamp:      event.CreatedAt,
	})
	if err != nil {
		log.Error("failed to publish threshold breach", "err", err.Error())
	}

	return true, nil
}

func breaches(rule types.ThresholdRule, value float64) bool {
	switch rule.Condition {
	case types.ConditionGreaterThan:
		return rule.ValueMin != nil && value > *rule.ValueMin
	case types.ConditionLessThan:
		return rule.ValueMin != nil && value < *rule.ValueMin
	case types.ConditionOutOfRange:
		if rule.ValueMin == nil || rule.ValueMax == nil {
			return false
		}
		return value < *rule.ValueMin || value > *rule.ValueMax
	case types.ConditionEqualTo:
		return rule.ValueMin != nil && value == *rule.ValueMin
	}
	return false
}

// insideBand reports whether value lies within an out_of_range rule's
// accepted interval. A missing bound leaves that side open; a rule with no
// bounds at all matches nothing.
func insideBand(rule types.ThresholdRule, value float64) bool {
	if rule.ValueMin == nil && rule.ValueMax == nil {
		return false
	}
	if rule.ValueMin != nil && value < *rule.ValueMin {
		return false
	}
	if rule.ValueMax != nil && value > *rule.ValueMax {
		return false
	}
	return true
}

func eventTypeFor(severity string) string {
	switch severity {
	case types.SeverityCritical:
		return types.EventTypeCritical
	case types.SeverityWarning:
		return types.EventTypeWarning
	default:
		return types.EventTypeNotice
	}
}
