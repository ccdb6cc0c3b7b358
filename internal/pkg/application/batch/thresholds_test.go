package batch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/diwise/iot-sensor-analytics/internal/pkg/infrastructure/storage"
	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/matryer/is"
)

func f64(v float64) *float64 { return &v }

type thresholdStoreMock struct {
	active      *types.ThresholdRule
	warning     *types.ThresholdRule
	hasRecent   bool
	addedEvents []types.Event
}

func (m *thresholdStoreMock) ActiveThreshold(context.Context, int64) (types.ThresholdRule, error) {
	if m.active == nil {
		return types.ThresholdRule{}, storage.ErrNoRows
	}
	return *m.active, nil
}

func (m *thresholdStoreMock) WarningRangeThreshold(context.Context, int64) (types.ThresholdRule, error) {
	if m.warning == nil {
		return types.ThresholdRule{}, storage.ErrNoRows
	}
	return *m.warning, nil
}

func (m *thresholdStoreMock) HasRecentEvent(context.Context, int64, string, time.Duration) (bool, error) {
	return m.hasRecent, nil
}

func (m *thresholdStoreMock) AddEvent(_ context.Context, e types.Event) (int64, error) {
	m.addedEvents = append(m.addedEvents, e)
	return int64(len(m.addedEvents)), nil
}

func prediction(value float64) types.Prediction {
	return types.Prediction{
		ID:             11,
		SensorID:       1,
		DeviceID:       2,
		PredictedValue: value,
	}
}

func newEvaluator() (*ThresholdEvaluator, *messaging.MsgContextMock) {
	msgCtx := &messaging.MsgContextMock{
		PublishOnTopicFunc: func(ctx context.Context, message messaging.TopicMessage) error {
			return nil
		},
	}
	return NewThresholdEvaluator(10*time.Minute, msgCtx), msgCtx
}

func TestConditionTable(t *testing.T) {
	testCases := []struct {
		name   string
		rule   types.ThresholdRule
		value  float64
		breach bool
	}{
		{"greater than breached", types.ThresholdRule{Condition: types.ConditionGreaterThan, ValueMin: f64(50)}, 51, true},
		{"greater than at limit", types.ThresholdRule{Condition: types.ConditionGreaterThan, ValueMin: f64(50)}, 50, false},
		{"less than breached", types.ThresholdRule{Condition: types.ConditionLessThan, ValueMin: f64(50)}, 49, true},
		{"less than at limit", types.ThresholdRule{Condition: types.ConditionLessThan, ValueMin: f64(50)}, 50, false},
		{"out of range low", types.ThresholdRule{Condition: types.ConditionOutOfRange, ValueMin: f64(10), ValueMax: f64(20)}, 9, true},
		{"out of range high", types.ThresholdRule{Condition: types.ConditionOutOfRange, ValueMin: f64(10), ValueMax: f64(20)}, 21, true},
		{"out of range inside", types.ThresholdRule{Condition: types.ConditionOutOfRange, ValueMin: f64(10), ValueMax: f64(20)}, 15, false},
		{"out of range missing max", types.ThresholdRule{Condition: types.ConditionOutOfRange, ValueMin: f64(10)}, 9, false},
		{"equal to breached", types.ThresholdRule{Condition: types.ConditionEqualTo, ValueMin: f64(0)}, 0, true},
		{"equal to not equal", types.ThresholdRule{Condition: types.ConditionEqualTo, ValueMin: f64(0)}, 0.1, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(breaches(tc.rule, tc.value), tc.breach)
		})
	}
}

func TestBreachCreatesEventAndPublishes(t *testing.T) {
	is := is.New(t)

	store := &thresholdStoreMock{
		active: &types.ThresholdRule{
			ID: 3, SensorID: 1, Name: "too warm",
			Condition: types.ConditionGreaterThan, ValueMin: f64(50),
			Severity: types.SeverityCritical, Active: true,
		},
	}
	e, msgCtx := newEvaluator()

	created, err := e.Evaluate(context.Background(), store, prediction(60))
	is.NoErr(err)
	is.True(created)
	is.Equal(len(store.addedEvents), 1)

	event := store.addedEvents[0]
	is.Equal(event.EventType, types.EventTypeCritical)
	is.Equal(event.EventCode, types.EventCodeThresholdBreach)
	is.Equal(event.Title, "too warm")
	is.Equal(*event.PredictionID, int64(11))

	payload := map[string]any{}
	is.NoErr(json.Unmarshal(event.Payload, &payload))
	is.Equal(payload["threshold_id"], float64(3))
	is.Equal(payload["threshold_value_max"], nil)

	is.Equal(len(msgCtx.PublishOnTopicCalls()), 1)
	is.Equal(msgCtx.PublishOnTopicCalls()[0].Message.TopicName(), "analytics.thresholdBreached")
}

func TestNoRuleMeansNoEvent(t *testing.T) {
	is := is.New(t)

	store := &thresholdStoreMock{}
	e, _ := newEvaluator()

	created, err := e.Evaluate(context.Background(), store, prediction(60))
	is.NoErr(err)
	is.True(!created)
}

func TestDedupeSuppressesRepeatedBreach(t *testing.T) {
	is := is.New(t)

	store := &thresholdStoreMock{
		active: &types.ThresholdRule{
			ID: 3, Condition: types.ConditionGreaterThan, ValueMin: f64(50),
			Severity: types.SeverityWarning, Active: true,
		},
		hasRecent: true,
	}
	e, msgCtx := newEvaluator()

	created, err := e.Evaluate(context.Background(), store, prediction(60))
	is.NoErr(err)
	is.True(!created)
	is.Equal(len(store.addedEvents), 0)
	is.Equal(len(msgCtx.PublishOnTopicCalls()), 0)
}

func TestBreachInsideWarningBandIsSuppressed(t *testing.T) {
	is := is.New(t)

	store := &thresholdStoreMock{
		active: &types.ThresholdRule{
			ID: 3, Condition: types.ConditionGreaterThan, ValueMin: f64(50),
			Severity: types.SeverityNotice, Active: true,
		},
		warning: &types.ThresholdRule{
			ID: 4, Condition: types.ConditionOutOfRange,
			ValueMin: f64(40), ValueMax: f64(70),
			Severity: types.SeverityWarning, Active: true,
		},
	}
	e, _ := newEvaluator()

	created, err := e.Evaluate(context.Background(), store, prediction(60))
	is.NoErr(err)
	is.True(!created)

	created, err = e.Evaluate(context.Background(), store, prediction(80))
	is.NoErr(err)
	is.True(created)
	is.Equal(store.addedEvents[0].EventType, types.EventTypeNotice)
}

func TestWarningBandSuppressesEverySeverity(t *testing.T) {
	is := is.New(t)

	store := &thresholdStoreMock{
		active: &types.ThresholdRule{
			ID: 3, Condition: types.ConditionGreaterThan, ValueMin: f64(30),
			Severity: types.SeverityWarning, Active: true,
		},
		warning: &types.ThresholdRule{
			ID: 4, Condition: types.ConditionOutOfRange,
			ValueMin: f64(0), ValueMax: f64(100),
			Severity: types.SeverityWarning, Active: true,
		},
	}
	e, msgCtx := newEvaluator()

	created, err := e.Evaluate(context.Background(), store, prediction(35))
	is.NoErr(err)
	is.True(!created)
	is.Equal(len(store.addedEvents), 0)
	is.Equal(len(msgCtx.PublishOnTopicCalls()), 0)

	created, err = e.Evaluate(context.Background(), store, prediction(110))
	is.NoErr(err)
	is.True(created)
}

func TestWarningBandSupportsOneSidedBounds(t *testing.T) {
	is := is.New(t)

	store := &thresholdStoreMock{
		active: &types.ThresholdRule{
			ID: 3, Condition: types.ConditionGreaterThan, ValueMin: f64(50),
			Severity: types.SeverityNotice, Active: true,
		},
		warning: &types.ThresholdRule{
			ID: 4, Condition: types.ConditionOutOfRange,
			ValueMax: f64(70),
			Severity: types.SeverityWarning, Active: true,
		},
	}
	e, _ := newEvaluator()

	created, err := e.Evaluate(context.Background(), store, prediction(60))
	is.NoErr(err)
	is.True(!created)

	created, err = e.Evaluate(context.Background(), store, prediction(80))
	is.NoErr(err)
	is.True(created)
}

func TestBandWithNoBoundsMatchesNothing(t *testing.T) {
	is := is.New(t)

	store := &thresholdStoreMock{
		active: &types.ThresholdRule{
			ID: 3, Condition: types.ConditionGreaterThan, ValueMin: f64(50),
			Severity: types.SeverityWarning, Active: true,
		},
		warning: &types.ThresholdRule{
			ID: 4, Condition: types.ConditionOutOfRange,
			Severity: types.SeverityWarning, Active: true,
		},
	}
	e, _ := newEvaluator()

	created, err := e.Evaluate(context.Background(), store, prediction(60))
	is.NoErr(err)
	is.True(created)
}
