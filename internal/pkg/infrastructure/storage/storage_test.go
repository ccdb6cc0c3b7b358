package storage

import (
	"context"
	"testing"
	"time"

	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/matryer/is"
)

func testSetup(t *testing.T) (context.Context, *Storage) {
	ctx := context.Background()

	config := Config{
		host:     "localhost",
		user:     "postgres",
		password: "password",
		port:     "5432",
		dbname:   "postgres",
		sslmode:  "disable",
	}

	s, err := New(ctx, config)
	if err != nil {
		t.SkipNow()
	}

	err = s.Initialize(ctx)
	if err != nil {
		t.SkipNow()
	}

	return ctx, s
}

func seedSensor(t *testing.T, ctx context.Context, s *Storage) int64 {
	is := is.New(t)

	sensorID, err := s.AddSensor(ctx, "dev-"+t.Name(), "sen-"+t.Name(), "temperature")
	is.NoErr(err)

	return sensorID
}

func TestResolveSensor(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)
	sensorID := seedSensor(t, ctx, s)

	id, err := s.ResolveSensor(ctx, SensorKey{
		DeviceUUID: "dev-" + t.Name(),
		SensorUUID: "sen-" + t.Name(),
	})
	is.NoErr(err)
	is.Equal(id, sensorID)
}

func TestResolveSensorIsCaseInsensitive(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)

	sensorID, err := s.AddSensor(ctx, "DEV-Mixed-Case", "SEN-Mixed-Case", "humidity")
	is.NoErr(err)

	id, err := s.ResolveSensor(ctx, SensorKey{DeviceUUID: "dev-mixed-case", SensorUUID: "sen-mixed-case"})
	is.NoErr(err)
	is.Equal(id, sensorID)
}

func TestResolveInactiveSensor(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)
	sensorID := seedSensor(t, ctx, s)

	err := s.SetSensorActive(ctx, sensorID, false)
	is.NoErr(err)

	key := SensorKey{DeviceUUID: "dev-" + t.Name(), SensorUUID: "sen-" + t.Name()}

	id, err := s.ResolveSensor(ctx, key)
	is.NoErr(err)
	is.Equal(id, sensorID)

	resolved, err := s.ResolveSensorBatch(ctx, []SensorKey{key})
	is.NoErr(err)
	is.Equal(resolved[key], sensorID)
}

func TestResolveUnknownSensorReturnsErrNoRows(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)

	_, err := s.ResolveSensor(ctx, SensorKey{DeviceUUID: "no-such-device", SensorUUID: "no-such-sensor"})
	is.Equal(err, ErrNoRows)
}

func TestResolveSensorBatch(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)
	sensorID := seedSensor(t, ctx, s)

	known := SensorKey{DeviceUUID: "dev-" + t.Name(), SensorUUID: "sen-" + t.Name()}
	unknown := SensorKey{DeviceUUID: "nope", SensorUUID: "nope"}

	resolved, err := s.ResolveSensorBatch(ctx, []SensorKey{known, unknown})
	is.NoErr(err)
	is.Equal(len(resolved), 1)
	is.Equal(resolved[known], sensorID)
}

func TestAddAndReadBackReading(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)
	sensorID := seedSensor(t, ctx, s)

	ts := time.Now().UTC()
	_, err := s.AddReading(ctx, types.Reading{
		SensorID:   sensorID,
		Value:      21.123456789,
		DeviceTS:   &ts,
		IngestedTS: ts,
	})
	is.NoErr(err)

	points, err := s.RecentValues(ctx, sensorID, 10)
	is.NoErr(err)
	is.Equal(len(points), 1)
	is.Equal(points[0].Value, 21.12346)
}

func TestRecentValuesReturnsChronologicalOrder(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)
	sensorID := seedSensor(t, ctx, s)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		_, err := s.AddReading(ctx, types.Reading{SensorID: sensorID, Value: float64(i), DeviceTS: &ts, IngestedTS: ts})
		is.NoErr(err)
	}

	points, err := s.RecentValues(ctx, sensorID, 3)
	is.NoErr(err)
	is.Equal(len(points), 3)
	is.Equal(points[0].Value, 2.0)
	is.Equal(points[2].Value, 4.0)
}

func TestCountReadingsHonoursHourWindow(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)
	sensorID := seedSensor(t, ctx, s)

	recent := time.Now().UTC().Add(-30 * time.Minute)
	old := time.Now().UTC().Add(-48 * time.Hour)

	_, err := s.AddReading(ctx, types.Reading{SensorID: sensorID, Value: 1.0, DeviceTS: &recent, IngestedTS: recent})
	is.NoErr(err)
	_, err = s.AddReading(ctx, types.Reading{SensorID: sensorID, Value: 2.0, DeviceTS: &old, IngestedTS: old})
	is.NoErr(err)

	count, err := s.CountReadings(ctx, sensorID, 1)
	is.NoErr(err)
	is.Equal(count, int64(1))

	count, err = s.CountReadings(ctx, sensorID, 72)
	is.NoErr(err)
	is.Equal(count, int64(2))
}

func TestWatermarkLifecycle(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)
	sensorID := seedSensor(t, ctx, s)

	err := s.EnsureWatermark(ctx, sensorID)
	is.NoErr(err)

	w, err := s.GetWatermark(ctx, sensorID)
	is.NoErr(err)
	is.Equal(w.LastReadingID, (*int64)(nil))

	err = s.AdvanceWatermark(ctx, sensorID, 42)
	is.NoErr(err)

	w, err = s.GetWatermark(ctx, sensorID)
	is.NoErr(err)
	is.Equal(*w.LastReadingID, int64(42))
}

func TestActiveThresholdReturnsLowestID(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)
	sensorID := seedSensor(t, ctx, s)

	min := 10.0
	first, err := s.AddThreshold(ctx, types.ThresholdRule{
		SensorID: sensorID, Name: "first", Condition: types.ConditionGreaterThan,
		ValueMin: &min, Severity: types.SeverityWarning, Active: true,
	})
	is.NoErr(err)

	_, err = s.AddThreshold(ctx, types.ThresholdRule{
		SensorID: sensorID, Name: "second", Condition: types.ConditionLessThan,
		ValueMin: &min, Severity: types.SeverityCritical, Active: true,
	})
	is.NoErr(err)

	rule, err := s.ActiveThreshold(ctx, sensorID)
	is.NoErr(err)
	is.Equal(rule.ID, first)
	is.Equal(rule.Name, "first")
}

func TestEventDedupeWindow(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)
	sensorID := seedSensor(t, ctx, s)

	_, err := s.AddEvent(ctx, types.Event{
		DeviceID:  1,
		SensorID:  sensorID,
		EventType: types.EventTypeWarning,
		EventCode: types.EventCodeThresholdBreach,
		Title:     "test",
		Message:   "test",
		Status:    types.EventStatusActive,
		CreatedAt: time.Now().UTC().Add(-5 * time.Minute),
	})
	is.NoErr(err)

	found, err := s.HasRecentEvent(ctx, sensorID, types.EventCodeThresholdBreach, 10*time.Minute)
	is.NoErr(err)
	is.True(found)

	found, err = s.HasRecentEvent(ctx, sensorID, types.EventCodeThresholdBreach, time.Minute)
	is.NoErr(err)
	is.True(!found)
}

func TestGetOrCreateActiveModelIsIdempotent(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)
	sensorID := seedSensor(t, ctx, s)

	first, err := s.GetOrCreateActiveModel(ctx, sensorID, "baseline", "moving_average", "1")
	is.NoErr(err)

	second, err := s.GetOrCreateActiveModel(ctx, sensorID, "baseline", "moving_average", "1")
	is.NoErr(err)
	is.Equal(first, second)
}

func TestPredictionExplanationRoundTrip(t *testing.T) {
	is := is.New(t)
	ctx, s := testSetup(t)
	sensorID := seedSensor(t, ctx, s)

	modelID, err := s.GetOrCreateActiveModel(ctx, sensorID, "baseline", "moving_average", "1")
	is.NoErr(err)

	score := 0.9
	predictionID, err := s.AddPrediction(ctx, types.Prediction{
		ModelID:        modelID,
		SensorID:       sensorID,
		DeviceID:       1,
		PredictedValue: 21.5,
		Confidence:     0.8,
		PredictedAt:    time.Now().UTC(),
		TargetTS:       time.Now().UTC().Add(10 * time.Minute),
		IsAnomaly:      true,
		AnomalyScore:   &score,
	})
	is.NoErr(err)

	unexplained, err := s.UnexplainedAnomalies(ctx, 0.8, 100)
	is.NoErr(err)
	is.True(len(unexplained) > 0)

	err = s.SetPredictionExplanation(ctx, predictionID, []byte(`{"summary":"sensor drift"}`))
	is.NoErr(err)
}
