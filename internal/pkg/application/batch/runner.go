package batch

import (
	"context"
	"errors"
	"time"

	"github.com/diwise/iot-sensor-analytics/internal/pkg/infrastructure/storage"
	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const modelVersion = "1"

type RunnerConfig struct {
	Window       int
	Horizon      time.Duration
	DedupeWindow time.Duration
	ModelType    string
}

func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Window:       60,
		Horizon:      10 * time.Minute,
		DedupeWindow: 10 * time.Minute,
		ModelType:    ModelMovingAverage,
	}
}

// passStore is what one per sensor pass needs from the database. It is the
// transaction bound query set in production.
type passStore interface {
	thresholdStore

	EnsureWatermark(ctx context.Context, sensorID int64) error
	GetWatermark(ctx context.Context, sensorID int64) (types.Watermark, error)
	MaxReadingID(ctx context.Context, sensorID int64) (*int64, error)
	RecentValues(ctx context.Context, sensorID int64, limit int) ([]storage.ValuePoint, error)
	GetSensor(ctx context.Context, sensorID int64) (types.Sensor, error)
	GetOrCreateActiveModel(ctx context.Context, sensorID int64, name, modelType, version string) (int64, error)
	AddPrediction(ctx context.Context, p types.Prediction) (int64, error)
	AdvanceWatermark(ctx context.Context, sensorID, lastReadingID int64) error
}

// AnomalyExplainer produces a JSON explanation for an anomalous prediction.
type AnomalyExplainer interface {
	ExplainAnomaly(ctx context.Context, p types.Prediction) ([]byte, error)
}

type Summary struct {
	Sensors   int
	Predicted int
	Skipped   int
	Failed    int
	Events    int
	Explained int
}

// Runner executes batch prediction passes. Each sensor is processed in its
// own transaction so one bad sensor cannot roll back the others.
type Runner struct {
	store     *storage.Storage
	evaluator *ThresholdEvaluator
	explainer AnomalyExplainer
	cfg       RunnerConfig
}

func NewRunner(store *storage.Storage, evaluator *ThresholdEvaluator, explainer AnomalyExplainer, cfg RunnerConfig) *Runner {
	return &Runner{
		store:     store,
		evaluator: evaluator,
		explainer: explainer,
		cfg:       cfg,
	}
}

func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	log := logging.GetFromContext(ctx)

	sensorIDs, err := r.store.ListActiveSensorIDs(ctx)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Sensors: len(sensorIDs)}

	for _, sensorID := range sensorIDs {
		var predicted, eventCreated bool

		err := r.store.InTx(ctx, func(q storage.Queries) error {
			var err error
			predicted, eventCreated, err = r.processSensor(ctx, q, sensorID)
			return err
		})
		if err != nil {
			summary.Failed++
			log.Error("batch pass failed for sensor", "sensor_id", sensorID, "err", err.Error())
			continue
		}

		if predicted {
			summary.Predicted++
		} else {
			summary.Skipped++
		}
		if eventCreated {
			summary.Events++
		}
	}

	summary.Explained = r.explainAnomalies(ctx)

	log.Info("batch pass finished",
		"sensors", summary.Sensors, "predicted", summary.Predicted, "skipped", summary.Skipped,
		"failed", summary.Failed, "events", summary.Events, "explained", summary.Explained)

	return summary, nil
}

func (r *Runner) processSensor(ctx context.Context, q passStore, sensorID int64) (predicted, eventCreated bool, err error) {
	err = q.EnsureWatermark(ctx, sensorID)
	if err != nil {
		return false, false, err
	}

	w, err := q.GetWatermark(ctx, sensorID)
	if err != nil {
		return false, false, err
	}

	maxID, err := q.MaxReadingID(ctx, sensorID)
	if err != nil {
		return false, false, err
	}
	if maxID == nil {
		return false, false, nil
	}

	if w.LastReadingID != nil && *maxID <= *w.LastReadingID {
		return false, false, q.AdvanceWatermark(ctx, sensorID, *maxID)
	}

	limit := r.cfg.Window
	if r.cfg.ModelType != ModelMovingAverage {
		limit = regressionMaxPoints
	}

	points, err := q.RecentValues(ctx, sensorID, limit)
	if err != nil {
		return false, false, err
	}

	forecast, err := r.forecast(points)
	if err != nil {
		if errors.Is(err, ErrNotEnoughData) {
			return false, false, q.AdvanceWatermark(ctx, sensorID, *maxID)
		}
		return false, false, err
	}

	forecast.Value = ClampForecast(forecast.Value, points)

	sensor, err := q.GetSensor(ctx, sensorID)
	if err != nil {
		return false, false, err
	}

	modelID, err := q.GetOrCreateActiveModel(ctx, sensorID, forecast.ModelName, forecast.ModelType, modelVersion)
	if err != nil {
		return false, false, err
	}

	score, isAnomaly := anomalyScore(points)
	now := time.Now().UTC()

	prediction := types.Prediction{
		ModelID:        modelID,
		SensorID:       sensorID,
		DeviceID:       sensor.DeviceID,
		PredictedValue: forecast.Value,
		Confidence:     forecast.Confidence,
		PredictedAt:    now,
		TargetTS:       now.Add(r.cfg.Horizon),
		IsAnomaly:      isAnomaly,
		AnomalyScore:   &score,
	}

	prediction.ID, err = q.AddPrediction(ctx, prediction)
	if err != nil {
		return false, false, err
	}

	eventCreated, err = r.evaluator.Evaluate(ctx, q, prediction)
	if err != nil {
		return false, false, err
	}

	return true, eventCreated, q.AdvanceWatermark(ctx, sensorID, *maxID)
}

func (r *Runner) forecast(points []storage.ValuePoint) (Forecast, error) {
	if r.cfg.ModelType == ModelMovingAverage {
		return MovingAverage(points, r.cfg.Window)
	}
	return Regression(points, r.cfg.ModelType, r.cfg.Horizon)
}

// explainAnomalies enriches anomalous predictions with explanations from
// the explainer service. Failures are logged and skipped, the explanation
// is a nice to have.
func (r *Runner) explainAnomalies(ctx context.Context) int {
	if r.explainer == nil {
		return 0
	}

	log := logging.GetFromContext(ctx)

	candidates, err := r.store.UnexplainedAnomalies(ctx, 0.8, 50)
	if err != nil {
		log.Error("could not list unexplained anomalies", "err", err.Error())
		return 0
	}

	explained := 0
	for _, p := range candidates {
		explanation, err := r.explainer.ExplainAnomaly(ctx, p)
		if err != nil {
			log.Warn("anomaly explanation failed", "prediction_id", p.ID, "err", err.Error())
			continue
		}

		err = r.store.SetPredictionExplanation(ctx, p.ID, explanation)
		if err != nil {
			log.Warn("could not store anomaly explanation", "prediction_id", p.ID, "err", err.Error())
			continue
		}

		explained++
	}

	return explained
}
