package storage

import (
	"context"
	"errors"

	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/jackc/pgx/v5"
)

func (q Queries) AddPrediction(ctx context.Context, p types.Prediction) (int64, error) {
	var id int64

	err := q.db.QueryRow(ctx, `
		INSERT INTO predictions (model_id, sensor_id, device_id, predicted_value, confidence, predicted_at, target_timestamp, is_anomaly, anomaly_score)
		VALUES (@model_id, @sensor_id, @device_id, @predicted_value, @confidence, @predicted_at, @target_timestamp, @is_anomaly, @anomaly_score)
		RETURNING id
	`, pgx.NamedArgs{
		"model_id":         p.ModelID,
		"sensor_id":        p.SensorID,
		"device_id":        p.DeviceID,
		"predicted_value":  round5(p.PredictedValue),
		"confidence":       round5(p.Confidence),
		"predicted_at":     p.PredictedAt,
		"target_timestamp": p.TargetTS,
		"is_anomaly":       p.IsAnomaly,
		"anomaly_score":    p.AnomalyScore,
	}).Scan(&id)
	if err != nil {
		return 0, errors.Join(ErrStoreFailed, err)
	}

	return id, nil
}

// UnexplainedAnomalies returns anomalous predictions with a score at or
// above minScore that have no stored explanation yet, oldest first.
func (q Queries) UnexplainedAnomalies(ctx context.Context, minScore float64, limit int) ([]types.Prediction, error) {
	rows, err := q.db.Query(ctx, `
		SELECT p.id, p.model_id, p.sensor_id, p.device_id, p.predicted_value, p.confidence, p.predicted_at, p.target_timestamp, p.is_anomaly, p.anomaly_score
		FROM predictions p
		WHERE p.is_anomaly AND p.anomaly_score >= @min_score AND p.explanation IS NULL
		ORDER BY p.id ASC
		LIMIT @limit
	`, pgx.NamedArgs{
		"min_score": minScore,
		"limit":     limit,
	})
	if err != nil {
		return nil, err
	}

	var predictions []types.Prediction

	var p types.Prediction
	_, err = pgx.ForEachRow(rows, []any{
		&p.ID, &p.ModelID, &p.SensorID, &p.DeviceID, &p.PredictedValue,
		&p.Confidence, &p.PredictedAt, &p.TargetTS, &p.IsAnomaly, &p.AnomalyScore,
	}, func() error {
		predictions = append(predictions, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return predictions, nil
}

func (q Queries) SetPredictionExplanation(ctx context.Context, predictionID int64, explanation []byte) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE predictions SET explanation = @explanation WHERE id = @id
	`, pgx.NamedArgs{
		"id":          predictionID,
		"explanation": explanation,
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}

	return nil
}
