package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/jackc/pgx/v5"
)

// HasRecentEvent reports whether an unresolved event with the given code
// exists for the sensor within the dedupe window.
func (q Queries) HasRecentEvent(ctx context.Context, sensorID int64, eventCode string, within time.Duration) (bool, error) {
	var exists bool

	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ml_events
			WHERE sensor_id = @sensor_id AND event_code = @event_code
			  AND status IN ('active', 'acknowledged')
			  AND created_at >= @since
		)
	`, pgx.NamedArgs{
		"sensor_id":  sensorID,
		"event_code": eventCode,
		"since":      time.Now().UTC().Add(-within),
	}).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

func (q Queries) AddEvent(ctx context.Context, e types.Event) (int64, error) {
	var id int64

	err := q.db.QueryRow(ctx, `
		INSERT INTO ml_events (device_id, sensor_id, prediction_id, event_type, event_code, title, message, status, created_at, payload)
		VALUES (@device_id, @sensor_id, @prediction_id, @event_type, @event_code, @title, @message, @status, @created_at, @payload)
		RETURNING id
	`, pgx.NamedArgs{
		"device_id":     e.DeviceID,
		"sensor_id":     e.SensorID,
		"prediction_id": e.PredictionID,
		"event_type":    e.EventType,
		"event_code":    e.EventCode,
		"title":         e.Title,
		"message":       e.Message,
		"status":        e.Status,
		"created_at":    e.CreatedAt,
		"payload":       e.Payload,
	}).Scan(&id)
	if err != nil {
		return 0, errors.Join(ErrStoreFailed, err)
	}

	return id, nil
}

func (q Queries) GetEvents(ctx context.Context, sensorID int64, limit int) ([]types.Event, error) {
	rows, err := q.db.Query(ctx, `
		SELECT device_id, sensor_id, prediction_id, event_type, event_code, title, message, status, created_at, COALESCE(payload, '{}'::jsonb)
		FROM ml_events
		WHERE sensor_id = @sensor_id
		ORDER BY id DESC
		LIMIT @limit
	`, pgx.NamedArgs{
		"sensor_id": sensorID,
		"limit":     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryRow, err)
	}

	var events []types.Event

	var e types.Event
	_, err = pgx.ForEachRow(rows, []any{
		&e.DeviceID, &e.SensorID, &e.PredictionID, &e.EventType, &e.EventCode,
		&e.Title, &e.Message, &e.Status, &e.CreatedAt, &e.Payload,
	}, func() error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}
