package storage

import (
	"context"
	"time"

	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/jackc/pgx/v5"
)

// EnsureWatermark creates the watermark row for a sensor if it is missing.
// A fresh watermark has no last reading id, which makes the first batch
// pass process the full history.
func (q Queries) EnsureWatermark(ctx context.Context, sensorID int64) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO ml_watermarks (sensor_id) VALUES (@sensor_id)
		ON CONFLICT (sensor_id) DO NOTHING
	`, pgx.NamedArgs{"sensor_id": sensorID})
	return err
}

func (q Queries) GetWatermark(ctx context.Context, sensorID int64) (types.Watermark, error) {
	w := types.Watermark{SensorID: sensorID}

	err := q.db.QueryRow(ctx, `
		SELECT last_reading_id, last_processed_at
		FROM ml_watermarks
		WHERE sensor_id = @sensor_id
	`, pgx.NamedArgs{"sensor_id": sensorID}).Scan(&w.LastReadingID, &w.LastProcessedAt)
	if err != nil {
		return types.Watermark{}, err
	}

	return w, nil
}

// AdvanceWatermark moves the watermark forward. It is called even on passes
// that only skip, so last_processed_at always reflects the latest attempt.
func (q Queries) AdvanceWatermark(ctx context.Context, sensorID, lastReadingID int64) error {
	_, err := q.db.Exec(ctx, `
		UPDATE ml_watermarks
		SET last_reading_id = @last_reading_id, last_processed_at = @processed_at
		WHERE sensor_id = @sensor_id
	`, pgx.NamedArgs{
		"sensor_id":       sensorID,
		"last_reading_id": lastReadingID,
		"processed_at":    time.Now().UTC(),
	})
	return err
}
