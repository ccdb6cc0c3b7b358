package storage

import (
	"context"
	"errors"
	"time"

	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/jackc/pgx/v5"
)

type ValuePoint struct {
	ID        int64
	Value     float64
	Timestamp time.Time
}

// AddReading persists a single reading and returns its row id. Values are
// rounded to the scale of the value column before the insert.
func (q Queries) AddReading(ctx context.Context, r types.Reading) (int64, error) {
	var id int64

	err := q.db.QueryRow(ctx, `
		INSERT INTO sensor_readings (sensor_id, value, timestamp, ingested_at, sequence)
		VALUES (@sensor_id, @value, @timestamp, @ingested_at, @sequence)
		RETURNING id
	`, pgx.NamedArgs{
		"sensor_id":   r.SensorID,
		"value":       round5(r.Value),
		"timestamp":   r.DeviceTS,
		"ingested_at": r.IngestedTS,
		"sequence":    r.Sequence,
	}).Scan(&id)
	if err != nil {
		return 0, errors.Join(ErrStoreFailed, err)
	}

	return id, nil
}

// RecentValues returns the latest limit values for a sensor in chronological
// order, oldest first.
func (q Queries) RecentValues(ctx context.Context, sensorID int64, limit int) ([]ValuePoint, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, value, COALESCE(timestamp, ingested_at)
		FROM sensor_readings
		WHERE sensor_id = @sensor_id
		ORDER BY COALESCE(timestamp, ingested_at) DESC, id DESC
		LIMIT @limit
	`, pgx.NamedArgs{
		"sensor_id": sensorID,
		"limit":     limit,
	})
	if err != nil {
		return nil, err
	}

	points := make([]ValuePoint, 0, limit)

	var p ValuePoint
	_, err = pgx.ForEachRow(rows, []any{&p.ID, &p.Value, &p.Timestamp}, func() error {
		points = append(points, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}

	return points, nil
}

func (q Queries) MaxReadingID(ctx context.Context, sensorID int64) (*int64, error) {
	var maxID *int64

	err := q.db.QueryRow(ctx, `
		SELECT MAX(id) FROM sensor_readings WHERE sensor_id = @sensor_id
	`, pgx.NamedArgs{"sensor_id": sensorID}).Scan(&maxID)
	if err != nil {
		return nil, err
	}

	return maxID, nil
}

// CountReadings counts the readings stored for a sensor within the last
// hours hours.
func (q Queries) CountReadings(ctx context.Context, sensorID int64, hours int) (int64, error) {
	var count int64

	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM sensor_readings
		WHERE sensor_id = @sensor_id
		  AND COALESCE(timestamp, ingested_at) >= NOW() - make_interval(hours => @hours)
	`, pgx.NamedArgs{
		"sensor_id": sensorID,
		"hours":     hours,
	}).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}
