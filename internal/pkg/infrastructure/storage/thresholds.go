package storage

import (
	"context"
	"errors"

	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/jackc/pgx/v5"
)

// ActiveThreshold returns the active rule with the lowest id for a sensor,
// or ErrNoRows when the sensor has no active rule.
func (q Queries) ActiveThreshold(ctx context.Context, sensorID int64) (types.ThresholdRule, error) {
	return q.queryThreshold(ctx, `
		SELECT id, sensor_id, name, condition_type, threshold_value_min, threshold_value_max, severity, is_active
		FROM alert_thresholds
		WHERE sensor_id = @sensor_id AND is_active
		ORDER BY id ASC
		LIMIT 1
	`, pgx.NamedArgs{"sensor_id": sensorID})
}

// WarningRangeThreshold returns the active warning severity out_of_range
// rule for a sensor, used to subordinate notice level rules whose value
// falls inside the warning band.
func (q Queries) WarningRangeThreshold(ctx context.Context, sensorID int64) (types.ThresholdRule, error) {
	return q.queryThreshold(ctx, `
		SELECT id, sensor_id, name, condition_type, threshold_value_min, threshold_value_max, severity, is_active
		FROM alert_thresholds
		WHERE sensor_id = @sensor_id AND is_active
		  AND severity = 'warning' AND condition_type = 'out_of_range'
		ORDER BY id ASC
		LIMIT 1
	`, pgx.NamedArgs{"sensor_id": sensorID})
}

func (q Queries) queryThreshold(ctx context.Context, sql string, args pgx.NamedArgs) (types.ThresholdRule, error) {
	var r types.ThresholdRule

	err := q.db.QueryRow(ctx, sql, args).Scan(
		&r.ID, &r.SensorID, &r.Name, &r.Condition, &r.ValueMin, &r.ValueMax, &r.Severity, &r.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.ThresholdRule{}, ErrNoRows
		}
		return types.ThresholdRule{}, err
	}

	return r, nil
}

func (q Queries) AddThreshold(ctx context.Context, r types.ThresholdRule) (int64, error) {
	var id int64

	err := q.db.QueryRow(ctx, `
		INSERT INTO alert_thresholds (sensor_id, name, condition_type, threshold_value_min, threshold_value_max, severity, is_active)
		VALUES (@sensor_id, @name, @condition_type, @value_min, @value_max, @severity, @is_active)
		RETURNING id
	`, pgx.NamedArgs{
		"sensor_id":      r.SensorID,
		"name":           r.Name,
		"condition_type": r.Condition,
		"value_min":      r.ValueMin,
		"value_max":      r.ValueMax,
		"severity":       r.Severity,
		"is_active":      r.Active,
	}).Scan(&id)
	if err != nil {
		return 0, errors.Join(ErrStoreFailed, err)
	}

	return id, nil
}
