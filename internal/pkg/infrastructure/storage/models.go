package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// GetOrCreateActiveModel returns the id of the active model row matching
// name, type and version for a sensor, creating one on first use.
func (q Queries) GetOrCreateActiveModel(ctx context.Context, sensorID int64, name, modelType, version string) (int64, error) {
	var id int64

	args := pgx.NamedArgs{
		"sensor_id":  sensorID,
		"model_name": name,
		"model_type": modelType,
		"version":    version,
	}

	err := q.db.QueryRow(ctx, `
		SELECT id FROM ml_models
		WHERE sensor_id = @sensor_id AND model_name = @model_name
		  AND model_type = @model_type AND version = @version AND is_active
		ORDER BY id DESC
		LIMIT 1
	`, args).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	err = q.db.QueryRow(ctx, `
		INSERT INTO ml_models (sensor_id, model_name, model_type, version)
		VALUES (@sensor_id, @model_name, @model_type, @version)
		RETURNING id
	`, args).Scan(&id)
	if err != nil {
		return 0, errors.Join(ErrStoreFailed, err)
	}

	return id, nil
}
