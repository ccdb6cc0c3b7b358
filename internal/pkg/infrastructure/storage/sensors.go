package storage

import (
	"context"
	"errors"

	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/jackc/pgx/v5"
)

// SensorKey identifies a sensor by the uuid pair carried in the transport
// payload. Both parts are expected to be lowercased by the caller.
type SensorKey struct {
	DeviceUUID string
	SensorUUID string
}

// ResolveSensor maps a device/sensor uuid pair to the internal sensor id.
// Returns ErrNoRows when the pair is unknown. Inactive sensors resolve like
// any other, filtering on activity is the caller's concern.
func (q Queries) ResolveSensor(ctx context.Context, key SensorKey) (int64, error) {
	var id int64

	err := q.db.QueryRow(ctx, `
		SELECT s.id
		FROM sensors s
		JOIN devices d ON d.id = s.device_id
		WHERE lower(d.device_uuid) = @device_uuid
		  AND lower(s.sensor_uuid) = @sensor_uuid
	`, pgx.NamedArgs{
		"device_uuid": key.DeviceUUID,
		"sensor_uuid": key.SensorUUID,
	}).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNoRows
		}
		return 0, err
	}

	return id, nil
}

// ResolveSensorBatch resolves many uuid pairs in one round trip. Unknown
// pairs are simply absent from the result.
func (q Queries) ResolveSensorBatch(ctx context.Context, keys []SensorKey) (map[SensorKey]int64, error) {
	deviceUUIDs := make([]string, len(keys))
	sensorUUIDs := make([]string, len(keys))
	for i, k := range keys {
		deviceUUIDs[i] = k.DeviceUUID
		sensorUUIDs[i] = k.SensorUUID
	}

	rows, err := q.db.Query(ctx, `
		SELECT lower(d.device_uuid), lower(s.sensor_uuid), s.id
		FROM sensors s
		JOIN devices d ON d.id = s.device_id
		JOIN unnest(@device_uuids::text[], @sensor_uuids::text[]) AS k(device_uuid, sensor_uuid)
		  ON lower(d.device_uuid) = k.device_uuid
		 AND lower(s.sensor_uuid) = k.sensor_uuid
	`, pgx.NamedArgs{
		"device_uuids": deviceUUIDs,
		"sensor_uuids": sensorUUIDs,
	})
	if err != nil {
		return nil, err
	}

	resolved := map[SensorKey]int64{}

	var key SensorKey
	var id int64
	_, err = pgx.ForEachRow(rows, []any{&key.DeviceUUID, &key.SensorUUID, &id}, func() error {
		resolved[key] = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resolved, nil
}

func (q Queries) GetSensor(ctx context.Context, sensorID int64) (types.Sensor, error) {
	var s types.Sensor

	err := q.db.QueryRow(ctx, `
		SELECT id, device_id, sensor_uuid, sensor_type, COALESCE(unit, ''), is_active
		FROM sensors
		WHERE id = @id
	`, pgx.NamedArgs{"id": sensorID}).Scan(&s.ID, &s.DeviceID, &s.SensorUUID, &s.SensorType, &s.Unit, &s.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Sensor{}, ErrNoRows
		}
		return types.Sensor{}, err
	}

	return s, nil
}

func (q Queries) ListActiveSensorIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.Query(ctx, `SELECT id FROM sensors WHERE is_active ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}

	var ids []int64

	var id int64
	_, err = pgx.ForEachRow(rows, []any{&id}, func() error {
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// SetSensorActive flips the activity flag without touching anything else.
func (q Queries) SetSensorActive(ctx context.Context, sensorID int64, active bool) error {
	_, err := q.db.Exec(ctx, `
		UPDATE sensors SET is_active = @is_active WHERE id = @id
	`, pgx.NamedArgs{
		"id":        sensorID,
		"is_active": active,
	})
	return err
}

// AddSensor registers a device and sensor pair, reusing existing rows. It
// exists for provisioning and tests, the ingest path never creates sensors.
func (q Queries) AddSensor(ctx context.Context, deviceUUID, sensorUUID, sensorType string) (int64, error) {
	var deviceID int64

	err := q.db.QueryRow(ctx, `
		INSERT INTO devices (device_uuid) VALUES (@device_uuid)
		ON CONFLICT (device_uuid) DO UPDATE SET device_uuid = EXCLUDED.device_uuid
		RETURNING id
	`, pgx.NamedArgs{"device_uuid": deviceUUID}).Scan(&deviceID)
	if err != nil {
		return 0, errors.Join(ErrStoreFailed, err)
	}

	var sensorID int64

	err = q.db.QueryRow(ctx, `
		INSERT INTO sensors (device_id, sensor_uuid, sensor_type)
		VALUES (@device_id, @sensor_uuid, @sensor_type)
		ON CONFLICT (device_id, sensor_uuid) DO UPDATE SET sensor_type = EXCLUDED.sensor_type
		RETURNING id
	`, pgx.NamedArgs{
		"device_id":   deviceID,
		"sensor_uuid": sensorUUID,
		"sensor_type": sensorType,
	}).Scan(&sensorID)
	if err != nil {
		return 0, errors.Join(ErrStoreFailed, err)
	}

	return sensorID, nil
}
