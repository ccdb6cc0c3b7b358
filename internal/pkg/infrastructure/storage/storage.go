package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	host     string
	user     string
	password string
	port     string
	dbname   string
	sslmode  string
}

func (c Config) ConnStr() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.user, c.password, c.host, c.port, c.dbname, c.sslmode)
}

func NewConfig(host, user, password, port, dbname, sslmode string) Config {
	return Config{
		host:     host,
		user:     user,
		password: password,
		port:     port,
		dbname:   dbname,
		sslmode:  sslmode,
	}
}

func NewPool(ctx context.Context, config Config) (*pgxpool.Pool, error) {
	p, err := pgxpool.New(ctx, config.ConnStr())
	if err != nil {
		return nil, err
	}

	err = p.Ping(ctx)
	if err != nil {
		return nil, err
	}

	return p, nil
}

var (
	ErrNoRows      = errors.New("no rows in result set")
	ErrQueryRow    = errors.New("could not execute query")
	ErrStoreFailed = errors.New("could not store data")
	ErrNoID        = errors.New("data contains no id")
)

// Conn is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the same
// query set can run pooled or inside a batch pass transaction.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db Conn
}

type Storage struct {
	pool *pgxpool.Pool
	Queries
}

func NewWithPool(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool, Queries: Queries{db: pool}}
}

func New(ctx context.Context, config Config) (*Storage, error) {
	pool, err := NewPool(ctx, config)
	if err != nil {
		return nil, err
	}

	return NewWithPool(pool), nil
}

// InTx runs fn inside a single transaction. The batch predictor opens one
// transaction per sensor pass, everything else autocommits.
func (s *Storage) InTx(ctx context.Context, fn func(q Queries) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(Queries{db: tx})
	})
}

func (s *Storage) Initialize(ctx context.Context) error {
	return s.createTables(ctx)
}

func (s *Storage) createTables(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS devices (
			id			BIGSERIAL PRIMARY KEY,
			device_uuid	TEXT NOT NULL UNIQUE,
			name		TEXT NULL,
			created_on	timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS sensors (
			id			BIGSERIAL PRIMARY KEY,
			device_id	BIGINT NOT NULL REFERENCES devices (id),
			sensor_uuid	TEXT NOT NULL,
			sensor_type	TEXT NOT NULL DEFAULT '',
			unit		TEXT NULL,
			is_active	BOOLEAN NOT NULL DEFAULT TRUE,
			created_on	timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT uq_sensors_device_sensor UNIQUE (device_id, sensor_uuid)
		);

		CREATE TABLE IF NOT EXISTS sensor_readings (
			id			BIGSERIAL PRIMARY KEY,
			sensor_id	BIGINT NOT NULL,
			value		NUMERIC(24,5) NOT NULL,
			timestamp	timestamp with time zone NULL,
			ingested_at	timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
			sequence	BIGINT NULL
		);

		CREATE TABLE IF NOT EXISTS alert_thresholds (
			id					BIGSERIAL PRIMARY KEY,
			sensor_id			BIGINT NOT NULL,
			name				TEXT NOT NULL,
			condition_type		TEXT NOT NULL,
			threshold_value_min	NUMERIC(24,5) NULL,
			threshold_value_max	NUMERIC(24,5) NULL,
			severity			TEXT NOT NULL DEFAULT 'warning',
			is_active			BOOLEAN NOT NULL DEFAULT TRUE
		);

		CREATE TABLE IF NOT EXISTS ml_models (
			id			BIGSERIAL PRIMARY KEY,
			sensor_id	BIGINT NOT NULL,
			model_name	TEXT NOT NULL,
			model_type	TEXT NOT NULL,
			version		TEXT NOT NULL,
			is_active	BOOLEAN NOT NULL DEFAULT TRUE,
			trained_at	timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS ml_watermarks (
			sensor_id			BIGINT PRIMARY KEY,
			last_reading_id		BIGINT NULL,
			last_processed_at	timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS predictions (
			id					BIGSERIAL PRIMARY KEY,
			model_id			BIGINT NOT NULL,
			sensor_id			BIGINT NOT NULL,
			device_id			BIGINT NOT NULL,
			predicted_value		NUMERIC(24,5) NOT NULL,
			confidence			NUMERIC(6,5) NOT NULL,
			predicted_at		timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
			target_timestamp	timestamp with time zone NOT NULL,
			is_anomaly			BOOLEAN NOT NULL DEFAULT FALSE,
			anomaly_score		NUMERIC(8,5) NULL,
			explanation			JSONB NULL
		);

		CREATE TABLE IF NOT EXISTS ml_events (
			id				BIGSERIAL PRIMARY KEY,
			device_id		BIGINT NOT NULL,
			sensor_id		BIGINT NOT NULL,
			prediction_id	BIGINT NULL,
			event_type		TEXT NOT NULL,
			event_code		TEXT NOT NULL,
			title			TEXT NOT NULL,
			message			TEXT NOT NULL,
			status			TEXT NOT NULL DEFAULT 'active',
			created_at		timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
			payload			JSONB NULL
		);

		CREATE INDEX IF NOT EXISTS sensor_readings_sensor_ts_idx ON sensor_readings (sensor_id, timestamp DESC);
		CREATE INDEX IF NOT EXISTS ml_events_dedupe_idx ON ml_events (sensor_id, event_code, created_at DESC);
	`)
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) Close() {
	s.pool.Close()
}

// round5 matches the NUMERIC(x,5) scale of the value columns so a value
// read back equals the value written.
func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}
