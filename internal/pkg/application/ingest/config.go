package ingest

import (
	"context"
	"strconv"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
)

type Config struct {
	AsyncEnabled bool
	QueueSize    int
	NumWorkers   int
}

func DefaultConfig() Config {
	return Config{
		AsyncEnabled: true,
		QueueSize:    1000,
		NumWorkers:   4,
	}
}

func LoadConfiguration(ctx context.Context) Config {
	cfg := DefaultConfig()

	cfg.AsyncEnabled = env.GetVariableOrDefault(ctx, "ML_MQTT_ASYNC_PROCESSING", "true") == "true"

	if v, err := strconv.Atoi(env.GetVariableOrDefault(ctx, "ML_MQTT_QUEUE_SIZE", "1000")); err == nil && v > 0 {
		cfg.QueueSize = v
	}
	if v, err := strconv.Atoi(env.GetVariableOrDefault(ctx, "ML_MQTT_NUM_WORKERS", "4")); err == nil && v > 0 {
		cfg.NumWorkers = v
	}

	return cfg
}
