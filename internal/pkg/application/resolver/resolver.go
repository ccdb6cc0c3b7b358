package resolver

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/diwise/iot-sensor-analytics/internal/pkg/infrastructure/storage"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

var ErrUnknownSensor = errors.New("unknown device/sensor uuid pair")

//go:generate moq -rm -out resolver_mock.go . SensorResolver

type SensorResolver interface {
	Resolve(ctx context.Context, deviceUUID, sensorUUID string) (int64, error)
	ResolveBatch(ctx context.Context, pairs [][2]string) (map[[2]string]int64, error)
	Stats() CacheStats
}

type sensorStore interface {
	ResolveSensor(ctx context.Context, key storage.SensorKey) (int64, error)
	ResolveSensorBatch(ctx context.Context, keys []storage.SensorKey) (map[storage.SensorKey]int64, error)
}

type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

const DefaultCacheSize = 10000
const DefaultTTL = 300 * time.Second

func LoadTTL(ctx context.Context) time.Duration {
	seconds, err := strconv.Atoi(env.GetVariableOrDefault(ctx, "SENSOR_MAP_TTL_SECONDS", "300"))
	if err != nil || seconds <= 0 {
		return DefaultTTL
	}
	return time.Duration(seconds) * time.Second
}

type resolver struct {
	store sensorStore
	cache *identityCache
}

func New(store sensorStore, cacheSize int, ttl time.Duration) SensorResolver {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &resolver{
		store: store,
		cache: newIdentityCache(cacheSize, ttl),
	}
}

func normalize(deviceUUID, sensorUUID string) storage.SensorKey {
	return storage.SensorKey{
		DeviceUUID: strings.ToLower(strings.TrimSpace(deviceUUID)),
		SensorUUID: strings.ToLower(strings.TrimSpace(sensorUUID)),
	}
}

func (r *resolver) Resolve(ctx context.Context, deviceUUID, sensorUUID string) (int64, error) {
	key := normalize(deviceUUID, sensorUUID)
	if key.DeviceUUID == "" || key.SensorUUID == "" {
		return 0, ErrUnknownSensor
	}

	if id, ok := r.cache.get(key); ok {
		return id, nil
	}

	id, err := r.store.ResolveSensor(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return 0, ErrUnknownSensor
		}
		return 0, err
	}

	r.cache.add(key, id)

	return id, nil
}

// ResolveBatch resolves a set of uuid pairs, serving what it can from the
// cache and fetching the rest in a single query. If the batch query fails
// the misses are retried one by one, so a single bad pair cannot sink the
// whole batch. Unknown pairs are absent from the result.
func (r *resolver) ResolveBatch(ctx context.Context, pairs [][2]string) (map[[2]string]int64, error) {
	resolved := make(map[[2]string]int64, len(pairs))

	misses := []storage.SensorKey{}
	missOrigin := map[storage.SensorKey][][2]string{}

	for _, pair := range pairs {
		key := normalize(pair[0], pair[1])
		if key.DeviceUUID == "" || key.SensorUUID == "" {
			continue
		}

		if id, ok := r.cache.get(key); ok {
			resolved[pair] = id
			continue
		}

		if _, seen := missOrigin[key]; !seen {
			misses = append(misses, key)
		}
		missOrigin[key] = append(missOrigin[key], pair)
	}

	if len(misses) == 0 {
		return resolved, nil
	}

	fetched, err := r.store.ResolveSensorBatch(ctx, misses)
	if err != nil {
		logging.GetFromContext(ctx).Warn("batch sensor resolution failed, falling back to individual lookups", "err", err.Error())

		fetched = map[storage.SensorKey]int64{}
		for _, key := range misses {
			id, err := r.store.ResolveSensor(ctx, key)
			if err != nil {
				continue
			}
			fetched[key] = id
		}
	}

	for key, id := range fetched {
		r.cache.add(key, id)
		for _, pair := range missOrigin[key] {
			resolved[pair] = id
		}
	}

	return resolved, nil
}

func (r *resolver) Stats() CacheStats {
	return r.cache.stats()
}
