package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/analytics"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/guards"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/metrics"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/resolver"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/infrastructure/broker"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/infrastructure/retry"
	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

type readingStore interface {
	AddReading(ctx context.Context, r types.Reading) (int64, error)
}

// Pipeline is the per reading hot path. A reading flows through identity
// resolution, the guards, persistence, timing bookkeeping and spike
// detection, and is finally handed to the analytics broker. Rolling window
// statistics are maintained by the broker consumer, not here.
type Pipeline struct {
	store     readingStore
	resolver  resolver.SensorResolver
	timing    *metrics.TimingMonitor
	spikes    *analytics.SpikeDetector
	broker    broker.ReadingBroker
	messenger messaging.MsgContext
}

func NewPipeline(store readingStore, res resolver.SensorResolver, timing *metrics.TimingMonitor, spikes *analytics.SpikeDetector, b broker.ReadingBroker, messenger messaging.MsgContext) *Pipeline {
	return &Pipeline{
		store:     store,
		resolver:  res,
		timing:    timing,
		spikes:    spikes,
		broker:    b,
		messenger: messenger,
	}
}

// Process runs one reading through the pipeline. Unknown sensors and guard
// rejections are dropped without error, they are expected traffic. An error
// is only returned when persistence fails after retries, in which case the
// analytics caches are left untouched.
func (p *Pipeline) Process(ctx context.Context, r types.Reading) error {
	log := logging.GetFromContext(ctx)

	if r.SensorID == 0 {
		sensorID, err := p.resolver.Resolve(ctx, r.DeviceUUID, r.SensorUUID)
		if err != nil {
			if errors.Is(err, resolver.ErrUnknownSensor) {
				log.Warn("reading from unknown sensor dropped", "device_uuid", r.DeviceUUID, "sensor_uuid", r.SensorUUID)
				return nil
			}
			return err
		}
		r.SensorID = sensorID
	}

	if result := guards.GuardReading(ctx, r.SensorID, r.Value, r.DeviceTS, r.SensorType); !result.Valid {
		metrics.IncRejected(result.Reason)
		return nil
	}

	err := retry.Do(ctx, func() error {
		_, err := p.store.AddReading(ctx, r)
		return err
	})
	if err != nil {
		log.Error("reading could not be persisted, dropping",
			"sensor_id", r.SensorID, "value", r.Value, "msg_id", r.MsgID, "err", err.Error())
		return err
	}

	p.timing.RecordReading(ctx, r.SensorID, r.DeviceTS, r.IngestedTS, r.Sequence)

	if spike := p.spikes.Detect(r.SensorID, r.Value); spike != nil {
		log.Warn("spike detected",
			"sensor_id", spike.SensorID, "value", spike.Value, "z_score", spike.ZScore,
			"oscillation", spike.Oscillation, "severity", spike.Severity)

		err = p.messenger.PublishOnTopic(ctx, &types.SpikeDetected{
			SensorID:         spike.SensorID,
			Value:            spike.Value,
			Delta:            spike.Delta,
			ZScore:           spike.ZScore,
			OscillationRatio: spike.Oscillation,
			Severity:         spike.Severity,
			Reason:           spike.Reason,
			Timestamp:        time.Now().UTC(),
		})
		if err != nil {
			log.Error("failed to publish spike event", "err", err.Error())
		}
	}

	p.spikes.UpdateCache(r.SensorID, r.Value)

	ts := r.IngestedTS
	if r.DeviceTS != nil {
		ts = *r.DeviceTS
	}
	p.broker.Publish(broker.Reading{
		SensorID:   r.SensorID,
		SensorType: r.SensorType,
		Value:      r.Value,
		Timestamp:  ts,
	})

	return nil
}
