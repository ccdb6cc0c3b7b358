package analytics

import (
	"context"

	"github.com/diwise/iot-sensor-analytics/internal/pkg/infrastructure/broker"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

// StartWindowConsumer drains the reading broker into the sliding window on
// a dedicated goroutine. The returned channel closes once the broker has
// been stopped and drained.
func StartWindowConsumer(ctx context.Context, b broker.ReadingBroker, w *SlidingWindow) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		b.Subscribe(func(r broker.Reading) {
			w.Add(r.SensorID, r.Timestamp, r.Value)
		})

		logging.GetFromContext(ctx).Info("window consumer stopped")
	}()

	return done
}
