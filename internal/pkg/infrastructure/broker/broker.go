package broker

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricPublishDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "iot_sensor_analytics",
	Name:      "broker_dropped_total",
	Help:      "The total number of readings dropped on a full broker queue",
})

// Reading is the minimal unit of data the analytics consumer needs.
type Reading struct {
	SensorID   int64
	SensorType string
	Value      float64
	Timestamp  time.Time
}

// ReadingBroker decouples analytics from the ingest transport. Analytics
// code depends on this interface, never on a concrete queue or bus.
type ReadingBroker interface {
	Publish(r Reading)
	Subscribe(handler func(Reading))
	Stop()
}

// InMemoryBroker is a single producer, single consumer bounded queue.
// Publish never blocks; the broker is an advisory side channel, not the
// system of record.
type InMemoryBroker struct {
	ch          chan Reading
	stopped     atomic.Bool
	dropped     atomic.Uint64
	pollTimeout time.Duration
}

const DefaultCapacity = 100000

func NewInMemoryBroker(capacity int) *InMemoryBroker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &InMemoryBroker{
		ch:          make(chan Reading, capacity),
		pollTimeout: 500 * time.Millisecond,
	}
}

func (b *InMemoryBroker) Publish(r Reading) {
	select {
	case b.ch <- r:
	default:
		b.dropped.Add(1)
		metricPublishDropped.Inc()
	}
}

// Subscribe delivers readings to handler until Stop has been called and
// the queue is drained.
func (b *InMemoryBroker) Subscribe(handler func(Reading)) {
	for {
		select {
		case r := <-b.ch:
			handler(r)
		case <-time.After(b.pollTimeout):
			if b.stopped.Load() && len(b.ch) == 0 {
				return
			}
		}
	}
}

func (b *InMemoryBroker) Stop() {
	b.stopped.Store(true)
}

func (b *InMemoryBroker) Dropped() uint64 {
	return b.dropped.Load()
}
