package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
)

type Config struct {
	MaxSize         int
	RateLimitPerSec float64
	DropOldest      bool
}

func DefaultConfig() Config {
	return Config{
		MaxSize:         10000,
		RateLimitPerSec: 0,
		DropOldest:      true,
	}
}

func LoadConfiguration(ctx context.Context) Config {
	cfg := DefaultConfig()

	if v, err := strconv.Atoi(env.GetVariableOrDefault(ctx, "MQTT_QUEUE_MAX_SIZE", "10000")); err == nil {
		cfg.MaxSize = v
	}
	if v, err := strconv.ParseFloat(env.GetVariableOrDefault(ctx, "MQTT_RATE_LIMIT_PER_SEC", "0"), 64); err == nil {
		cfg.RateLimitPerSec = v
	}
	cfg.DropOldest = env.GetVariableOrDefault(ctx, "MQTT_DROP_OLDEST", "true") == "true"

	return cfg
}

type Stats struct {
	Enqueued       uint64  `json:"enqueued"`
	Dequeued       uint64  `json:"dequeued"`
	Dropped        uint64  `json:"dropped"`
	RateLimited    uint64  `json:"rateLimited"`
	CurrentSize    int     `json:"currentSize"`
	MaxSize        int     `json:"maxSize"`
	UtilizationPct float64 `json:"utilizationPct"`
}

// BackpressureQueue is a bounded FIFO that sheds load instead of blocking
// the producer. Readings for a given sensor keep their arrival order since
// all mutation happens under a single lock.
type BackpressureQueue[T any] struct {
	cfg Config

	mu       sync.Mutex
	notEmpty *sync.Cond
	items    []T

	enqueued    uint64
	dequeued    uint64
	dropped     uint64
	rateLimited uint64

	minInterval time.Duration
	lastEnqueue time.Time

	name string
}

func New[T any](name string, cfg Config) *BackpressureQueue[T] {
	q := &BackpressureQueue[T]{
		cfg:  cfg,
		name: name,
	}
	q.notEmpty = sync.NewCond(&q.mu)

	if cfg.RateLimitPerSec > 0 {
		q.minInterval = time.Duration(float64(time.Second) / cfg.RateLimitPerSec)
	}

	return q
}

// Put appends an item, shedding according to policy when full. It never
// blocks. The return value is false only when the item was rate limited
// or refused under the drop_newest policy.
func (q *BackpressureQueue[T]) Put(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.minInterval > 0 {
		now := time.Now()
		if now.Sub(q.lastEnqueue) < q.minInterval {
			q.rateLimited++
			metricRateLimited.WithLabelValues(q.name).Inc()
			return false
		}
		q.lastEnqueue = now
	}

	// enqueued counts every accepted offer, so that
	// enqueued == dequeued + dropped + current_size holds at all times
	q.enqueued++
	metricEnqueued.WithLabelValues(q.name).Inc()

	if len(q.items) >= q.cfg.MaxSize {
		q.dropped++
		metricDropped.WithLabelValues(q.name).Inc()

		if !q.cfg.DropOldest {
			return false
		}

		q.items = q.items[1:]
	}

	q.items = append(q.items, item)
	metricDepth.WithLabelValues(q.name).Set(float64(len(q.items)))

	q.notEmpty.Signal()
	return true
}

// Get blocks until an item is available or the timeout expires.
func (q *BackpressureQueue[T]) Get(timeout time.Duration) (T, bool) {
	var zero T

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		q.waitNotEmpty(timeout)
	}

	if len(q.items) == 0 {
		return zero, false
	}

	return q.popLocked(), true
}

// GetBatch waits up to timeout for at least one item, then drains up to
// max items without waiting further.
func (q *BackpressureQueue[T]) GetBatch(max int, timeout time.Duration) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		q.waitNotEmpty(timeout)
	}

	var batch []T
	for len(q.items) > 0 && len(batch) < max {
		batch = append(batch, q.popLocked())
	}

	return batch
}

func (q *BackpressureQueue[T]) waitNotEmpty(timeout time.Duration) {
	deadline := time.AfterFunc(timeout, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.notEmpty.Broadcast()
	})
	defer deadline.Stop()

	expires := time.Now().Add(timeout)
	for len(q.items) == 0 && time.Now().Before(expires) {
		q.notEmpty.Wait()
	}
}

func (q *BackpressureQueue[T]) popLocked() T {
	item := q.items[0]
	q.items = q.items[1:]
	q.dequeued++
	metricDequeued.WithLabelValues(q.name).Inc()
	metricDepth.WithLabelValues(q.name).Set(float64(len(q.items)))
	return item
}

func (q *BackpressureQueue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	q.items = nil
	q.dequeued += uint64(n)
	metricDepth.WithLabelValues(q.name).Set(0)
	return n
}

func (q *BackpressureQueue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *BackpressureQueue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	utilization := 0.0
	if q.cfg.MaxSize > 0 {
		utilization = float64(len(q.items)) / float64(q.cfg.MaxSize) * 100
	}

	return Stats{
		Enqueued:       q.enqueued,
		Dequeued:       q.dequeued,
		Dropped:        q.dropped,
		RateLimited:    q.rateLimited,
		CurrentSize:    len(q.items),
		MaxSize:        q.cfg.MaxSize,
		UtilizationPct: utilization,
	}
}
