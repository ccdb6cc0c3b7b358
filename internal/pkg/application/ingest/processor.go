package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/metrics"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/infrastructure/queue"
	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const (
	pollInterval = time.Second
	drainTimeout = 5 * time.Second
)

// AsyncProcessor decouples transport delivery from the pipeline by pushing
// readings through a bounded queue serviced by a fixed worker pool. A
// failing reading is counted and logged, the workers keep going.
type AsyncProcessor struct {
	queue    *queue.BackpressureQueue[types.Reading]
	pipeline *Pipeline
	workers  int

	processed atomic.Uint64
	errored   atomic.Uint64

	stopped atomic.Bool
	wg      sync.WaitGroup
}

func NewAsyncProcessor(pipeline *Pipeline, cfg Config) *AsyncProcessor {
	return &AsyncProcessor{
		queue: queue.New[types.Reading]("ingest", queue.Config{
			MaxSize:    cfg.QueueSize,
			DropOldest: true,
		}),
		pipeline: pipeline,
		workers:  cfg.NumWorkers,
	}
}

func (p *AsyncProcessor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}

	logging.GetFromContext(ctx).Info("async ingest processor started", "workers", p.workers)
}

func (p *AsyncProcessor) work(ctx context.Context) {
	defer p.wg.Done()

	for {
		r, found := p.queue.Get(pollInterval)
		if !found {
			if p.stopped.Load() {
				return
			}
			continue
		}

		if err := p.pipeline.Process(ctx, r); err != nil {
			p.errored.Add(1)
		} else {
			p.processed.Add(1)
		}

		if p.stopped.Load() && p.queue.Size() == 0 {
			return
		}
	}
}

// Enqueue offers a reading to the queue. The return value is false when
// the queue refused it.
func (p *AsyncProcessor) Enqueue(r types.Reading) bool {
	return p.queue.Put(r)
}

// Stop shuts the workers down. With drain set, readings already queued get
// up to the drain timeout to be processed, otherwise the queue is cleared.
func (p *AsyncProcessor) Stop(ctx context.Context, drain bool) {
	log := logging.GetFromContext(ctx)

	if !drain {
		discarded := p.queue.Clear()
		if discarded > 0 {
			log.Warn("discarded queued readings on shutdown", "count", discarded)
		}
	}

	p.stopped.Store(true)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("async ingest processor stopped", "processed", p.processed.Load(), "errors", p.errored.Load())
	case <-time.After(drainTimeout):
		log.Warn("async ingest processor stop timed out", "remaining", p.queue.Size())
	}
}

func (p *AsyncProcessor) QueueStats() queue.Stats {
	return p.queue.Stats()
}

func (p *AsyncProcessor) Stats() metrics.ProcessorStats {
	return metrics.ProcessorStats{
		Workers:   p.workers,
		Processed: p.processed.Load(),
		Errors:    p.errored.Load(),
	}
}
