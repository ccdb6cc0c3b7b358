package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/matryer/is"
)

var errTest = errors.New("test error")

func TestProcessorDrainsQueue(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	var persisted atomic.Int64
	store := &storeMock{
		addFunc: func(types.Reading) (int64, error) {
			return persisted.Add(1), nil
		},
	}
	p, _, _ := newTestPipeline(store, &messaging.MsgContextMock{})

	processor := NewAsyncProcessor(p, Config{AsyncEnabled: true, QueueSize: 100, NumWorkers: 2})
	processor.Start(ctx)

	for i := 0; i < 10; i++ {
		is.True(processor.Enqueue(validReading(1, 20.0+float64(i)*0.01)))
	}

	deadline := time.Now().Add(2 * time.Second)
	for persisted.Load() < 10 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	processor.Stop(ctx, true)

	is.Equal(persisted.Load(), int64(10))

	stats := processor.Stats()
	is.Equal(stats.Processed, uint64(10))
	is.Equal(stats.Errors, uint64(0))
	is.Equal(stats.Workers, 2)
}

func TestProcessorCountsErrorsAndKeepsGoing(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	var calls atomic.Int64
	store := &storeMock{
		addFunc: func(r types.Reading) (int64, error) {
			n := calls.Add(1)
			if r.Value == 13.0 {
				return 0, errTest
			}
			return n, nil
		},
	}
	p, _, _ := newTestPipeline(store, &messaging.MsgContextMock{})

	processor := NewAsyncProcessor(p, Config{AsyncEnabled: true, QueueSize: 100, NumWorkers: 1})
	processor.Start(ctx)

	processor.Enqueue(validReading(1, 13.0))
	processor.Enqueue(validReading(1, 21.0))

	deadline := time.Now().Add(5 * time.Second)
	for processor.Stats().Processed < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	processor.Stop(ctx, true)

	stats := processor.Stats()
	is.Equal(stats.Processed, uint64(1))
	is.Equal(stats.Errors, uint64(1))
}

func TestProcessorStopWithoutDrainDiscardsBacklog(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	store := &storeMock{}
	p, _, _ := newTestPipeline(store, &messaging.MsgContextMock{})

	processor := NewAsyncProcessor(p, Config{AsyncEnabled: true, QueueSize: 100, NumWorkers: 1})
	for i := 0; i < 50; i++ {
		processor.Enqueue(validReading(1, 20.0))
	}

	processor.Stop(ctx, false)

	is.Equal(processor.QueueStats().CurrentSize, 0)
}
