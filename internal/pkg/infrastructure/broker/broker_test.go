package broker

import (
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestPublishAndSubscribe(t *testing.T) {
	is := is.New(t)

	b := NewInMemoryBroker(10)
	b.pollTimeout = 10 * time.Millisecond

	for i := 1; i <= 3; i++ {
		b.Publish(Reading{SensorID: int64(i), Value: float64(i) * 1.5})
	}

	var mu sync.Mutex
	received := []Reading{}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Subscribe(func(r Reading) {
			mu.Lock()
			received = append(received, r)
			mu.Unlock()
		})
	}()

	time.Sleep(50 * time.Millisecond)
	b.Stop()
	wg.Wait()

	is.Equal(len(received), 3)
	is.Equal(received[0].SensorID, int64(1))
	is.Equal(received[2].SensorID, int64(3))
}

func TestPublishDropsSilentlyWhenFull(t *testing.T) {
	is := is.New(t)

	b := NewInMemoryBroker(2)
	for i := 0; i < 5; i++ {
		b.Publish(Reading{SensorID: int64(i)})
	}

	is.Equal(b.Dropped(), uint64(3))
}

func TestSubscribeExitsAfterStopAndDrain(t *testing.T) {
	is := is.New(t)

	b := NewInMemoryBroker(10)
	b.pollTimeout = 10 * time.Millisecond
	b.Publish(Reading{SensorID: 1})
	b.Stop()

	count := 0
	done := make(chan struct{})
	go func() {
		b.Subscribe(func(Reading) { count++ })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscribe did not exit after stop")
	}

	is.Equal(count, 1)
}
