package analytics

import (
	"testing"

	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/matryer/is"
)

func TestNoDetectionDuringWarmUp(t *testing.T) {
	is := is.New(t)

	d := NewSpikeDetector()
	for i := 0; i < spikeMinSamples-1; i++ {
		d.UpdateCache(1, 50.0)
	}

	is.Equal(d.Detect(1, 1000.0), (*SpikeResult)(nil))
}

func TestStableSeriesThenJumpIsCritical(t *testing.T) {
	is := is.New(t)

	d := NewSpikeDetector()
	for i := 0; i < 20; i++ {
		d.UpdateCache(1, 50.0+float64(i)*0.01)
	}

	result := d.Detect(1, 70.0)
	is.True(result != nil)
	is.Equal(result.Severity, types.SeverityCritical)
	is.True(result.ZScore > criticalMultiplier*spikeZThreshold)
	is.Equal(result.SampleCount, 20)
}

func TestUnremarkableValueIsNotASpike(t *testing.T) {
	is := is.New(t)

	d := NewSpikeDetector()

	value := 50.0
	steps := []float64{0.5, 1.0, 1.5}

	d.UpdateCache(1, value)
	for i := 0; i < 19; i++ {
		value += steps[i%len(steps)]
		d.UpdateCache(1, value)
	}

	is.Equal(d.Detect(1, value+1.5), (*SpikeResult)(nil))
}

func TestOscillationTriggersWithoutLargeDelta(t *testing.T) {
	is := is.New(t)

	d := NewSpikeDetector()
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			d.UpdateCache(1, 50.0)
		} else {
			d.UpdateCache(1, 51.0)
		}
	}

	result := d.Detect(1, 50.0)
	is.True(result != nil)
	is.True(result.Oscillation > oscillationRatio)
	is.Equal(result.Severity, types.SeverityWarning)
}

func TestDetectDoesNotModifyCache(t *testing.T) {
	is := is.New(t)

	d := NewSpikeDetector()
	for i := 0; i < 10; i++ {
		d.UpdateCache(1, 50.0)
	}

	d.Detect(1, 500.0)
	d.Detect(1, 500.0)

	is.Equal(len(d.recent[1]), 10)
}

func TestCacheTrimsToTwiceTheWindow(t *testing.T) {
	is := is.New(t)

	d := NewSpikeDetector()
	for i := 0; i < 100; i++ {
		d.UpdateCache(1, float64(i))
	}

	is.Equal(len(d.recent[1]), 2*spikeWindowSize)
	is.Equal(d.recent[1][len(d.recent[1])-1], 99.0)
}

func TestSensorsAreIsolated(t *testing.T) {
	is := is.New(t)

	d := NewSpikeDetector()
	for i := 0; i < 20; i++ {
		d.UpdateCache(1, 50.0+float64(i)*0.01)
	}

	is.True(d.Detect(1, 70.0) != nil)
	is.Equal(d.Detect(2, 70.0), (*SpikeResult)(nil))
}
