package metrics

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const (
	maxTimingSamples = 100
	lagWarnThreshold = 200 * time.Millisecond

	defaultExpectedInterval  = time.Second
	defaultIntervalTolerance = 100 * time.Millisecond

	HealthPass = "PASS"
	HealthWarn = "WARN"
	HealthFail = "FAIL"
)

// outOfOrderFailRate is the fraction of out of order arrivals above which
// the overall health flips to FAIL.
const outOfOrderFailRate = 0.01

type sensorTiming struct {
	count            uint64
	outOfOrder       uint64
	lagMs            []float64
	deltaMs          []float64
	lastSeq          *uint64
	lastSensorTS     *time.Time
	expectedInterval time.Duration
	tolerance        time.Duration
}

// ReadingTiming is the per reading analysis returned by RecordReading.
type ReadingTiming struct {
	LagMs           *float64
	DeltaMs         *float64
	WithinTolerance bool
	OutOfOrder      bool
}

// TimingMonitor tracks ingestion latency and arrival order per sensor. It
// keeps a bounded sample tail per sensor so memory stays flat no matter
// how long the service runs.
type TimingMonitor struct {
	mu      sync.Mutex
	started time.Time
	sensors map[int64]*sensorTiming
}

func NewTimingMonitor() *TimingMonitor {
	return &TimingMonitor{
		started: time.Now(),
		sensors: map[int64]*sensorTiming{},
	}
}

// RecordReading registers one arrival. Lag is the distance between the
// device timestamp and ingestion time, and the inter sample delta is the
// distance between consecutive device timestamps. Both are only tracked
// when the device clock is present.
func (m *TimingMonitor) RecordReading(ctx context.Context, sensorID int64, deviceTS *time.Time, ingestedTS time.Time, seq *uint64) ReadingTiming {
	m.mu.Lock()

	s, ok := m.sensors[sensorID]
	if !ok {
		s = &sensorTiming{
			expectedInterval: defaultExpectedInterval,
			tolerance:        defaultIntervalTolerance,
		}
		m.sensors[sensorID] = s
	}

	s.count++

	result := ReadingTiming{WithinTolerance: true}

	var lag time.Duration
	if deviceTS != nil {
		lag = ingestedTS.Sub(*deviceTS)
		lagMs := float64(lag.Milliseconds())
		s.lagMs = appendBounded(s.lagMs, lagMs)
		result.LagMs = &lagMs
	}

	if deviceTS != nil && s.lastSensorTS != nil {
		deltaMs := float64(deviceTS.Sub(*s.lastSensorTS).Milliseconds())
		s.deltaMs = appendBounded(s.deltaMs, deltaMs)
		result.DeltaMs = &deltaMs

		expectedMs := float64(s.expectedInterval.Milliseconds())
		toleranceMs := float64(s.tolerance.Milliseconds())
		result.WithinTolerance = math.Abs(deltaMs-expectedMs) <= toleranceMs
	}

	if seq != nil {
		if s.lastSeq != nil && *seq <= *s.lastSeq {
			s.outOfOrder++
			result.OutOfOrder = true
		}
		v := *seq
		s.lastSeq = &v
	}

	if deviceTS != nil {
		ts := *deviceTS
		s.lastSensorTS = &ts
	}

	m.mu.Unlock()

	metricReadings.Inc()
	if deviceTS != nil {
		metricIngestLag.Observe(lag.Seconds())
	}

	if result.OutOfOrder {
		metricOutOfOrder.Inc()
		logging.GetFromContext(ctx).Warn("out of order reading", "sensor_id", sensorID, "sequence", *seq)
	} else if deviceTS != nil && lag > lagWarnThreshold {
		logging.GetFromContext(ctx).Warn("high ingestion lag", "sensor_id", sensorID, "lag_ms", lag.Milliseconds())
	}

	if !result.WithinTolerance {
		logging.GetFromContext(ctx).Debug("sample interval outside tolerance",
			"sensor_id", sensorID, "delta_ms", *result.DeltaMs)
	}

	return result
}

func appendBounded(samples []float64, v float64) []float64 {
	samples = append(samples, v)
	if len(samples) > maxTimingSamples {
		samples = samples[len(samples)-maxTimingSamples:]
	}
	return samples
}

type SampleStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Std   float64 `json:"std"`
}

type SensorTimingSnapshot struct {
	Count              uint64      `json:"count"`
	OutOfOrder         uint64      `json:"outOfOrder"`
	LagMs              SampleStats `json:"lagMs"`
	DeltaSensor        SampleStats `json:"deltaSensorMs"`
	LastSequence       *uint64     `json:"lastSequence,omitempty"`
	ExpectedIntervalMs float64     `json:"expectedIntervalMs"`
	ToleranceMs        float64     `json:"toleranceMs"`
}

// Snapshot returns a deep copy of the current state so callers can never
// observe a sensor entry mid update.
func (m *TimingMonitor) Snapshot() map[int64]SensorTimingSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[int64]SensorTimingSnapshot, len(m.sensors))
	for id, s := range m.sensors {
		entry := SensorTimingSnapshot{
			Count:              s.count,
			OutOfOrder:         s.outOfOrder,
			LagMs:              summarize(s.lagMs),
			DeltaSensor:        summarize(s.deltaMs),
			ExpectedIntervalMs: float64(s.expectedInterval.Milliseconds()),
			ToleranceMs:        float64(s.tolerance.Milliseconds()),
		}
		if s.lastSeq != nil {
			v := *s.lastSeq
			entry.LastSequence = &v
		}
		snapshot[id] = entry
	}

	return snapshot
}

// Health grades the pipeline on ordering and latency. Out of order traffic
// above one percent fails, high latency alone only warns.
func (m *TimingMonitor) Health() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total, outOfOrder uint64
	maxLag := 0.0

	for _, s := range m.sensors {
		total += s.count
		outOfOrder += s.outOfOrder
		for _, lag := range s.lagMs {
			if lag > maxLag {
				maxLag = lag
			}
		}
	}

	if total > 0 && float64(outOfOrder)/float64(total) > outOfOrderFailRate {
		return HealthFail
	}

	if maxLag > float64(lagWarnThreshold.Milliseconds()) {
		return HealthWarn
	}

	return HealthPass
}

func (m *TimingMonitor) Uptime() time.Duration {
	return time.Since(m.started)
}

func summarize(samples []float64) SampleStats {
	if len(samples) == 0 {
		return SampleStats{}
	}

	sum := 0.0
	min := samples[0]
	max := samples[0]
	for _, v := range samples {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(samples))

	std := 0.0
	if len(samples) > 1 {
		variance := 0.0
		for _, v := range samples {
			variance += (v - mean) * (v - mean)
		}
		std = math.Sqrt(variance / float64(len(samples)-1))
	}

	return SampleStats{
		Count: len(samples),
		Mean:  mean,
		Min:   min,
		Max:   max,
		Std:   std,
	}
}
