package analytics

import (
	"math"
	"sync"
	"time"
)

// WindowStats summarizes the samples of one sensor within one time horizon.
type WindowStats struct {
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stdDev"`
	Trend  float64 `json:"trend"`
	Count  int     `json:"count"`
	Last   float64 `json:"last"`
}

type sample struct {
	ts    time.Time
	value float64
}

// SlidingWindow keeps a short per sensor history and computes rolling
// statistics over a fixed set of horizons on every new sample. Samples
// older than the longest horizon are discarded.
type SlidingWindow struct {
	mu       sync.Mutex
	horizons map[string]time.Duration
	maxAge   time.Duration
	samples  map[int64][]sample
	current  map[int64]map[string]WindowStats
}

func NewSlidingWindow() *SlidingWindow {
	horizons := map[string]time.Duration{
		"w1":  time.Second,
		"w5":  5 * time.Second,
		"w10": 10 * time.Second,
	}

	maxAge := time.Duration(0)
	for _, h := range horizons {
		if h > maxAge {
			maxAge = h
		}
	}

	return &SlidingWindow{
		horizons: horizons,
		maxAge:   maxAge,
		samples:  map[int64][]sample{},
		current:  map[int64]map[string]WindowStats{},
	}
}

// Add appends a sample and returns the rolling statistics per horizon,
// keyed by horizon name.
func (w *SlidingWindow) Add(sensorID int64, ts time.Time, value float64) map[string]WindowStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.samples[sensorID]
	kept = append(kept, sample{ts: ts, value: value})

	cutoff := ts.Add(-w.maxAge)
	trimmed := 0
	for trimmed < len(kept)-1 && kept[trimmed].ts.Before(cutoff) {
		trimmed++
	}
	kept = kept[trimmed:]
	w.samples[sensorID] = kept

	stats := make(map[string]WindowStats, len(w.horizons))
	for name, horizon := range w.horizons {
		stats[name] = computeStats(kept, ts.Add(-horizon))
	}
	w.current[sensorID] = stats

	return stats
}

// Snapshot returns the most recently computed statistics per sensor.
func (w *SlidingWindow) Snapshot() map[int64]map[string]WindowStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	snapshot := make(map[int64]map[string]WindowStats, len(w.current))
	for sensorID, stats := range w.current {
		copied := make(map[string]WindowStats, len(stats))
		for name, s := range stats {
			copied[name] = s
		}
		snapshot[sensorID] = copied
	}

	return snapshot
}

func computeStats(samples []sample, cutoff time.Time) WindowStats {
	var inWindow []sample
	for _, s := range samples {
		if !s.ts.Before(cutoff) {
			inWindow = append(inWindow, s)
		}
	}

	if len(inWindow) == 0 {
		return WindowStats{}
	}

	first := inWindow[0]
	last := inWindow[len(inWindow)-1]

	sum := 0.0
	min := math.Inf(1)
	max := math.Inf(-1)
	for _, s := range inWindow {
		sum += s.value
		min = math.Min(min, s.value)
		max = math.Max(max, s.value)
	}
	mean := sum / float64(len(inWindow))

	variance := 0.0
	for _, s := range inWindow {
		d := s.value - mean
		variance += d * d
	}
	variance /= float64(len(inWindow))

	trend := 0.0
	if len(inWindow) > 1 {
		dt := last.ts.Sub(first.ts).Seconds()
		trend = (last.value - first.value) / math.Max(dt, 1e-3)
	}

	return WindowStats{
		Mean:   mean,
		Min:    min,
		Max:    max,
		StdDev: math.Sqrt(variance),
		Trend:  trend,
		Count:  len(inWindow),
		Last:   last.value,
	}
}
