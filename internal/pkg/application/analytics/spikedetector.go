package analytics

import (
	"context"
	"math"
	"sync"

	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/guards"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/infrastructure/storage"
	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const (
	spikeWindowSize    = 20
	spikeMinSamples    = 5
	spikeZThreshold    = 3.0
	oscillationRatio   = 0.7
	minStdDev          = 0.001
	fallbackStdDev     = 0.01
	criticalMultiplier = 2.0
)

type SpikeResult struct {
	SensorID    int64   `json:"sensorID"`
	Value       float64 `json:"value"`
	Delta       float64 `json:"delta"`
	ZScore      float64 `json:"zScore"`
	MeanDelta   float64 `json:"meanDelta"`
	StdDevDelta float64 `json:"stdDevDelta"`
	Oscillation float64 `json:"oscillation"`
	Severity    string  `json:"severity"`
	Reason      string  `json:"reason"`
	SampleCount int     `json:"sampleCount"`
}

// SpikeDetector flags sudden jumps by comparing the latest delta against
// the distribution of recent deltas for the same sensor. The value cache
// is updated separately from detection so a value that fails persistence
// never poisons the baseline.
type SpikeDetector struct {
	mu     sync.Mutex
	recent map[int64][]float64
}

func NewSpikeDetector() *SpikeDetector {
	return &SpikeDetector{
		recent: map[int64][]float64{},
	}
}

type recentValueStore interface {
	ListActiveSensorIDs(ctx context.Context) ([]int64, error)
	GetSensor(ctx context.Context, sensorID int64) (types.Sensor, error)
	RecentValues(ctx context.Context, sensorID int64, limit int) ([]storage.ValuePoint, error)
}

// Prime warms the per sensor caches from stored history so the detector
// does not start cold after a restart. Values a guard would reject are
// filtered out.
func (d *SpikeDetector) Prime(ctx context.Context, store recentValueStore) error {
	log := logging.GetFromContext(ctx)

	sensorIDs, err := store.ListActiveSensorIDs(ctx)
	if err != nil {
		return err
	}

	primed := 0
	for _, sensorID := range sensorIDs {
		sensor, err := store.GetSensor(ctx, sensorID)
		if err != nil {
			log.Warn("could not load sensor during spike cache priming", "sensor_id", sensorID, "err", err.Error())
			continue
		}

		points, err := store.RecentValues(ctx, sensorID, spikeWindowSize)
		if err != nil {
			log.Warn("could not load history during spike cache priming", "sensor_id", sensorID, "err", err.Error())
			continue
		}

		values := make([]float64, 0, len(points))
		for _, p := range points {
			if guards.CheckValue(p.Value, sensor.SensorType).Valid {
				values = append(values, p.Value)
			}
		}

		if len(values) > 0 {
			d.mu.Lock()
			d.recent[sensorID] = values
			d.mu.Unlock()
			primed++
		}
	}

	log.Info("spike detector caches primed", "sensors", primed)

	return nil
}

// Detect evaluates value against the cached history. It returns nil while
// the history is shorter than the minimum sample count and when the value
// is unremarkable. Detection does not modify the cache.
func (d *SpikeDetector) Detect(sensorID int64, value float64) *SpikeResult {
	d.mu.Lock()
	history := d.recent[sensorID]
	window := make([]float64, 0, spikeWindowSize)
	if len(history) > spikeWindowSize {
		history = history[len(history)-spikeWindowSize:]
	}
	window = append(window, history...)
	d.mu.Unlock()

	if len(window) < spikeMinSamples {
		return nil
	}

	deltas := make([]float64, len(window)-1)
	for i := 1; i < len(window); i++ {
		deltas[i-1] = window[i] - window[i-1]
	}

	meanAbs, stdAbs := absDeltaDistribution(deltas)

	currentDelta := value - window[len(window)-1]
	z := (math.Abs(currentDelta) - meanAbs) / stdAbs

	oscillation := signChangeRatio(deltas)

	if z <= spikeZThreshold && oscillation <= oscillationRatio {
		return nil
	}

	severity := types.SeverityWarning
	if z > criticalMultiplier*spikeZThreshold {
		severity = types.SeverityCritical
	}

	reason := "delta"
	if z <= spikeZThreshold {
		reason = "oscillation"
	}

	return &SpikeResult{
		SensorID:    sensorID,
		Value:       value,
		Delta:       currentDelta,
		ZScore:      z,
		MeanDelta:   meanAbs,
		StdDevDelta: stdAbs,
		Oscillation: oscillation,
		Severity:    severity,
		Reason:      reason,
		SampleCount: len(window),
	}
}

// UpdateCache appends a persisted value to the sensor history. The cache
// keeps twice the detection window to amortize trimming.
func (d *SpikeDetector) UpdateCache(sensorID int64, value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	values := append(d.recent[sensorID], value)
	if len(values) > 2*spikeWindowSize {
		values = values[len(values)-2*spikeWindowSize:]
	}
	d.recent[sensorID] = values
}

func absDeltaDistribution(deltas []float64) (mean, std float64) {
	sum := 0.0
	for _, d := range deltas {
		sum += math.Abs(d)
	}
	mean = sum / float64(len(deltas))

	if len(deltas) >= 2 {
		variance := 0.0
		for _, d := range deltas {
			diff := math.Abs(d) - mean
			variance += diff * diff
		}
		std = math.Sqrt(variance / float64(len(deltas)-1))
	} else {
		std = fallbackStdDev
	}

	return mean, math.Max(std, minStdDev)
}

func signChangeRatio(deltas []float64) float64 {
	if len(deltas) == 0 {
		return 0
	}

	changes := 0
	for i := 1; i < len(deltas); i++ {
		if (deltas[i] > 0 && deltas[i-1] < 0) || (deltas[i] < 0 && deltas[i-1] > 0) {
			changes++
		}
	}

	return float64(changes) / float64(len(deltas))
}
