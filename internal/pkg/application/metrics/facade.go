package metrics

import (
	"time"

	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/analytics"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/resolver"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/infrastructure/queue"
)

// Snapshot is the single read model the metrics endpoint serves. It joins
// timing, queue, processor and cache state taken at one point in time.
type Snapshot struct {
	UptimeSeconds float64                                    `json:"uptimeSeconds"`
	Health        string                                     `json:"health"`
	TotalReadings uint64                                     `json:"totalReadings"`
	Sensors       map[int64]SensorTimingSnapshot             `json:"sensors"`
	Windows       map[int64]map[string]analytics.WindowStats `json:"windows,omitempty"`
	Queue         *queue.Stats                               `json:"queue,omitempty"`
	Processor     *ProcessorStats                            `json:"processor,omitempty"`
	ResolverCache *resolver.CacheStats                       `json:"resolverCache,omitempty"`
	BrokerDropped uint64                                     `json:"brokerDropped"`
	GeneratedAt   time.Time                                  `json:"generatedAt"`
}

type ProcessorStats struct {
	Workers   int    `json:"workers"`
	Processed uint64 `json:"processed"`
	Errors    uint64 `json:"errors"`
}

// Aggregator collects snapshot providers from the components that own the
// state. Providers are optional, an unset provider leaves its section out.
type Aggregator struct {
	timing         *TimingMonitor
	windowStats    func() map[int64]map[string]analytics.WindowStats
	queueStats     func() queue.Stats
	processorStats func() ProcessorStats
	resolverStats  func() resolver.CacheStats
	brokerDropped  func() uint64
}

func NewAggregator(timing *TimingMonitor) *Aggregator {
	return &Aggregator{timing: timing}
}

func (a *Aggregator) WithWindows(fn func() map[int64]map[string]analytics.WindowStats) *Aggregator {
	a.windowStats = fn
	return a
}

func (a *Aggregator) WithQueue(fn func() queue.Stats) *Aggregator {
	a.queueStats = fn
	return a
}

func (a *Aggregator) WithProcessor(fn func() ProcessorStats) *Aggregator {
	a.processorStats = fn
	return a
}

func (a *Aggregator) WithResolverCache(fn func() resolver.CacheStats) *Aggregator {
	a.resolverStats = fn
	return a
}

func (a *Aggregator) WithBrokerDropped(fn func() uint64) *Aggregator {
	a.brokerDropped = fn
	return a
}

// Collect assembles a snapshot, optionally narrowed to a single sensor.
func (a *Aggregator) Collect(sensorID *int64) Snapshot {
	sensors := a.timing.Snapshot()

	if sensorID != nil {
		filtered := map[int64]SensorTimingSnapshot{}
		if s, ok := sensors[*sensorID]; ok {
			filtered[*sensorID] = s
		}
		sensors = filtered
	}

	total := uint64(0)
	for _, s := range sensors {
		total += s.Count
	}

	snapshot := Snapshot{
		UptimeSeconds: a.timing.Uptime().Seconds(),
		Health:        a.timing.Health(),
		TotalReadings: total,
		Sensors:       sensors,
		GeneratedAt:   time.Now().UTC(),
	}

	if a.windowStats != nil {
		windows := a.windowStats()
		if sensorID != nil {
			filtered := map[int64]map[string]analytics.WindowStats{}
			if w, ok := windows[*sensorID]; ok {
				filtered[*sensorID] = w
			}
			windows = filtered
		}
		snapshot.Windows = windows
	}
	if a.queueStats != nil {
		qs := a.queueStats()
		snapshot.Queue = &qs
	}
	if a.processorStats != nil {
		ps := a.processorStats()
		snapshot.Processor = &ps
	}
	if a.resolverStats != nil {
		rs := a.resolverStats()
		snapshot.ResolverCache = &rs
	}
	if a.brokerDropped != nil {
		snapshot.BrokerDropped = a.brokerDropped()
	}

	return snapshot
}
