package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricReadings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "iot_sensor_analytics",
		Name:      "readings_total",
		Help:      "The total number of readings recorded by the timing monitor",
	})
	metricOutOfOrder = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "iot_sensor_analytics",
		Name:      "out_of_order_total",
		Help:      "The total number of readings that arrived with a stale sequence number",
	})
	metricIngestLag = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "iot_sensor_analytics",
		Name:      "ingestion_lag_seconds",
		Help:      "Distribution of device to ingestion latency",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5},
	})
	RejectedReadings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "iot_sensor_analytics",
		Name:      "readings_rejected_total",
		Help:      "The total number of readings rejected before persistence, by reason",
	}, []string{"reason"})
)

// IncRejected counts one rejected reading under the given reason code.
func IncRejected(reason string) {
	RejectedReadings.WithLabelValues(reason).Inc()
}
