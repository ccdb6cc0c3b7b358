package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "iot_sensor_analytics",
		Name:      "queue_enqueued_total",
		Help:      "The total number of items offered to the queue",
	}, []string{"queue"})
	metricDequeued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "iot_sensor_analytics",
		Name:      "queue_dequeued_total",
		Help:      "The total number of items taken from the queue",
	}, []string{"queue"})
	metricDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "iot_sensor_analytics",
		Name:      "queue_dropped_total",
		Help:      "The total number of items shed under backpressure",
	}, []string{"queue"})
	metricRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "iot_sensor_analytics",
		Name:      "queue_rate_limited_total",
		Help:      "The total number of items refused by the rate limiter",
	}, []string{"queue"})
	metricDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "iot_sensor_analytics",
		Name:      "queue_depth",
		Help:      "The current number of items in the queue",
	}, []string{"queue"})
)
