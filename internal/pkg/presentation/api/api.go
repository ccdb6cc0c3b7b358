package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/batch"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/metrics"
	"github.com/diwise/iot-sensor-analytics/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("iot-sensor-analytics/api")

// BatchTrigger runs one batch prediction pass on demand.
type BatchTrigger interface {
	RunOnce(ctx context.Context) (batch.Summary, error)
}

// EventStore is the slice of persistence the admin endpoints read from.
type EventStore interface {
	GetEvents(ctx context.Context, sensorID int64, limit int) ([]types.Event, error)
	CountReadings(ctx context.Context, sensorID int64, hours int) (int64, error)
}

func RegisterHandlers(ctx context.Context, router *chi.Mux, agg *metrics.Aggregator, trigger BatchTrigger, store EventStore) (*chi.Mux, error) {

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	router.Handle("/metrics", promhttp.Handler())

	log := logging.GetFromContext(ctx)

	router.Route("/api/v0", func(r chi.Router) {
		r.Get("/metrics/ingestion", getIngestionMetricsHandler(log, agg))

		if trigger != nil {
			r.Post("/batch/run", runBatchHandler(log, trigger))
		}

		if store != nil {
			r.Get("/sensors/{sensorID}/events", getSensorEventsHandler(log, store))
			r.Get("/sensors/{sensorID}/readings/count", countSensorReadingsHandler(log, store))
		}
	})

	return router, nil
}

func getIngestionMetricsHandler(log *slog.Logger, agg *metrics.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-ingestion-metrics")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, _, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var sensorID *int64

		if s := r.URL.Query().Get("sensor_id"); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				requestLogger.Debug("invalid sensor_id query parameter", "value", s)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			sensorID = &id
		}

		snapshot := agg.Collect(sensorID)

		body, err := json.Marshal(snapshot)
		if err != nil {
			requestLogger.Error("unable to marshal metrics snapshot", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

func getSensorEventsHandler(log *slog.Logger, store EventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-sensor-events")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		sensorID, err := strconv.ParseInt(chi.URLParam(r, "sensorID"), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		limit := 50
		if l := r.URL.Query().Get("limit"); l != "" {
			limit, err = strconv.Atoi(l)
			if err != nil || limit < 1 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		events, err := store.GetEvents(ctx, sensorID, limit)
		if err != nil {
			requestLogger.Error("unable to fetch events", "sensor_id", sensorID, "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		body, _ := json.Marshal(map[string]any{
			"sensorID": sensorID,
			"events":   events,
		})

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

func countSensorReadingsHandler(log *slog.Logger, store EventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "count-sensor-readings")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		sensorID, err := strconv.ParseInt(chi.URLParam(r, "sensorID"), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		hours := 24
		if h := r.URL.Query().Get("hours"); h != "" {
			hours, err = strconv.Atoi(h)
			if err != nil || hours < 1 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		count, err := store.CountReadings(ctx, sensorID, hours)
		if err != nil {
			requestLogger.Error("unable to count readings", "sensor_id", sensorID, "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		body, _ := json.Marshal(map[string]any{
			"sensorID": sensorID,
			"hours":    hours,
			"count":    count,
		})

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

func runBatchHandler(log *slog.Logger, trigger BatchTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "run-batch-pass")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		summary, err := trigger.RunOnce(ctx)
		if err != nil {
			requestLogger.Error("batch pass failed", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		body, _ := json.Marshal(map[string]any{
			"sensors":   summary.Sensors,
			"predicted": summary.Predicted,
			"skipped":   summary.Skipped,
			"failed":    summary.Failed,
			"events":    summary.Events,
			"explained": summary.Explained,
		})

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}
