package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/analytics"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/batch"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/explainer"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/guards"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/ingest"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/metrics"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/resolver"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/infrastructure/broker"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/infrastructure/storage"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/presentation/api"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"
)

const serviceName string = "iot-sensor-analytics"

type flagType int
type flagMap map[flagType]string

const (
	listenAddress flagType = iota
	servicePort

	dbHost
	dbUser
	dbPassword
	dbPort
	dbName
	dbSSLMode

	readingsTopic
	primeSpikeCaches
	limitsFile
)

func defaultFlags() flagMap {
	return flagMap{
		listenAddress: "0.0.0.0",
		servicePort:   "8080",

		dbHost:     "",
		dbUser:     "",
		dbPassword: "",
		dbPort:     "5432",
		dbName:     "diwise",
		dbSSLMode:  "disable",

		readingsTopic:    "sensor.reading",
		primeSpikeCaches: "true",
		limitsFile:       "/opt/diwise/config/limits.yaml",
	}
}

func main() {
	ctx, flags := parseExternalConfig(context.Background(), defaultFlags())

	serviceVersion := buildinfo.SourceVersion()
	ctx, logger, cleanup := o11y.Init(ctx, serviceName, serviceVersion, "json")
	defer cleanup()

	s, err := storage.New(ctx, storage.NewConfig(
		flags[dbHost], flags[dbUser], flags[dbPassword], flags[dbPort], flags[dbName], flags[dbSSLMode],
	))
	exitIf(err, logger, "could not connect to database")

	err = s.Initialize(ctx)
	exitIf(err, logger, "could not initialize database")

	messenger, err := messaging.Initialize(ctx, messaging.LoadConfiguration(ctx, serviceName, logger))
	exitIf(err, logger, "failed to init messenger")

	err = run(ctx, flags, s, messenger)
	exitIf(err, logger, "service runtime failure")
}

func run(ctx context.Context, flags flagMap, s *storage.Storage, messenger messaging.MsgContext) error {
	log := logging.GetFromContext(ctx)

	err := guards.ConfigureFromFile(flags[limitsFile])
	if err != nil {
		log.Warn("failed to load guard limits", "file", flags[limitsFile], "err", err.Error())
	}

	res := resolver.New(s, resolver.DefaultCacheSize, resolver.LoadTTL(ctx))
	timing := metrics.NewTimingMonitor()
	window := analytics.NewSlidingWindow()
	spikes := analytics.NewSpikeDetector()
	readings := broker.NewInMemoryBroker(broker.DefaultCapacity)

	if flags[primeSpikeCaches] == "true" {
		err := spikes.Prime(ctx, s)
		if err != nil {
			log.Warn("failed to prime spike detector caches", "err", err.Error())
		}
	}

	pipeline := ingest.NewPipeline(s, res, timing, spikes, readings, messenger)

	ingestCfg := ingest.LoadConfiguration(ctx)

	var processor *ingest.AsyncProcessor
	if ingestCfg.AsyncEnabled {
		processor = ingest.NewAsyncProcessor(pipeline, ingestCfg)
		processor.Start(ctx)
	}

	consumerDone := analytics.StartWindowConsumer(ctx, readings, window)

	err = messenger.RegisterTopicMessageHandler(flags[readingsTopic], ingest.NewSensorReadingHandler(ingestCfg, pipeline, processor))
	if err != nil {
		return err
	}

	messenger.Start()

	agg := metrics.NewAggregator(timing).
		WithWindows(window.Snapshot).
		WithResolverCache(res.Stats).
		WithBrokerDropped(readings.Dropped)
	if processor != nil {
		agg.WithQueue(processor.QueueStats).WithProcessor(processor.Stats)
	}

	evaluator := batch.NewThresholdEvaluator(batch.DefaultRunnerConfig().DedupeWindow, messenger)
	runner := batch.NewRunner(s, evaluator, explainer.New(ctx), batch.DefaultRunnerConfig())

	router, err := api.RegisterHandlers(ctx, chi.NewRouter(), agg, runner, s)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    flags[listenAddress] + ":" + flags[servicePort],
		Handler: router,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", server.Addr)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errChan:
		return err
	case <-sigCtx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	if err != nil {
		log.Error("http server shutdown failed", "err", err.Error())
	}

	if processor != nil {
		processor.Stop(ctx, true)
	}

	readings.Stop()
	<-consumerDone

	messenger.Close()
	s.Close()

	return nil
}

func parseExternalConfig(ctx context.Context, flags flagMap) (context.Context, flagMap) {
	// Allow environment variables to override certain defaults
	envOrDef := env.GetVariableOrDefault

	flags[listenAddress] = envOrDef(ctx, "LISTEN_ADDRESS", flags[listenAddress])
	flags[servicePort] = envOrDef(ctx, "SERVICE_PORT", flags[servicePort])

	flags[dbHost] = envOrDef(ctx, "POSTGRES_HOST", flags[dbHost])
	flags[dbPort] = envOrDef(ctx, "POSTGRES_PORT", flags[dbPort])
	flags[dbName] = envOrDef(ctx, "POSTGRES_DBNAME", flags[dbName])
	flags[dbUser] = envOrDef(ctx, "POSTGRES_USER", flags[dbUser])
	flags[dbPassword] = envOrDef(ctx, "POSTGRES_PASSWORD", flags[dbPassword])
	flags[dbSSLMode] = envOrDef(ctx, "POSTGRES_SSLMODE", flags[dbSSLMode])

	flags[readingsTopic] = envOrDef(ctx, "READINGS_TOPIC", flags[readingsTopic])
	flags[primeSpikeCaches] = envOrDef(ctx, "PRIME_SPIKE_CACHES", flags[primeSpikeCaches])
	flags[limitsFile] = envOrDef(ctx, "GUARD_LIMITS_FILE", flags[limitsFile])

	apply := func(f flagType) func(string) error {
		return func(value string) error {
			flags[f] = value
			return nil
		}
	}

	// Allow command line arguments to override defaults and environment variables
	flag.Func("topic", "routing key for incoming sensor readings", apply(readingsTopic))
	flag.Func("port", "http service port", apply(servicePort))
	flag.Parse()

	return ctx, flags
}

func exitIf(err error, logger *slog.Logger, msg string, args ...any) {
	if err != nil {
		logger.With(args...).Error(msg, "err", err.Error())
		time.Sleep(2 * time.Second)
		os.Exit(1)
	}
}
