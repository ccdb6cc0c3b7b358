package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/batch"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/application/explainer"
	"github.com/diwise/iot-sensor-analytics/internal/pkg/infrastructure/storage"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const serviceName string = "batch-predictor"

func main() {
	window := flag.Int("window", 60, "number of readings per moving average window")
	horizonMinutes := flag.Int("horizon-minutes", 10, "how far ahead to predict")
	dedupeMinutes := flag.Int("dedupe-minutes", 10, "suppression window for repeated threshold events")
	sleepSeconds := flag.Int("sleep-seconds", 60, "pause between passes")
	once := flag.Bool("once", false, "run a single pass and exit")
	flag.Parse()

	ctx := context.Background()

	serviceVersion := buildinfo.SourceVersion()
	ctx, logger, cleanup := o11y.Init(ctx, serviceName, serviceVersion, "json")
	defer cleanup()

	s, err := storage.New(ctx, loadStorageConfig(ctx))
	exitIf(err, logger, "could not connect to database")

	err = s.Initialize(ctx)
	exitIf(err, logger, "could not initialize database")

	messenger, err := messaging.Initialize(ctx, messaging.LoadConfiguration(ctx, serviceName, logger))
	exitIf(err, logger, "failed to init messenger")
	messenger.Start()
	defer messenger.Close()

	cfg := batch.DefaultRunnerConfig()
	cfg.Window = *window
	cfg.Horizon = time.Duration(*horizonMinutes) * time.Minute
	cfg.DedupeWindow = time.Duration(*dedupeMinutes) * time.Minute
	cfg.ModelType = env.GetVariableOrDefault(ctx, "ML_MODEL_TYPE", cfg.ModelType)

	evaluator := batch.NewThresholdEvaluator(cfg.DedupeWindow, messenger)
	runner := batch.NewRunner(s, evaluator, explainer.New(ctx), cfg)

	if *once {
		_, err := runner.RunOnce(ctx)
		if err != nil {
			logger.Error("pass failed", "err", err.Error())
			os.Exit(1)
		}
		return
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runLoop(sigCtx, runner, time.Duration(*sleepSeconds)*time.Second)

	s.Close()
}

func runLoop(ctx context.Context, runner *batch.Runner, sleep time.Duration) {
	log := logging.GetFromContext(ctx)

	for {
		summary, err := runner.RunOnce(ctx)
		if err != nil {
			log.Error("pass failed", "err", err.Error())
		} else {
			log.Info("pass complete",
				"sensors", summary.Sensors,
				"predicted", summary.Predicted,
				"skipped", summary.Skipped,
				"failed", summary.Failed,
				"events", summary.Events,
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func loadStorageConfig(ctx context.Context) storage.Config {
	envOrDef := env.GetVariableOrDefault

	return storage.NewConfig(
		envOrDef(ctx, "POSTGRES_HOST", ""),
		envOrDef(ctx, "POSTGRES_USER", ""),
		envOrDef(ctx, "POSTGRES_PASSWORD", ""),
		envOrDef(ctx, "POSTGRES_PORT", "5432"),
		envOrDef(ctx, "POSTGRES_DBNAME", "diwise"),
		envOrDef(ctx, "POSTGRES_SSLMODE", "disable"),
	)
}

func exitIf(err error, logger *slog.Logger, msg string, args ...any) {
	if err != nil {
		logger.With(args...).Error(msg, "err", err.Error())
		time.Sleep(2 * time.Second)
		os.Exit(1)
	}
}
