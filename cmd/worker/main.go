package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"golang.org/x/sync/errgroup"

	"github.com/spacesedan/ytsentiment/config"
	"github.com/spacesedan/ytsentiment/internal/app"
	"github.com/spacesedan/ytsentiment/internal/events"
	"github.com/spacesedan/ytsentiment/internal/logging"
	"github.com/spacesedan/ytsentiment/internal/monitoring"
)

func main() {
	config.LoadEnv(config.AppEnv())

	settings, err := config.Load()
	if err != nil {
		slog.Error("[Main] Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logging.InitLogger(settings.LogLevel)

	if settings.Kafka.Broker == "" {
		slog.Error("[Main] KAFKA_BROKER must be set for the worker")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, settings); err != nil {
		slog.Error("[Main] Worker stopped with error", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
	slog.Info("[Main] Worker stopped")
}

// run owns every resource it opens, so they are released before main exits.
func run(ctx context.Context, settings *config.Settings) error {
	analyzer, err := app.NewAnalyzer(ctx, settings)
	if err != nil {
		return fmt.Errorf("[Main] failed to build analyzer: %w", err)
	}

	st, closeStore, err := app.NewStore(ctx, settings)
	if err != nil {
		return fmt.Errorf("[Main] failed to build result store: %w", err)
	}
	defer closeStore()

	publisher, err := app.NewPublisher(settings)
	if err != nil {
		return fmt.Errorf("[Main] failed to build event publisher: %w", err)
	}
	defer publisher.Close()

	var consumer *kafka.Consumer
	for {
		consumer, err = events.NewKafkaConsumer(events.ConsumerConfig{
			Broker:  settings.Kafka.Broker,
			GroupID: settings.Kafka.GroupID,
			Topic:   settings.Kafka.RequestTopic,
		})
		if err == nil {
			break
		}
		slog.Warn("Kafka init failed, retrying...", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
		}
	}
	defer consumer.Close()

	predictorHealthy := &atomic.Bool{}
	predictorHealthy.Store(true)

	handler := app.NewRequestHandler(analyzer, st, publisher, settings.Server.AnalysisTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		monitoring.MonitorPredictorHealth(gctx, analyzer.Predictor(), predictorHealthy, monitoring.HEALTHCHECK_TIMER)
		return nil
	})
	g.Go(func() error {
		return events.NewRequestConsumer(consumer, handler).Run(gctx)
	})
	return g.Wait()
}
