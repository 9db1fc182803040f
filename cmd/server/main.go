package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/spacesedan/ytsentiment/config"
	"github.com/spacesedan/ytsentiment/internal/app"
	"github.com/spacesedan/ytsentiment/internal/logging"
	"github.com/spacesedan/ytsentiment/internal/monitoring"
	"github.com/spacesedan/ytsentiment/internal/server"
)

const SHUTDOWN_TIMEOUT = 10 * time.Second

func main() {
	config.LoadEnv(config.AppEnv())

	settings, err := config.Load()
	if err != nil {
		slog.Error("[Main] Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logging.InitLogger(settings.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, settings); err != nil {
		slog.Error("[Main] Server stopped with error", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
	slog.Info("[Main] Server stopped")
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

	predictorHealthy := &atomic.Bool{}
	predictorHealthy.Store(true)

	e := server.New(server.Config{
		Analyzer:  analyzer,
		Store:     st,
		Publisher: publisher,
		Healthy:   predictorHealthy,
		Timeout:   settings.Server.AnalysisTimeout,
	}).Echo()

	slog.Info("[Main] HTTP server listening",
		slog.String("addr", settings.Server.Addr),
		slog.String("model", analyzer.Model().Name),
		slog.String("version", analyzer.Model().Version))

	return serve(ctx, e, settings.Server.Addr, func(ctx context.Context) {
		monitoring.MonitorPredictorHealth(ctx, analyzer.Predictor(), predictorHealthy, monitoring.HEALTHCHECK_TIMER)
	})
}

// serve runs e and monitor until ctx is done or the listener fails, then
// shuts e down.
func serve(ctx context.Context, e *echo.Echo, addr string, monitor func(context.Context)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		monitor(gctx)
		return nil
	})
	g.Go(func() error {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("[Main] Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
