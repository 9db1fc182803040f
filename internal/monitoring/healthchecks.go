package monitoring

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/spacesedan/ytsentiment/internal/classifier"
	"github.com/spacesedan/ytsentiment/internal/metrics"
)

const HEALTHCHECK_TIMER = 15 * time.Second

// MonitorPredictorHealth probes the predictor every interval until ctx is
// done. Predictors without a remote backend are always healthy.
func MonitorPredictorHealth(ctx context.Context, predictor classifier.Predictor, healthy *atomic.Bool, interval time.Duration) {
	checker, ok := predictor.(classifier.HealthChecker)
	if !ok {
		healthy.Store(true)
		metrics.SetPredictorHealthy(true)
		return
	}
	if interval <= 0 {
		interval = HEALTHCHECK_TIMER
	}

	check := func() {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()

		isHealthy := checker.HealthCheck(checkCtx)
		if was := healthy.Swap(isHealthy); was != isHealthy {
			if isHealthy {
				slog.Info("[HealthCheck] Predictor is healthy again")
			} else {
				slog.Warn("[HealthCheck] Predictor is unhealthy")
			}
		}
		metrics.SetPredictorHealthy(isHealthy)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
