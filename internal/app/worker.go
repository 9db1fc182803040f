package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spacesedan/ytsentiment/internal/events"
	"github.com/spacesedan/ytsentiment/internal/models"
	"github.com/spacesedan/ytsentiment/internal/store"
)

type Analyzer interface {
	Analyze(ctx context.Context, input string, limit int) (*models.Analysis, error)
}

// NewRequestHandler runs a queued request the same way the HTTP host runs a
// POST: analyze, store, then publish. Publish failures are logged only.
func NewRequestHandler(analyzer Analyzer, st store.Store, publisher events.Publisher, timeout time.Duration) events.RequestHandler {
	return func(ctx context.Context, req events.AnalysisRequested) error {
		if req.Limit < 0 {
			return fmt.Errorf("[Worker] limit must be a positive number, got %d", req.Limit)
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		analysis, err := analyzer.Analyze(ctx, req.URL, req.Limit)
		if err != nil {
			return err
		}
		if err := st.Save(ctx, analysis); err != nil {
			return fmt.Errorf("[Worker] failed to store analysis %s: %w", analysis.ID, err)
		}
		if err := publisher.Publish(ctx, analysis); err != nil {
			slog.Warn("[Worker] Failed to publish analysis event",
				slog.String("analysis_id", analysis.ID),
				slog.String("error", err.Error()))
		}
		return nil
	}
}
