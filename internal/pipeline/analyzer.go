package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/spacesedan/ytsentiment/internal/classifier"
	"github.com/spacesedan/ytsentiment/internal/comments"
	"github.com/spacesedan/ytsentiment/internal/metrics"
	"github.com/spacesedan/ytsentiment/internal/models"
	"github.com/spacesedan/ytsentiment/internal/preprocessing"
	"github.com/spacesedan/ytsentiment/internal/sentiment"
	"github.com/spacesedan/ytsentiment/internal/video"
)

const DEFAULT_COMMENT_LIMIT = 100

var ErrNoComments = errors.New("no comments were retrieved")

type CommentFetcher interface {
	Fetch(ctx context.Context, id video.ID, limit int) ([]models.Comment, error)
}

type Config struct {
	Limit    int
	Baseline *sentiment.Baseline
}

// Analyzer runs resolve, fetch, normalize, encode, predict and label for one
// request at a time. It holds no per-request state.
type Analyzer struct {
	fetcher    CommentFetcher
	normalizer *preprocessing.Normalizer
	inference  *InferenceContext
	baseline   *sentiment.Baseline
	limit      int
}

func NewAnalyzer(fetcher CommentFetcher, normalizer *preprocessing.Normalizer, inference *InferenceContext, cfg Config) *Analyzer {
	limit := cfg.Limit
	if limit <= 0 {
		limit = DEFAULT_COMMENT_LIMIT
	}
	return &Analyzer{
		fetcher:    fetcher,
		normalizer: normalizer,
		inference:  inference,
		baseline:   cfg.Baseline,
		limit:      limit,
	}
}

func (a *Analyzer) Model() models.ModelInfo {
	return a.inference.Model
}

func (a *Analyzer) Predictor() classifier.Predictor {
	return a.inference.Predictor
}

// Analyze classifies up to limit comments of the video input names. A limit
// of zero uses the analyzer's default.
func (a *Analyzer) Analyze(ctx context.Context, input string, limit int) (*models.Analysis, error) {
	analysis, err := a.analyze(ctx, input, limit)
	if err != nil {
		metrics.RecordAnalysis(outcome(err))
		return nil, err
	}
	metrics.RecordAnalysis("ok")
	return analysis, nil
}

func (a *Analyzer) analyze(ctx context.Context, input string, limit int) (*models.Analysis, error) {
	if limit == 0 {
		limit = a.limit
	}

	id, err := video.Resolve(input)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	fetched, err := a.fetcher.Fetch(ctx, id, limit)
	metrics.ObserveStage("fetch", start)
	if err != nil {
		if errors.Is(err, comments.ErrAuthenticationMissing) || errors.Is(err, comments.ErrVideoNotFound) {
			return nil, fmt.Errorf("[Pipeline] %w: %w", ErrNoComments, err)
		}
		return nil, err
	}
	if len(fetched) == 0 {
		slog.Warn("[Pipeline] Video returned no comments", slog.String("video_id", string(id)))
		return nil, fmt.Errorf("[Pipeline] %w: %s", ErrNoComments, id)
	}

	texts := models.CommentTexts(fetched)
	raw, err := a.predict(ctx, texts)
	if err != nil {
		return nil, err
	}

	labels := sentiment.ToLabels(raw)
	predictions := make([]models.Prediction, len(fetched))
	for i, c := range fetched {
		predictions[i] = models.Prediction{Comment: c, Label: labels[i], Raw: raw[i]}
	}

	analysis := &models.Analysis{
		ID:          uuid.NewString(),
		VideoID:     string(id),
		Input:       input,
		Predictions: predictions,
		Counts:      sentiment.Count(labels),
		Model:       a.inference.Model,
		CreatedAt:   time.Now().UTC(),
	}

	if a.baseline != nil {
		baseline := a.baseline.Labels(texts)
		for i := range predictions {
			predictions[i].Baseline = baseline[i]
		}
		agreement := sentiment.Agreement(labels, baseline)
		analysis.BaselineAgreement = &agreement
	}

	counts := make(map[string]int, len(analysis.Counts))
	for l, n := range analysis.Counts {
		counts[l.String()] = n
	}
	metrics.RecordLabels(counts)
	metrics.CommentsPerAnalysis.Observe(float64(len(predictions)))

	slog.Info("[Pipeline] Analysis complete",
		slog.String("analysis_id", analysis.ID),
		slog.String("video_id", analysis.VideoID),
		slog.Int("comments", len(predictions)),
		slog.Int("positive", analysis.Counts[sentiment.Positive]),
		slog.Int("negative", analysis.Counts[sentiment.Negative]),
		slog.Int("neutral", analysis.Counts[sentiment.Neutral]))
	return analysis, nil
}

// Classify labels raw comment texts without fetching. Output pairs each
// input with its label, in input order.
func (a *Analyzer) Classify(ctx context.Context, texts []string) ([]models.Prediction, error) {
	raw, err := a.predict(ctx, texts)
	if err != nil {
		return nil, err
	}
	labels := sentiment.ToLabels(raw)
	out := make([]models.Prediction, len(texts))
	for i, t := range texts {
		out[i] = models.Prediction{Comment: models.Comment{Text: t}, Label: labels[i], Raw: raw[i]}
		if a.baseline != nil {
			_, out[i].Baseline = a.baseline.Score(t)
		}
	}
	return out, nil
}

func (a *Analyzer) predict(ctx context.Context, texts []string) ([]float64, error) {
	start := time.Now()
	normalized := a.normalizer.NormalizeAll(texts)
	metrics.ObserveStage("normalize", start)

	start = time.Now()
	matrix, err := a.inference.Encoder.Encode(normalized)
	metrics.ObserveStage("encode", start)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	raw, err := a.inference.Predictor.Predict(ctx, matrix)
	metrics.ObserveStage("predict", start)
	if err != nil {
		if !errors.Is(err, classifier.ErrPrediction) {
			err = fmt.Errorf("%w: %w", classifier.ErrPrediction, err)
		}
		return nil, fmt.Errorf("[Pipeline] %w", err)
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("[Pipeline] %w: %d outputs for %d comments", classifier.ErrPrediction, len(raw), len(texts))
	}
	return raw, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, video.ErrInvalidIdentifier):
		return "invalid_identifier"
	case errors.Is(err, comments.ErrInvalidLimit):
		return "invalid_limit"
	case errors.Is(err, ErrNoComments):
		return "no_comments"
	case errors.Is(err, comments.ErrRemoteAPI):
		return "remote_api_error"
	case errors.Is(err, classifier.ErrPrediction):
		return "prediction_error"
	default:
		return "error"
	}
}
