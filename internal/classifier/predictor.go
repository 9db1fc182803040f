package classifier

import (
	"context"
	"errors"

	"github.com/spacesedan/ytsentiment/internal/features"
)

var (
	ErrModelLoad  = errors.New("model could not be loaded")
	ErrPrediction = errors.New("prediction failed")
)

// DefaultClassLabels are the raw outputs the trained model was fitted on, in
// class index order.
var DefaultClassLabels = []float64{-1, 0, 1}

// Predictor maps a feature matrix to one raw label per row.
type Predictor interface {
	Predict(ctx context.Context, m *features.Matrix) ([]float64, error)
}

// HealthChecker is implemented by predictors backed by a remote service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, m *features.Matrix) ([]float64, error)

func (f PredictorFunc) Predict(ctx context.Context, m *features.Matrix) ([]float64, error) {
	return f(ctx, m)
}
