package classifier

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/dmitryikh/leaves"

	"github.com/spacesedan/ytsentiment/internal/features"
)

// ensemble is the part of *leaves.Ensemble the predictor uses.
type ensemble interface {
	NFeatures() int
	NOutputGroups() int
	PredictDense(vals []float64, nrows int, ncols int, predictions []float64, nEstimators int, nThreads int) error
}

// LightGBMPredictor runs a LightGBM text model in process. Multiclass
// probabilities are reduced to the class label with the highest score.
type LightGBMPredictor struct {
	model   ensemble
	labels  []float64
	threads int
}

func LoadLightGBM(r io.Reader, labels []float64) (*LightGBMPredictor, error) {
	model, err := leaves.LGEnsembleFromReader(bufio.NewReader(r), true)
	if err != nil {
		return nil, fmt.Errorf("[LightGBMPredictor] %w: %w", ErrModelLoad, err)
	}
	if len(labels) == 0 {
		labels = DefaultClassLabels
	}
	if groups := model.NOutputGroups(); groups > 1 && groups != len(labels) {
		return nil, fmt.Errorf("[LightGBMPredictor] %w: model has %d classes, %d labels configured",
			ErrModelLoad, groups, len(labels))
	}

	slog.Info("[LightGBMPredictor] Model loaded",
		slog.Int("features", model.NFeatures()),
		slog.Int("classes", model.NOutputGroups()),
		slog.Int("trees", model.NEstimators()))

	return &LightGBMPredictor{model: model, labels: labels, threads: 1}, nil
}

// NFeatures is the column count the model was trained on.
func (p *LightGBMPredictor) NFeatures() int {
	return p.model.NFeatures()
}

func (p *LightGBMPredictor) Predict(_ context.Context, m *features.Matrix) ([]float64, error) {
	if m.Rows() == 0 {
		return []float64{}, nil
	}
	if m.Cols() != p.model.NFeatures() {
		return nil, fmt.Errorf("[LightGBMPredictor] %w: model expects %d features, got %d",
			ErrPrediction, p.model.NFeatures(), m.Cols())
	}

	groups := p.model.NOutputGroups()
	scores := make([]float64, m.Rows()*groups)
	if err := p.model.PredictDense(m.Data(), m.Rows(), m.Cols(), scores, 0, p.threads); err != nil {
		return nil, fmt.Errorf("[LightGBMPredictor] %w: %w", ErrPrediction, err)
	}

	out := make([]float64, m.Rows())
	for i := range out {
		row := scores[i*groups : (i+1)*groups]
		if groups == 1 {
			out[i] = math.Round(row[0])
			continue
		}
		out[i] = p.labels[argmax(row)]
	}
	return out, nil
}

func argmax(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}
