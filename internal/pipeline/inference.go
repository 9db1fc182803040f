package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spacesedan/ytsentiment/internal/classifier"
	"github.com/spacesedan/ytsentiment/internal/features"
	"github.com/spacesedan/ytsentiment/internal/models"
	"github.com/spacesedan/ytsentiment/internal/registry"
)

const (
	BACKEND_SERVING  = "serving"
	BACKEND_LIGHTGBM = "lightgbm"

	DEFAULT_LIGHTGBM_MODEL_FILE = "lgbm_model.txt"
)

// InferenceContext is the loaded model state shared by every request. It is
// built once at startup and never mutated.
type InferenceContext struct {
	Encoder   *features.Encoder
	Predictor classifier.Predictor
	Model     models.ModelInfo
}

func NewInferenceContext(encoder *features.Encoder, predictor classifier.Predictor, model models.ModelInfo) *InferenceContext {
	return &InferenceContext{Encoder: encoder, Predictor: predictor, Model: model}
}

type LoadOptions struct {
	Registry              *registry.Client
	Artifacts             registry.ArtifactStore
	ModelName             string
	Stage                 string
	Backend               string
	ServingURL            string
	HTTPClient            *http.Client
	ClassLabels           []float64
	LightGBMModelFile     string
	VectorizerConventions []string
}

// LoadInferenceContext resolves the registered model, reads its declared
// input schema, finds the vectorizer among the run's artifacts and builds
// the predictor. Every failure wraps classifier.ErrModelLoad.
func LoadInferenceContext(ctx context.Context, opts LoadOptions) (*InferenceContext, error) {
	start := time.Now()
	ic, err := loadInferenceContext(ctx, opts)
	if err != nil {
		slog.Error("[Pipeline] Failed to load inference context",
			slog.String("model", opts.ModelName),
			slog.String("stage", opts.Stage),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("[Pipeline] %w: %w", classifier.ErrModelLoad, err)
	}

	slog.Info("[Pipeline] Inference context ready",
		slog.String("model", ic.Model.Name),
		slog.String("version", ic.Model.Version),
		slog.String("backend", opts.Backend),
		slog.Int("features", ic.Encoder.Width()),
		slog.Duration("elapsed", time.Since(start)))
	return ic, nil
}

func loadInferenceContext(ctx context.Context, opts LoadOptions) (*InferenceContext, error) {
	if opts.Registry == nil || opts.Artifacts == nil {
		return nil, fmt.Errorf("registry and artifact store are required")
	}

	version, err := opts.Registry.LatestVersion(ctx, opts.ModelName, opts.Stage)
	if err != nil {
		return nil, err
	}
	modelURI, err := opts.Registry.ResolveSource(ctx, version)
	if err != nil {
		return nil, err
	}

	schema, err := registry.ModelSchema(ctx, opts.Artifacts, modelURI)
	if err != nil {
		return nil, err
	}

	manifest, err := opts.Registry.Manifest(ctx, version.RunID)
	if err != nil {
		return nil, err
	}
	vectorizerPath, err := features.FindVectorizer(manifest, opts.VectorizerConventions)
	if err != nil {
		return nil, err
	}
	runRoot, err := opts.Registry.RunArtifactURI(ctx, version.RunID)
	if err != nil {
		return nil, err
	}
	vectorizer, err := loadVectorizer(ctx, opts.Artifacts, registry.JoinURI(runRoot, vectorizerPath))
	if err != nil {
		return nil, err
	}

	encoder, err := features.NewEncoder(vectorizer, schema)
	if err != nil {
		return nil, err
	}

	predictor, err := buildPredictor(ctx, opts, modelURI, encoder)
	if err != nil {
		return nil, err
	}

	return NewInferenceContext(encoder, predictor, models.ModelInfo{
		Name:    version.Name,
		Version: version.Version,
		Stage:   version.Stage,
		RunID:   version.RunID,
	}), nil
}

func loadVectorizer(ctx context.Context, store registry.ArtifactStore, uri string) (*features.Vectorizer, error) {
	rc, err := store.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return features.LoadVectorizer(rc)
}

func buildPredictor(ctx context.Context, opts LoadOptions, modelURI string, encoder *features.Encoder) (classifier.Predictor, error) {
	switch opts.Backend {
	case BACKEND_SERVING, "":
		return classifier.NewServingPredictor(opts.ServingURL, opts.HTTPClient)
	case BACKEND_LIGHTGBM:
		file := opts.LightGBMModelFile
		if file == "" {
			file = DEFAULT_LIGHTGBM_MODEL_FILE
		}
		rc, err := opts.Artifacts.Open(ctx, registry.JoinURI(modelURI, file))
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		predictor, err := classifier.LoadLightGBM(rc, opts.ClassLabels)
		if err != nil {
			return nil, err
		}
		if err := features.CheckWidth(features.NewSchema(make([]features.Column, predictor.NFeatures())), encoder.Width()); err != nil {
			return nil, err
		}
		return predictor, nil
	default:
		return nil, fmt.Errorf("unknown predictor backend %q", opts.Backend)
	}
}
