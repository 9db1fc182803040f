package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/ytsentiment/internal/classifier"
	"github.com/spacesedan/ytsentiment/internal/comments"
	"github.com/spacesedan/ytsentiment/internal/features"
	"github.com/spacesedan/ytsentiment/internal/models"
	"github.com/spacesedan/ytsentiment/internal/preprocessing"
	"github.com/spacesedan/ytsentiment/internal/registry"
	"github.com/spacesedan/ytsentiment/internal/sentiment"
	"github.com/spacesedan/ytsentiment/internal/video"
)

type fakeFetcher struct {
	comments []models.Comment
	err      error
	gotID    video.ID
	gotLimit int
}

func (f *fakeFetcher) Fetch(_ context.Context, id video.ID, limit int) ([]models.Comment, error) {
	f.gotID, f.gotLimit = id, limit
	return f.comments, f.err
}

// keywordPredictor says Positive when "love" is present, Negative for
// "worst" and Neutral otherwise.
func keywordPredictor(t *testing.T) classifier.Predictor {
	return classifier.PredictorFunc(func(_ context.Context, m *features.Matrix) ([]float64, error) {
		love, worst := -1, -1
		for i, c := range m.Columns {
			switch c {
			case "love":
				love = i
			case "worst":
				worst = i
			}
		}
		require.NotEqual(t, -1, love)
		out := make([]float64, m.Rows())
		for i := range out {
			row := m.Row(i)
			switch {
			case row[love] > 0:
				out[i] = 1
			case row[worst] > 0:
				out[i] = -1
			}
		}
		return out, nil
	})
}

func newTestAnalyzer(t *testing.T, fetcher CommentFetcher, predictor classifier.Predictor, baseline *sentiment.Baseline) *Analyzer {
	t.Helper()
	vec, err := features.NewVectorizerFromVocabulary([]string{"love", "worst", "video", "great"})
	require.NoError(t, err)
	enc, err := features.NewEncoder(vec, nil)
	require.NoError(t, err)

	ic := NewInferenceContext(enc, predictor, models.ModelInfo{Name: "my_model", Version: "3", Stage: "Staging"})
	norm := preprocessing.NewNormalizer(preprocessing.NLTKEnglish(), preprocessing.NoopLemmatizer, 2)
	return NewAnalyzer(fetcher, norm, ic, Config{Limit: 50, Baseline: baseline})
}

func TestAnalyzeScenario(t *testing.T) {
	fetcher := &fakeFetcher{comments: []models.Comment{
		{ID: "a", Text: "I love this!"},
		{ID: "b", Text: "Worst ever."},
		{ID: "c", Text: ""},
	}}
	a := newTestAnalyzer(t, fetcher, keywordPredictor(t), nil)

	got, err := a.Analyze(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ", 0)
	require.NoError(t, err)

	assert.Equal(t, video.ID("dQw4w9WgXcQ"), fetcher.gotID)
	assert.Equal(t, 50, fetcher.gotLimit)
	assert.Equal(t, "dQw4w9WgXcQ", got.VideoID)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "my_model", got.Model.Name)

	require.Len(t, got.Predictions, 3)
	assert.Equal(t, "I love this!", got.Predictions[0].Comment.Text)
	assert.Equal(t, sentiment.Positive, got.Predictions[0].Label)
	assert.Equal(t, "Worst ever.", got.Predictions[1].Comment.Text)
	assert.Equal(t, sentiment.Negative, got.Predictions[1].Label)
	assert.Equal(t, "", got.Predictions[2].Comment.Text)
	assert.Equal(t, sentiment.Neutral, got.Predictions[2].Label)

	assert.Equal(t, map[sentiment.Label]int{sentiment.Positive: 1, sentiment.Negative: 1, sentiment.Neutral: 1}, got.Counts)
	assert.Nil(t, got.BaselineAgreement)
}

func TestAnalyzeWithBaseline(t *testing.T) {
	fetcher := &fakeFetcher{comments: []models.Comment{
		{Text: "I love this, it is great!"},
		{Text: "Worst video ever, terrible."},
	}}
	a := newTestAnalyzer(t, fetcher, keywordPredictor(t), sentiment.NewBaseline())

	got, err := a.Analyze(context.Background(), "dQw4w9WgXcQ", 10)
	require.NoError(t, err)
	require.NotNil(t, got.BaselineAgreement)
	assert.InDelta(t, 1.0, *got.BaselineAgreement, 1e-9)
	assert.Equal(t, sentiment.Positive, got.Predictions[0].Baseline)
	assert.Equal(t, sentiment.Negative, got.Predictions[1].Baseline)
	assert.Equal(t, 10, fetcher.gotLimit)
}

func TestAnalyzeErrors(t *testing.T) {
	noop := classifier.PredictorFunc(func(_ context.Context, m *features.Matrix) ([]float64, error) {
		return make([]float64, m.Rows()), nil
	})

	t.Run("invalid identifier", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		_, err := newTestAnalyzer(t, fetcher, noop, nil).Analyze(context.Background(), "https://example.com/watch?v=dQw4w9WgXcQ", 0)
		assert.ErrorIs(t, err, video.ErrInvalidIdentifier)
		assert.Empty(t, fetcher.gotID)
	})

	t.Run("zero comments", func(t *testing.T) {
		_, err := newTestAnalyzer(t, &fakeFetcher{}, noop, nil).Analyze(context.Background(), "dQw4w9WgXcQ", 0)
		assert.ErrorIs(t, err, ErrNoComments)
		assert.NotErrorIs(t, err, comments.ErrRemoteAPI)
	})

	t.Run("missing api key is no comments", func(t *testing.T) {
		fetcher := &fakeFetcher{err: fmt.Errorf("wrapped: %w", comments.ErrAuthenticationMissing)}
		_, err := newTestAnalyzer(t, fetcher, noop, nil).Analyze(context.Background(), "dQw4w9WgXcQ", 0)
		assert.ErrorIs(t, err, ErrNoComments)
		assert.ErrorIs(t, err, comments.ErrAuthenticationMissing)
	})

	t.Run("video not found is no comments", func(t *testing.T) {
		fetcher := &fakeFetcher{err: comments.ErrVideoNotFound}
		_, err := newTestAnalyzer(t, fetcher, noop, nil).Analyze(context.Background(), "dQw4w9WgXcQ", 0)
		assert.ErrorIs(t, err, ErrNoComments)
	})

	t.Run("remote failure propagates", func(t *testing.T) {
		fetcher := &fakeFetcher{err: fmt.Errorf("%w: 500", comments.ErrRemoteAPI)}
		_, err := newTestAnalyzer(t, fetcher, noop, nil).Analyze(context.Background(), "dQw4w9WgXcQ", 0)
		assert.ErrorIs(t, err, comments.ErrRemoteAPI)
		assert.NotErrorIs(t, err, ErrNoComments)
	})

	t.Run("predictor failure", func(t *testing.T) {
		broken := classifier.PredictorFunc(func(context.Context, *features.Matrix) ([]float64, error) {
			return nil, errors.New("connection refused")
		})
		fetcher := &fakeFetcher{comments: []models.Comment{{Text: "hi"}}}
		_, err := newTestAnalyzer(t, fetcher, broken, nil).Analyze(context.Background(), "dQw4w9WgXcQ", 0)
		assert.ErrorIs(t, err, classifier.ErrPrediction)
	})

	t.Run("short prediction output", func(t *testing.T) {
		short := classifier.PredictorFunc(func(context.Context, *features.Matrix) ([]float64, error) {
			return []float64{1}, nil
		})
		fetcher := &fakeFetcher{comments: []models.Comment{{Text: "a"}, {Text: "b"}}}
		_, err := newTestAnalyzer(t, fetcher, short, nil).Analyze(context.Background(), "dQw4w9WgXcQ", 0)
		assert.ErrorIs(t, err, classifier.ErrPrediction)
	})
}

func TestClassify(t *testing.T) {
	a := newTestAnalyzer(t, &fakeFetcher{}, keywordPredictor(t), nil)

	got, err := a.Classify(context.Background(), []string{"I love this!", "Worst ever.", ""})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []sentiment.Label{sentiment.Positive, sentiment.Negative, sentiment.Neutral},
		[]sentiment.Label{got[0].Label, got[1].Label, got[2].Label})

	empty, err := a.Classify(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

const (
	testVectorizer = `{"vocabulary": {"good": 0, "love": 1, "video": 2}, "idf": [1.0, 1.5, 1.0]}`
	testMLmodel    = `artifact_path: model
flavors:
  python_function:
    loader_module: mlflow.lightgbm
signature:
  inputs: '%s'
`
)

// newTestRegistry serves an MLflow tracking API whose run artifacts live in
// a temp dir.
func newTestRegistry(t *testing.T, signature string, withVectorizer bool) (*registry.Client, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "model"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "model", "MLmodel"), []byte(fmt.Sprintf(testMLmodel, signature)), 0o644))
	if withVectorizer {
		require.NoError(t, os.WriteFile(filepath.Join(root, "tfidf_vectorizer.json"), []byte(testVectorizer), 0o644))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/registered-models/get-latest-versions", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"model_versions": [{"name": "my_model", "version": "4", "current_stage": "Staging",
			"source": "runs:/run1/model", "run_id": "run1"}]}`)
	})
	mux.HandleFunc("/api/2.0/mlflow/runs/get", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"run": {"info": {"artifact_uri": "file://%s"}}}`, root)
	})
	mux.HandleFunc("/api/2.0/mlflow/artifacts/list", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("path") == "model" {
			io.WriteString(w, `{"files": [{"path": "model/MLmodel"}]}`)
			return
		}
		files := `{"path": "model", "is_dir": true}`
		if withVectorizer {
			files += `, {"path": "tfidf_vectorizer.json"}`
		}
		fmt.Fprintf(w, `{"files": [%s]}`, files)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := registry.NewClient(context.Background(), registry.Config{TrackingURI: srv.URL})
	require.NoError(t, err)
	return c, root
}

func TestLoadInferenceContext(t *testing.T) {
	signature := `[{"name": "good", "type": "double"}, {"name": "love", "type": "double"}, {"name": "video", "type": "double"}]`
	c, _ := newTestRegistry(t, signature, true)

	ic, err := LoadInferenceContext(context.Background(), LoadOptions{
		Registry:   c,
		Artifacts:  &registry.Artifacts{Registry: c},
		ModelName:  "my_model",
		Stage:      "Staging",
		Backend:    BACKEND_SERVING,
		ServingURL: "http://localhost:5001",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, ic.Encoder.Width())
	assert.Equal(t, []string{"good", "love", "video"}, ic.Encoder.Columns())
	assert.Equal(t, models.ModelInfo{Name: "my_model", Version: "4", Stage: "Staging", RunID: "run1"}, ic.Model)
	assert.IsType(t, &classifier.ServingPredictor{}, ic.Predictor)
}

func TestLoadInferenceContextFailures(t *testing.T) {
	t.Run("schema mismatch", func(t *testing.T) {
		c, _ := newTestRegistry(t, `[{"type": "tensor", "tensor-spec": {"dtype": "float64", "shape": [-1, 500]}}]`, true)
		_, err := LoadInferenceContext(context.Background(), LoadOptions{
			Registry:   c,
			Artifacts:  &registry.Artifacts{Registry: c},
			ModelName:  "my_model",
			ServingURL: "http://localhost:5001",
		})
		assert.ErrorIs(t, err, classifier.ErrModelLoad)
		assert.ErrorIs(t, err, features.ErrFeatureSchemaMismatch)
		assert.Contains(t, err.Error(), "500")
		assert.Contains(t, err.Error(), "3")
	})

	t.Run("vectorizer missing", func(t *testing.T) {
		c, _ := newTestRegistry(t, `[]`, false)
		_, err := LoadInferenceContext(context.Background(), LoadOptions{
			Registry:   c,
			Artifacts:  &registry.Artifacts{Registry: c},
			ModelName:  "my_model",
			ServingURL: "http://localhost:5001",
		})
		assert.ErrorIs(t, err, classifier.ErrModelLoad)
		assert.ErrorIs(t, err, features.ErrVectorizerNotFound)
	})

	t.Run("lightgbm model file missing", func(t *testing.T) {
		c, _ := newTestRegistry(t, `[]`, true)
		_, err := LoadInferenceContext(context.Background(), LoadOptions{
			Registry:  c,
			Artifacts: &registry.Artifacts{Registry: c},
			ModelName: "my_model",
			Backend:   BACKEND_LIGHTGBM,
		})
		assert.ErrorIs(t, err, classifier.ErrModelLoad)
	})
}
