package classifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/ytsentiment/internal/features"
)

func testMatrix(rows [][]float64) *features.Matrix {
	var data []float64
	for _, r := range rows {
		data = append(data, r...)
	}
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	return features.NewMatrix(len(rows), cols, data, []string{"good", "love"}[:cols])
}

func newTestServing(t *testing.T, handler http.HandlerFunc) *ServingPredictor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	sp, err := NewServingPredictor(srv.URL+"/", nil)
	require.NoError(t, err)
	sp.backoff = time.Millisecond
	return sp
}

func TestServingPredict(t *testing.T) {
	sp := newTestServing(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invocations", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req invocationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"good", "love"}, req.DataframeSplit.Columns)
		assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, req.DataframeSplit.Data)

		io.WriteString(w, `{"predictions": [1, -1]}`)
	})

	got, err := sp.Predict(context.Background(), testMatrix([][]float64{{1, 0}, {0, 1}}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -1}, got)
}

func TestServingPredictSplitsIntoBatches(t *testing.T) {
	var calls atomic.Int32
	sp := newTestServing(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req invocationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.LessOrEqual(t, len(req.DataframeSplit.Data), 2)

		preds := make([]float64, len(req.DataframeSplit.Data))
		for i, row := range req.DataframeSplit.Data {
			preds[i] = row[0]
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"predictions": preds}))
	})
	sp.batchSize = 2

	got, err := sp.Predict(context.Background(), testMatrix([][]float64{{1, 0}, {0, 0}, {-1, 0}, {1, 1}, {0, 1}}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, -1, 1, 0}, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestServingResponseShapes(t *testing.T) {
	cases := map[string]string{
		"bare array":        `[0, 1]`,
		"string labels":     `{"predictions": ["0", "1"]}`,
		"float predictions": `{"predictions": [0.0, 1.0]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			sp := newTestServing(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			})
			got, err := sp.Predict(context.Background(), testMatrix([][]float64{{0, 0}, {1, 1}}))
			require.NoError(t, err)
			assert.Equal(t, []float64{0, 1}, got)
		})
	}
}

func TestServingErrors(t *testing.T) {
	t.Run("length mismatch", func(t *testing.T) {
		sp := newTestServing(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"predictions": [1]}`)
		})
		_, err := sp.Predict(context.Background(), testMatrix([][]float64{{0, 0}, {1, 1}}))
		assert.ErrorIs(t, err, ErrPrediction)
	})

	t.Run("bad request", func(t *testing.T) {
		sp := newTestServing(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error_code": "BAD_REQUEST"}`)
		})
		_, err := sp.Predict(context.Background(), testMatrix([][]float64{{0, 0}}))
		assert.ErrorIs(t, err, ErrPrediction)
		assert.Contains(t, err.Error(), "400")
	})

	t.Run("server keeps failing", func(t *testing.T) {
		var calls atomic.Int32
		sp := newTestServing(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		})
		_, err := sp.Predict(context.Background(), testMatrix([][]float64{{0, 0}}))
		assert.ErrorIs(t, err, ErrPrediction)
		assert.Equal(t, int32(MAX_RETRIES), calls.Load())
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		sp := newTestServing(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		sp.backoff = time.Hour

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, err := sp.Predict(ctx, testMatrix([][]float64{{0, 0}}))
		assert.ErrorIs(t, err, ErrPrediction)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("not numeric", func(t *testing.T) {
		sp := newTestServing(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"predictions": ["positive"]}`)
		})
		_, err := sp.Predict(context.Background(), testMatrix([][]float64{{0, 0}}))
		assert.ErrorIs(t, err, ErrPrediction)
	})
}

func TestServingEmptyMatrixSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	sp := newTestServing(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	got, err := sp.Predict(context.Background(), features.NewMatrix(0, 2, nil, nil))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, calls.Load())
}

func TestServingHealthCheck(t *testing.T) {
	sp := newTestServing(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	assert.True(t, sp.HealthCheck(context.Background()))
}

// fakeEnsemble returns fixed per-row scores.
type fakeEnsemble struct {
	features int
	groups   int
	scores   [][]float64
}

func (f *fakeEnsemble) NFeatures() int     { return f.features }
func (f *fakeEnsemble) NOutputGroups() int { return f.groups }

func (f *fakeEnsemble) PredictDense(_ []float64, nrows, _ int, predictions []float64, _, _ int) error {
	for i := 0; i < nrows; i++ {
		copy(predictions[i*f.groups:], f.scores[i])
	}
	return nil
}

func TestLightGBMArgmaxToClassLabels(t *testing.T) {
	p := &LightGBMPredictor{
		model: &fakeEnsemble{features: 2, groups: 3, scores: [][]float64{
			{0.7, 0.2, 0.1},
			{0.1, 0.3, 0.6},
			{0.2, 0.5, 0.3},
		}},
		labels:  DefaultClassLabels,
		threads: 1,
	}

	got, err := p.Predict(context.Background(), testMatrix([][]float64{{1, 0}, {0, 1}, {0, 0}}))
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 1, 0}, got)
}

func TestLightGBMSingleOutputIsRounded(t *testing.T) {
	p := &LightGBMPredictor{
		model:   &fakeEnsemble{features: 2, groups: 1, scores: [][]float64{{0.9}, {-1.2}}},
		labels:  DefaultClassLabels,
		threads: 1,
	}
	got, err := p.Predict(context.Background(), testMatrix([][]float64{{1, 0}, {0, 1}}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -1}, got)
}

func TestLightGBMWidthMismatch(t *testing.T) {
	p := &LightGBMPredictor{model: &fakeEnsemble{features: 500, groups: 3}, labels: DefaultClassLabels}
	_, err := p.Predict(context.Background(), testMatrix([][]float64{{1, 0}}))
	assert.ErrorIs(t, err, ErrPrediction)
}

func TestLoadLightGBMRejectsGarbage(t *testing.T) {
	_, err := LoadLightGBM(strings.NewReader("this is not a model\n"), nil)
	assert.ErrorIs(t, err, ErrModelLoad)
}
