package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spacesedan/ytsentiment/internal/features"
	"github.com/spacesedan/ytsentiment/internal/utils"
)

const (
	MAX_RETRIES     = 3
	INITIAL_BACKOFF = 1 * time.Second
	SERVING_TIMEOUT = 30 * time.Second
)

type dataframeSplit struct {
	Columns []string    `json:"columns"`
	Data    [][]float64 `json:"data"`
}

type invocationRequest struct {
	DataframeSplit dataframeSplit `json:"dataframe_split"`
}

// ServingPredictor calls an MLflow scoring server, at most batchSize rows
// per request.
type ServingPredictor struct {
	baseURL   string
	client    *http.Client
	backoff   time.Duration
	batchSize int
}

func NewServingPredictor(baseURL string, client *http.Client) (*ServingPredictor, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("[ServingPredictor] %w: serving url is empty", ErrModelLoad)
	}
	if client == nil {
		client = &http.Client{Timeout: SERVING_TIMEOUT}
	}
	slog.Info("[ServingPredictor] Initializing Client", slog.String("url", baseURL))
	return &ServingPredictor{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
		backoff:   INITIAL_BACKOFF,
		batchSize: utils.SERVING_BATCH_SIZE,
	}, nil
}

func (s *ServingPredictor) Predict(ctx context.Context, m *features.Matrix) ([]float64, error) {
	if m.Rows() == 0 {
		return []float64{}, nil
	}

	start := time.Now()
	batches := utils.Batches(m.RowSlices(), s.batchSize)
	preds := make([]float64, 0, m.Rows())
	for i, rows := range batches {
		batch, err := s.predictBatch(ctx, m.Columns, rows)
		if err != nil {
			slog.Error("[ServingPredictor] Prediction request failed",
				slog.Int("batch", i+1),
				slog.Int("batches", len(batches)),
				slog.Duration("elapsed", time.Since(start)))
			return nil, fmt.Errorf("[ServingPredictor] %w: %w", ErrPrediction, err)
		}
		preds = append(preds, batch...)
	}

	slog.Info("[ServingPredictor] Prediction request successful",
		slog.Int("rows", m.Rows()),
		slog.Int("batches", len(batches)),
		slog.Duration("elapsed", time.Since(start)))
	return preds, nil
}

func (s *ServingPredictor) predictBatch(ctx context.Context, columns []string, rows [][]float64) ([]float64, error) {
	input := invocationRequest{DataframeSplit: dataframeSplit{Columns: columns, Data: rows}}

	var raw json.RawMessage
	if err := s.postJSON(ctx, s.baseURL+"/invocations", input, &raw); err != nil {
		return nil, err
	}

	preds, err := decodePredictions(raw)
	if err != nil {
		return nil, err
	}
	if len(preds) != len(rows) {
		return nil, fmt.Errorf("%d predictions for %d rows", len(preds), len(rows))
	}
	return preds, nil
}

// HealthCheck pings the scoring server.
func (s *ServingPredictor) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/ping", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// decodePredictions accepts {"predictions": [...]} or a bare array. Elements
// may be numbers or numeric strings.
func decodePredictions(raw json.RawMessage) ([]float64, error) {
	var items []json.RawMessage
	var wrapped struct {
		Predictions []json.RawMessage `json:"predictions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Predictions != nil {
		items = wrapped.Predictions
	} else if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("unexpected response shape: %s", preview(raw))
	}

	out := make([]float64, len(items))
	for i, item := range items {
		var f float64
		if err := json.Unmarshal(item, &f); err == nil {
			out[i] = f
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return nil, fmt.Errorf("prediction %d is not numeric: %s", i, preview(item))
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("prediction %d is not numeric: %q", i, s)
		}
		out[i] = f
	}
	return out, nil
}

func (s *ServingPredictor) doWithRetry(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	var resp *http.Response
	var err error
	backoff := s.backoff

	for attempt := 0; attempt < MAX_RETRIES; attempt++ {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if reqErr != nil {
			return nil, fmt.Errorf("failed to build request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = s.client.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}

		msg := errMsg(err, resp)
		if resp != nil {
			resp.Body.Close()
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt == MAX_RETRIES-1 {
			break
		}
		slog.Warn("[ServingPredictor] Request failed, will retry",
			slog.Int("attempt", attempt+1),
			slog.String("error", msg))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	if err == nil {
		err = fmt.Errorf("status code %d", resp.StatusCode)
	}
	return nil, err
}

func (s *ServingPredictor) postJSON(ctx context.Context, endpoint string, input any, output any) error {
	body, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}

	resp, err := s.doWithRetry(ctx, endpoint, body)
	if err != nil {
		slog.Error("[ServingPredictor] Failed request after retries",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))
		return fmt.Errorf("request failed after retries: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("status code %d: %s", resp.StatusCode, preview(respBody))
	}

	if err := json.Unmarshal(respBody, output); err != nil {
		slog.Error("[ServingPredictor] Failed to unmarshal response",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
			slog.String("raw_response", preview(respBody)))
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func preview(b []byte) string {
	raw := string(b)
	if len(raw) > 50 {
		raw = raw[:50]
	}
	return raw
}

func errMsg(err error, resp *http.Response) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil {
		return fmt.Sprintf("status code %d", resp.StatusCode)
	}
	return "unknown error"
}
