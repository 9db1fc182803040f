package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	MAX_RETRIES     = 3
	INITIAL_BACKOFF = 500 * time.Millisecond
	REQUEST_TIMEOUT = 30 * time.Second

	DEFAULT_STAGE = "Staging"
)

var (
	ErrModelVersionNotFound = errors.New("no registered model version for stage")
	ErrRegistryRequest      = errors.New("model registry request failed")
)

type Config struct {
	TrackingURI string
	Token       string
	HTTPClient  *http.Client
}

// ModelVersion is one registered version of a model.
type ModelVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Stage   string `json:"current_stage"`
	Source  string `json:"source"`
	RunID   string `json:"run_id"`
}

type FileInfo struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
}

// Client talks to an MLflow tracking server's REST API.
type Client struct {
	baseURL string
	http    *http.Client
	backoff time.Duration
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.TrackingURI == "" {
		return nil, fmt.Errorf("[Registry] %w: tracking uri is empty", ErrRegistryRequest)
	}
	if _, err := url.Parse(cfg.TrackingURI); err != nil {
		return nil, fmt.Errorf("[Registry] invalid tracking uri: %w", err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: REQUEST_TIMEOUT}
	}
	if cfg.Token != "" {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	}

	slog.Info("[Registry] Initializing Client",
		slog.String("tracking_uri", cfg.TrackingURI),
		slog.Bool("token_set", cfg.Token != ""))

	return &Client{
		baseURL: strings.TrimRight(cfg.TrackingURI, "/"),
		http:    hc,
		backoff: INITIAL_BACKOFF,
	}, nil
}

// LatestVersion returns the newest version of name in stage.
func (c *Client) LatestVersion(ctx context.Context, name, stage string) (ModelVersion, error) {
	if stage == "" {
		stage = DEFAULT_STAGE
	}

	var out struct {
		ModelVersions []ModelVersion `json:"model_versions"`
	}
	body := map[string]any{"name": name, "stages": []string{stage}}
	if err := c.doJSON(ctx, http.MethodPost, "/api/2.0/mlflow/registered-models/get-latest-versions", nil, body, &out); err != nil {
		return ModelVersion{}, err
	}
	if len(out.ModelVersions) == 0 {
		return ModelVersion{}, fmt.Errorf("[Registry] %w: %s@%s", ErrModelVersionNotFound, name, stage)
	}

	latest := out.ModelVersions[0]
	slog.Info("[Registry] Resolved model version",
		slog.String("model", latest.Name),
		slog.String("version", latest.Version),
		slog.String("stage", latest.Stage),
		slog.String("run_id", latest.RunID))
	return latest, nil
}

// RunArtifactURI returns the artifact root of a run.
func (c *Client) RunArtifactURI(ctx context.Context, runID string) (string, error) {
	var out struct {
		Run struct {
			Info struct {
				ArtifactURI string `json:"artifact_uri"`
			} `json:"info"`
		} `json:"run"`
	}
	q := url.Values{"run_id": {runID}}
	if err := c.doJSON(ctx, http.MethodGet, "/api/2.0/mlflow/runs/get", q, nil, &out); err != nil {
		return "", err
	}
	if out.Run.Info.ArtifactURI == "" {
		return "", fmt.Errorf("[Registry] %w: run %s has no artifact uri", ErrRegistryRequest, runID)
	}
	return out.Run.Info.ArtifactURI, nil
}

// ListArtifacts lists one directory level of a run's artifacts, following
// page tokens.
func (c *Client) ListArtifacts(ctx context.Context, runID, dir string) ([]FileInfo, error) {
	var files []FileInfo
	token := ""
	for {
		q := url.Values{"run_id": {runID}}
		if dir != "" {
			q.Set("path", dir)
		}
		if token != "" {
			q.Set("page_token", token)
		}

		var out struct {
			Files         []FileInfo `json:"files"`
			NextPageToken string     `json:"next_page_token"`
		}
		if err := c.doJSON(ctx, http.MethodGet, "/api/2.0/mlflow/artifacts/list", q, nil, &out); err != nil {
			return nil, err
		}
		files = append(files, out.Files...)
		if out.NextPageToken == "" {
			return files, nil
		}
		token = out.NextPageToken
	}
}

// Manifest walks a run's artifact tree breadth first and returns every file
// path relative to the artifact root. A directory's files come before
// anything in its subdirectories, so shallower paths are listed first.
func (c *Client) Manifest(ctx context.Context, runID string) ([]string, error) {
	var manifest []string
	queue := []string{""}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		files, err := c.ListArtifacts(ctx, runID, dir)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.IsDir {
				queue = append(queue, f.Path)
				continue
			}
			manifest = append(manifest, f.Path)
		}
	}
	return manifest, nil
}

// ResolveSource turns a model version source into a concrete artifact URI.
// runs:/<run>/<path> sources are resolved through the run's artifact root.
func (c *Client) ResolveSource(ctx context.Context, v ModelVersion) (string, error) {
	src := v.Source
	if !strings.HasPrefix(src, "runs:/") {
		return src, nil
	}
	rest := strings.TrimPrefix(src, "runs:/")
	runID, rel, _ := strings.Cut(rest, "/")
	root, err := c.RunArtifactURI(ctx, runID)
	if err != nil {
		return "", err
	}
	return JoinURI(root, rel), nil
}

// JoinURI appends a relative artifact path to an artifact URI.
func JoinURI(base, rel string) string {
	if rel == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + path.Clean(strings.TrimLeft(rel, "/"))
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, query url.Values, input, output any) error {
	resp, err := c.do(ctx, method, endpoint, query, input)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("[Registry] %w: read response: %v", ErrRegistryRequest, err)
	}
	if err := json.Unmarshal(respBody, output); err != nil {
		slog.Error("[Registry] Failed to unmarshal response",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
			getPreview(respBody))
		return fmt.Errorf("[Registry] %w: decode %s: %v", ErrRegistryRequest, endpoint, err)
	}
	return nil
}

// do sends a request, retrying transport failures and 5xx. Non-2xx responses
// are returned as errors carrying the server's message.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, input any) (*http.Response, error) {
	var body []byte
	if input != nil {
		var err error
		if body, err = json.Marshal(input); err != nil {
			return nil, fmt.Errorf("[Registry] failed to marshal input: %w", err)
		}
	}

	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var resp *http.Response
	var err error
	backoff := c.backoff
	for attempt := 0; attempt < MAX_RETRIES; attempt++ {
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("[Registry] failed to build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err = c.http.Do(req)
		if err == nil && resp.StatusCode < 500 {
			break
		}
		if resp != nil {
			resp.Body.Close()
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("[Registry] %w: %v", ErrRegistryRequest, ctx.Err())
		}

		if attempt == MAX_RETRIES-1 {
			break
		}
		slog.Warn("[Registry] Request failed, will retry",
			slog.String("endpoint", endpoint),
			slog.Int("attempt", attempt+1),
			slog.String("error", errMsg(err, resp)))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("[Registry] %w: %v", ErrRegistryRequest, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if err != nil {
		return nil, fmt.Errorf("[Registry] %w: %s: %v", ErrRegistryRequest, endpoint, err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("[Registry] %w: %s: status %d after retries", ErrRegistryRequest, endpoint, resp.StatusCode)
	}

	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("[Registry] %w: %s: status %d: %s",
			ErrRegistryRequest, endpoint, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return resp, nil
}

func getPreview(respBody []byte) slog.Attr {
	raw := string(respBody)
	if len(raw) > 50 {
		raw = raw[:50]
	}
	return slog.String("raw_response", raw)
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
