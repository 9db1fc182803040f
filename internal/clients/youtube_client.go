package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/spacesedan/ytsentiment/internal/comments"
	"github.com/spacesedan/ytsentiment/internal/models"
)

const (
	YOUTUBE_DEFAULT_QPS = 5
	YOUTUBE_TEXT_FORMAT = "plainText"
)

type YouTubeConfig struct {
	APIKey   string
	Endpoint string
	QPS      float64
}

// YouTubeClient pages through commentThreads.list. It satisfies
// comments.Pager.
type YouTubeClient struct {
	service *youtube.Service
	limiter *rate.Limiter
	apiKey  string
	backoff time.Duration
}

func NewYouTubeClient(ctx context.Context, cfg YouTubeConfig) (*YouTubeClient, error) {
	qps := cfg.QPS
	if qps <= 0 {
		qps = YOUTUBE_DEFAULT_QPS
	}

	opts := []option.ClientOption{option.WithUserAgent(USER_AGENT)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		opts = append(opts, option.WithHTTPClient(http.DefaultClient))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("[YouTubeClient] failed to create service: %w", err)
	}

	slog.Info("[YouTubeClient] Initializing Client",
		slog.Float64("qps", qps),
		slog.Bool("api_key_set", cfg.APIKey != ""))

	return &YouTubeClient{
		service: service,
		limiter: rate.NewLimiter(rate.Limit(qps), 1),
		apiKey:  cfg.APIKey,
		backoff: INITIAL_BACKOFF,
	}, nil
}

func (yc *YouTubeClient) Configured() bool {
	return yc.apiKey != ""
}

// ListPage requests one page of top level comments, retrying rate limits and
// server errors with exponential backoff.
func (yc *YouTubeClient) ListPage(ctx context.Context, req comments.PageRequest) (comments.Page, error) {
	size := int64(min(max(req.MaxResults, 1), comments.PAGE_SIZE))

	var lastErr error
	backoff := yc.backoff
	for attempt := 0; attempt < MAX_RETRIES; attempt++ {
		if err := yc.limiter.Wait(ctx); err != nil {
			return comments.Page{}, fmt.Errorf("[YouTubeClient] rate limiter: %w", err)
		}

		call := yc.service.CommentThreads.List([]string{"snippet"}).
			VideoId(string(req.VideoID)).
			MaxResults(size).
			TextFormat(YOUTUBE_TEXT_FORMAT).
			Context(ctx)
		if req.PageToken != "" {
			call = call.PageToken(req.PageToken)
		}

		resp, err := call.Do()
		if err == nil {
			return toPage(resp), nil
		}

		if notFound(err) {
			return comments.Page{}, fmt.Errorf("[YouTubeClient] %w: %s: %v", comments.ErrVideoNotFound, req.VideoID, err)
		}
		if !retryable(err) || ctx.Err() != nil {
			return comments.Page{}, fmt.Errorf("[YouTubeClient] commentThreads.list failed: %w", err)
		}

		lastErr = err
		if attempt == MAX_RETRIES-1 {
			break
		}
		slog.Warn("[YouTubeClient] Request failed, will retry",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return comments.Page{}, fmt.Errorf("[YouTubeClient] %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > MAX_BACKOFF {
			backoff = MAX_BACKOFF
		}
	}

	return comments.Page{}, fmt.Errorf("[YouTubeClient] Max retries reached request failed: %w", lastErr)
}

func toPage(resp *youtube.CommentThreadListResponse) comments.Page {
	page := comments.Page{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		if item.Snippet == nil || item.Snippet.TopLevelComment == nil || item.Snippet.TopLevelComment.Snippet == nil {
			continue
		}
		top := item.Snippet.TopLevelComment
		c := models.Comment{
			ID:        top.Id,
			Author:    top.Snippet.AuthorDisplayName,
			Text:      top.Snippet.TextDisplay,
			LikeCount: top.Snippet.LikeCount,
		}
		if ts, err := time.Parse(time.RFC3339, top.Snippet.PublishedAt); err == nil {
			c.PublishedAt = ts
		}
		page.Comments = append(page.Comments, c)
	}
	return page
}

func notFound(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusNotFound {
		return true
	}
	for _, item := range apiErr.Errors {
		if item.Reason == "commentsDisabled" || item.Reason == "videoNotFound" {
			return true
		}
	}
	return false
}

func retryable(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		// transport level failure
		return true
	}
	return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
}
