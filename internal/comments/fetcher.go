package comments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spacesedan/ytsentiment/internal/models"
	"github.com/spacesedan/ytsentiment/internal/video"
)

const PAGE_SIZE = 100

var (
	ErrAuthenticationMissing = errors.New("youtube api key is not configured")
	ErrRemoteAPI             = errors.New("youtube api request failed")
	ErrVideoNotFound         = errors.New("video not found or comments disabled")
	ErrInvalidLimit          = errors.New("comment limit must be positive")
)

type PageRequest struct {
	VideoID    video.ID
	MaxResults int
	PageToken  string
}

type Page struct {
	Comments      []models.Comment
	NextPageToken string
}

// Pager fetches one page of top level comments. Implementations return
// ErrVideoNotFound for missing videos and handle their own transient retries.
type Pager interface {
	ListPage(ctx context.Context, req PageRequest) (Page, error)
	Configured() bool
}

type Fetcher struct {
	pager Pager
}

func NewFetcher(pager Pager) *Fetcher {
	return &Fetcher{pager: pager}
}

// Fetch follows continuation tokens until limit comments are collected or the
// video runs out. Comments keep the order the API returned them in.
func (f *Fetcher) Fetch(ctx context.Context, id video.ID, limit int) ([]models.Comment, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("[CommentFetcher] %w: %d", ErrInvalidLimit, limit)
	}
	if !f.pager.Configured() {
		slog.Error("[CommentFetcher] YouTube API key missing, cannot fetch comments",
			slog.String("video_id", string(id)))
		return nil, fmt.Errorf("[CommentFetcher] %w", ErrAuthenticationMissing)
	}

	collected := make([]models.Comment, 0, min(limit, PAGE_SIZE))
	token := ""
	pages := 0
	for len(collected) < limit {
		page, err := f.pager.ListPage(ctx, PageRequest{
			VideoID:    id,
			MaxResults: min(PAGE_SIZE, limit-len(collected)),
			PageToken:  token,
		})
		if err != nil {
			if errors.Is(err, ErrVideoNotFound) {
				slog.Warn("[CommentFetcher] Video has no retrievable comments",
					slog.String("video_id", string(id)),
					slog.String("error", err.Error()))
				return nil, fmt.Errorf("[CommentFetcher] %w", err)
			}
			slog.Error("[CommentFetcher] Page request failed, discarding partial results",
				slog.String("video_id", string(id)),
				slog.Int("page", pages+1),
				slog.Int("collected", len(collected)),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("[CommentFetcher] %w: %w", ErrRemoteAPI, err)
		}
		pages++

		collected = append(collected, page.Comments...)
		token = page.NextPageToken
		if token == "" {
			break
		}
	}

	if len(collected) > limit {
		collected = collected[:limit]
	}

	slog.Info("[CommentFetcher] Fetched comments",
		slog.String("video_id", string(id)),
		slog.Int("count", len(collected)),
		slog.Int("pages", pages))
	return collected, nil
}
