package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/ytsentiment/internal/comments"
)

const threadsPage = `{
	"nextPageToken": "%s",
	"items": [
		{"snippet": {"topLevelComment": {"id": "c1", "snippet": {
			"textDisplay": "I love this!", "authorDisplayName": "ann", "likeCount": 4,
			"publishedAt": "2024-03-01T10:00:00Z"}}}},
		{"snippet": {"topLevelComment": {"id": "c2", "snippet": {"textDisplay": "Worst ever."}}}}
	]
}`

func newTestYouTubeClient(t *testing.T, handler http.HandlerFunc) *YouTubeClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	yc, err := NewYouTubeClient(context.Background(), YouTubeConfig{
		APIKey:   "test-key",
		Endpoint: srv.URL + "/",
		QPS:      1000,
	})
	require.NoError(t, err)
	yc.backoff = time.Millisecond
	return yc
}

func TestYouTubeListPage(t *testing.T) {
	yc := newTestYouTubeClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/youtube/v3/commentThreads", r.URL.Path)
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "dQw4w9WgXcQ", q.Get("videoId"))
		assert.Equal(t, "plainText", q.Get("textFormat"))
		assert.Equal(t, "100", q.Get("maxResults"))
		assert.Equal(t, "tok", q.Get("pageToken"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, threadsPage, "next")
	})

	page, err := yc.ListPage(context.Background(), comments.PageRequest{
		VideoID:    "dQw4w9WgXcQ",
		MaxResults: 500,
		PageToken:  "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, "next", page.NextPageToken)
	require.Len(t, page.Comments, 2)
	assert.Equal(t, "I love this!", page.Comments[0].Text)
	assert.Equal(t, "ann", page.Comments[0].Author)
	assert.Equal(t, int64(4), page.Comments[0].LikeCount)
	assert.Equal(t, 2024, page.Comments[0].PublishedAt.Year())
	assert.Equal(t, "c2", page.Comments[1].ID)
	assert.True(t, yc.Configured())
}

func TestYouTubeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	yc := newTestYouTubeClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, threadsPage, "")
	})

	page, err := yc.ListPage(context.Background(), comments.PageRequest{VideoID: "dQw4w9WgXcQ", MaxResults: 10})
	require.NoError(t, err)
	assert.Len(t, page.Comments, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestYouTubeGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	yc := newTestYouTubeClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := yc.ListPage(context.Background(), comments.PageRequest{VideoID: "dQw4w9WgXcQ", MaxResults: 10})
	require.Error(t, err)
	assert.Equal(t, int32(MAX_RETRIES), calls.Load())
}

func TestYouTubeNoBackoffAfterLastAttempt(t *testing.T) {
	yc := newTestYouTubeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	yc.backoff = 50 * time.Millisecond

	start := time.Now()
	_, err := yc.ListPage(context.Background(), comments.PageRequest{VideoID: "dQw4w9WgXcQ", MaxResults: 10})
	require.Error(t, err)
	// waits of 50, 100, 200 and 400ms, none after the last attempt
	assert.Less(t, time.Since(start), 1200*time.Millisecond)
}

func TestYouTubeBackoffStopsOnCancel(t *testing.T) {
	yc := newTestYouTubeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	yc.backoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := yc.ListPage(ctx, comments.PageRequest{VideoID: "dQw4w9WgXcQ", MaxResults: 10})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestYouTubeVideoNotFound(t *testing.T) {
	cases := map[string]struct {
		status int
		reason string
	}{
		"missing video":     {http.StatusNotFound, "videoNotFound"},
		"comments disabled": {http.StatusForbidden, "commentsDisabled"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			yc := newTestYouTubeClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				fmt.Fprintf(w, `{"error": {"code": %d, "message": "nope", "errors": [{"reason": %q}]}}`, tc.status, tc.reason)
			})
			_, err := yc.ListPage(context.Background(), comments.PageRequest{VideoID: "dQw4w9WgXcQ", MaxResults: 10})
			assert.ErrorIs(t, err, comments.ErrVideoNotFound)
		})
	}
}

func TestYouTubeForbiddenIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	yc := newTestYouTubeClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error": {"code": 403, "message": "quota", "errors": [{"reason": "quotaExceeded"}]}}`)
	})

	_, err := yc.ListPage(context.Background(), comments.PageRequest{VideoID: "dQw4w9WgXcQ", MaxResults: 10})
	require.Error(t, err)
	assert.NotErrorIs(t, err, comments.ErrVideoNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestYouTubeFetcherEndToEnd(t *testing.T) {
	yc := newTestYouTubeClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "" {
			fmt.Fprintf(w, threadsPage, "p2")
			return
		}
		fmt.Fprintf(w, threadsPage, "")
	})

	got, err := comments.NewFetcher(yc).Fetch(context.Background(), "dQw4w9WgXcQ", 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestYouTubeWithoutKey(t *testing.T) {
	yc, err := NewYouTubeClient(context.Background(), YouTubeConfig{})
	require.NoError(t, err)
	assert.False(t, yc.Configured())

	_, err = comments.NewFetcher(yc).Fetch(context.Background(), "dQw4w9WgXcQ", 3)
	assert.ErrorIs(t, err, comments.ErrAuthenticationMissing)
}
