package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/spacesedan/ytsentiment/internal/clients"
	"github.com/spacesedan/ytsentiment/internal/models"
)

const VALKEY_KEY_PREFIX = "ytsentiment:analysis:"

type ValkeyStore struct {
	client valkey.Client
	ttl    time.Duration
}

func NewValkeyStore(client valkey.Client, ttl time.Duration) *ValkeyStore {
	if ttl <= 0 {
		ttl = DEFAULT_TTL
	}
	return &ValkeyStore{client: client, ttl: ttl}
}

func analysisKey(id string) string {
	return VALKEY_KEY_PREFIX + id
}

func (s *ValkeyStore) Save(ctx context.Context, a *models.Analysis) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("[ValkeyStore] failed to marshal analysis: %w", err)
	}

	key := analysisKey(a.ID)
	completed := []valkey.Completed{
		s.client.B().Set().Key(key).Value(string(payload)).Build(),
		s.client.B().Expire().Key(key).Seconds(int64(s.ttl / time.Second)).Build(),
	}

	for _, res := range clients.DoMultiWithRetry(ctx, s.client, completed, clients.VALKEY_RETRIES) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("[ValkeyStore] failed to store analysis %s: %w", a.ID, err)
		}
	}

	slog.Info("[ValkeyStore] Stored analysis",
		slog.String("analysis_id", a.ID),
		slog.Int("bytes", len(payload)))
	return nil
}

func (s *ValkeyStore) Get(ctx context.Context, id string) (*models.Analysis, error) {
	res := clients.DoWithRetry(ctx, s.client, s.client.B().Get().Key(analysisKey(id)).Build(), clients.VALKEY_RETRIES)
	if err := res.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("[ValkeyStore] failed to load analysis %s: %w", id, err)
	}

	raw, err := res.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("[ValkeyStore] unexpected reply for %s: %w", id, err)
	}

	var a models.Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("[ValkeyStore] failed to decode analysis %s: %w", id, err)
	}
	return &a, nil
}
