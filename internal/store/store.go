package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/spacesedan/ytsentiment/internal/models"
)

const DEFAULT_TTL = 24 * time.Hour

var ErrNotFound = errors.New("analysis not found")

// Store keeps finished analyses so clients can page through them. Entries
// expire after the store's TTL.
type Store interface {
	Save(ctx context.Context, a *models.Analysis) error
	Get(ctx context.Context, id string) (*models.Analysis, error)
}

type memoryEntry struct {
	analysis  *models.Analysis
	expiresAt time.Time
}

type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DEFAULT_TTL
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, a *models.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, id)
		}
	}
	m.entries[a.ID] = memoryEntry{analysis: a, expiresAt: now.Add(m.ttl)}

	slog.Debug("[MemoryStore] Stored analysis",
		slog.String("analysis_id", a.ID),
		slog.Int("entries", len(m.entries)))
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok || m.now().After(e.expiresAt) {
		return nil, ErrNotFound
	}
	return e.analysis, nil
}
