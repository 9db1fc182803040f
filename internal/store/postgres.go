package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spacesedan/ytsentiment/internal/models"
)

const createAnalysesTable = `
	CREATE TABLE IF NOT EXISTS analyses (
		analysis_id TEXT PRIMARY KEY,
		video_id    TEXT NOT NULL,
		payload     JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		expires_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS analyses_expires_at_idx ON analyses (expires_at);
`

// PgxIface is the subset of *pgxpool.Pool the store uses.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresPool connects and pings once so a bad DSN fails at startup.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("[PostgresClient] failed to create pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("[PostgresClient] failed to ping PostgreSQL: %w", err)
	}

	slog.Info("[PostgresClient] Connected to PostgreSQL successfully")
	return pool, nil
}

// PostgresStore keeps each analysis as a JSONB row. Expired rows are hidden
// from reads and swept on every save.
type PostgresStore struct {
	db  PgxIface
	ttl time.Duration
	now func() time.Time
}

func NewPostgresStore(db PgxIface, ttl time.Duration) *PostgresStore {
	if ttl <= 0 {
		ttl = DEFAULT_TTL
	}
	return &PostgresStore{db: db, ttl: ttl, now: time.Now}
}

// Migrate creates the analyses table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createAnalysesTable); err != nil {
		return fmt.Errorf("[Postgres] failed to create analyses table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, a *models.Analysis) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("[Postgres] failed to marshal analysis: %w", err)
	}

	now := s.now()
	query := `
		INSERT INTO analyses (analysis_id, video_id, payload, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (analysis_id) DO UPDATE
		SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at
	`
	if _, err := s.db.Exec(ctx, query, a.ID, a.VideoID, payload, a.CreatedAt, now.Add(s.ttl)); err != nil {
		return fmt.Errorf("[Postgres] failed to insert analysis %s: %w", a.ID, err)
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM analyses WHERE expires_at <= $1`, now)
	if err != nil {
		slog.Warn("[Postgres] Failed to sweep expired analyses", slog.String("error", err.Error()))
	} else if n := tag.RowsAffected(); n > 0 {
		slog.Debug("[Postgres] Swept expired analyses", slog.Int64("count", n))
	}

	slog.Info("[Postgres] Stored analysis", slog.String("analysis_id", a.ID))
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Analysis, error) {
	var payload []byte
	err := s.db.QueryRow(ctx,
		`SELECT payload FROM analyses WHERE analysis_id = $1 AND expires_at > $2`,
		id, s.now(),
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[Postgres] failed to get analysis %s: %w", id, err)
	}

	var a models.Analysis
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("[Postgres] failed to unmarshal analysis %s: %w", id, err)
	}
	return &a, nil
}
