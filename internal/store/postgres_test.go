package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/ytsentiment/internal/sentiment"
)

func newTestPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	now := time.Date(2024, 3, 2, 12, 30, 0, 0, time.UTC)
	s := NewPostgresStore(mockDB, time.Hour)
	s.now = func() time.Time { return now }
	return s, mockDB, now
}

func TestPostgresStoreMigrate(t *testing.T) {
	s, mockDB, _ := newTestPostgresStore(t)
	mockDB.ExpectExec("CREATE TABLE IF NOT EXISTS analyses").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestPostgresStoreSave(t *testing.T) {
	s, mockDB, now := newTestPostgresStore(t)
	a := testAnalysis()

	mockDB.ExpectExec("INSERT INTO analyses").
		WithArgs(a.ID, a.VideoID, pgxmock.AnyArg(), a.CreatedAt, now.Add(time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockDB.ExpectExec("DELETE FROM analyses").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, s.Save(context.Background(), a))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestPostgresStoreSaveSweepFailureIsNotFatal(t *testing.T) {
	s, mockDB, _ := newTestPostgresStore(t)

	mockDB.ExpectExec("INSERT INTO analyses").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockDB.ExpectExec("DELETE FROM analyses").
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(errors.New("lock timeout"))

	assert.NoError(t, s.Save(context.Background(), testAnalysis()))
}

func TestPostgresStoreSaveError(t *testing.T) {
	s, mockDB, _ := newTestPostgresStore(t)

	mockDB.ExpectExec("INSERT INTO analyses").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err := s.Save(context.Background(), testAnalysis())
	assert.ErrorContains(t, err, "connection reset")
}

func TestPostgresStoreGet(t *testing.T) {
	s, mockDB, now := newTestPostgresStore(t)
	a := testAnalysis()
	payload, err := json.Marshal(a)
	require.NoError(t, err)

	mockDB.ExpectQuery("SELECT payload FROM analyses").
		WithArgs(a.ID, now).
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := s.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.VideoID, got.VideoID)
	assert.Equal(t, a.Counts, got.Counts)
	require.Len(t, got.Predictions, 2)
	assert.Equal(t, sentiment.Positive, got.Predictions[0].Label)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestPostgresStoreGetMissing(t *testing.T) {
	s, mockDB, _ := newTestPostgresStore(t)

	mockDB.ExpectQuery("SELECT payload FROM analyses").
		WithArgs("nope", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
