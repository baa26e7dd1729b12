package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstall/fileharbor/internal/domain"
	apperrors "github.com/dstall/fileharbor/pkg/errors"
)

func newSessionTestFixture(t *testing.T) (*SessionRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := NewSessionRepository(mock)
	return repo, mock
}

func sampleSession() *domain.SessionRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.SessionRecord{
		ID:           "9f2c4a8e1b7d3f6a9f2c4a8e1b7d3f6a9f2c4a8e1b7d3f6a9f2c4a8e1b7d3f6a",
		UserID:       "u-1234",
		IPAddress:    "203.0.113.7",
		UserAgent:    "Mozilla/5.0",
		Payload:      []byte(`{"user_id":"u-1234","role":"user"}`),
		CreatedAt:    now,
		LastActivity: now,
	}
}

func sessionRow(s *domain.SessionRecord) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "user_id", "ip_address", "user_agent", "payload", "created_at", "last_activity",
	}).AddRow(
		s.ID, s.UserID, s.IPAddress, s.UserAgent, s.Payload, s.CreatedAt, s.LastActivity,
	)
}

func TestSessionRepository_Upsert_Insert(t *testing.T) {
	repo, mock := newSessionTestFixture(t)
	defer mock.Close()

	s := sampleSession()

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(s.ID, s.UserID, s.IPAddress, s.UserAgent, s.Payload, s.CreatedAt, s.LastActivity).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Upsert(context.Background(), s)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Upsert_Conflict(t *testing.T) {
	repo, mock := newSessionTestFixture(t)
	defer mock.Close()

	s := sampleSession()
	s.LastActivity = s.LastActivity.Add(30 * time.Second)

	// Conflict on the id resolves to an update, still one row affected.
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(s.ID, s.UserID, s.IPAddress, s.UserAgent, s.Payload, s.CreatedAt, s.LastActivity).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Upsert(context.Background(), s)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_GetByID_Success(t *testing.T) {
	repo, mock := newSessionTestFixture(t)
	defer mock.Close()

	s := sampleSession()

	mock.ExpectQuery("SELECT .+ FROM sessions WHERE id =").
		WithArgs(s.ID).
		WillReturnRows(sessionRow(s))

	got, err := repo.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.UserID, got.UserID)
	assert.Equal(t, s.Payload, got.Payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newSessionTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM sessions WHERE id =").
		WithArgs("missing-token").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByID(context.Background(), "missing-token")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Delete(t *testing.T) {
	repo, mock := newSessionTestFixture(t)
	defer mock.Close()

	s := sampleSession()

	mock.ExpectExec("DELETE FROM sessions WHERE id =").
		WithArgs(s.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := repo.Delete(context.Background(), s.ID)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_DeleteIdleBefore(t *testing.T) {
	repo, mock := newSessionTestFixture(t)
	defer mock.Close()

	cutoff := time.Now().UTC().Add(-24 * time.Hour)

	mock.ExpectExec("DELETE FROM sessions WHERE last_activity <").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := repo.DeleteIdleBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
