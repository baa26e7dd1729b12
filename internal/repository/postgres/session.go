package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dstall/fileharbor/internal/domain"
	apperrors "github.com/dstall/fileharbor/pkg/errors"
)

// SessionRepository implements repository.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new PostgreSQL-backed session repository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Upsert inserts or replaces the session row keyed by its id.
func (r *SessionRepository) Upsert(ctx context.Context, rec *domain.SessionRecord) error {
	query := `
		INSERT INTO sessions (id, user_id, ip_address, user_agent, payload, created_at, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    ip_address = EXCLUDED.ip_address,
		    user_agent = EXCLUDED.user_agent,
		    payload = EXCLUDED.payload,
		    last_activity = EXCLUDED.last_activity`

	_, err := r.db.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.IPAddress,
		rec.UserAgent,
		rec.Payload,
		rec.CreatedAt,
		rec.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	return nil
}

// GetByID retrieves a session row by its id.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.SessionRecord, error) {
	query := `
		SELECT id, user_id, ip_address, user_agent, payload, created_at, last_activity
		FROM sessions
		WHERE id = $1`

	var rec domain.SessionRecord
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.IPAddress,
		&rec.UserAgent,
		&rec.Payload,
		&rec.CreatedAt,
		&rec.LastActivity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return &rec, nil
}

// Delete removes a session row by its id.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

// DeleteIdleBefore reaps sessions whose last activity predates cutoff.
func (r *SessionRepository) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE last_activity < $1`

	ct, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete idle sessions: %w", err)
	}

	return ct.RowsAffected(), nil
}
