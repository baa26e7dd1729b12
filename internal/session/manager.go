package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dstall/fileharbor/internal/domain"
	"github.com/dstall/fileharbor/internal/repository"
	apperrors "github.com/dstall/fileharbor/pkg/errors"
)

const (
	cacheKeyPrefix = "fileharbor:session:"

	// cacheTTL bounds how long an idle authenticated session survives in
	// the cache. The Postgres row remains the durable copy.
	cacheTTL = 24 * time.Hour

	// pendingTTL bounds the window a pending-2FA session stays usable.
	// Pending contexts live only in the cache; a sessions row is written
	// solely on full establishment.
	pendingTTL = 15 * time.Minute
)

// Cache is the slice of *redis.Client the manager uses.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Manager persists session contexts under opaque tokens. Authenticated
// sessions are written through to Postgres with Redis in front; cache misses
// and cache outages fall back to the Postgres row.
type Manager struct {
	cache  Cache
	repo   repository.SessionRepository
	logger *slog.Logger
}

// NewManager creates a session manager.
func NewManager(cache Cache, repo repository.SessionRepository, logger *slog.Logger) *Manager {
	return &Manager{cache: cache, repo: repo, logger: logger}
}

// Issue generates a fresh opaque token and persists the context under it.
func (m *Manager) Issue(ctx context.Context, sc *Context) (string, error) {
	id, err := NewToken()
	if err != nil {
		return "", err
	}
	if err := m.Save(ctx, id, sc); err != nil {
		return "", err
	}
	return id, nil
}

// Load retrieves the context stored under the token. An unknown token
// returns ErrNotFound.
func (m *Manager) Load(ctx context.Context, id string) (*Context, error) {
	raw, err := m.cache.Get(ctx, cacheKeyPrefix+id).Bytes()
	if err == nil {
		var sc Context
		if err := json.Unmarshal(raw, &sc); err == nil {
			return &sc, nil
		}
		m.logger.WarnContext(ctx, "corrupt cached session payload, falling back to store",
			slog.String("session_id", id))
	} else if !errors.Is(err, redis.Nil) {
		m.logger.WarnContext(ctx, "session cache read failed, falling back to store",
			slog.String("error", err.Error()))
	}

	rec, err := m.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sc Context
	if err := json.Unmarshal(rec.Payload, &sc); err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}
	m.cacheSet(ctx, id, rec.Payload, cacheTTL)
	return &sc, nil
}

// Save persists the context under the token. Authenticated contexts are
// upserted into Postgres and cached; pending and anonymous contexts exist in
// the cache only, so no sessions row appears before full establishment.
func (m *Manager) Save(ctx context.Context, id string, sc *Context) error {
	payload, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode session payload: %w", err)
	}

	if !sc.Authenticated() {
		if err := m.cache.Set(ctx, cacheKeyPrefix+id, payload, pendingTTL).Err(); err != nil {
			return fmt.Errorf("store pending session: %w", err)
		}
		return nil
	}

	rec := &domain.SessionRecord{
		ID:           id,
		UserID:       sc.UserID,
		IPAddress:    sc.IPAddress,
		UserAgent:    sc.UserAgent,
		Payload:      payload,
		CreatedAt:    sc.Created,
		LastActivity: time.Now().UTC(),
	}
	if err := m.repo.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	m.cacheSet(ctx, id, payload, cacheTTL)
	return nil
}

// Rotate issues a new token for the context and resets its rotation clock.
// The old cache entry is dropped; the old Postgres row is left for the
// store's idle-session housekeeping.
func (m *Manager) Rotate(ctx context.Context, oldID string, sc *Context) (string, error) {
	sc.Created = time.Now().UTC()
	id, err := m.Issue(ctx, sc)
	if err != nil {
		return "", err
	}
	if err := m.cache.Del(ctx, cacheKeyPrefix+oldID).Err(); err != nil {
		m.logger.WarnContext(ctx, "session cache delete failed during rotation",
			slog.String("error", err.Error()))
	}
	return id, nil
}

// Destroy removes the session from both stores.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	if err := m.cache.Del(ctx, cacheKeyPrefix+id).Err(); err != nil {
		m.logger.WarnContext(ctx, "session cache delete failed",
			slog.String("error", err.Error()))
	}
	if err := m.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// ReapIdle deletes sessions idle longer than idleAfter from the store.
func (m *Manager) ReapIdle(ctx context.Context, idleAfter time.Duration) (int64, error) {
	return m.repo.DeleteIdleBefore(ctx, time.Now().UTC().Add(-idleAfter))
}

func (m *Manager) cacheSet(ctx context.Context, id string, payload []byte, ttl time.Duration) {
	if err := m.cache.Set(ctx, cacheKeyPrefix+id, payload, ttl).Err(); err != nil {
		m.logger.WarnContext(ctx, "session cache write failed",
			slog.String("error", err.Error()))
	}
}
