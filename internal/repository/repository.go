package repository

import (
	"context"
	"time"

	"github.com/dstall/fileharbor/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user into the store.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByUsername retrieves a user by their unique username.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// UpdateRole sets the role of an existing user.
	UpdateRole(ctx context.Context, id, role string) error

	// UpdateLastLogin stamps the user's last successful login time.
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// SessionRepository defines the interface for session persistence operations.
type SessionRepository interface {
	// Upsert inserts or replaces the session row keyed by its id.
	// Concurrent writers for the same id are last-writer-wins.
	Upsert(ctx context.Context, rec *domain.SessionRecord) error

	// GetByID retrieves a session row by its id (the opaque token).
	GetByID(ctx context.Context, id string) (*domain.SessionRecord, error)

	// Delete removes a session row by its id.
	Delete(ctx context.Context, id string) error

	// DeleteIdleBefore reaps sessions whose last activity predates cutoff.
	// Rotation leaves old ids unreferenced; this is their housekeeping.
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SettingRepository defines read access to the config key/value table.
type SettingRepository interface {
	// Get returns the value stored under the exact key.
	Get(ctx context.Context, key string) (string, error)

	// GetByPrefix returns all key/value pairs whose key starts with prefix.
	GetByPrefix(ctx context.Context, prefix string) (map[string]string, error)
}

// TwoFactorRepository defines the interface for second-factor state. The
// read side doubles as the verifier consulted during login.
type TwoFactorRepository interface {
	// IsEnabled reports whether the user has a second-factor method enrolled.
	IsEnabled(ctx context.Context, userID string) (bool, error)

	// IsDeviceTrusted reports whether the fingerprint has an unexpired trust
	// mark for this user.
	IsDeviceTrusted(ctx context.Context, userID, fingerprint string) (bool, error)

	// TrustDevice records that the device passed verification, valid until
	// expires.
	TrustDevice(ctx context.Context, userID, fingerprint string, expires time.Time) error
}

// AuditRepository defines the interface for audit trail persistence.
type AuditRepository interface {
	// Create appends one audit event.
	Create(ctx context.Context, event *domain.AuditEvent) error
}
