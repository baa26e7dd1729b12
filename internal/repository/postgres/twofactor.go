package postgres

import (
	"context"
	"fmt"
	"time"
)

// TwoFactorRepository implements repository.TwoFactorRepository using
// PostgreSQL. It also satisfies the verifier interface the login gate
// consults.
type TwoFactorRepository struct {
	db DB
}

// NewTwoFactorRepository creates a new PostgreSQL-backed two-factor repository.
func NewTwoFactorRepository(db DB) *TwoFactorRepository {
	return &TwoFactorRepository{db: db}
}

// IsEnabled reports whether the user has a second-factor method enrolled.
func (r *TwoFactorRepository) IsEnabled(ctx context.Context, userID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM twofactor_enrollments WHERE user_id = $1)`

	var enabled bool
	if err := r.db.QueryRow(ctx, query, userID).Scan(&enabled); err != nil {
		return false, fmt.Errorf("check two-factor enrollment: %w", err)
	}

	return enabled, nil
}

// IsDeviceTrusted reports whether the fingerprint has an unexpired trust mark
// for this user.
func (r *TwoFactorRepository) IsDeviceTrusted(ctx context.Context, userID, fingerprint string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM trusted_devices
			WHERE user_id = $1 AND fingerprint = $2 AND expires_at > $3
		)`

	var trusted bool
	if err := r.db.QueryRow(ctx, query, userID, fingerprint, time.Now().UTC()).Scan(&trusted); err != nil {
		return false, fmt.Errorf("check trusted device: %w", err)
	}

	return trusted, nil
}

// TrustDevice records that the device passed verification, valid until
// expires. Repeated verification from the same device extends the mark.
func (r *TwoFactorRepository) TrustDevice(ctx context.Context, userID, fingerprint string, expires time.Time) error {
	query := `
		INSERT INTO trusted_devices (user_id, fingerprint, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, fingerprint) DO UPDATE SET expires_at = EXCLUDED.expires_at`

	_, err := r.db.Exec(ctx, query, userID, fingerprint, expires, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("trust device: %w", err)
	}

	return nil
}
