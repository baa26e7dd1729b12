// Package twofactor gates session establishment behind a second factor. The
// verification algorithms themselves (TOTP, push approval, backup codes)
// live behind the Verifier collaborator; this package only decides whether a
// login may proceed directly or must park in the pending state.
package twofactor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
)

// Outcome of the gate check for one login attempt.
type Outcome int

const (
	// NotRequired means the account has no second factor configured.
	NotRequired Outcome = iota
	// Trusted means a second factor is configured but this device already
	// passed verification.
	Trusted
	// Pending means verification is still owed; the session must not be
	// fully established yet.
	Pending
)

func (o Outcome) String() string {
	switch o {
	case Trusted:
		return "trusted"
	case Pending:
		return "pending"
	default:
		return "not_required"
	}
}

// Verifier is the external second-factor subsystem.
type Verifier interface {
	// IsEnabled reports whether the user has any second-factor method set up.
	IsEnabled(ctx context.Context, userID string) (bool, error)
	// IsDeviceTrusted reports whether the device fingerprint has already
	// completed verification for this user.
	IsDeviceTrusted(ctx context.Context, userID, fingerprint string) (bool, error)
}

// Fingerprint derives a stable device hash from the client address and
// user agent.
func Fingerprint(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + "\x00" + userAgent))
	return hex.EncodeToString(sum[:])
}

// Gate decides the two-factor outcome for a login.
type Gate struct {
	verifier Verifier
	logger   *slog.Logger
}

// NewGate creates a gate over the given verifier.
func NewGate(verifier Verifier, logger *slog.Logger) *Gate {
	return &Gate{verifier: verifier, logger: logger}
}

// Check returns the outcome for a user logging in from the given device.
// Any verifier failure is logged and treated as NotRequired: a transient
// second-factor outage must not lock every user out. This is a deliberate
// availability-over-strictness policy.
func (g *Gate) Check(ctx context.Context, userID, ip, userAgent string) Outcome {
	enabled, err := g.verifier.IsEnabled(ctx, userID)
	if err != nil {
		g.logger.ErrorContext(ctx, "two-factor enablement check failed, proceeding without second factor",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return NotRequired
	}
	if !enabled {
		return NotRequired
	}

	trusted, err := g.verifier.IsDeviceTrusted(ctx, userID, Fingerprint(ip, userAgent))
	if err != nil {
		g.logger.ErrorContext(ctx, "device trust check failed, proceeding without second factor",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return NotRequired
	}
	if trusted {
		return Trusted
	}
	return Pending
}
