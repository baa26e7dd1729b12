// Package session manages the server-side session lifecycle: opaque token
// issuance, payload persistence, cookie policy, periodic rotation, and the
// per-session CSRF token.
package session

import "time"

// Context is the payload stored server-side under an opaque session token.
// It is an explicit value the orchestrator constructs and the Manager
// persists; nothing reads or writes ambient process state.
type Context struct {
	UserID    string `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	Role      string `json:"role,omitempty"`
	IsLDAP    bool   `json:"is_ldap,omitempty"`
	Language  string `json:"language,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	// Created drives the rotation schedule and is reset on every rotation.
	Created time.Time `json:"created"`

	// Pending-2FA state exists between a successful primary-factor check
	// and the second-factor verification. While TwoFactorPending is set the
	// session carries no full user attributes and must not rotate.
	TwoFactorPending bool   `json:"2fa_pending,omitempty"`
	TwoFactorUserID  string `json:"2fa_user_id,omitempty"`

	CSRFToken string `json:"csrf_token,omitempty"`
}

// Authenticated reports whether this context represents a fully established
// login. A pending-2FA context is not authenticated.
func (c *Context) Authenticated() bool {
	return c.UserID != "" && !c.TwoFactorPending
}
