package domain

import (
	"time"
)

// User represents an account known to the file service.
//
// Provenance invariant: a user with IsLDAP true is authenticated only by a
// directory bind and carries no usable PasswordHash; a user with IsLDAP false
// is authenticated only against PasswordHash and never via the directory.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"is_active"`
	IsLDAP       bool       `json:"is_ldap"`
	Language     string     `json:"language,omitempty"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SessionRecord is the server-side row backing one session token.
// ID is the opaque token itself. At most one row exists per id; concurrent
// writes for the same id are last-writer-wins.
type SessionRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	Payload      []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}
