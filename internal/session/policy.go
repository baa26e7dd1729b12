package session

import (
	"net/http"
	"time"
)

// RotateAfter is how long a session id stays valid before it is replaced on
// the next request.
const RotateAfter = 1800 * time.Second

// DefaultCookieName is used when no cookie name is configured.
const DefaultCookieName = "fileharbor_session"

// Policy fixes the session cookie attributes and the rotation schedule.
// SameSite is None so a second-factor provider can redirect back cross-site;
// Secure tracks whether the request arrived over TLS.
type Policy struct {
	CookieName  string
	RotateAfter time.Duration
}

// NewPolicy creates a Policy with the given cookie name, falling back to the
// default name and rotation interval.
func NewPolicy(cookieName string) Policy {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return Policy{CookieName: cookieName, RotateAfter: RotateAfter}
}

// Cookie builds the session cookie carrying the opaque token.
func (p Policy) Cookie(token string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     p.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteNoneMode,
	}
}

// ExpiredCookie builds a cookie that removes the session cookie from the
// browser on logout.
func (p Policy) ExpiredCookie(secure bool) *http.Cookie {
	c := p.Cookie("", secure)
	c.MaxAge = -1
	return c
}

// ShouldRotate reports whether the session id must be replaced. Rotation
// never fires while a second factor is pending: a new id would orphan the
// pending state the verification step still needs.
func (p Policy) ShouldRotate(sc *Context, now time.Time) bool {
	if sc.TwoFactorPending {
		return false
	}
	return now.Sub(sc.Created) > p.RotateAfter
}
