package session

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Cookie(t *testing.T) {
	p := NewPolicy("")

	c := p.Cookie("tok-123", true)
	assert.Equal(t, DefaultCookieName, c.Name)
	assert.Equal(t, "tok-123", c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
	assert.Equal(t, "/", c.Path)

	plain := p.Cookie("tok-123", false)
	assert.False(t, plain.Secure, "secure tracks the request transport")
}

func TestPolicy_ExpiredCookie(t *testing.T) {
	p := NewPolicy("custom_session")

	c := p.ExpiredCookie(true)
	assert.Equal(t, "custom_session", c.Name)
	assert.Empty(t, c.Value)
	assert.Equal(t, -1, c.MaxAge)
}

func TestPolicy_ShouldRotate(t *testing.T) {
	p := NewPolicy("")
	now := time.Now().UTC()

	fresh := &Context{Created: now.Add(-10 * time.Minute)}
	assert.False(t, p.ShouldRotate(fresh, now))

	stale := &Context{Created: now.Add(-31 * time.Minute)}
	assert.True(t, p.ShouldRotate(stale, now))

	// Rotation must never fire while a second factor is pending, however
	// old the session is.
	pending := &Context{Created: now.Add(-2 * time.Hour), TwoFactorPending: true}
	assert.False(t, p.ShouldRotate(pending, now))
}

func TestContext_Authenticated(t *testing.T) {
	assert.False(t, (&Context{}).Authenticated())
	assert.False(t, (&Context{UserID: "u-1", TwoFactorPending: true}).Authenticated())
	assert.True(t, (&Context{UserID: "u-1"}).Authenticated())
}
