package session

import (
	"crypto/subtle"

	apperrors "github.com/dstall/fileharbor/pkg/errors"
)

// EnsureCSRF lazily issues the session's anti-forgery token. Repeated calls
// within one session return the same value.
func EnsureCSRF(sc *Context) (string, error) {
	if sc.CSRFToken != "" {
		return sc.CSRFToken, nil
	}
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	sc.CSRFToken = token
	return token, nil
}

// ValidateCSRF checks a presented token against the session's issued one
// using a timing-safe comparison. A session that never issued a token
// rejects everything.
func ValidateCSRF(sc *Context, presented string) error {
	if sc.CSRFToken == "" || presented == "" {
		return apperrors.CsrfMismatch()
	}
	if subtle.ConstantTimeCompare([]byte(sc.CSRFToken), []byte(presented)) != 1 {
		return apperrors.CsrfMismatch()
	}
	return nil
}
