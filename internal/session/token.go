package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewToken returns 256 bits of randomness, hex-encoded. Used for both
// session identifiers and CSRF tokens.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
