package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dstall/fileharbor/pkg/errors"
)

func TestEnsureCSRF_Idempotent(t *testing.T) {
	sc := &Context{}

	first, err := EnsureCSRF(sc)
	require.NoError(t, err)
	assert.Len(t, first, 64, "256 bits hex-encoded")

	second, err := EnsureCSRF(sc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValidateCSRF(t *testing.T) {
	sc := &Context{}
	token, err := EnsureCSRF(sc)
	require.NoError(t, err)

	assert.NoError(t, ValidateCSRF(sc, token))

	// One flipped character rejects.
	tampered := []byte(token)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}
	err = ValidateCSRF(sc, string(tampered))
	assert.True(t, errors.Is(err, apperrors.ErrCsrfMismatch))

	assert.Error(t, ValidateCSRF(sc, ""))
	assert.Error(t, ValidateCSRF(sc, token+"00"))
}

func TestValidateCSRF_NeverIssued(t *testing.T) {
	sc := &Context{}

	err := ValidateCSRF(sc, "anything")
	assert.True(t, errors.Is(err, apperrors.ErrCsrfMismatch))
}
