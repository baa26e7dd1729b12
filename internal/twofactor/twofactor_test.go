package twofactor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/dstall/fileharbor/pkg/logger"
)

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) IsEnabled(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockVerifier) IsDeviceTrusted(ctx context.Context, userID, fingerprint string) (bool, error) {
	args := m.Called(ctx, userID, fingerprint)
	return args.Bool(0), args.Error(1)
}

func newGateFixture(t *testing.T) (*Gate, *mockVerifier) {
	t.Helper()
	v := new(mockVerifier)
	return NewGate(v, logger.New("twofactor-test", "error")), v
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("203.0.113.7", "Mozilla/5.0")
	b := Fingerprint("203.0.113.7", "Mozilla/5.0")
	c := Fingerprint("203.0.113.8", "Mozilla/5.0")

	assert.Equal(t, a, b, "same device yields a stable fingerprint")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)

	// The separator keeps (ip, agent) pairs from colliding across the
	// concatenation boundary.
	assert.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
}

func TestGate_Check_NotEnabled(t *testing.T) {
	gate, v := newGateFixture(t)
	v.On("IsEnabled", mock.Anything, "u-1").Return(false, nil)

	assert.Equal(t, NotRequired, gate.Check(context.Background(), "u-1", "ip", "ua"))
	v.AssertNotCalled(t, "IsDeviceTrusted", mock.Anything, mock.Anything, mock.Anything)
}

func TestGate_Check_EnabledTrustedDevice(t *testing.T) {
	gate, v := newGateFixture(t)
	v.On("IsEnabled", mock.Anything, "u-1").Return(true, nil)
	v.On("IsDeviceTrusted", mock.Anything, "u-1", Fingerprint("ip", "ua")).Return(true, nil)

	assert.Equal(t, Trusted, gate.Check(context.Background(), "u-1", "ip", "ua"))
}

func TestGate_Check_EnabledUntrustedDevice(t *testing.T) {
	gate, v := newGateFixture(t)
	v.On("IsEnabled", mock.Anything, "u-1").Return(true, nil)
	v.On("IsDeviceTrusted", mock.Anything, "u-1", mock.Anything).Return(false, nil)

	assert.Equal(t, Pending, gate.Check(context.Background(), "u-1", "ip", "ua"))
}

func TestGate_Check_VerifierFailureFailsOpen(t *testing.T) {
	gate, v := newGateFixture(t)
	v.On("IsEnabled", mock.Anything, "u-1").Return(false, errors.New("2fa backend down"))

	assert.Equal(t, NotRequired, gate.Check(context.Background(), "u-1", "ip", "ua"))
}

func TestGate_Check_TrustLookupFailureFailsOpen(t *testing.T) {
	gate, v := newGateFixture(t)
	v.On("IsEnabled", mock.Anything, "u-1").Return(true, nil)
	v.On("IsDeviceTrusted", mock.Anything, "u-1", mock.Anything).Return(false, errors.New("timeout"))

	assert.Equal(t, NotRequired, gate.Check(context.Background(), "u-1", "ip", "ua"))
}
