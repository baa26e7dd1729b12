package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/dstall/fileharbor/internal/domain"
	"github.com/dstall/fileharbor/pkg/logger"
)

type mockAuditRepo struct {
	mock.Mock
}

func (m *mockAuditRepo) Create(ctx context.Context, event *domain.AuditEvent) error {
	return m.Called(ctx, event).Error(0)
}

func TestRecorder_Event(t *testing.T) {
	repo := new(mockAuditRepo)
	rec := NewRecorder(repo, logger.New("audit-test", "error"))

	repo.On("Create", mock.Anything, mock.MatchedBy(func(e *domain.AuditEvent) bool {
		return e.ID != "" &&
			e.ActorID == "u-1234" &&
			e.Action == domain.AuditLoginFailed &&
			e.TargetKind == "user" &&
			e.TargetID == "u-1234" &&
			e.Detail == "wrong-password" &&
			e.Metadata["ip"] == "203.0.113.7" &&
			!e.CreatedAt.IsZero()
	})).Return(nil)

	rec.Event(context.Background(), "u-1234", domain.AuditLoginFailed, "user", "u-1234",
		"wrong-password", map[string]string{"ip": "203.0.113.7"})

	repo.AssertExpectations(t)
}

func TestRecorder_Event_SinkFailureIsSwallowed(t *testing.T) {
	repo := new(mockAuditRepo)
	rec := NewRecorder(repo, logger.New("audit-test", "error"))

	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	// Must not panic and must not propagate; the audited operation goes on.
	rec.Event(context.Background(), "", domain.AuditLogout, "session", "tok", "", nil)
	repo.AssertExpectations(t)
}
