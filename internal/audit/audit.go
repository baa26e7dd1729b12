// Package audit records security-relevant events. The trail carries the
// detail (which credential check failed, which group granted a role) that
// the login response deliberately withholds from the caller.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dstall/fileharbor/internal/domain"
	"github.com/dstall/fileharbor/internal/repository"
)

// Recorder appends audit events. Recording never fails the operation being
// audited; a sink outage is logged and swallowed.
type Recorder interface {
	Event(ctx context.Context, actorID, action, targetKind, targetID, detail string, metadata map[string]string)
}

type recorder struct {
	repo   repository.AuditRepository
	logger *slog.Logger
}

// NewRecorder creates a Recorder backed by the audit repository.
func NewRecorder(repo repository.AuditRepository, logger *slog.Logger) Recorder {
	return &recorder{repo: repo, logger: logger}
}

func (r *recorder) Event(ctx context.Context, actorID, action, targetKind, targetID, detail string, metadata map[string]string) {
	event := &domain.AuditEvent{
		ID:         uuid.New().String(),
		ActorID:    actorID,
		Action:     action,
		TargetKind: targetKind,
		TargetID:   targetID,
		Detail:     detail,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}

	if err := r.repo.Create(ctx, event); err != nil {
		r.logger.ErrorContext(ctx, "audit event write failed",
			slog.String("action", action),
			slog.String("actor_id", actorID),
			slog.String("error", err.Error()))
	}
}
