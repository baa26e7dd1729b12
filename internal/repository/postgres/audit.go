package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dstall/fileharbor/internal/domain"
)

// AuditRepository implements repository.AuditRepository using PostgreSQL.
type AuditRepository struct {
	db DB
}

// NewAuditRepository creates a new PostgreSQL-backed audit repository.
func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends one audit event.
func (r *AuditRepository) Create(ctx context.Context, event *domain.AuditEvent) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_log (id, actor_id, action, target_kind, target_id, detail, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.Exec(ctx, query,
		event.ID,
		event.ActorID,
		event.Action,
		event.TargetKind,
		event.TargetID,
		event.Detail,
		metadata,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}
