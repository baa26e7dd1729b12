package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dstall/fileharbor/internal/domain"
	pkgkafka "github.com/dstall/fileharbor/pkg/kafka"
)

// Kafka topic constants for authentication domain events.
const (
	TopicLoginSucceeded  = "fileharbor.auth.login_succeeded"
	TopicLoginFailed     = "fileharbor.auth.login_failed"
	TopicLoginPending    = "fileharbor.auth.login_pending_2fa"
	TopicUserProvisioned = "fileharbor.auth.user_provisioned"
	TopicRoleChanged     = "fileharbor.auth.role_changed"
)

// Aggregate type constant.
const AggregateTypeUser = "user"

// Source identifier for events originating from the auth service.
const SourceAuthService = "auth-service"

// LoginSucceededData is the payload for a login_succeeded event.
type LoginSucceededData struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	IsLDAP    bool   `json:"is_ldap"`
	IPAddress string `json:"ip_address"`
}

// LoginFailedData is the payload for a login_failed event. Reason carries
// the audit-grade detail that the login response itself never exposes.
type LoginFailedData struct {
	Username  string `json:"username"`
	Reason    string `json:"reason"`
	IPAddress string `json:"ip_address"`
}

// LoginPendingData is the payload for a login_pending_2fa event.
type LoginPendingData struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	IPAddress string `json:"ip_address"`
}

// UserProvisionedData is the payload for a user_provisioned event.
type UserProvisionedData struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// RoleChangedData is the payload for a role_changed event.
type RoleChangedData struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	OldRole  string `json:"old_role"`
	NewRole  string `json:"new_role"`
	Source   string `json:"source"`
}

// Producer publishes authentication domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishLoginSucceeded publishes a login_succeeded event.
func (p *Producer) PublishLoginSucceeded(ctx context.Context, user *domain.User, ip string) error {
	data := LoginSucceededData{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		IsLDAP:    user.IsLDAP,
		IPAddress: ip,
	}

	event, err := pkgkafka.NewEvent(TopicLoginSucceeded, user.ID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create login_succeeded event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicLoginSucceeded, event); err != nil {
		return fmt.Errorf("publish login_succeeded event: %w", err)
	}

	p.logger.DebugContext(ctx, "published login_succeeded event",
		slog.String("user_id", user.ID),
	)

	return nil
}

// PublishLoginFailed publishes a login_failed event.
func (p *Producer) PublishLoginFailed(ctx context.Context, username, reason, ip string) error {
	data := LoginFailedData{
		Username:  username,
		Reason:    reason,
		IPAddress: ip,
	}

	event, err := pkgkafka.NewEvent(TopicLoginFailed, username, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create login_failed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicLoginFailed, event); err != nil {
		return fmt.Errorf("publish login_failed event: %w", err)
	}

	return nil
}

// PublishLoginPending publishes a login_pending_2fa event.
func (p *Producer) PublishLoginPending(ctx context.Context, user *domain.User, ip string) error {
	data := LoginPendingData{
		UserID:    user.ID,
		Username:  user.Username,
		IPAddress: ip,
	}

	event, err := pkgkafka.NewEvent(TopicLoginPending, user.ID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create login_pending_2fa event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicLoginPending, event); err != nil {
		return fmt.Errorf("publish login_pending_2fa event: %w", err)
	}

	return nil
}

// PublishUserProvisioned publishes a user_provisioned event.
func (p *Producer) PublishUserProvisioned(ctx context.Context, user *domain.User) error {
	data := UserProvisionedData{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	}

	event, err := pkgkafka.NewEvent(TopicUserProvisioned, user.ID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create user_provisioned event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserProvisioned, event); err != nil {
		return fmt.Errorf("publish user_provisioned event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user_provisioned event",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return nil
}

// PublishRoleChanged publishes a role_changed event.
func (p *Producer) PublishRoleChanged(ctx context.Context, user *domain.User, oldRole, newRole, source string) error {
	data := RoleChangedData{
		UserID:   user.ID,
		Username: user.Username,
		OldRole:  oldRole,
		NewRole:  newRole,
		Source:   source,
	}

	event, err := pkgkafka.NewEvent(TopicRoleChanged, user.ID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create role_changed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicRoleChanged, event); err != nil {
		return fmt.Errorf("publish role_changed event: %w", err)
	}

	return nil
}
