// Package service implements the login decision procedure: directory-first
// authentication with local fallback, just-in-time account provisioning,
// AD-group role synchronization, the two-factor gate, and session
// establishment.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dstall/fileharbor/internal/audit"
	"github.com/dstall/fileharbor/internal/directory"
	"github.com/dstall/fileharbor/internal/domain"
	"github.com/dstall/fileharbor/internal/event"
	"github.com/dstall/fileharbor/internal/repository"
	"github.com/dstall/fileharbor/internal/session"
	"github.com/dstall/fileharbor/internal/settings"
	"github.com/dstall/fileharbor/internal/twofactor"
	apperrors "github.com/dstall/fileharbor/pkg/errors"
)

// Settings keys controlling which directory modes are active.
const (
	SettingEnableLDAP = "enable_ldap"
	SettingEnableAD   = "enable_ad"
)

// defaultLanguage for provisioned accounts.
const defaultLanguage = "en"

// syntheticEmailDomain backs the email fallback for directory accounts whose
// entry carries no mail attribute.
const syntheticEmailDomain = "ldap.local"

// Rejection reasons recorded in the audit trail. The login response never
// carries them; the caller sees a uniform rejection.
const (
	reasonNoSuchUser    = "no-such-user"
	reasonWrongPassword = "wrong-password"
	reasonInactive      = "inactive"
	reasonBindFailed    = "ldap-bind-failed"
)

// LoginStatus is the outcome of a login attempt.
type LoginStatus int

const (
	// StatusRejected means the credentials did not establish anything.
	StatusRejected LoginStatus = iota
	// StatusAuthenticated means a full session was established.
	StatusAuthenticated
	// StatusPending means the primary factor succeeded but a second factor
	// is still owed; no full session exists yet.
	StatusPending
)

// LoginInput holds the parameters for a login attempt.
type LoginInput struct {
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginResult is the outcome of a login attempt. Reason is populated on
// rejection for logging only and must never reach the response body.
type LoginResult struct {
	Status    LoginStatus
	User      *domain.User
	SessionID string
	Session   *session.Context
	Reason    string
}

// DirectoryClient is the directory collaborator the orchestrator needs.
type DirectoryClient interface {
	Authenticate(ctx context.Context, cfg directory.Config, username, password string) (*directory.Identity, error)
	GetUserInfo(ctx context.Context, cfg directory.Config, username string) (*directory.Identity, error)
	IsMemberOf(ctx context.Context, cfg directory.Config, username string, ident *directory.Identity, groupDN string) (bool, error)
}

// SessionStore is the slice of the session manager the orchestrator uses.
type SessionStore interface {
	Issue(ctx context.Context, sc *session.Context) (string, error)
	Destroy(ctx context.Context, id string) error
}

// AuthService sequences authentication, provisioning, role sync, the
// two-factor gate, and session establishment.
type AuthService struct {
	users     repository.UserRepository
	sessions  SessionStore
	settings  settings.Provider
	directory DirectoryClient
	gate      *twofactor.Gate
	audit     audit.Recorder
	producer  *event.Producer
	logger    *slog.Logger
}

// NewAuthService creates the auth service.
func NewAuthService(
	users repository.UserRepository,
	sessions SessionStore,
	settings settings.Provider,
	directoryClient DirectoryClient,
	gate *twofactor.Gate,
	auditRecorder audit.Recorder,
	producer *event.Producer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		sessions:  sessions,
		settings:  settings,
		directory: directoryClient,
		gate:      gate,
		audit:     auditRecorder,
		producer:  producer,
		logger:    logger,
	}
}

// Login runs the full decision procedure. A non-nil error means an internal
// fault; every credential-related outcome is expressed through the result's
// Status so failure detail stays in the audit trail.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if input.Username == "" || input.Password == "" {
		return s.reject(ctx, input, reasonNoSuchUser), nil
	}

	user, directorySuccess, dirCfg, ident, err := s.tryDirectory(ctx, input)
	if err != nil {
		return nil, err
	}

	if directorySuccess {
		if dirCfg.IsAD() && dirCfg.AdminGroupDN != "" {
			s.syncRole(ctx, dirCfg, user, ident)
		}
	} else {
		var reason string
		user, reason, err = s.authenticateLocal(ctx, input.Username, input.Password)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			return s.reject(ctx, input, reason), nil
		}
	}

	if !user.IsActive {
		return s.reject(ctx, input, reasonInactive), nil
	}

	switch s.gate.Check(ctx, user.ID, input.IPAddress, input.UserAgent) {
	case twofactor.Pending:
		return s.parkPending(ctx, input, user)
	default:
		return s.establish(ctx, input, user)
	}
}

// Logout destroys the session and records the event.
func (s *AuthService) Logout(ctx context.Context, sessionID string, sc *session.Context) error {
	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	actorID := sc.UserID
	if actorID == "" {
		actorID = sc.TwoFactorUserID
	}
	s.audit.Event(ctx, actorID, domain.AuditLogout, "session", sessionID, "", nil)

	s.logger.InfoContext(ctx, "user logged out",
		slog.String("user_id", actorID),
	)
	return nil
}

// tryDirectory attempts directory authentication in precedence order, AD
// before generic LDAP. A bind failure falls through; it never aborts the
// request, so local authentication remains reachable.
func (s *AuthService) tryDirectory(ctx context.Context, input LoginInput) (*domain.User, bool, directory.Config, *directory.Identity, error) {
	var prefixes []string
	if s.settings.GetBool(ctx, SettingEnableAD) {
		prefixes = append(prefixes, directory.PrefixAD)
	}
	if s.settings.GetBool(ctx, SettingEnableLDAP) {
		prefixes = append(prefixes, directory.PrefixLDAP)
	}

	for _, prefix := range prefixes {
		cfg := directory.LoadConfig(ctx, s.settings, prefix)
		ident, err := s.directory.Authenticate(ctx, cfg, input.Username, input.Password)
		if err != nil {
			s.logger.InfoContext(ctx, "directory authentication failed, falling through",
				slog.String("prefix", prefix),
				slog.String("username", input.Username),
				slog.String("error", err.Error()))
			continue
		}

		user, err := s.ensureDirectoryAccount(ctx, cfg, input.Username, ident)
		if err != nil {
			return nil, false, directory.Config{}, nil, err
		}
		if user == nil {
			// The username belongs to a locally managed account. A local
			// row must never be authenticated through a directory bind, so
			// the bind success does not count.
			continue
		}
		return user, true, cfg, ident, nil
	}

	return nil, false, directory.Config{}, nil, nil
}

// ensureDirectoryAccount resolves the local row behind a successful bind,
// provisioning one on first login. Returns nil for locally managed accounts.
func (s *AuthService) ensureDirectoryAccount(ctx context.Context, cfg directory.Config, username string, ident *directory.Identity) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		if !user.IsLDAP {
			s.logger.WarnContext(ctx, "directory bind succeeded for a locally managed account, ignoring",
				slog.String("username", username))
			return nil, nil
		}
		return user, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("lookup user %s: %w", username, err)
	}

	return s.provisionAccount(ctx, cfg, username, ident)
}

// provisionAccount creates the local row for a first directory login.
func (s *AuthService) provisionAccount(ctx context.Context, cfg directory.Config, username string, ident *directory.Identity) (*domain.User, error) {
	if ident == nil || ident.DN == "" {
		// The post-bind search came back empty; ask the directory once more
		// with the service account before falling back to synthetic values.
		if info, err := s.directory.GetUserInfo(ctx, cfg, username); err == nil {
			ident = info
		} else {
			s.logger.WarnContext(ctx, "directory attribute fetch failed, provisioning with fallbacks",
				slog.String("username", username),
				slog.String("error", err.Error()))
		}
	}

	email := ""
	fullName := ""
	if ident != nil {
		email = ident.Email
		fullName = ident.FullName()
	}
	if email == "" {
		email = username + "@" + syntheticEmailDomain
	}
	if fullName == "" {
		fullName = username
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:        uuid.New().String(),
		Username:  username,
		Email:     email,
		FullName:  fullName,
		Role:      domain.RoleUser,
		IsActive:  true,
		IsLDAP:    true,
		Language:  defaultLanguage,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			// Lost a provisioning race with a concurrent first login.
			return s.users.GetByUsername(ctx, username)
		}
		return nil, fmt.Errorf("provision user %s: %w", username, err)
	}

	s.audit.Event(ctx, user.ID, domain.AuditUserProvisioned, "user", user.ID, "", map[string]string{
		"username": username,
		"email":    email,
	})
	if err := s.producer.PublishUserProvisioned(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user_provisioned event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "directory account provisioned",
		slog.String("user_id", user.ID),
		slog.String("username", username))

	return user, nil
}

// syncRole reconciles the role with admin-group membership. The group is the
// source of truth for directory-authenticated users; a failed membership
// check leaves the role unchanged and never blocks the login.
func (s *AuthService) syncRole(ctx context.Context, cfg directory.Config, user *domain.User, ident *directory.Identity) {
	member, err := s.directory.IsMemberOf(ctx, cfg, user.Username, ident, cfg.AdminGroupDN)
	if err != nil {
		s.logger.ErrorContext(ctx, "admin group membership check failed, leaving role unchanged",
			slog.String("user_id", user.ID),
			slog.String("group_dn", cfg.AdminGroupDN),
			slog.String("error", err.Error()))
		return
	}

	var newRole, action string
	switch {
	case member && user.Role != domain.RoleAdmin:
		newRole, action = domain.RoleAdmin, domain.AuditRoleGrantedViaAD
	case !member && user.Role == domain.RoleAdmin:
		newRole, action = domain.RoleUser, domain.AuditRoleRevokedViaAD
	default:
		return
	}

	if err := s.users.UpdateRole(ctx, user.ID, newRole); err != nil {
		s.logger.ErrorContext(ctx, "role update failed",
			slog.String("user_id", user.ID),
			slog.String("new_role", newRole),
			slog.String("error", err.Error()))
		return
	}

	oldRole := user.Role
	user.Role = newRole
	s.audit.Event(ctx, user.ID, action, "user", user.ID, "", map[string]string{
		"group_dn": cfg.AdminGroupDN,
		"old_role": oldRole,
		"new_role": newRole,
	})
	if err := s.producer.PublishRoleChanged(ctx, user, oldRole, newRole, "ad_group_sync"); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish role_changed event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()))
	}
}

// authenticateLocal verifies a password against the local row. The returned
// reason feeds the audit trail only; the caller's outcome stays uniform.
func (s *AuthService) authenticateLocal(ctx context.Context, username, password string) (*domain.User, string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, reasonNoSuchUser, nil
		}
		return nil, "", fmt.Errorf("lookup user %s: %w", username, err)
	}

	// Directory-provisioned rows have no usable local hash and must never
	// be checked against one.
	if user.IsLDAP {
		return nil, reasonBindFailed, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, reasonWrongPassword, nil
	}

	return user, "", nil
}

func (s *AuthService) reject(ctx context.Context, input LoginInput, reason string) *LoginResult {
	s.audit.Event(ctx, "", domain.AuditLoginFailed, "user", input.Username, reason, map[string]string{
		"ip": input.IPAddress,
	})
	if err := s.producer.PublishLoginFailed(ctx, input.Username, reason, input.IPAddress); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish login_failed event",
			slog.String("username", input.Username),
			slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "login rejected",
		slog.String("username", input.Username),
		slog.String("reason", reason))

	return &LoginResult{Status: StatusRejected, Reason: reason}
}

// parkPending stores the pending-2FA state without establishing the session.
func (s *AuthService) parkPending(ctx context.Context, input LoginInput, user *domain.User) (*LoginResult, error) {
	sc := &session.Context{
		IPAddress:        input.IPAddress,
		UserAgent:        input.UserAgent,
		Created:          time.Now().UTC(),
		TwoFactorPending: true,
		TwoFactorUserID:  user.ID,
	}
	if _, err := session.EnsureCSRF(sc); err != nil {
		return nil, err
	}

	id, err := s.sessions.Issue(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("store pending session: %w", err)
	}

	s.audit.Event(ctx, user.ID, domain.AuditLoginPending2FA, "user", user.ID, "", map[string]string{
		"ip": input.IPAddress,
	})
	if err := s.producer.PublishLoginPending(ctx, user, input.IPAddress); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish login_pending_2fa event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "login pending second factor",
		slog.String("user_id", user.ID))

	return &LoginResult{Status: StatusPending, User: user, SessionID: id, Session: sc}, nil
}

// establish writes the full session, stamps last_login, and records success.
func (s *AuthService) establish(ctx context.Context, input LoginInput, user *domain.User) (*LoginResult, error) {
	sc := &session.Context{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      user.Role,
		IsLDAP:    user.IsLDAP,
		Language:  user.Language,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Created:   time.Now().UTC(),
	}
	if _, err := session.EnsureCSRF(sc); err != nil {
		return nil, err
	}

	id, err := s.sessions.Issue(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("establish session: %w", err)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.ErrorContext(ctx, "failed to stamp last login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()))
	}

	s.audit.Event(ctx, user.ID, domain.AuditLoginSuccess, "user", user.ID, "", map[string]string{
		"ip":      input.IPAddress,
		"is_ldap": fmt.Sprintf("%t", user.IsLDAP),
	})
	if err := s.producer.PublishLoginSucceeded(ctx, user, input.IPAddress); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish login_succeeded event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.Bool("is_ldap", user.IsLDAP))

	return &LoginResult{Status: StatusAuthenticated, User: user, SessionID: id, Session: sc}, nil
}
