package domain

import "time"

// Audit action names recorded by the auth core.
const (
	AuditLoginSuccess     = "login_success"
	AuditLoginFailed      = "login_failed"
	AuditLoginPending2FA  = "login_pending_2fa"
	AuditLogout           = "logout"
	AuditRoleGrantedViaAD = "role_granted_via_ad"
	AuditRoleRevokedViaAD = "role_revoked_via_ad"
	AuditUserProvisioned  = "user_provisioned"
)

// AuditEvent is one row of the audit trail. Recording is fire-and-forget:
// a failed write must never abort the operation being audited.
type AuditEvent struct {
	ID         string            `json:"id"`
	ActorID    string            `json:"actor_id"`
	Action     string            `json:"action"`
	TargetKind string            `json:"target_kind"`
	TargetID   string            `json:"target_id"`
	Detail     string            `json:"detail,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
