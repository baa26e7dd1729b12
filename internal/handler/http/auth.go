package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dstall/fileharbor/internal/service"
	"github.com/dstall/fileharbor/internal/session"
	apperrors "github.com/dstall/fileharbor/pkg/errors"
	"github.com/dstall/fileharbor/pkg/httputil"
	"github.com/dstall/fileharbor/pkg/validator"
)

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service  *service.AuthService
	sessions *session.Manager
	policy   session.Policy
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, sessions *session.Manager, policy session.Policy, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, sessions: sessions, policy: policy, logger: logger}
}

// --- Request DTOs ---

// LoginRequest is the JSON request body for login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=255"`
	Password string `json:"password" validate:"required"`
}

// --- Response types ---

// LoginResponse is returned on a successful or pending login. Rejections get
// a uniform error body with no detail.
type LoginResponse struct {
	Status    string       `json:"status"`
	User      *SessionUser `json:"user,omitempty"`
	CSRFToken string       `json:"csrf_token,omitempty"`
}

// SessionUser is the subset of user attributes exposed to the client.
type SessionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Language string `json:"language"`
}

// SessionResponse describes the current session for GET /session.
type SessionResponse struct {
	Authenticated    bool         `json:"authenticated"`
	TwoFactorPending bool         `json:"two_factor_pending,omitempty"`
	User             *SessionUser `json:"user,omitempty"`
}

// CSRFResponse carries the session's anti-forgery token.
type CSRFResponse struct {
	CSRFToken string `json:"csrf_token"`
}

func sessionUser(sc *session.Context) *SessionUser {
	return &SessionUser{
		ID:       sc.UserID,
		Username: sc.Username,
		Email:    sc.Email,
		FullName: sc.FullName,
		Role:     sc.Role,
		Language: sc.Language,
	}
}

// --- Handlers ---

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	input := service.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}

	result, err := h.service.Login(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	switch result.Status {
	case service.StatusAuthenticated:
		http.SetCookie(w, h.policy.Cookie(result.SessionID, r.TLS != nil))
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: LoginResponse{
			Status:    "authenticated",
			User:      sessionUser(result.Session),
			CSRFToken: result.Session.CSRFToken,
		}})
	case service.StatusPending:
		http.SetCookie(w, h.policy.Cookie(result.SessionID, r.TLS != nil))
		httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: LoginResponse{
			Status:    "pending_2fa",
			CSRFToken: result.Session.CSRFToken,
		}})
	default:
		// Uniform rejection: the audit trail, not the response, records why.
		httputil.WriteError(w, r, apperrors.CredentialRejected(), h.logger)
	}
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, sc, ok := sessionFrom(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("no active session"), h.logger)
		return
	}

	if err := h.service.Logout(r.Context(), id, sc); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	http.SetCookie(w, h.policy.ExpiredCookie(r.TLS != nil))
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"status": "logged_out"}})
}

// Session handles GET /api/v1/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	_, sc, ok := sessionFrom(r.Context())
	if !ok {
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: SessionResponse{}})
		return
	}

	resp := SessionResponse{
		Authenticated:    sc.Authenticated(),
		TwoFactorPending: sc.TwoFactorPending,
	}
	if sc.Authenticated() {
		resp.User = sessionUser(sc)
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}

// CSRF handles GET /api/v1/auth/csrf. It lazily issues the session's token
// so pre-login pages can arm their forms.
func (h *AuthHandler) CSRF(w http.ResponseWriter, r *http.Request) {
	id, sc, ok := sessionFrom(r.Context())
	if !ok {
		// No session yet: start an anonymous one so the token has a home.
		sc = &session.Context{Created: nowUTC()}
		token, err := session.EnsureCSRF(sc)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		newID, err := h.sessions.Issue(r.Context(), sc)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		http.SetCookie(w, h.policy.Cookie(newID, r.TLS != nil))
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: CSRFResponse{CSRFToken: token}})
		return
	}

	token, err := session.EnsureCSRF(sc)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if err := h.sessions.Save(r.Context(), id, sc); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: CSRFResponse{CSRFToken: token}})
}
