package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dstall/fileharbor/internal/session"
	apperrors "github.com/dstall/fileharbor/pkg/errors"
	"github.com/dstall/fileharbor/pkg/httputil"
	"github.com/dstall/fileharbor/pkg/logger"
)

type contextKey string

const (
	sessionIDKey  contextKey = "session_id"
	sessionCtxKey contextKey = "session_ctx"
)

// CSRFHeader is where state-changing requests present the session's token.
// A csrf_token form field is accepted as a fallback.
const CSRFHeader = "X-CSRF-Token"

func nowUTC() time.Time { return time.Now().UTC() }

// sessionFrom extracts the loaded session from the request context.
func sessionFrom(ctx context.Context) (string, *session.Context, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	if !ok {
		return "", nil, false
	}
	sc, ok := ctx.Value(sessionCtxKey).(*session.Context)
	if !ok {
		return "", nil, false
	}
	return id, sc, true
}

// clientIP returns the originating address, honoring the first entry of
// X-Forwarded-For when a proxy sits in front.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SessionLoader resolves the session cookie on every request. Known sessions
// are attached to the context, rotated when their id is past the rotation
// interval, and their last activity refreshed. Unknown or absent cookies
// pass through anonymously; access control is a separate concern.
func SessionLoader(mgr *session.Manager, policy session.Policy, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(policy.CookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			id := cookie.Value
			sc, err := mgr.Load(r.Context(), id)
			if err != nil {
				// Expired or bogus cookie: clear it and continue anonymous.
				http.SetCookie(w, policy.ExpiredCookie(r.TLS != nil))
				next.ServeHTTP(w, r)
				return
			}

			if policy.ShouldRotate(sc, nowUTC()) {
				newID, rotErr := mgr.Rotate(r.Context(), id, sc)
				if rotErr != nil {
					log.ErrorContext(r.Context(), "session rotation failed, keeping current id",
						slog.String("error", rotErr.Error()))
				} else {
					id = newID
					http.SetCookie(w, policy.Cookie(id, r.TLS != nil))
				}
			} else if sc.Authenticated() {
				if saveErr := mgr.Save(r.Context(), id, sc); saveErr != nil {
					log.WarnContext(r.Context(), "session activity refresh failed",
						slog.String("error", saveErr.Error()))
				}
			}

			ctx := context.WithValue(r.Context(), sessionIDKey, id)
			ctx = context.WithValue(ctx, sessionCtxKey, sc)
			if sc.UserID != "" {
				ctx = logger.WithUserID(ctx, sc.UserID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated rejects requests without a fully established session.
// Pending-2FA sessions do not pass.
func RequireAuthenticated(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, sc, ok := sessionFrom(r.Context())
			if !ok || !sc.Authenticated() {
				httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), log)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CSRFProtect validates the anti-forgery token on state-changing methods.
// Requests without a session are rejected outright: a token can only be
// validated against the session that issued it.
func CSRFProtect(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			_, sc, ok := sessionFrom(r.Context())
			if !ok {
				httputil.WriteError(w, r, apperrors.CsrfMismatch(), log)
				return
			}

			presented := r.Header.Get(CSRFHeader)
			if presented == "" {
				presented = r.PostFormValue("csrf_token")
			}
			if err := session.ValidateCSRF(sc, presented); err != nil {
				httputil.WriteError(w, r, err, log)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	AllowedOrigins []string
	Environment    string
}

// CORS returns a middleware that sets Cross-Origin Resource Sharing headers.
// The session cookie is SameSite=None, so credentialed cross-site requests
// are expected; origins are echoed back individually rather than wildcarded
// outside development.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	allowWildcard := cfg.Environment == "development"
	originSet := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowWildcard = true
		}
		originSet[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				if _, ok := originSet[origin]; ok || allowWildcard {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
					w.Header().Set("Vary", "Origin")
				}
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Correlation-ID, "+CSRFHeader)
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
