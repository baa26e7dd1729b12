package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dstall/fileharbor/internal/service"
	"github.com/dstall/fileharbor/internal/session"
	"github.com/dstall/fileharbor/pkg/health"
	"github.com/dstall/fileharbor/pkg/middleware"
)

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(
	authService *service.AuthService,
	sessionManager *session.Manager,
	policy session.Policy,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig CORSConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("auth"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	authHandler := NewAuthHandler(authService, sessionManager, policy, logger)
	loadSession := SessionLoader(sessionManager, policy, logger)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(loadSession)

		// Login carries no prior authenticated session and is therefore
		// outside CSRF protection; everything state-changing after it is
		// inside.
		r.With(ContentTypeJSON).Post("/login", authHandler.Login)

		r.Get("/csrf", authHandler.CSRF)
		r.Get("/session", authHandler.Session)

		r.With(CSRFProtect(logger)).Post("/logout", authHandler.Logout)
	})

	return r
}
