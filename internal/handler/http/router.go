package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/auth-service/internal/domain"
	"github.com/utafrali/auth-service/internal/service"
	"github.com/utafrali/auth-service/pkg/health"
	"github.com/utafrali/auth-service/pkg/middleware"
)

// RouterConfig carries the request-surface knobs into NewRouter.
type RouterConfig struct {
	Environment    string
	AllowedOrigins []string
	RefreshExpiry  time.Duration
}

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(
	authService *service.AuthService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(CORSConfig{AllowedOrigins: cfg.AllowedOrigins, Environment: cfg.Environment}))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("auth"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Token validator that bridges to the service's codec.
	tokenValidator := func(tokenString string) (*middleware.Claims, error) {
		claims, err := authService.VerifyAccess(tokenString)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			AccountID: claims.AccountID,
			Email:     claims.Email,
			Role:      claims.Role,
		}, nil
	}

	cookies := newCookieWriter(cfg.Environment, cfg.RefreshExpiry)
	authHandler := NewAuthHandler(authService, cookies, logger)
	sessionHandler := NewSessionHandler(authService, logger)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		// Entry points: no session exists yet, so no CSRF check.
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		// Cookie-authenticated endpoints carry the double-submit proof.
		r.Group(func(r chi.Router) {
			r.Use(CSRF(authService))

			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(tokenValidator))
			r.Use(CSRF(authService))

			r.Post("/logout-all", authHandler.LogoutAll)
		})
	})

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(tokenValidator))

		r.Get("/", sessionHandler.List)

		r.Group(func(r chi.Router) {
			r.Use(CSRF(authService))
			r.Delete("/{id}", sessionHandler.Revoke)
		})
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(tokenValidator))
		r.Use(middleware.RequireRole(domain.RoleAdmin))

		r.Post("/lockout/unlock", sessionHandler.Unlock)
	})

	return r
}
