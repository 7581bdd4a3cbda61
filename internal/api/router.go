package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/technosupport/ts-lms/internal/metrics"
	"github.com/technosupport/ts-lms/internal/middleware"
)

type RouterDeps struct {
	License   *LicenseHandler
	Admin     *AdminHandler
	Auth      *AuthHandler
	JWT       *middleware.JWTAuth
	RateLimit *middleware.RateLimitMiddleware
	Metrics   *metrics.Collector
}

// NewRouter wires the HTTP surface. The public license endpoints sit behind
// the IP rate limiter only; everything under /admin requires a bearer token.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(middleware.HTTPMetrics(deps.Metrics))
	if deps.RateLimit != nil {
		r.Use(deps.RateLimit.GlobalLimiter)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", deps.Auth.Login)
		r.With(deps.JWT.Middleware).Post("/auth/logout", deps.Auth.Logout)

		r.Route("/license", func(r chi.Router) {
			r.Post("/activate", deps.License.Activate)
			r.Post("/validate", deps.License.Validate)
			r.Post("/deactivate", deps.License.Deactivate)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.JWT.Middleware)
			r.Get("/keys", deps.Admin.ListKeys)
			r.Post("/keys/generate", deps.Admin.GenerateKeys)
			r.Post("/keys/{key}/manage", deps.Admin.ManageKey)
			r.Get("/audit", deps.Admin.ListAuditLog)
		})
	})

	return r
}
