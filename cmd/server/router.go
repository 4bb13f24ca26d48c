package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/gatekeeper/internal/api"
	apiMiddleware "github.com/phrazzld/gatekeeper/internal/api/middleware"
	"github.com/phrazzld/gatekeeper/internal/api/shared"
	"github.com/phrazzld/gatekeeper/internal/domain"
	"github.com/phrazzld/gatekeeper/internal/redact"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readinessTimeout = 2 * time.Second

// setupRouter creates the router. The middleware order is fixed:
// request id, real ip (optional), trace, recoverer, rate limit, request gate,
// then per-route authorization.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if app.config.Server.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(apiMiddleware.Trace(apiMiddleware.TraceOptions{Logger: app.logger}))
	r.Use(middleware.Recoverer)

	authHandler := api.NewAuthHandler(app.authService)
	userHandler := api.NewUserHandler(app.authService)

	r.Route("/api/v1", func(r chi.Router) {
		if app.limiter != nil {
			r.Use(apiMiddleware.RateLimit(app.limiter, apiMiddleware.RateLimitOptions{}))
		}
		r.Use(app.gate.Authenticate)

		// Public
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/authenticate", authHandler.Login)

		r.With(apiMiddleware.RequireAuthenticated).Get("/me", userHandler.Me)

		r.Route("/users", func(r chi.Router) {
			r.Use(apiMiddleware.RequireRole(domain.RoleAdmin))
			r.Get("/", userHandler.List)
			r.Post("/", userHandler.Create)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})
	r.Get("/ready", app.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))

	return r
}

// handleReady pings every dependency and answers 503 if any fails.
func (app *application) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(app.readiness))
	for _, rc := range app.readiness {
		if err := rc.check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[rc.name] = "unavailable"
			app.logger.Warn("readiness check failed",
				"dependency", rc.name,
				"error", redact.Error(err))
			continue
		}
		checks[rc.name] = "ok"
	}

	shared.RespondWithJSON(w, r, status, checks)
}
