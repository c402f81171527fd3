// Package http assembles the service's HTTP surface: the shared middleware
// chain, the authenticated API routes, and the operational endpoints.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custodia/internal/platform/middleware"
)

// Registrar is anything that can attach its routes to a router. Both context
// handlers implement it.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports readiness of one backing dependency.
type HealthChecker func() error

// Options carries everything the router needs.
type Options struct {
	Logger         *slog.Logger
	Verifier       middleware.PartyVerifier
	RequestTimeout time.Duration
	Handlers       []Registrar
	HealthChecks   map[string]HealthChecker
}

// NewRouter builds the root router. Operational endpoints stay outside the
// auth boundary; every API route requires an authenticated party.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Recovery(opts.Logger))
	r.Use(middleware.Logger(opts.Logger))
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Get("/healthz", healthHandler(opts.HealthChecks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireParty(opts.Verifier, opts.Logger))
		for _, h := range opts.Handlers {
			h.Register(r)
		}
	})

	return r
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for name, check := range checks {
			if err := check(); err != nil {
				http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
