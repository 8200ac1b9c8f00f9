// Package httpapi assembles the full HTTP surface: nominee routes, admin
// routes, health and metrics.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"securevault/internal/transport/shared"
)

// Registrar is anything that mounts routes on the root router; both the
// nominee and admin handlers satisfy it.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports one dependency's liveness; nil checks are skipped by
// the caller wiring.
type HealthCheck func(ctx context.Context) error

// NewRouter builds the root router.
func NewRouter(logger *slog.Logger, checks map[string]HealthCheck, registrars ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(req.Context()); err != nil {
				logger.ErrorContext(req.Context(), "health check failed", "dependency", name, "error", err)
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
				continue
			}
			body[name] = "ok"
		}
		shared.WriteJSON(w, status, body)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	for _, reg := range registrars {
		reg.Register(r)
	}
	return r
}
