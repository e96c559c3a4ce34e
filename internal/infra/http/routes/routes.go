// Package routes registers all HTTP routes for the API.
package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tp12121212/sit-builder/internal/infra/http/handler"
	"github.com/tp12121212/sit-builder/internal/infra/websocket"
)

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health    *handler.HealthHandler
	Scan      *handler.ScanHandler
	WebSocket *websocket.Handler
}

// Register wires all application routes. Route definitions live in the
// infrastructure layer, not in main. apiMiddleware applies only under
// /api/v1; probes, metrics and the WebSocket upgrade stay outside it
// because long-lived upgrades cannot run behind the request timeout.
func Register(r chi.Router, h Handlers, apiMiddleware ...func(http.Handler) http.Handler) {
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Get("/ws/scans/{id}", h.WebSocket.ServeScanProgress)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(apiMiddleware...)

		api.Route("/scans", func(scans chi.Router) {
			scans.Post("/", h.Scan.Admit)
			scans.Get("/", h.Scan.List)

			scans.Route("/{id}", func(one chi.Router) {
				one.Get("/", h.Scan.Get)
				one.Delete("/", h.Scan.Delete)
				one.Get("/progress", h.Scan.Progress)
				one.Get("/candidates", h.Scan.Candidates)
				one.Post("/cancel", h.Scan.Cancel)
			})
		})
	})
}
