package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/helpdesk-sla/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	SLA            *handlers.SLAHandler
	AuthMiddleware *auth.AuthMiddleware
	Gatherer       prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	internal := app.Group("/internal/sla", cfg.AuthMiddleware.Handle)
	read := auth.RequireScope(auth.ScopeRead)
	write := auth.RequireScope(auth.ScopeWrite)

	internal.Get("/tickets/:id", read, cfg.SLA.Get)
	internal.Post("/tickets/:id/start", write, cfg.SLA.Start)
	internal.Post("/tickets/:id/phases/:phase/met", write, cfg.SLA.MarkPhaseMet)
	internal.Post("/tickets/:id/pause", write, cfg.SLA.Pause)
	internal.Post("/tickets/:id/resume", write, cfg.SLA.Resume)
	internal.Post("/sweeps/:tier", write, cfg.SLA.Sweep)
}
