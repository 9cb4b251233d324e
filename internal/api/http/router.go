package http

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ephc-connect/attendance-service/internal/api/http/handlers"
	"github.com/ephc-connect/attendance-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Attendance     *handlers.AttendanceHandler
	Alerts         *handlers.AlertsHandler
	Stats          *handlers.StatsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Post("/auth/login", cfg.Auth.Login)

	api := app.Group("/api", cfg.AuthMiddleware.Handle)

	attendance := api.Group("/attendance")
	attendance.Post("/checkin", cfg.Attendance.CheckIn)
	attendance.Post("/checkout", cfg.Attendance.CheckOut)
	attendance.Get("/stats", auth.RequireSupervisor(), cfg.Stats.Attendance)
	attendance.Get("/facility/:facilityID", auth.RequireSupervisor(), cfg.Attendance.ByFacility)
	attendance.Post("/facility/:facilityID/mark-absent", auth.RequireSupervisor(), cfg.Attendance.MarkAbsentees)
	attendance.Get("/staff/:staffID", cfg.Attendance.ByStaff)

	alerts := api.Group("/alerts", auth.RequireSupervisor())
	alerts.Get("/", cfg.Alerts.List)
	alerts.Get("/stats/:facilityID", cfg.Alerts.Stats)
	alerts.Get("/:id", cfg.Alerts.Get)
	alerts.Put("/:id/acknowledge", cfg.Alerts.Acknowledge)
	alerts.Put("/:id/resolve", cfg.Alerts.Resolve)

	api.Get("/stats/network", auth.RequireSupervisor(), cfg.Stats.Network)
}
