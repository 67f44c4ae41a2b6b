package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-access-api/internal/config"
	"github.com/noah-isme/gema-access-api/internal/handler"
	"github.com/noah-isme/gema-access-api/internal/middleware"
	"github.com/noah-isme/gema-access-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AccessHandler      *handler.AccessHandler
	EntitlementHandler *handler.EntitlementHandler
	ReportHandler      *handler.ReportHandler
	ActivityHandler    *handler.ActivityHandler
	HealthProbes       map[string]handler.HealthProbe
	JWTMiddleware      fiber.Handler
	CheckInLimiter     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	if deps.AccessHandler != nil {
		var guards []fiber.Handler
		if deps.CheckInLimiter != nil {
			guards = append(guards, deps.CheckInLimiter)
		}
		deps.AccessHandler.Register(api.Group("/access"), guards...)
	}

	// Admin routes are never exposed without token verification.
	if deps.JWTMiddleware == nil {
		return
	}
	admin := api.Group("/admin", deps.JWTMiddleware, middleware.RequireRole(middleware.RoleAdmin, middleware.RoleOperator))

	if deps.EntitlementHandler != nil {
		deps.EntitlementHandler.Register(admin)
	}
	if deps.ReportHandler != nil {
		deps.ReportHandler.Register(admin.Group("/reports"))
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(admin.Group("/activity", middleware.RequireRole(middleware.RoleAdmin)))
	}
}
