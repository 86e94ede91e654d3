package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mernacademy/student-auth/internal/api/http/handlers"
	"github.com/mernacademy/student-auth/internal/auth"
	"github.com/mernacademy/student-auth/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
	// RateLimit guards /api/auth when set.
	RateLimit fiber.Handler
	// LoginThrottle guards /api/auth/login when set.
	LoginThrottle fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	if cfg.RateLimit != nil {
		authGroup.Use(cfg.RateLimit)
	}
	authGroup.Post("/signup", cfg.Auth.Signup)
	if cfg.LoginThrottle != nil {
		authGroup.Post("/login", cfg.LoginThrottle, cfg.Auth.Login)
	} else {
		authGroup.Post("/login", cfg.Auth.Login)
	}
	authGroup.Post("/verify-email", cfg.Auth.VerifyEmail)
	authGroup.Post("/forgot-password", cfg.Auth.ForgotPassword)
	authGroup.Post("/reset-password", cfg.Auth.ResetPassword)

	authGroup.Post("/change-password", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated(), cfg.Auth.ChangePassword)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated(), cfg.Auth.Me)

	admin := api.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))
	admin.Get("/accounts/:id", cfg.Admin.GetAccount)
}
