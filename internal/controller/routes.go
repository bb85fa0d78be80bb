package controller

import (
	"github.com/gofiber/fiber/v2"

	"gshvpn_backend/internal/middleware"
)

func (h *Handler) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")
	auth := middleware.AuthMiddleware(h.Tokens)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Auth Routes
	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", h.Register)
	authRoutes.Post("/login", h.Login)

	api.Get("/plans", h.ListPlans)
	api.Get("/me", auth, h.GetMe)

	// Dashboard routes
	dashboard := api.Group("/dashboard", auth)
	dashboard.Get("/", h.GetDashboard)
	dashboard.Get("/keys", h.ListMyKeys)
	dashboard.Get("/keys/:id/config",
		middleware.CheckKeyOwnership(h.Lifecycle),
		middleware.RequireEntitlement(h.Lifecycle),
		h.GetKeyConfig)
	dashboard.Get("/notifications", h.ListMyNotifications)

	// Billing routes
	billing := api.Group("/billing")
	billing.Post("/checkout", auth, h.Checkout)
	billing.Post("/webhook", h.HandleStripeWebhook)

	api.Post("/subscriptions/:id/revoke", auth, h.RevokeSubscription)

	// Admin routes
	admin := api.Group("/admin", auth, middleware.AdminOnly(h.Accounts))
	admin.Get("/stats", h.GetAdminStats)
	admin.Get("/users", h.ListUsers)
	admin.Delete("/users/:id", h.DeleteUser)
	admin.Get("/subscriptions", h.ListSubscriptions)
	admin.Get("/servers", h.ListServers)
	admin.Post("/servers", h.AddServer)
	admin.Put("/servers/:id/active", h.SetServerActive)
	admin.Get("/emails", h.ListEmails)
}
