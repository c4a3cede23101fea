package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Public         *handlers.PublicHandler
	Queue          *handlers.QueueHandler
	AdminTickets   *handlers.AdminTicketsHandler
	Categories     *handlers.CategoriesHandler
	Users          *handlers.UsersHandler
	WS             *handlers.WSHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	// Kiosk and status display surface, no authentication.
	app.Post("/checkin", cfg.Public.CheckIn)
	app.Get("/status", cfg.Public.Status)
	app.Get("/categories", cfg.Public.ListCategories)

	app.Post("/auth/login", cfg.Users.Login)

	operator := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin, domain.RoleAgent))
	operator.Post("/auth/password/change", cfg.Users.ChangePassword)

	operator.Get("/agent/queue", cfg.Queue.Queue)
	operator.Get("/agent/categories", cfg.Queue.Assignments)
	operator.Post("/agent/queue/call-next", cfg.Queue.CallNext)
	operator.Put("/agent/queue/order", cfg.Queue.Reorder)
	operator.Post("/agent/tickets/:id/serving", cfg.Queue.MarkServing)
	operator.Post("/agent/tickets/:id/complete", cfg.Queue.MarkCompleted)
	operator.Post("/agent/tickets/:id/no-show", cfg.Queue.MarkNoShow)
	operator.Post("/agent/tickets/:id/reopen", cfg.Queue.Reopen)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))
	admin.Post("/tickets/:id/transfer", cfg.AdminTickets.Transfer)
	admin.Delete("/tickets/:id", cfg.AdminTickets.Delete)

	admin.Get("/categories", cfg.Categories.List)
	admin.Post("/categories", cfg.Categories.Create)
	admin.Put("/categories/:id", cfg.Categories.Update)
	admin.Delete("/categories/:id", cfg.Categories.Delete)
	admin.Get("/categories/:id/agents", cfg.Categories.ListAssignments)
	admin.Post("/categories/:id/agents", cfg.Categories.AssignAgent)
	admin.Delete("/categories/:id/agents/:agentID", cfg.Categories.UnassignAgent)

	admin.Get("/users", cfg.Users.List)
	admin.Post("/users", cfg.Users.Create)
	admin.Get("/users/:id", cfg.Users.Get)
	admin.Put("/users/:id", cfg.Users.Update)

	app.Get("/ws/status", cfg.WS.Upgrade, cfg.WS.StatusSocket())
	app.Get("/ws/agent", cfg.WS.Upgrade, cfg.WS.AuthenticateOperator, cfg.WS.AgentSocket())
	app.Get("/ws/admin", cfg.WS.Upgrade, cfg.WS.AuthenticateOperator, cfg.WS.AdminSocket())
}
