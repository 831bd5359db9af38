package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/issue-service/internal/api/http/handlers"
	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Issues         *handlers.IssuesHandler
	AuthMiddleware *auth.AuthMiddleware
	Gate           *auth.Gate
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	guard := func(op auth.Operation) fiber.Handler {
		return auth.RequireOperation(cfg.Gate, op)
	}

	api := app.Group("/api/v1")

	users := api.Group("/users")
	users.Post("/register", cfg.Users.Register)
	users.Post("/login", cfg.Users.Login)
	users.Post("/logout", cfg.AuthMiddleware.Handle, guard(auth.OpLogout), cfg.Users.Logout)
	users.Get("/me", cfg.AuthMiddleware.Handle, guard(auth.OpGetMe), cfg.Users.Me)
	users.Get("/", cfg.AuthMiddleware.Handle, guard(auth.OpListTechnicians), cfg.Users.ListTechnicians)

	issues := api.Group("/issues", cfg.AuthMiddleware.Handle)
	issues.Post("/create", guard(auth.OpCreateIssue), cfg.Issues.Create)
	issues.Post("/assign", guard(auth.OpAssignIssue), cfg.Issues.Assign)
	issues.Put("/update/:issueId", guard(auth.OpUpdateIssue), cfg.Issues.Update)
	issues.Delete("/delete/:issueId", guard(auth.OpDeleteIssue), cfg.Issues.Delete)
	issues.Get("/all", guard(auth.OpListAll), cfg.Issues.ListAll)
	issues.Get("/status", guard(auth.OpListByStatus), cfg.Issues.ListByStatus)
	issues.Get("/latest", guard(auth.OpListLatest), cfg.Issues.Latest)
	issues.Get("/:issueId/history", guard(auth.OpViewHistory), cfg.Issues.History)
	issues.Get("/:issueId", guard(auth.OpGetIssue), cfg.Issues.Get)
}
