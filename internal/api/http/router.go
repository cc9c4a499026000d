package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/api/http/handlers"
	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/config"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Issues         *handlers.IssuesHandler
	Staff          *handlers.StaffHandler
	Admin          *handlers.AdminHandler
	Payments       *handlers.PaymentsHandler
	AuthMiddleware *auth.AuthMiddleware
	RateLimit      config.RateLimitConfig
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
}

// RegisterRoutes wires HTTP routes. Role checks live in the services' access
// gate; routes only require a verified principal.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)

	requireAuth := cfg.AuthMiddleware.Handle

	issues := app.Group("/issues")
	issues.Get("/", cfg.Issues.List)
	issues.Get("/latest-resolved", cfg.Issues.LatestResolved)
	issues.Get("/mine", requireAuth, cfg.Issues.Mine)
	issues.Get("/mine/stats", requireAuth, cfg.Issues.MineStats)
	issues.Get("/:id", cfg.Issues.Get)
	issues.Post("/", requireAuth, cfg.Issues.Create)
	issues.Patch("/:id", requireAuth, cfg.Issues.Update)
	issues.Delete("/:id", requireAuth, cfg.Issues.Delete)
	issues.Patch("/:id/upvote", requireAuth, cfg.Issues.Upvote)

	users := app.Group("/users", requireAuth)
	users.Get("/me", cfg.Users.Me)
	users.Patch("/me", cfg.Users.UpdateMe)

	payments := app.Group("/payments")
	payments.Get("/sandbox/:reference/complete", cfg.Payments.SandboxComplete)
	payments.Post("/intents", requireAuth,
		RateLimitPerPrincipal(cfg.RateLimit.IntentsPerMinute, cfg.RateLimit.IntentBurst, cfg.Logger),
		cfg.Payments.CreateIntent)
	payments.Post("/verify", requireAuth, cfg.Payments.Verify)
	payments.Get("/mine", requireAuth, cfg.Payments.Mine)
	payments.Get("/:id/invoice", requireAuth, cfg.Payments.Invoice)

	staff := app.Group("/staff", requireAuth)
	staff.Get("/issues", cfg.Staff.AssignedIssues)
	staff.Get("/stats", cfg.Staff.Stats)
	staff.Patch("/issues/:id/status", cfg.Staff.TransitionStatus)

	admin := app.Group("/admin", requireAuth)
	admin.Get("/stats", cfg.Admin.Stats)
	admin.Get("/issues", cfg.Admin.Issues)
	admin.Patch("/issues/:id/assign", cfg.Admin.Assign)
	admin.Patch("/issues/:id/reject", cfg.Admin.Reject)
	admin.Get("/users", cfg.Admin.Users)
	admin.Patch("/users/:email/block", cfg.Admin.SetBlocked)
	admin.Get("/staff", cfg.Admin.ListStaff)
	admin.Post("/staff", cfg.Admin.CreateStaff)
	admin.Patch("/staff/:email", cfg.Admin.UpdateStaff)
	admin.Delete("/staff/:email", cfg.Admin.DeleteStaff)
	admin.Get("/payments", cfg.Admin.Payments)
}
