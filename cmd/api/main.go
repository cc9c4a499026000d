package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/issue-service/internal/api/http"
	"github.com/spec-kit/issue-service/internal/api/http/handlers"
	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/cache"
	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/paymentgateway"
	"github.com/spec-kit/issue-service/internal/persistence"
	"github.com/spec-kit/issue-service/internal/repository"
	"github.com/spec-kit/issue-service/internal/service"
	"github.com/spec-kit/issue-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var (
		userRepo    repository.UserRepository
		issueRepo   repository.IssueRepository
		paymentRepo repository.PaymentRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		userRepo = repository.NewUserRepository(pool)
		issueRepo = repository.NewIssueRepository(pool)
		paymentRepo = repository.NewPaymentRepository(pool)
	} else {
		logger.Warn("using in-memory stores; data is lost on restart")
		userRepo = repository.NewInMemoryUserRepository()
		issueRepo = repository.NewInMemoryIssueRepository()
		paymentRepo = repository.NewInMemoryPaymentRepository()
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	dispatcher := events.NewInMemoryDispatcher()

	var (
		gateway paymentgateway.Gateway
		sandbox *paymentgateway.Sandbox
	)
	if cfg.Payment.UseSandbox() {
		logger.Warn("PAYMENT_GATEWAY_URL not provided; using sandbox checkout")
		sandbox = paymentgateway.NewSandbox(cfg.App.PublicURL)
		gateway = sandbox
	} else {
		gateway = paymentgateway.NewHTTPClient(cfg.Payment.GatewayURL, cfg.Payment.SecretKey, cfg.Payment.Timeout())
	}

	gate := service.NewAccessGate(userRepo)
	ledger := service.NewLedgerService(userRepo, cfg.Quota.FreeIssueLimit, logger, metrics)
	issueService := service.NewIssueService(service.IssueDependencies{
		IssueRepo:  issueRepo,
		UserRepo:   userRepo,
		Gate:       gate,
		Ledger:     ledger,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})
	paymentService := service.NewPaymentService(service.PaymentDependencies{
		PaymentRepo:  paymentRepo,
		IssueRepo:    issueRepo,
		IssueService: issueService,
		Gate:         gate,
		Ledger:       ledger,
		Gateway:      gateway,
		Config:       cfg.Payment,
		Dispatcher:   dispatcher,
		Logger:       logger,
		Metrics:      metrics,
	})
	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:   userRepo,
		Gate:       gate,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	staffService := service.NewStaffService(userRepo, gate, cfg.Auth.BcryptCost, dispatcher, logger)

	statsDeps := service.StatsDependencies{
		IssueRepo:   issueRepo,
		UserRepo:    userRepo,
		PaymentRepo: paymentRepo,
		Gate:        gate,
		Ledger:      ledger,
		TTL:         cfg.Cache.StatsTTL(),
		Logger:      logger,
	}
	if client := redis.Handle(); client != nil {
		statsDeps.Cache = cache.New(client, cfg.App.Name)
	}
	statsService := service.NewStatsService(statsDeps)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)

	worker.StartNotificationWorker(dispatcher, notificationService, statsService)
	go worker.NewReconciliationWorker(paymentService, cfg.Payment.ReconcileInterval(), logger).Run(ctx)

	if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		logger.Fatal("failed to bootstrap admin", zap.Error(err))
	}

	dependencies := map[string]handlers.Pinger{}
	if pg.PoolHandle() != nil {
		dependencies["postgres"] = pg
	}
	if redis.Handle() != nil {
		dependencies["redis"] = redis
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies),
		Users:    handlers.NewUsersHandler(authService),
		Issues:   handlers.NewIssuesHandler(issueService, statsService),
		Staff:    handlers.NewStaffHandler(issueService, statsService),
		Admin: handlers.NewAdminHandler(handlers.AdminDependencies{
			Issues:   issueService,
			Staff:    staffService,
			Payments: paymentService,
			Stats:    statsService,
		}),
		Payments:       handlers.NewPaymentsHandler(paymentService, sandbox),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager()),
		RateLimit:      cfg.RateLimit,
		Gatherer:       registry,
		Logger:         logger,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if err := app.Shutdown(); err != nil {
		logger.Error("fiber shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
