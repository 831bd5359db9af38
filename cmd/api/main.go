package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/issue-service/internal/api/http"
	"github.com/spec-kit/issue-service/internal/api/http/handlers"
	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/persistence"
	"github.com/spec-kit/issue-service/internal/repository"
	"github.com/spec-kit/issue-service/internal/service"
	"github.com/spec-kit/issue-service/internal/worker"
)

const (
	shutdownTimeout = 10 * time.Second
	poolStatsPeriod = 15 * time.Second
)

type stores struct {
	issues  repository.IssueRepository
	users   repository.UserRepository
	history repository.IssueHistoryRepository
}

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
	logger = logger.With(zap.String("service", cfg.App.Name), zap.String("env", cfg.App.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(cfg.Postgres.DSN, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	repos := buildStores(pg, cfg.Postgres)

	redis, redisReachable := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()
	revoked := buildRevocationList(redis, redisReachable)

	gate := auth.NewGate(nil)
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartHistoryWorker(service.NewHistoryRecorder(repos.history, logger), dispatcher)
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, cfg.Notification))

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:       repos.users,
		RevocationList: revoked,
		Gate:           gate,
		Logger:         logger,
	})
	issueDeps := service.IssueDependencies{
		IssueRepo:  repos.issues,
		UserRepo:   repos.users,
		Gate:       gate,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	}
	queryService := service.NewQueryService(service.QueryDependencies{
		IssueRepo:   repos.issues,
		UserRepo:    repos.users,
		HistoryRepo: repos.history,
		Gate:        gate,
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, cfg.App, logger, metrics)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService, cfg.Auth),
		Issues:         handlers.NewIssuesHandler(service.NewIssueService(issueDeps), service.NewAssignmentService(issueDeps), queryService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), repos.users, revoked, cfg.Auth.CookieName),
		Gate:           gate,
		Metrics:        metrics,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	if pg.Enabled() {
		g.Go(func() error {
			ticker := time.NewTicker(poolStatsPeriod)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					metrics.RecordDBPool(pg.PoolHandle())
				}
			}
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped with error", zap.Error(err))
	}
}

func buildStores(pg *persistence.Postgres, cfg config.PostgresConfig) stores {
	if !pg.Enabled() {
		memory := repository.NewMemoryStore()
		return stores{issues: memory.Issues(), users: memory.Users(), history: memory.History()}
	}
	pool := pg.PoolHandle()
	timeout := cfg.QueryTimeout()
	return stores{
		issues:  repository.NewIssueRepository(pool, timeout),
		users:   repository.NewUserRepository(pool, timeout),
		history: repository.NewIssueHistoryRepository(pool, timeout),
	}
}

// buildRevocationList prefers Redis so revocations survive restarts and are
// shared between replicas.
func buildRevocationList(redis *persistence.Redis, reachable bool) auth.RevocationList {
	if !reachable {
		return auth.NewMemoryRevocationList()
	}
	return auth.NewRedisRevocationList(redis.Client)
}
