package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"projectstore/internal/auth"
	"projectstore/internal/bootstrap"
	"projectstore/internal/config"
	"projectstore/internal/database"
	"projectstore/internal/database/migration"
	"projectstore/internal/health"
	handlers "projectstore/internal/http/handler"
	"projectstore/internal/http/middleware"
	"projectstore/internal/logger"
	"projectstore/internal/metrics"
	"projectstore/internal/otel"
	"projectstore/internal/reconcile"
	"projectstore/internal/repository/postgres"
	"projectstore/internal/service"
)

// @title Project Store API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	log := logger.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		log.Fatal("tracing_init_failed", zap.Error(err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	storeMetrics, err := metrics.NewStore(reg)
	if err != nil {
		log.Fatal("metrics_init_failed", zap.Error(err))
	}
	httpMetrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Fatal("metrics_init_failed", zap.Error(err))
	}

	authSvc, err := auth.NewService(cfg.Auth, log)
	if err != nil {
		log.Fatal("auth_init_failed", zap.Error(err))
	}

	healthTimeout := time.Duration(cfg.Storage.HealthTimeoutSec) * time.Second
	opts := service.Options{FetchConcurrency: cfg.Storage.FetchConcurrency}
	deps := handlers.Deps{
		Auth:             authSvc,
		Gatherer:         reg,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
	}

	switch cfg.ProjectBackend {
	case config.BackendPostgres:
		db := openDatabase(ctx, cfg, log)
		if db != nil {
			defer db.Close()
			deps.Projects = service.NewRepositoryProjectService(postgres.NewProjectPostgres(db), log, storeMetrics, opts)
			deps.Probe = health.NewProbe(database.Schema{DB: db}, healthTimeout)
			deps.Namespace = func(ctx context.Context) error {
				return migration.EnsureMigrated(ctx, db, log, cfg.Database.Host)
			}
		} else {
			deps.Projects = service.NewRepositoryProjectService(nil, log, storeMetrics, opts)
			deps.Probe = health.NewProbe(nil, healthTimeout)
		}
	default:
		backend, err := bootstrap.OpenBackend(ctx, cfg.Storage, log)
		if err != nil {
			log.Fatal("storage_init_failed", zap.Error(err))
		}
		resolver := bootstrap.Resolver(cfg.Storage)
		deps.Projects = service.NewBlobProjectService(backend, resolver, log, storeMetrics, opts)
		deps.Probe = health.NewProbe(backend, healthTimeout)
		if backend != nil {
			deps.Reconciler = reconcile.New(backend, resolver, log, storeMetrics, cfg.Storage.FetchConcurrency)
			deps.Namespace = backend.EnsureNamespace
		}
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	// Register global middleware
	app.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(httpMetrics.Handler())

	handlers.RegisterRoutes(app, deps)

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(sctx); err != nil {
			log.Error("server_shutdown_failed", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Port
	log.Info("server_starting", zap.String("addr", addr), zap.String("project_backend", cfg.ProjectBackend))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server_failed", zap.Error(err))
	}
}

// openDatabase opens the handle and migrates when the database answers. It
// returns nil only when the database is not configured. A database that is
// down at startup keeps its handle: database/sql redials on later queries and
// listings report it as unreachable until then. POST /admin/namespace runs the
// migration once it is back.
func openDatabase(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) *sql.DB {
	if !database.Configured(cfg.Database) {
		log.Warn("database_not_configured")
		return nil
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal("database_open_failed", zap.Error(err))
	}
	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		log.Error("database_unreachable", zap.String("host", cfg.Database.Host), zap.Error(err))
		return db
	}
	if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
		_ = db.Close()
		log.Fatal("database_migration_failed", zap.Error(err))
	}
	return db
}
