package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	_ "subkeeper/docs"
	"subkeeper/internal/caching"
	"subkeeper/internal/config"
	"subkeeper/internal/handlers"
	"subkeeper/internal/jobs/background"
	"subkeeper/internal/logger"
	"subkeeper/internal/metrics"
	"subkeeper/internal/middleware"
	"subkeeper/internal/repositories"
	"subkeeper/internal/services"
	"subkeeper/pkg/database"
)

const (
	serviceName = "subkeeper"
	version     = "1.0.0"
)

// @title                       Subkeeper API
// @version                     1.0
// @description                 Subscription lifecycle service: one active subscription per subscriber, cached nested views.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @securityDefinitions.apikey  CatalogToken
// @in                          header
// @name                        Authorization
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

// storage is whichever durable backend STORAGE_DRIVER selected.
type storage struct {
	subscriptions repositories.SubscriptionRepository
	plans         repositories.PlanRepository
	ping          handlers.PingFunc
	close         func()
}

// cacheBackend is whichever store CACHE_DRIVER selected.
type cacheBackend struct {
	store caching.Store
	// expiring is set only for the in-process store, which needs sweeping.
	expiring background.ExpiringCache
	close    func()
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.AppEnv, serviceName),
		logger.WithLevelName(cfg.LogLevel),
	)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.New()

	store, err := openStorage(ctx, cfg, log, collector)
	if err != nil {
		return err
	}
	defer store.close()

	backend, err := openCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.close()

	cache := caching.NewService(backend.store,
		caching.WithPrefix(cfg.Redis.KeyPrefix),
		caching.WithTTLs(caching.TTLsFromConfig(cfg.Cache)),
		caching.WithLoadTimeout(cfg.Cache.LoadTimeout),
		caching.WithLogger(log),
		caching.WithMetrics(collector),
	)

	subscriptionService := services.NewSubscriptionService(store.subscriptions, store.plans, cache,
		services.WithLogger(log),
		services.WithMetrics(collector),
	)
	planService := services.NewPlanService(store.plans, cache, log)

	jwtMiddleware, err := middleware.NewJWTMiddleware(middleware.JWTOptions{
		Secret:  cfg.Auth.JWTSecret,
		JWKSURL: cfg.Auth.JWKSURL,
		Logger:  log,
	})
	if err != nil {
		return err
	}
	defer jwtMiddleware.Close()

	var scheduler *background.JobScheduler
	if cfg.Jobs.Enabled {
		scheduler, err = background.NewJobScheduler(
			background.Intervals{
				CachePurge:     cfg.Jobs.CachePurgeInterval,
				InvariantAudit: cfg.Jobs.InvariantAuditEvery,
				CatalogWarm:    cfg.Jobs.CatalogWarmEvery,
			},
			background.Dependencies{
				Cache:   backend.expiring,
				Auditor: store.subscriptions,
				Catalog: planService,
			},
			background.WithLogger(log),
			background.WithMetrics(collector),
		)
		if err != nil {
			return fmt.Errorf("failed to create job scheduler: %w", err)
		}
		scheduler.Start()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.NewHTTPErrorHandler(log)

	e.Use(echoMiddleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(log, collector))
	e.Use(echoMiddleware.CORS())
	e.Pre(echoMiddleware.RemoveTrailingSlash())

	handlers.Router{
		Subscriptions: handlers.NewSubscriptionHandlers(subscriptionService),
		Plans:         handlers.NewPlanHandlers(planService),
		Health: handlers.NewHealthHandlers(version, map[string]handlers.Pinger{
			"database": store.ping,
			"cache":    cache,
		}, log),
		Versions:     middleware.NewVersionMiddleware(version),
		Authenticate: jwtMiddleware.Authenticate(),
		CatalogToken: cfg.Auth.CatalogWebhookToken,
		Metrics:      collector.Handler(),
		Swagger:      cfg.SwaggerEnabled,
	}.Register(e)

	if cfg.Auth.CatalogWebhookToken == "" {
		log.Warn("CATALOG_WEBHOOK_TOKEN is not set; catalog invalidation endpoints are disabled")
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			slog.String("version", version),
			slog.Int("port", cfg.Port),
			slog.String("storage", cfg.StorageDriver),
			slog.String("cache", cfg.CacheDriver),
		)
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			log.Error("failed to stop job scheduler", logger.Error(err))
		}
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to drain http server", logger.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger, collector *metrics.Collector) (*storage, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pool, err := database.Connect(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		if cfg.Database.MigrateOnStart {
			if err := database.Migrate(ctx, pool, cfg.Database.MigrationsTable, log); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &storage{
			subscriptions: repositories.NewSubscriptionRepo(pool, cfg.Lock.Timeout(), collector),
			plans:         repositories.NewPlanRepo(pool),
			ping:          database.Healthcheck(pool),
			close: func() {
				pool.Close()
				log.Info("database disconnected")
			},
		}, nil

	case config.DriverMemory:
		plans := repositories.NewMemoryPlanRepo()
		if cfg.CatalogFile != "" {
			n, err := plans.LoadCatalogFile(cfg.CatalogFile, time.Now().UTC())
			if err != nil {
				return nil, err
			}
			log.Info("plan catalog loaded", slog.String("file", cfg.CatalogFile), slog.Int("plans", n))
		} else {
			log.Warn("memory storage without CATALOG_FILE starts with an empty plan catalog")
		}
		return &storage{
			subscriptions: repositories.NewMemorySubscriptionRepo(cfg.Lock.Timeout(), collector),
			plans:         plans,
			ping:          func(context.Context) error { return nil },
			close:         func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}

func openCache(ctx context.Context, cfg *config.Config, log *slog.Logger) (*cacheBackend, error) {
	switch cfg.CacheDriver {
	case config.DriverRedis:
		client, err := caching.ConnectRedis(ctx, cfg.Redis.URL, cfg.Redis.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		return &cacheBackend{
			store: caching.NewRedisStore(client),
			close: func() {
				if err := client.Close(); err != nil {
					log.Error("failed to close redis client", logger.Error(err))
				}
			},
		}, nil

	case config.DriverMemory:
		store := caching.NewMemoryStore(nil, cfg.Cache.MaxEntries)
		return &cacheBackend{store: store, expiring: store, close: func() {}}, nil
	}
	return nil, fmt.Errorf("unknown cache driver %q", cfg.CacheDriver)
}
