package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/liamcoop/decisions/adapter"
	"github.com/liamcoop/decisions/internal/audit"
	"github.com/liamcoop/decisions/internal/config"
	"github.com/liamcoop/decisions/internal/logger"
	"github.com/liamcoop/decisions/internal/metrics"
	"github.com/liamcoop/decisions/internal/telemetry"
	"github.com/liamcoop/decisions/migrations"
	"github.com/liamcoop/decisions/registry"
	"github.com/liamcoop/decisions/store"
)

// app owns everything main starts and must shut down.
type app struct {
	server    *Server
	manager   *registry.Manager
	db        *sql.DB
	redis     *redis.Client
	publisher audit.Publisher
	watcher   *registry.FileWatcher
	scheduler *registry.Scheduler
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}
	var checks []HealthCheck

	// Model store
	var base store.ModelStore
	if cfg.DatabaseURL != "" {
		if cfg.AutoMigrate {
			logger.Info("applying database migrations")
			if err := migrations.Up(cfg.DatabaseURL); err != nil {
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}

		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		a.db = db
		base = store.NewPostgresModelStore(db)
		checks = append(checks, HealthCheck{Name: "postgres", Check: db.PingContext})
	} else {
		logger.Warn("DATABASE_URL not set, models stored in memory")
		base = store.NewInMemoryModelStore()
	}

	// Definition cache
	cacheConfig := store.CacheConfig{TTL: cfg.ModelCacheTTL}
	var cache store.Cache
	if cfg.RedisURL != "" {
		client, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.redis = client
		cache = store.NewRedisCache(client, cacheConfig)
		checks = append(checks, HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	} else {
		cache = store.NewInMemoryCache(cacheConfig)
	}
	modelStore := store.NewCachedStore(base, cache, logger.Component("cache"))

	// Audit events
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger.Logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.publisher = pub
	} else {
		a.publisher = audit.NewLogPublisher(logger.Logger)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.New(reg)

	a.manager = registry.NewManager(
		registry.WithStore(modelStore),
		registry.WithMetrics(mt),
		registry.WithPublisher(a.publisher),
		registry.WithTracer(telemetry.Tracer()),
		registry.WithLogger(logger.Component("registry")),
		registry.WithParseOptions(adapter.WithMaxBytes(int(cfg.MaxRequestBodyBytes))),
	)

	// A broken model is skipped and logged by the manager; the rest still serve.
	if err := a.manager.LoadAll(ctx); err != nil {
		logger.WarnReloadFailure()
	}
	if cfg.ModelDir != "" {
		if err := a.manager.LoadDirectory(ctx, cfg.ModelDir); err != nil {
			logger.WarnReloadFailure()
		}
		w, err := registry.NewFileWatcher(a.manager, cfg.ModelDir, cfg.ModelWatchDebounce)
		if err != nil {
			a.close()
			return nil, err
		}
		a.watcher = w
	}
	if cfg.ModelReloadSchedule != "" {
		sched, err := registry.NewScheduler(a.manager, cfg.ModelReloadSchedule)
		if err != nil {
			a.close()
			return nil, err
		}
		a.scheduler = sched
	}

	models := a.manager.List()
	ids := make([]string, 0, len(models))
	for _, lm := range models {
		ids = append(ids, lm.ID)
	}
	logger.Info("models loaded", "count", len(ids), "models", ids)

	a.server = NewServer(cfg, ServerDeps{
		Manager: a.manager,
		Store:   modelStore,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Checks:  checks,
		Tracer:  telemetry.Tracer(),
	})
	return a, nil
}

// start launches the background reloaders. They stop with ctx.
func (a *app) start(ctx context.Context) error {
	if a.watcher != nil {
		go func() {
			if err := a.watcher.Run(ctx); err != nil {
				logger.Error("file watcher stopped", "error", err)
			}
		}()
	}
	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			logger.Warn("failed to close file watcher", "error", err)
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logger.Warn("failed to close audit publisher", "error", err)
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Setup(ctx, cfg.ServiceName)

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, true)
	if err != nil {
		logger.Fatal("failed to initialise tracing", "error", err)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to start", "error", err)
	}
	if err := a.start(ctx); err != nil {
		a.close()
		logger.Fatal("failed to start reloaders", "error", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      a.server,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	a.close()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown error", "error", err)
	}
	logger.Info("server stopped")
	logger.Shutdown(shutdownCtx)
}
