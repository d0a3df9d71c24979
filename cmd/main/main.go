package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/assignment"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/classifier"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/config"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/healthcheck"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/idempotency"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/intake"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/publisher"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/quarantine"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/ratelimit"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/server"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/storage"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/logger"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting Lead Intake Service",
		zap.String("environment", cfg.Environment),
		zap.Bool("nats_enabled", cfg.NATS.Enabled),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
	)

	// Initialize PostgreSQL repository
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	// Initialize event publisher, or the no-op fallback
	events, err := initPublisher(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize event publisher", zap.Error(err))
	}

	// Rate limit counter store: redis when configured, otherwise a bounded
	// in-process store.
	var redisClient *redis.Client
	var counterStore ratelimit.Store
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		counterStore = ratelimit.NewRedisStore(redisClient)
		logger.Log.Info("Using redis rate limit store", zap.String("addr", cfg.Redis.Addr))
	} else {
		counterStore = ratelimit.NewMemoryStore(cfg.RateLimit.MaxIdentities)
		logger.Log.Info("Using in-memory rate limit store",
			zap.Int("max_identities", cfg.RateLimit.MaxIdentities))
	}
	limiter := ratelimit.NewLimiter(counterStore, cfg.RateLimit)

	// Pipeline collaborators
	cls := classifier.New(cfg.Classifier)
	checker := quarantine.NewChecker(postgresRepo, cfg.Quarantine)
	guard := idempotency.NewGuard(postgresRepo, cfg.Idempotency)
	engine := assignment.NewEngine(postgresRepo, postgresRepo, postgresRepo, events)

	// Assignment worker pool, only wired when async assignment is on
	var worker assignment.IWorker
	if cfg.Intake.AsyncAssignment {
		w, err := assignment.NewWorker(cfg.WorkerPools.Assignment, engine, logger.Log)
		if err != nil {
			logger.Log.Fatal("Failed to initialize assignment worker pool", zap.Error(err))
		}
		worker = w
	}

	pipeline := intake.NewPipeline(limiter, cls, checker, guard, postgresRepo, engine, worker, events)
	leadService := intake.NewLeadService(postgresRepo, postgresRepo, events)

	// API server
	apiServer := server.NewServer(strconv.Itoa(cfg.Server.Port), pipeline, leadService, engine, logger.Log)
	apiServer.Start()

	// Health check server with the metrics endpoint
	healthServer := healthcheck.NewServer(strconv.Itoa(cfg.Metrics.Port), logger.Log)
	healthServer.RegisterReadinessCheck("postgres", postgresRepo.Ping)
	if cfg.Metrics.Enabled {
		healthServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Metrics.Port))
	}
	healthServer.Start()

	logger.Log.Info("Service endpoints available",
		zap.String("api", fmt.Sprintf("http://localhost:%d/v1/leads", cfg.Server.Port)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Metrics.Port)),
	)

	// Background idempotency retention sweep
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()
	startPurgeLoop(mainCtx, postgresRepo, cfg.Idempotency.Retention)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	mainCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	var wg sync.WaitGroup
	wg.Add(3)

	// Shutdown API server first so no new submissions arrive
	utils.SafeGo(func() {
		defer wg.Done()
		start := time.Now()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping API server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] API server stopped", zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping API server",
			zap.Any("panic", r), zap.ByteString("stack", stack))
		wg.Done()
	})

	// Drain the assignment worker pool before closing its dependencies
	utils.SafeGo(func() {
		defer wg.Done()
		if worker != nil {
			start := time.Now()
			worker.Stop()
			logger.Log.Info("[shutdown] Assignment worker pool stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping assignment worker pool",
			zap.Any("panic", r), zap.ByteString("stack", stack))
		wg.Done()
	})

	// Shutdown health check server
	utils.SafeGo(func() {
		defer wg.Done()
		start := time.Now()
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping health check server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Health check server stopped", zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping health check server",
			zap.Any("panic", r), zap.ByteString("stack", stack))
		wg.Done()
	})

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	// Close connections last
	if err := postgresRepo.Close(shutdownCtx); err != nil {
		logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
	}
	events.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Log.Error("[shutdown] Failed to close redis connection", zap.Error(err))
		}
	}

	logger.Log.Info("Lead Intake Service shutdown complete")
}

// Initialize PostgreSQL repository
func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}

// initPublisher connects to NATS and ensures the lead stream exists, or
// returns the no-op publisher when NATS is disabled.
func initPublisher(cfg *config.Config) (publisher.Publisher, error) {
	if !cfg.NATS.Enabled {
		logger.Log.Info("NATS disabled, lead events will not be published")
		return publisher.Noop{}, nil
	}

	client, err := publisher.NewClient(cfg.NATS.URL, cfg.NATS.LeadSubject, cfg.NATS.AuditSubject)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS client: %w", err)
	}

	streamCfg := &nats.StreamConfig{
		Name:      cfg.NATS.LeadStream,
		Subjects:  []string{cfg.NATS.LeadSubject, cfg.NATS.AuditSubject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    time.Duration(cfg.NATS.MaxAgeDays) * 24 * time.Hour,
	}
	if err := client.SetupStream(context.Background(), streamCfg); err != nil {
		return nil, fmt.Errorf("failed to set up lead stream: %w", err)
	}
	return client, nil
}

// startPurgeLoop periodically removes expired idempotency records. The
// sweep interval is a fraction of the retention window.
func startPurgeLoop(ctx context.Context, repo storage.IdempotencyRepo, retention time.Duration) {
	interval := retention / 24
	if interval < time.Minute {
		interval = time.Minute
	}

	utils.SafeGo(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				purged, err := repo.PurgeExpired(ctx)
				if err != nil {
					logger.Log.Error("Idempotency purge failed", zap.Error(err))
					continue
				}
				if purged > 0 {
					logger.Log.Debug("Purged expired idempotency records", zap.Int64("purged", purged))
				}
			}
		}
	}, nil)
}
