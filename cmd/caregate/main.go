package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/caregate/caregate/pkg/api"
	"github.com/caregate/caregate/pkg/async"
	"github.com/caregate/caregate/pkg/audit"
	"github.com/caregate/caregate/pkg/blocklist"
	"github.com/caregate/caregate/pkg/config"
	"github.com/caregate/caregate/pkg/inspect"
	"github.com/caregate/caregate/pkg/middleware"
	"github.com/caregate/caregate/pkg/observability"
	"github.com/caregate/caregate/pkg/ratelimit"
	"github.com/caregate/caregate/pkg/store"
	"github.com/caregate/caregate/pkg/token"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	errorSink := observability.SinkFromConfig(cfg.Observability.ErrorSink, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Counter store: Redis when configured, in-process otherwise. The
	// memory store is single-replica only; rate limits and blocks will not
	// be shared.
	var counters store.Counters
	var redisClient *redis.Client
	backend := "memory"
	if cfg.Redis.URL != "" {
		redisClient, err = store.NewRedisClient(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to Redis")
			os.Exit(1)
		}
		counters = store.NewRedisStore(redisClient, "caregate")
		backend = "redis"
		logger.Info("Counter store: redis")
	} else {
		mem := store.NewMemoryStore()
		mem.StartJanitor(ctx, time.Minute)
		counters = mem
		logger.Warn("Counter store: memory (no CAREGATE_REDIS_URL set; limits are per-replica)")
	}
	counters = store.NewInstrumented(counters, backend,
		metrics.StoreOperationsTotal, metrics.StoreOperationErrors, metrics.StoreOperationLatency)

	blocks := blocklist.New(counters)
	limiter := ratelimit.New(counters)
	limiter.SetFailOpen(cfg.RateLimit.FailOpen)

	policies, err := loadPolicies(cfg.RateLimit.PolicyFile)
	if err != nil {
		logger.WithError(err).Error("Failed to load rate limit policies")
		os.Exit(1)
	}
	var policyHolder atomic.Value
	policyHolder.Store(policies)
	if cfg.RateLimit.PolicyFile != "" {
		err = config.WatchPolicyFile(ctx, cfg.RateLimit.PolicyFile, logger, func(path string) error {
			reloaded, err := ratelimit.LoadPolicies(path)
			if err != nil {
				return err
			}
			policyHolder.Store(reloaded)
			logger.WithField("policies", len(reloaded)).Info("Rate limit policies reloaded")
			return nil
		})
		if err != nil {
			logger.WithError(err).Error("Failed to watch policy file")
			os.Exit(1)
		}
	}

	credentials, err := loadCredentials(os.Getenv("CAREGATE_ACCOUNTS_FILE"))
	if err != nil {
		logger.WithError(err).Error("Failed to load accounts")
		os.Exit(1)
	}

	codec, err := token.NewCodec(cfg.Token.Secret,
		token.WithIssuer(cfg.Token.Issuer),
		token.WithAccessTTL(cfg.Token.AccessTTL),
		token.WithRefreshTTL(cfg.Token.RefreshTTL),
		token.WithSubjectResolver(credentials.Exists),
	)
	if err != nil {
		logger.WithError(err).Error("Failed to create token codec")
		os.Exit(1)
	}

	auditLogger, auditDB, err := buildAuditLogger(cfg.Audit)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize audit sink")
		os.Exit(1)
	}

	tracker, err := inspect.NewTracker(blocks, inspect.WithTrackerThreshold(cfg.Inspect.TrackerThreshold))
	if err != nil {
		logger.WithError(err).Error("Failed to create suspicious-input tracker")
		os.Exit(1)
	}

	// The pool outlives the request context; Shutdown drains it explicitly.
	auditPool := async.NewWorkerPool(context.Background(), 4, "audit write", 5*time.Second)

	pipeline := &middleware.Pipeline{
		Logger:    logger,
		Metrics:   metrics,
		Audit:     auditLogger,
		Blocklist: blocks,
		Limiter:   limiter,
		Detector:  inspect.NewDetector(cfg.Inspect.Mode),
		Tracker:   tracker,
		Codec:     codec,
		Errors:    errorSink,
		AuditPool: auditPool,
		Policies: func() map[string]ratelimit.Policy {
			return policyHolder.Load().(map[string]ratelimit.Policy)
		},
	}

	bruteForce := ratelimit.NewBruteForce(counters, blocks)
	bruteForce.SetThreshold(cfg.RateLimit.BruteForceThreshold)

	server := api.NewServer(pipeline, credentials, api.NewMemoryDirectory(), bruteForce)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on their own port so probes bypass the pipeline.
	opsMux := http.NewServeMux()
	observability.RegisterHealthRoutes(opsMux, observability.NewHealthChecker(redisClient, auditDB))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(opsMux, registry)
	}
	opsServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: observability.HTTPMetricsMiddleware(metrics)(opsMux),
	}

	scheduler := startJobs(ctx, logger, errorSink, auditLogger, cfg.Audit.RetentionDays)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", httpServer.Addr).Info("Gateway listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", opsServer.Addr).Info("Health/metrics listening")
		if err := opsServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return observability.GracefulShutdown(logger, httpServer,
			func(shutdownCtx context.Context) error { return opsServer.Shutdown(shutdownCtx) },
			func(context.Context) error { cancel(); return nil },
			func(context.Context) error { scheduler.Stop(); return nil },
			func(context.Context) error {
				// Drain queued audit writes before closing the sink.
				if err := auditPool.Shutdown(5 * time.Second); err != nil {
					logger.WithError(err).Warn("Audit pool drain incomplete")
				}
				return auditLogger.Close()
			},
			func(context.Context) error {
				if redisClient != nil {
					return redisClient.Close()
				}
				return nil
			},
		)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Gateway exited with error")
		os.Exit(1)
	}
}

func loadPolicies(path string) (map[string]ratelimit.Policy, error) {
	if path == "" {
		return ratelimit.DefaultPolicies(), nil
	}
	return ratelimit.LoadPolicies(path)
}

// buildAuditLogger assembles the configured audit sinks. The *sql.DB is
// returned separately for the readiness check.
func buildAuditLogger(cfg config.AuditConfig) (audit.Logger, *sql.DB, error) {
	var sinks []audit.Logger
	var db *sql.DB

	switch cfg.Backend {
	case "none":
		return audit.NopLogger{}, nil, nil
	case "file", "both":
		fileCfg := audit.DefaultFileLoggerConfig()
		if cfg.FileDir != "" {
			fileCfg.BasePath = cfg.FileDir
		}
		fl, err := audit.NewFileLogger(fileCfg)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fl)
	}

	if cfg.Backend == "db" || cfg.Backend == "both" {
		var err error
		db, err = audit.OpenDB(cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		dl, err := audit.NewDBLogger(db)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, dl)
	}

	if len(sinks) == 1 {
		return sinks[0], db, nil
	}
	return audit.NewMultiLogger(sinks...), db, nil
}

// startJobs schedules the nightly audit retention purge.
func startJobs(ctx context.Context, logger *observability.Logger, sink observability.ErrorSink, auditLogger audit.Logger, retentionDays int) *cron.Cron {
	c := cron.New()

	policy := audit.RetentionPolicy{RetentionDays: retentionDays}
	_, err := c.AddFunc("30 3 * * *", func() {
		purged, err := auditLogger.Purge(ctx, policy)
		if err != nil {
			sink.CaptureError(ctx, err, map[string]string{"job": "audit-purge"})
			return
		}
		logger.WithField("purged", purged).Info("Audit retention purge complete")
	})
	if err != nil {
		logger.WithError(err).Error("Failed to schedule audit purge")
	}

	c.Start()
	return c
}
