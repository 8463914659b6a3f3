// Package app wires configuration, infrastructure, and domain packages into
// the runnable process, selecting behavior by cfg.Mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/slotwatch/internal/config"
	"github.com/wisbric/slotwatch/internal/httpserver"
	"github.com/wisbric/slotwatch/internal/platform"
	"github.com/wisbric/slotwatch/internal/telemetry"
	"github.com/wisbric/slotwatch/pkg/bucket"
	"github.com/wisbric/slotwatch/pkg/event"
	"github.com/wisbric/slotwatch/pkg/poll"
	"github.com/wisbric/slotwatch/pkg/provider"
	"github.com/wisbric/slotwatch/pkg/provider/mock"
	"github.com/wisbric/slotwatch/pkg/provider/opentable"
	"github.com/wisbric/slotwatch/pkg/scheduler"
)

// Run reads config, connects to infrastructure, and starts whichever mode
// cfg.Mode selects: "migrate" runs schema migrations and exits; "worker"
// runs the Scheduler; "ops" serves the HTTP surface; "all" runs both in one
// process, the default for small deployments; "refresh-baselines" and
// "reset-buckets" are the out-of-band admin operations, run once and exit.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting slotwatch", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	if cfg.Mode == "migrate" {
		if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("migrations applied")
		return nil
	}

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	case "ops":
		return runOps(ctx, cfg, logger, db, rdb, metricsReg)
	case "all":
		errCh := make(chan error, 2)
		go func() { errCh <- runWorker(ctx, cfg, logger, db, rdb) }()
		go func() { errCh <- runOps(ctx, cfg, logger, db, rdb, metricsReg) }()
		if err := <-errCh; err != nil {
			return err
		}
		return <-errCh
	case "refresh-baselines":
		return runRefreshBaselines(ctx, cfg, logger, db, rdb)
	case "reset-buckets":
		return bucket.NewRegistry(db).Reset(ctx)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// runRefreshBaselines re-fetches every known bucket and overwrites its
// baseline/prev sets in place, with no events emitted. Intended to be run
// once, out of band, after the provider's search region changes.
func runRefreshBaselines(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	registry, err := newProviderRegistry(cfg)
	if err != nil {
		return fmt.Errorf("building provider registry: %w", err)
	}
	dedup := event.NewDeduplicator(rdb, logger, cfg.NotifiedDedupeTTL(), telemetry.DedupSuppressedTotal)
	providerTimeout, err := cfg.ProviderTimeoutDuration()
	if err != nil {
		return fmt.Errorf("parsing provider timeout: %w", err)
	}
	worker := poll.NewWorker(db, registry, dedup, poll.Config{
		ProviderID:      cfg.ProviderID,
		ProviderTimeout: providerTimeout,
		PartySizes:      cfg.PartySizes,
		PerPage:         cfg.ProviderPerPage,
		MaxPages:        cfg.ProviderMaxPages,
		DedupeTTL:       cfg.NotifiedDedupeTTL(),
	}, poll.Metrics{
		Duration:            telemetry.PollDuration,
		InvariantViolations: telemetry.PollInvariantViolationsTotal,
		EventsEmitted:       telemetry.EventsEmittedTotal,
	}, logger)

	ids, err := bucket.NewRegistry(db).ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing buckets: %w", err)
	}

	var failed int
	for _, id := range ids {
		dateStr, timeSlot, ok := strings.Cut(id, "_")
		if !ok {
			logger.Warn("malformed bucket id, skipping", "bucket_id", id)
			continue
		}
		if err := worker.RefreshBaseline(ctx, id, dateStr, timeSlot); err != nil {
			logger.Error("refreshing baseline failed", "bucket_id", id, "error", err)
			failed++
			continue
		}
		logger.Info("baseline refreshed", "bucket_id", id)
	}
	if failed > 0 {
		return fmt.Errorf("refresh-baselines: %d of %d buckets failed", failed, len(ids))
	}
	return nil
}

// newProviderRegistry registers the configured live adapter plus the mock
// adapter, which stays available for ops-mode smoke testing regardless of
// which provider is configured live.
func newProviderRegistry(cfg *config.Config) (*provider.Registry, error) {
	reg := provider.NewRegistry()

	timeout, err := cfg.ProviderTimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("parsing provider timeout: %w", err)
	}

	switch cfg.ProviderID {
	case "opentable":
		reg.Register(opentable.New("https://api.opentable.com", cfg.ProviderAPIKey, timeout))
	case "mock":
		// registered unconditionally below; nothing extra to do.
	default:
		return nil, fmt.Errorf("unknown provider_id: %s", cfg.ProviderID)
	}
	reg.Register(mock.New())

	return reg, nil
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	registry, err := newProviderRegistry(cfg)
	if err != nil {
		return fmt.Errorf("building provider registry: %w", err)
	}

	dedup := event.NewDeduplicator(rdb, logger, cfg.NotifiedDedupeTTL(), telemetry.DedupSuppressedTotal)

	providerTimeout, err := cfg.ProviderTimeoutDuration()
	if err != nil {
		return fmt.Errorf("parsing provider timeout: %w", err)
	}
	tickInterval, err := cfg.TickIntervalDuration()
	if err != nil {
		return fmt.Errorf("parsing tick interval: %w", err)
	}
	bucketCooldown, err := cfg.BucketCooldownDuration()
	if err != nil {
		return fmt.Errorf("parsing bucket cooldown: %w", err)
	}

	worker := poll.NewWorker(db, registry, dedup, poll.Config{
		ProviderID:      cfg.ProviderID,
		ProviderTimeout: providerTimeout,
		PartySizes:      cfg.PartySizes,
		PerPage:         cfg.ProviderPerPage,
		MaxPages:        cfg.ProviderMaxPages,
		DedupeTTL:       cfg.NotifiedDedupeTTL(),
	}, poll.Metrics{
		Duration:            telemetry.PollDuration,
		InvariantViolations: telemetry.PollInvariantViolationsTotal,
		EventsEmitted:       telemetry.EventsEmittedTotal,
	}, logger)

	sched := scheduler.New(db, worker, scheduler.Config{
		TickInterval:     tickInterval,
		BucketCooldown:   bucketCooldown,
		MaxConcurrent:    cfg.MaxConcurrentBuckets,
		WindowDays:       cfg.WindowDays,
		TimeSlots:        cfg.TimeSlots,
		DailyJobAt:       cfg.DailyJobAt,
		EventRetention:   time.Duration(cfg.EventRetentionDays) * 24 * time.Hour,
		SessionRetention: time.Duration(cfg.SessionRetentionDays) * 24 * time.Hour,
		MetricsRetention: time.Duration(cfg.MetricsRetentionDays) * 24 * time.Hour,
	}, scheduler.Metrics{
		AggregationRuns: telemetry.AggregationRunsTotal,
		LeaderGauge:     telemetry.SchedulerLeaderGauge,
	}, logger)

	sched.Run(ctx)
	return nil
}

func runOps(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down ops server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
