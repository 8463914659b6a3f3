// Package scheduler dispatches Poll Workers on a fixed tick with bounded
// parallelism, and runs the daily sliding-window job that rotates buckets,
// aggregates, and prunes.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/wisbric/slotwatch/internal/db"
	"github.com/wisbric/slotwatch/pkg/aggregate"
	"github.com/wisbric/slotwatch/pkg/bucket"
	"github.com/wisbric/slotwatch/pkg/poll"
	"github.com/wisbric/slotwatch/pkg/retention"
)

// schedulerLockKey is the advisory lock key for leader election; held by
// whichever instance's tick loop acquires it first.
const schedulerLockKey = "slotwatch-scheduler"

// Config bounds the scheduler's cadence and concurrency.
type Config struct {
	TickInterval     time.Duration
	BucketCooldown   time.Duration
	MaxConcurrent    int
	WindowDays       int
	TimeSlots        []string
	DailyJobAt       string // "HH:MM" local, checked once per minute
	EventRetention   time.Duration
	SessionRetention time.Duration
	MetricsRetention time.Duration
}

// Metrics is the set of process-wide collectors the scheduler reports to.
type Metrics struct {
	AggregationRuns prometheus.Counter
	LeaderGauge     prometheus.Gauge
}

// Scheduler ticks Poll Workers and runs the daily rotation job.
type Scheduler struct {
	pool    *pgxpool.Pool
	worker  *poll.Worker
	cfg     Config
	metrics Metrics
	logger  *slog.Logger

	inFlight singleflight.Group
	isLeader bool

	lastDailyRun string // "YYYY-MM-DD", guards against re-running within the same day
}

// New constructs a Scheduler.
func New(pool *pgxpool.Pool, worker *poll.Worker, cfg Config, metrics Metrics, logger *slog.Logger) *Scheduler {
	return &Scheduler{pool: pool, worker: worker, cfg: cfg, metrics: metrics, logger: logger}
}

// Run ticks until ctx is cancelled, per-tick trying to acquire scheduler
// leadership before dispatching. A losing instance stays idle for ticking
// (spec.md §4.8 "Multi-instance safety") but the process keeps serving ops
// mode regardless.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler loop started", "tick_interval", s.cfg.TickInterval)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	dailyTicker := time.NewTicker(time.Minute)
	defer dailyTicker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler loop stopped")
			s.releaseLeadership(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			s.tick(ctx)
		case <-dailyTicker.C:
			s.maybeRunDailyJob(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	leader, err := s.acquireLeadership(ctx)
	if err != nil {
		s.logger.Error("leader election check failed", "error", err)
		return
	}
	if !leader {
		return
	}

	reg := bucket.NewRegistry(s.pool)
	ids, err := reg.EligibleForPoll(ctx, s.cfg.BucketCooldown)
	if err != nil {
		s.logger.Error("listing eligible buckets failed", "error", err)
		return
	}

	now := time.Now().UTC()
	nextTick := now.Add(s.cfg.TickInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)

	results := make(chan poll.Result, len(ids))

	for _, id := range ids {
		id := id
		g.Go(func() error {
			if gctx.Err() != nil {
				// Shutting down: start no new polls.
				return nil
			}
			// singleflight collapses any accidental double-dispatch of the
			// same bucket within one tick, ahead of the DB-level advisory
			// lock which is the authoritative guard.
			_, _, _ = s.inFlight.Do(id, func() (any, error) {
				dateStr, timeSlot, ok := parseBucketID(id)
				if !ok {
					s.logger.Warn("malformed bucket id, skipping", "bucket_id", id)
					return nil, nil
				}
				// Detached from cancellation so a poll already under way
				// finishes its write transaction during shutdown.
				result, err := s.worker.Poll(context.WithoutCancel(gctx), id, dateStr, timeSlot)
				if err != nil {
					if errors.Is(err, poll.ErrLeaseHeld) {
						return nil, nil
					}
					s.logger.Error("poll failed", "bucket_id", id, "error", err)
					return nil, nil
				}
				results <- result
				return nil, nil
			})
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	var baselineEchoTotal, prevEchoTotal int64
	for r := range results {
		baselineEchoTotal += int64(r.BaselineEcho)
		prevEchoTotal += int64(r.PrevEcho)
	}

	q := db.New(s.pool)
	if err := q.RecordTick(ctx, now, nextTick, baselineEchoTotal, prevEchoTotal, nil); err != nil {
		s.logger.Error("recording tick heartbeat failed", "error", err)
	}
}

// maybeRunDailyJob runs the daily sliding-window job at most once per
// calendar day, at or after the configured local time-of-day.
func (s *Scheduler) maybeRunDailyJob(ctx context.Context) {
	now := time.Now()
	today := now.Format("2006-01-02")
	if s.lastDailyRun == today {
		return
	}
	if !isDailyJobTime(now, s.cfg.DailyJobAt) {
		return
	}
	if !s.isLeader {
		return
	}
	s.lastDailyRun = today
	s.runDailyJob(ctx)
}

// runDailyJob rotates the bucket window, aggregates, then prunes, per
// spec.md §4.8 "Daily sliding window".
func (s *Scheduler) runDailyJob(ctx context.Context) {
	s.logger.Info("daily sliding-window job started")
	today := time.Now().UTC()

	reg := bucket.NewRegistry(s.pool)
	if n, err := reg.EnsureWindow(ctx, today, s.cfg.WindowDays, s.cfg.TimeSlots); err != nil {
		s.logger.Error("daily job: ensuring window failed", "error", err)
	} else if n > 0 {
		s.logger.Info("daily job: rotated bucket window", "inserted", n)
	}

	agg := aggregate.NewAggregator(s.pool, s.metrics.AggregationRuns)
	cutoff := bucket.ID(today.Format("2006-01-02"), "00:00")
	if n, err := agg.Run(ctx, cutoff); err != nil {
		s.logger.Error("daily job: aggregation failed", "error", err)
	} else if n > 0 {
		s.logger.Info("daily job: aggregated sessions", "count", n)
	}

	ret := retention.New(s.pool, retention.Policy{
		BucketWindowDays: s.cfg.WindowDays,
		EventRetention:   s.cfg.EventRetention,
		SessionRetention: s.cfg.SessionRetention,
		MetricsRetention: s.cfg.MetricsRetention,
	})
	if report, err := ret.Run(ctx, today); err != nil {
		s.logger.Error("daily job: retention failed", "error", err)
	} else {
		s.logger.Info("daily job: retention completed",
			"buckets", report.Buckets, "projection", report.Projection,
			"events", report.Events, "sessions", report.Sessions,
			"venue_metrics", report.VenueMetrics, "market_metrics", report.MarketMetrics)
	}

	s.logger.Info("daily sliding-window job completed")
}

func (s *Scheduler) acquireLeadership(ctx context.Context) (bool, error) {
	if s.isLeader {
		return true, nil
	}
	var acquired bool
	err := s.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, schedulerLockKey).Scan(&acquired)
	if err != nil {
		return false, err
	}
	s.isLeader = acquired
	if s.metrics.LeaderGauge != nil {
		if acquired {
			s.metrics.LeaderGauge.Set(1)
		} else {
			s.metrics.LeaderGauge.Set(0)
		}
	}
	return acquired, nil
}

func (s *Scheduler) releaseLeadership(ctx context.Context) {
	if !s.isLeader {
		return
	}
	if _, err := s.pool.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, schedulerLockKey); err != nil {
		s.logger.Warn("releasing scheduler leadership failed", "error", err)
	}
	s.isLeader = false
	if s.metrics.LeaderGauge != nil {
		s.metrics.LeaderGauge.Set(0)
	}
}

// parseBucketID splits a "YYYY-MM-DD_HH:MM" bucket_id back into its date and
// time-slot parts.
func parseBucketID(bucketID string) (dateStr, timeSlot string, ok bool) {
	parts := strings.SplitN(bucketID, "_", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// isDailyJobTime reports whether now's local HH:MM is at or past at (also
// "HH:MM"), used with a once-per-minute ticker so the daily job reliably
// fires without needing wall-clock-exact scheduling.
func isDailyJobTime(now time.Time, at string) bool {
	return now.Format("15:04") >= at
}
