// Package poll implements the Poll Worker: per-bucket fetch -> diff -> emit
// -> apply under a per-bucket lease. This is the pipeline's central
// component (spec.md §4.4).
package poll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wisbric/slotwatch/internal/db"
	"github.com/wisbric/slotwatch/pkg/event"
	"github.com/wisbric/slotwatch/pkg/fingerprint"
	"github.com/wisbric/slotwatch/pkg/projection"
	"github.com/wisbric/slotwatch/pkg/provider"
)

// Config bounds one poll's fetch and dedupe behavior.
type Config struct {
	ProviderID      string
	ProviderTimeout time.Duration
	PartySizes      []int
	PerPage         int
	MaxPages        int
	DedupeTTL       time.Duration
}

// Metrics is the set of counters/histograms the worker reports to. All
// fields are required; internal/telemetry provides the process-wide vars.
type Metrics struct {
	Duration            *prometheus.HistogramVec
	InvariantViolations prometheus.Counter
	EventsEmitted       *prometheus.CounterVec
}

// Worker executes poll(bucket_id) for one bucket at a time, holding one DB
// connection for the duration of the poll. Workers never share a connection.
type Worker struct {
	pool     *pgxpool.Pool
	registry *provider.Registry
	dedup    *event.Deduplicator
	cfg      Config
	metrics  Metrics
	logger   *slog.Logger
}

// NewWorker constructs a Worker.
func NewWorker(pool *pgxpool.Pool, registry *provider.Registry, dedup *event.Deduplicator, cfg Config, metrics Metrics, logger *slog.Logger) *Worker {
	return &Worker{pool: pool, registry: registry, dedup: dedup, cfg: cfg, metrics: metrics, logger: logger}
}

// Result summarizes one completed poll for logging and invariant checks.
type Result struct {
	BucketID        string
	BaselineWritten bool
	Added           int
	Closed          int
	Emitted         int
	BaselineEcho    int
	PrevEcho        int
}

// Poll runs the full per-bucket pipeline. Returns ErrLeaseHeld if another
// worker already holds the bucket; that is an expected, silent skip.
func (w *Worker) Poll(ctx context.Context, bucketID, dateStr, timeSlot string) (Result, error) {
	start := time.Now()
	logger := w.logger.With("bucket_id", bucketID)

	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("acquiring connection for %s: %w", bucketID, err)
	}
	defer conn.Release()

	locked, err := tryAcquireLease(ctx, conn, bucketID)
	if err != nil {
		return Result{}, fmt.Errorf("acquiring lease for %s: %w", bucketID, err)
	}
	if !locked {
		return Result{}, ErrLeaseHeld
	}
	defer releaseLease(context.WithoutCancel(ctx), conn, bucketID, logger)

	adapter, ok := w.registry.Resolve(w.cfg.ProviderID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownProvider, w.cfg.ProviderID)
	}

	query := provider.Query{
		ProviderID: w.cfg.ProviderID,
		DateStr:    dateStr,
		TimeAnchor: timeSlot,
		PartySizes: w.cfg.PartySizes,
		PerPage:    w.cfg.PerPage,
		MaxPages:   w.cfg.MaxPages,
	}
	// Timeouts and transient failures get one immediate retry; fatal
	// errors do not.
	var slots []provider.NormalizedSlot
	for attempt := 0; attempt < 2; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.ProviderTimeout)
		slots, err = adapter.Fetch(fetchCtx, query)
		cancel()
		if err == nil || errors.Is(err, provider.ErrFatal) || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		q := db.New(conn)
		if recErr := q.RecordBucketError(ctx, bucketID, err.Error()); recErr != nil {
			logger.Warn("recording bucket fetch error failed", "error", recErr)
		}
		if errors.Is(err, provider.ErrTimeout) {
			return Result{}, fmt.Errorf("%w: %v", ErrProviderTimeout, err)
		}
		if errors.Is(err, provider.ErrFatal) {
			return Result{}, fmt.Errorf("%w: %v", ErrProviderFatal, err)
		}
		return Result{}, fmt.Errorf("fetching bucket %s: %w", bucketID, err)
	}

	bySlotID := make(map[string]provider.NormalizedSlot, len(slots))
	currSet := make([]string, 0, len(slots))
	for _, s := range slots {
		id := fingerprint.SlotID(w.cfg.ProviderID, s.VenueID, s.ActualTime)
		bySlotID[id] = s
		currSet = append(currSet, id)
	}

	q := db.New(conn)
	b, err := q.GetBucket(ctx, bucketID)
	if err != nil {
		return Result{}, fmt.Errorf("reading bucket state %s: %w", bucketID, err)
	}

	now := time.Now().UTC()

	if !b.Initialized {
		if err := q.WriteBaseline(ctx, bucketID, currSet, now); err != nil {
			return Result{}, fmt.Errorf("writing baseline for %s: %w", bucketID, err)
		}
		w.metrics.Duration.WithLabelValues(bucketID).Observe(time.Since(start).Seconds())
		return Result{BucketID: bucketID, BaselineWritten: true}, nil
	}

	diff := Compute(b.BaselineSlotIDs, b.PrevSlotIDs, currSet)

	baselineEcho := BaselineEcho(diff, b.BaselineSlotIDs)
	prevEcho := PrevEcho(diff, b.PrevSlotIDs)
	if baselineEcho > 0 || prevEcho > 0 {
		w.metrics.InvariantViolations.Inc()
		logger.Warn("poll invariant violated", "baseline_echo", baselineEcho, "prev_echo", prevEcho)
	}

	toInsertNew := make([]string, 0, len(diff.Emit))
	for _, slotID := range diff.Emit {
		suppress, err := w.dedup.ShouldSuppress(ctx, conn, bucketID, slotID)
		if err != nil {
			logger.Warn("dedupe check failed, proceeding without suppression", "slot_id", slotID, "error", err)
		}
		if !suppress {
			toInsertNew = append(toInsertNew, slotID)
		}
	}

	evtStore := event.NewStore(conn)
	latestDrops, err := evtStore.LatestNewDropsForSlots(ctx, bucketID, diff.Closed)
	if err != nil {
		return Result{}, fmt.Errorf("batch-querying latest drops for %s: %w", bucketID, err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("beginning write transaction for %s: %w", bucketID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txq := db.New(tx)
	txEvents := event.NewStore(tx)
	emitted := 0

	for _, slotID := range toInsertNew {
		slot := bySlotID[slotID]
		inserted, err := txEvents.InsertNewDrop(ctx, event.NewDrop{
			BucketID:  bucketID,
			SlotID:    slotID,
			VenueID:   slot.VenueID,
			VenueName: slot.VenueName,
			OpenedAt:  now,
			Payload:   slot.Payload(),
		})
		if err != nil {
			return Result{}, fmt.Errorf("inserting NEW_DROP for %s/%s: %w", bucketID, slotID, err)
		}
		if inserted {
			emitted++
			w.metrics.EventsEmitted.WithLabelValues(db.EventNewDrop).Inc()
			w.dedup.RecordNew(ctx, bucketID, slotID)
		}
	}

	for _, slotID := range diff.Closed {
		drop, ok := latestDrops[slotID]
		if !ok {
			// No prior NEW_DROP in this pipeline's memory: skip per the
			// conservative branch of spec.md's open question, to avoid
			// corrupting the Aggregator's average-duration math with an
			// unknown-duration CLOSED event.
			continue
		}
		closedAt := now
		inserted, err := txEvents.InsertClosed(ctx, event.Closed{
			BucketID: bucketID,
			SlotID:   slotID,
			VenueID:  drop.VenueID,
			OpenedAt: drop.OpenedAt,
			ClosedAt: closedAt,
			Payload:  json.RawMessage(`{}`),
		})
		if err != nil {
			return Result{}, fmt.Errorf("inserting CLOSED for %s/%s: %w", bucketID, slotID, err)
		}
		if inserted {
			w.metrics.EventsEmitted.WithLabelValues(db.EventClosed).Inc()
		}
	}

	projStore := projection.NewStore(tx)
	for _, slotID := range diff.Added {
		slot := bySlotID[slotID]
		if err := projStore.Open(ctx, bucketID, slotID, slot.VenueID, slot.VenueName, now); err != nil {
			return Result{}, fmt.Errorf("upserting open projection %s/%s: %w", bucketID, slotID, err)
		}
		if _, err := txEvents.OpenSessionIfAbsent(ctx, bucketID, slotID, slot.VenueID, now); err != nil {
			logger.Warn("session invariant violation, no-op", "slot_id", slotID, "error", err)
		}
	}
	for _, slotID := range diff.Closed {
		if err := projStore.Close(ctx, bucketID, slotID, now); err != nil {
			return Result{}, fmt.Errorf("marking projection closed %s/%s: %w", bucketID, slotID, err)
		}
		if _, _, err := txEvents.CloseOpenSession(ctx, bucketID, slotID, now); err != nil {
			logger.Warn("closing session no-op", "slot_id", slotID, "error", err)
		}
	}

	if err := txq.UpdatePrevSet(ctx, bucketID, currSet, now); err != nil {
		return Result{}, fmt.Errorf("updating prev set for %s: %w", bucketID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("committing write transaction for %s: %w", bucketID, err)
	}

	w.metrics.Duration.WithLabelValues(bucketID).Observe(time.Since(start).Seconds())

	return Result{
		BucketID:     bucketID,
		Added:        len(diff.Added),
		Closed:       len(diff.Closed),
		Emitted:      emitted,
		BaselineEcho: baselineEcho,
		PrevEcho:     prevEcho,
	}, nil
}

// RefreshBaseline re-fetches a bucket and overwrites baseline/prev with the
// current result, with no diff and no events emitted. Used after the
// provider's search region changes, so a region boundary shift is not
// mistaken for a wave of drops and closes.
func (w *Worker) RefreshBaseline(ctx context.Context, bucketID, dateStr, timeSlot string) error {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for %s: %w", bucketID, err)
	}
	defer conn.Release()

	locked, err := tryAcquireLease(ctx, conn, bucketID)
	if err != nil {
		return fmt.Errorf("acquiring lease for %s: %w", bucketID, err)
	}
	if !locked {
		return ErrLeaseHeld
	}
	defer releaseLease(context.WithoutCancel(ctx), conn, bucketID, w.logger)

	adapter, ok := w.registry.Resolve(w.cfg.ProviderID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, w.cfg.ProviderID)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.ProviderTimeout)
	slots, err := adapter.Fetch(fetchCtx, provider.Query{
		ProviderID: w.cfg.ProviderID,
		DateStr:    dateStr,
		TimeAnchor: timeSlot,
		PartySizes: w.cfg.PartySizes,
		PerPage:    w.cfg.PerPage,
		MaxPages:   w.cfg.MaxPages,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("refreshing baseline for %s: %w", bucketID, err)
	}

	currSet := make([]string, 0, len(slots))
	for _, s := range slots {
		currSet = append(currSet, fingerprint.SlotID(w.cfg.ProviderID, s.VenueID, s.ActualTime))
	}

	q := db.New(conn)
	if err := q.WriteBaseline(ctx, bucketID, currSet, time.Now().UTC()); err != nil {
		return fmt.Errorf("writing refreshed baseline for %s: %w", bucketID, err)
	}
	return nil
}

// tryAcquireLease takes the per-bucket advisory lock on conn. The lock is
// session-scoped: it must be released on the same connection, never pooled
// away mid-poll.
func tryAcquireLease(ctx context.Context, conn *pgxpool.Conn, bucketID string) (bool, error) {
	var acquired bool
	err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, bucketID).Scan(&acquired)
	if err != nil {
		return false, err
	}
	return acquired, nil
}

func releaseLease(ctx context.Context, conn *pgxpool.Conn, bucketID string, logger *slog.Logger) {
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, bucketID); err != nil {
		logger.Warn("releasing bucket lease failed", "bucket_id", bucketID, "error", err)
	}
}
