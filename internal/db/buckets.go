package db

import (
	"context"
	"fmt"
	"time"
)

// EnsureBucketsParams is one candidate bucket row for a bulk-insert pass.
type EnsureBucketsParams struct {
	BucketID string
	DateStr  string
	TimeSlot string
}

// EnsureBuckets inserts any bucket_id in rows not already present, in a
// single round trip. Existing rows are left untouched.
func (q *Queries) EnsureBuckets(ctx context.Context, rows []EnsureBucketsParams) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	bucketIDs := make([]string, len(rows))
	dateStrs := make([]string, len(rows))
	timeSlots := make([]string, len(rows))
	for i, r := range rows {
		bucketIDs[i] = r.BucketID
		dateStrs[i] = r.DateStr
		timeSlots[i] = r.TimeSlot
	}

	tag, err := q.db.Exec(ctx, `
		INSERT INTO buckets (bucket_id, date_str, time_slot)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[])
		ON CONFLICT (bucket_id) DO NOTHING
	`, bucketIDs, dateStrs, timeSlots)
	if err != nil {
		return 0, fmt.Errorf("ensuring buckets: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PruneOldBuckets deletes buckets whose date_str is before today (exclusive
// lexicographic comparison, valid because bucket_id/date_str are zero-padded
// YYYY-MM-DD).
func (q *Queries) PruneOldBuckets(ctx context.Context, today string) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM buckets WHERE date_str < $1`, today)
	if err != nil {
		return 0, fmt.Errorf("pruning buckets: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetBucketHealth returns, for every bucket, its scan recency and whether it
// is stale relative to staleHorizon.
func (q *Queries) GetBucketHealth(ctx context.Context, staleHorizon time.Duration) ([]BucketHealth, error) {
	rows, err := q.db.Query(ctx, `
		SELECT bucket_id, scanned_at,
		       COALESCE(jsonb_array_length(baseline_slot_ids), 0) AS baseline_count,
		       (scanned_at IS NULL OR scanned_at < now() - $1::interval) AS stale,
		       last_error
		FROM buckets
		ORDER BY bucket_id
	`, staleHorizon)
	if err != nil {
		return nil, fmt.Errorf("querying bucket health: %w", err)
	}
	defer rows.Close()

	var out []BucketHealth
	for rows.Next() {
		var h BucketHealth
		if err := rows.Scan(&h.BucketID, &h.ScannedAt, &h.BaselineCount, &h.Stale, &h.LastError); err != nil {
			return nil, fmt.Errorf("scanning bucket health row: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetBucket fetches a single bucket's state.
func (q *Queries) GetBucket(ctx context.Context, bucketID string) (Bucket, error) {
	var b Bucket
	var baselineRaw, prevRaw []byte
	err := q.db.QueryRow(ctx, `
		SELECT bucket_id, date_str, time_slot, baseline_slot_ids, prev_slot_ids,
		       scanned_at, baseline_scanned_at, last_error, created_at
		FROM buckets WHERE bucket_id = $1
	`, bucketID).Scan(&b.BucketID, &b.DateStr, &b.TimeSlot, &baselineRaw, &prevRaw,
		&b.ScannedAt, &b.BaselineScannedAt, &b.LastError, &b.CreatedAt)
	if err != nil {
		return Bucket{}, fmt.Errorf("fetching bucket %s: %w", bucketID, err)
	}
	b.Initialized = baselineRaw != nil
	b.BaselineSlotIDs = decodeSlotIDSet(baselineRaw)
	b.PrevSlotIDs = decodeSlotIDSet(prevRaw)
	return b, nil
}

// ListBucketIDs returns every known bucket_id, for the refresh-baselines
// admin operation. Scheduler dispatch uses ListEligibleBucketIDs instead.
func (q *Queries) ListBucketIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.Query(ctx, `SELECT bucket_id FROM buckets ORDER BY bucket_id`)
	if err != nil {
		return nil, fmt.Errorf("listing bucket ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning bucket id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListEligibleBucketIDs returns bucket_ids not scanned within cooldown (or
// never scanned), the candidate set for one scheduler tick.
func (q *Queries) ListEligibleBucketIDs(ctx context.Context, cooldown time.Duration) ([]string, error) {
	rows, err := q.db.Query(ctx, `
		SELECT bucket_id FROM buckets
		WHERE scanned_at IS NULL OR scanned_at < now() - $1::interval
		ORDER BY bucket_id
	`, cooldown)
	if err != nil {
		return nil, fmt.Errorf("listing eligible bucket ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning eligible bucket id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WriteBaseline bootstraps a bucket's baseline/prev sets on first successful poll.
func (q *Queries) WriteBaseline(ctx context.Context, bucketID string, slotIDs []string, scannedAt time.Time) error {
	raw := encodeSlotIDSet(slotIDs)
	_, err := q.db.Exec(ctx, `
		UPDATE buckets
		SET baseline_slot_ids = $2, prev_slot_ids = $2,
		    baseline_scanned_at = $3, scanned_at = $3, last_error = NULL
		WHERE bucket_id = $1
	`, bucketID, raw, scannedAt)
	if err != nil {
		return fmt.Errorf("writing baseline for %s: %w", bucketID, err)
	}
	return nil
}

// UpdatePrevSet advances prev_slot_ids and scanned_at after a successful diff+apply.
func (q *Queries) UpdatePrevSet(ctx context.Context, bucketID string, slotIDs []string, scannedAt time.Time) error {
	raw := encodeSlotIDSet(slotIDs)
	_, err := q.db.Exec(ctx, `
		UPDATE buckets SET prev_slot_ids = $2, scanned_at = $3, last_error = NULL
		WHERE bucket_id = $1
	`, bucketID, raw, scannedAt)
	if err != nil {
		return fmt.Errorf("updating prev set for %s: %w", bucketID, err)
	}
	return nil
}

// RecordBucketError stamps a bucket's heartbeat with a fetch error, leaving
// baseline/prev untouched.
func (q *Queries) RecordBucketError(ctx context.Context, bucketID string, errMsg string) error {
	_, err := q.db.Exec(ctx, `UPDATE buckets SET last_error = $2 WHERE bucket_id = $1`, bucketID, errMsg)
	if err != nil {
		return fmt.Errorf("recording bucket error for %s: %w", bucketID, err)
	}
	return nil
}

// DeleteAllBuckets implements the "reset buckets" admin operation.
func (q *Queries) DeleteAllBuckets(ctx context.Context) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM buckets`); err != nil {
		return fmt.Errorf("deleting all buckets: %w", err)
	}
	return nil
}
