package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/slotwatch/internal/db"
)

const redisKeyPrefix = "slotwatch:dedup:"

// Deduplicator suppresses NEW_DROP events for a (bucket_id, slot_id) already
// notified within the configured window. Redis is the hot-path cache; the DB
// ExistsRecentNewDrop query is the fallback when Redis misses or is down, and
// the ON CONFLICT (dedupe_key) insert is the final, authoritative guard.
type Deduplicator struct {
	rdb     *redis.Client
	logger  *slog.Logger
	ttl     time.Duration
	counter prometheus.Counter
}

// NewDeduplicator creates a Deduplicator. counter is incremented each time
// a would-be NEW_DROP is suppressed, whether by the Redis cache or by the DB
// fallback.
func NewDeduplicator(rdb *redis.Client, logger *slog.Logger, ttl time.Duration, counter prometheus.Counter) *Deduplicator {
	return &Deduplicator{rdb: rdb, logger: logger, ttl: ttl, counter: counter}
}

func redisKey(bucketID, slotID string) string {
	return redisKeyPrefix + bucketID + ":" + slotID
}

// ShouldSuppress reports whether a NEW_DROP for (bucket_id, slot_id) should
// be suppressed because one was already recorded within the dedupe window.
func (d *Deduplicator) ShouldSuppress(ctx context.Context, dbtx db.DBTX, bucketID, slotID string) (bool, error) {
	key := redisKey(bucketID, slotID)

	exists, err := d.rdb.Exists(ctx, key).Result()
	if err == nil && exists > 0 {
		d.counter.Inc()
		return true, nil
	}
	if err != nil {
		d.logger.Warn("redis dedup lookup failed, falling back to DB", "error", err)
	}

	q := db.New(dbtx)
	recent, err := q.ExistsRecentNewDrop(ctx, bucketID, slotID, d.ttl)
	if err != nil {
		return false, err
	}
	if recent {
		d.cacheSet(ctx, bucketID, slotID)
		d.counter.Inc()
		return true, nil
	}
	return false, nil
}

// RecordNew marks (bucket_id, slot_id) as recently notified, so subsequent
// ShouldSuppress calls within the TTL hit the Redis hot path.
func (d *Deduplicator) RecordNew(ctx context.Context, bucketID, slotID string) {
	d.cacheSet(ctx, bucketID, slotID)
}

func (d *Deduplicator) cacheSet(ctx context.Context, bucketID, slotID string) {
	key := redisKey(bucketID, slotID)
	if err := d.rdb.Set(ctx, key, "1", d.ttl).Err(); err != nil {
		d.logger.Warn("failed to set dedup cache", "error", err, "key", key)
	}
}
