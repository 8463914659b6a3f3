package db

import (
	"context"
	"fmt"
	"time"
)

// heartbeatRowID is the single row job_heartbeat carries.
const heartbeatRowID = 1

// GetHeartbeat fetches the scheduler's status row, creating the default row
// if it does not exist yet.
func (q *Queries) GetHeartbeat(ctx context.Context) (JobHeartbeat, error) {
	var h JobHeartbeat
	err := q.db.QueryRow(ctx, `
		INSERT INTO job_heartbeat (id) VALUES ($1)
		ON CONFLICT (id) DO UPDATE SET id = job_heartbeat.id
		RETURNING id, last_tick_at, next_tick_at, last_error, baseline_echo_total, prev_echo_total, updated_at
	`, heartbeatRowID).Scan(&h.ID, &h.LastTickAt, &h.NextTickAt, &h.LastError, &h.BaselineEchoTotal, &h.PrevEchoTotal, &h.UpdatedAt)
	if err != nil {
		return JobHeartbeat{}, fmt.Errorf("fetching job heartbeat: %w", err)
	}
	return h, nil
}

// RecordTick updates the heartbeat after a completed scheduler tick.
func (q *Queries) RecordTick(ctx context.Context, lastTickAt, nextTickAt time.Time, baselineEcho, prevEcho int64, tickErr *string) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO job_heartbeat (id, last_tick_at, next_tick_at, last_error, baseline_echo_total, prev_echo_total, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $2)
		ON CONFLICT (id) DO UPDATE
		SET last_tick_at = EXCLUDED.last_tick_at,
		    next_tick_at = EXCLUDED.next_tick_at,
		    last_error = EXCLUDED.last_error,
		    baseline_echo_total = job_heartbeat.baseline_echo_total + EXCLUDED.baseline_echo_total,
		    prev_echo_total = job_heartbeat.prev_echo_total + EXCLUDED.prev_echo_total,
		    updated_at = EXCLUDED.updated_at
	`, heartbeatRowID, lastTickAt, nextTickAt, tickErr, baselineEcho, prevEcho)
	if err != nil {
		return fmt.Errorf("recording tick heartbeat: %w", err)
	}
	return nil
}
