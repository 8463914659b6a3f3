// Package db is the hand-written, sqlc-shaped data access layer shared by
// every domain package. It holds no connection of its own: callers build a
// *Queries from whatever DBTX they have on hand (pool, transaction, or
// checked-out connection) and pass it down explicitly.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal surface Queries needs. *pgxpool.Pool, pgx.Tx, and
// *pgxpool.Conn all satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries wraps a DBTX with the repository's prepared SQL statements.
type Queries struct {
	db DBTX
}

// New builds a Queries bound to the given DBTX. No connection is opened or
// retained beyond what dbtx already represents.
func New(dbtx DBTX) *Queries {
	return &Queries{db: dbtx}
}

// WithTx returns a Queries bound to an already-open transaction, for
// call sites that need several statements to commit atomically.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}
