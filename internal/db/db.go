// Package db provides PostgreSQL-backed repositories for the engine. All
// repositories accept a DBTX interface that is satisfied by both
// *pgxpool.Pool and pgx.Tx, so the same code works inside or outside a
// transaction.
//
// Every write is a single statement. Summaries and snapshots are upserts,
// notifications are appends, and retry claims are compare-and-set updates,
// so an abandoned job never leaves a half-written record.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DefaultPageSize is used when a caller passes a non-positive limit.
const DefaultPageSize = 500

func pageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	return limit
}

// calendarDate returns t's calendar date as UTC midnight, which is how DATE
// columns round-trip through pgx.
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
