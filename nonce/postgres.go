package nonce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// DefaultTable is the table used when PostgresGuard is created without one.
	DefaultTable = "x402_used_nonces"
	// DefaultReservationTTL bounds how long a reservation left by a crashed
	// process blocks the key.
	DefaultReservationTTL = 5 * time.Minute
)

// DB is the subset of *pgxpool.Pool used by PostgresGuard.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresGuard is a Guard shared by several server processes. Uniqueness is
// enforced by the table's primary key; each row is either 'pending' (reserved
// for a broadcast) or 'used'.
type PostgresGuard struct {
	db             DB
	table          string
	reservationTTL time.Duration
}

var _ Guard = (*PostgresGuard)(nil)

// NewPostgresGuard creates a guard over db. An empty table selects DefaultTable.
func NewPostgresGuard(db DB, table string) *PostgresGuard {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresGuard{db: db, table: pgx.Identifier{table}.Sanitize(), reservationTTL: DefaultReservationTTL}
}

// WithReservationTTL overrides DefaultReservationTTL.
func (g *PostgresGuard) WithReservationTTL(ttl time.Duration) *PostgresGuard {
	g.reservationTTL = ttl
	return g
}

// OpenPostgresGuard connects a pool to dsn, ensures the nonce table exists
// and returns the guard together with the pool so the caller can close it.
func OpenPostgresGuard(ctx context.Context, dsn, table string) (*PostgresGuard, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	guard := NewPostgresGuard(pool, table)
	if err := guard.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return guard, pool, nil
}

// EnsureSchema creates the nonce table if it does not exist and adds the
// status column to tables created before reservations existed.
func (g *PostgresGuard) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			nonce_key TEXT PRIMARY KEY,
			status    TEXT NOT NULL DEFAULT 'used',
			used_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, g.table),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS status TEXT NOT NULL DEFAULT 'used'`, g.table),
	}
	for _, stmt := range statements {
		if _, err := g.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create nonce table: %w", err)
		}
	}
	return nil
}

// IsUsed implements Guard.
func (g *PostgresGuard) IsUsed(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := g.db.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE nonce_key = $1 AND status = 'used')`, g.table), key).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("failed to query nonce: %w", err)
	}
	return exists, nil
}

// MarkUsed implements Guard.
func (g *PostgresGuard) MarkUsed(ctx context.Context, key string) error {
	_, err := g.db.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s AS n (nonce_key, status) VALUES ($1, 'used')
		ON CONFLICT (nonce_key) DO UPDATE SET status = 'used', used_at = now() WHERE n.status = 'pending'`, g.table), key)
	if err != nil {
		return fmt.Errorf("failed to mark nonce: %w", err)
	}
	return nil
}

// MarkIfAbsent implements Guard.
func (g *PostgresGuard) MarkIfAbsent(ctx context.Context, key string) (bool, error) {
	tag, err := g.db.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (nonce_key, status) VALUES ($1, 'used') ON CONFLICT (nonce_key) DO NOTHING`, g.table), key)
	if err != nil {
		return false, fmt.Errorf("failed to mark nonce: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Reserve implements Guard. A pending row older than the reservation TTL is
// taken over.
func (g *PostgresGuard) Reserve(ctx context.Context, key string) (bool, error) {
	tag, err := g.db.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s AS n (nonce_key, status) VALUES ($1, 'pending')
		ON CONFLICT (nonce_key) DO UPDATE SET used_at = now()
		WHERE n.status = 'pending' AND n.used_at < now() - make_interval(secs => $2)`, g.table),
		key, g.reservationTTL.Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to reserve nonce: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release implements Guard.
func (g *PostgresGuard) Release(ctx context.Context, key string) error {
	_, err := g.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE nonce_key = $1 AND status = 'pending'`, g.table), key)
	if err != nil {
		return fmt.Errorf("failed to release nonce: %w", err)
	}
	return nil
}
