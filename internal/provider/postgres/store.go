// Package postgres archives finished queue items, staging history and the
// archiver's resume cursors in Postgres. Live queue state never lives here;
// rows arrive only through the archiver and are read back by the queue
// command.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultMaxConns = 4

// migrateLock is the advisory lock key held while the archive schema is
// created.
const migrateLock int64 = 0x6e61727261746f72

// Archive is the Postgres destination of the archiver.
type Archive struct {
	pool *pgxpool.Pool
}

// Option tunes the archive connection pool.
type Option func(*pgxpool.Config)

// WithMaxConns caps open connections to the archive.
func WithMaxConns(n int32) Option {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

// Open connects to the archive database and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Archive, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing archive dsn: %w", err)
	}
	cfg.MaxConns = defaultMaxConns
	for _, opt := range opts {
		opt(cfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to archive: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging archive: %w", err)
	}
	return &Archive{pool: pool}, nil
}

// Migrate creates the archived item, staging and cursor tables. Concurrent
// callers are serialized by an advisory lock held for the transaction.
func (a *Archive) Migrate(ctx context.Context) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("archive migrate: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrateLock); err != nil {
		return fmt.Errorf("archive migrate lock: %w", err)
	}
	if _, err := tx.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("archive migrate: %w", err)
	}
	return tx.Commit(ctx)
}

// Close releases the connection pool.
func (a *Archive) Close() {
	a.pool.Close()
}
