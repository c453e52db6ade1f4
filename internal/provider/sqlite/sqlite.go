// Package sqlite implements the Provider interface on an embedded SQLite
// database. It is the default backend for single-process deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*SQLiteProvider)(nil)

const dsnPragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"

// SQLiteProvider implements provider.Provider backed by a SQLite file.
type SQLiteProvider struct {
	db   *sql.DB
	path string
}

// New opens the database at cfg.Path. Migrations run in Start.
func New(cfg *types.SQLiteConfig) (*SQLiteProvider, error) {
	if cfg == nil || strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	path := filepath.Clean(cfg.Path)
	db, err := sql.Open("sqlite", path+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes writers, which makes the claim and
	// approval statements atomic without BUSY retries.
	db.SetMaxOpenConns(1)
	return &SQLiteProvider{db: db, path: path}, nil
}

// Start verifies the connection and applies pending migrations.
func (p *SQLiteProvider) Start(ctx context.Context) error {
	if err := p.Ping(ctx); err != nil {
		return err
	}
	if err := applyMigrations(ctx, p.db); err != nil {
		return fmt.Errorf("sqlite migrate: %w", err)
	}
	return nil
}

// Stop closes the database.
func (p *SQLiteProvider) Stop(_ context.Context) error {
	return p.db.Close()
}

// Ping checks the database is reachable.
func (p *SQLiteProvider) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping %s: %w", p.path, err)
	}
	return nil
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
