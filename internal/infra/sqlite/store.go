// Package sqlite is the relational store behind the ledger: a bounded
// connection pool over an SQLite database, transactional repositories, and
// the retry policy for transient storage failures.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dvloznov/ledger-engine/internal/logger"
)

// Config controls the pool and retry behaviour of a Store.
type Config struct {
	Path            string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	BusyTimeout     time.Duration
	RetryAttempts   int
	RetryBackoff    time.Duration
	LeakThreshold   time.Duration
}

// DefaultConfig returns the pool settings used when a field is left zero.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    4,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		BusyTimeout:     5 * time.Second,
		RetryAttempts:   3,
		RetryBackoff:    100 * time.Millisecond,
		LeakThreshold:   10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.Path)
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = d.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = d.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = d.ConnMaxIdleTime
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = d.BusyTimeout
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.LeakThreshold <= 0 {
		c.LeakThreshold = d.LeakThreshold
	}
	return c
}

// Store owns the connection pool. It is safe for concurrent use.
type Store struct {
	cfg  Config
	mu   sync.RWMutex
	db   *sql.DB
	caps Capabilities
}

// Open creates the pool, validates a connection, and probes the schema.
// Migrate refreshes the probed capabilities.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if cfg.Path == "" {
		return nil, fmt.Errorf("Open: database path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("Open: creating %s: %w", dir, err)
		}
	}

	db, err := openPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	s := &Store{cfg: cfg, db: db}

	caps, err := ProbeCapabilities(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}
	s.caps = caps

	log := logger.FromContext(ctx)
	log.Info().
		Str("path", cfg.Path).
		Int("max_open_conns", cfg.MaxOpenConns).
		Bool("fixed_income_terms", caps.FixedIncomeTerms).
		Msg("SQLite store opened")
	return s, nil
}

// DSN builds the modernc.org/sqlite connection string for cfg.
func DSN(cfg Config) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	return "file:" + cfg.Path + "?" + q.Encode()
}

func openPool(ctx context.Context, cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("validating connection: %w", err)
	}
	return db, nil
}

// Capabilities returns the schema features detected at open time.
func (s *Store) Capabilities() Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

// DB exposes the current pool handle.
func (s *Store) DB() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Ping validates a pooled connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB().PingContext(ctx)
}

// Stats reports the pool statistics.
func (s *Store) Stats() sql.DBStats {
	return s.DB().Stats()
}

// Close releases the pool.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// reinit replaces the pool when a connection validation fails after a broken
// connection was observed.
func (s *Store) reinit(ctx context.Context) {
	log := logger.FromContext(ctx)
	if db := s.DB(); db != nil && db.PingContext(ctx) == nil {
		return
	}

	fresh, err := openPool(ctx, s.cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to re-initialize connection pool")
		return
	}

	s.mu.Lock()
	old := s.db
	s.db = fresh
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing replaced connection pool")
		}
	}
	log.Warn().Msg("Connection pool re-initialized")
}

// withTx runs fn inside one database transaction, retrying transient failures.
func (s *Store) withTx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.retry(ctx, func() error {
		return s.runTx(ctx, fn)
	})
}

func (s *Store) runTx(ctx context.Context, fn func(tx *Tx) error) error {
	log := logger.FromContext(ctx)
	db := s.DB()
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	started := time.Now()
	leak := time.AfterFunc(s.cfg.LeakThreshold, func() {
		log.Warn().
			Dur("open_for", time.Since(started)).
			Int("in_use", db.Stats().InUse).
			Msg("Transaction held longer than leak threshold")
	})
	defer leak.Stop()

	if err := fn(&Tx{tx: sqlTx, caps: s.Capabilities()}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			log.Warn().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
