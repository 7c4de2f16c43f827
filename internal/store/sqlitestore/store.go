// Package sqlitestore is a store.Backend on SQLite.
//
// Every collection lives in one documents table keyed by (collection, id);
// archives are stored as canonical JSON so queryir specs can be pushed down
// with json_extract (see Find). Each row also records the seq of the change
// that wrote it, and Open resumes the hub clock from the highest one.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - one open connection: SQLite has a single writer
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/livedoc/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - documents table
// 2 - index on (collection, seq)
const currentSchemaVersion = 2

// Store is a SQLite-backed store.Backend.
type Store struct {
	db     *sql.DB
	hub    *store.Hub
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Option configures a Store.
type Option func(*config)

type config struct {
	logger *slog.Logger
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Open creates or opens a SQLite database at path, applies pragmas and
// migrations, and resumes the change clock from the highest stored seq.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	var maxSeq int64
	if err := db.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM documents").Scan(&maxSeq); err != nil {
		db.Close()
		return nil, fmt.Errorf("read max seq: %w", err)
	}

	logger := cfg.logger.With("component", "sqlitestore")
	s := &Store{
		db:     db,
		hub:    store.NewHub(store.WithClock(store.NewClockAt(maxSeq)), store.WithHubLogger(cfg.logger)),
		logger: logger,
	}
	logger.Debug("opened", "path", path, "seq", maxSeq)
	return s, nil
}

// Hub implements store.Backend.
func (s *Store) Hub() *store.Hub { return s.hub }

// DB returns the underlying sql.DB. Prefer Store methods.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the hub and the database. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.hub.Close()
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.db.QueryContext(ctx, q, args...)
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV2 indexes rows by seq within a collection, used to resume the
// clock and to scan recent changes.
func migrateToV2(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_documents_collection_seq
		ON documents(collection, seq)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

var _ store.Backend = (*Store)(nil)
