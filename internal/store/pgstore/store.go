// Package pgstore is a store.Backend on PostgreSQL via pgx.
//
// Every write sends pg_notify in the same transaction, so other nodes
// sharing the database see the change exactly when it commits. Each Store
// holds one listening connection and republishes notices from other nodes
// into its local hub. Its own notices are recognised by origin and dropped,
// since local writes are already published directly.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/roach88/livedoc/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Channel is the NOTIFY channel all nodes listen on.
const Channel = "livedoc_changes"

// Store is a Postgres-backed store.Backend.
type Store struct {
	pool   *pgxpool.Pool
	hub    *store.Hub
	node   string
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// Option configures a Store.
type Option func(*config)

type config struct {
	logger     *slog.Logger
	maxBackoff time.Duration
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMaxBackoff caps the delay between listener reconnect attempts.
// Default 30s.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *config) {
		c.maxBackoff = d
	}
}

// Open connects to dsn, applies the schema and starts the listener. It
// returns once LISTEN is active so writes from other nodes made after Open
// returns are always observed.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg := config{logger: slog.Default(), maxBackoff: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("acquire listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		conn.Release()
		pool.Close()
		return nil, fmt.Errorf("listen %s: %w", Channel, err)
	}

	node := ulid.Make().String()
	listenCtx, cancel := context.WithCancel(context.Background())
	s := &Store{
		pool:   pool,
		hub:    store.NewHub(store.WithHubLogger(cfg.logger)),
		node:   node,
		logger: cfg.logger.With("component", "pgstore", "node", node),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.listen(listenCtx, conn, cfg.maxBackoff)
	return s, nil
}

// Hub implements store.Backend.
func (s *Store) Hub() *store.Hub { return s.hub }

// Node returns the origin id this store stamps on its notices.
func (s *Store) Node() string { return s.node }

// Pool exposes the connection pool for tests and diagnostics.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close stops the listener, closes the hub and the pool. Safe to call more
// than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
	s.hub.Close()
	s.pool.Close()
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

// listen consumes notifications until ctx is cancelled. A dropped
// connection is re-acquired with exponential backoff; notices sent while
// disconnected are lost.
func (s *Store) listen(ctx context.Context, first *pgxpool.Conn, maxBackoff time.Duration) {
	defer close(s.done)

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0

	conn := first
	op := func() error {
		if conn == nil {
			c, err := s.pool.Acquire(ctx)
			if err != nil {
				return stopOnCancel(ctx, err)
			}
			if _, err := c.Exec(ctx, "LISTEN "+Channel); err != nil {
				c.Release()
				return stopOnCancel(ctx, err)
			}
			s.logger.Info("listener reconnected")
			conn = c
		}
		b.Reset()
		err := s.consume(ctx, conn)
		// The connection state is unknown after an error; do not return it
		// to the pool.
		conn.Hijack().Close(context.Background())
		conn = nil
		return stopOnCancel(ctx, err)
	}

	notify := func(err error, d time.Duration) {
		s.logger.Warn("listener disconnected", "error", err, "retry_in", d)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil && ctx.Err() == nil {
		s.logger.Error("listener stopped", "error", err)
	}
}

func (s *Store) consume(ctx context.Context, conn *pgxpool.Conn) error {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		c, err := store.DecodeNotice([]byte(n.Payload))
		if err != nil {
			s.logger.Warn("dropping malformed notice", "payload", n.Payload, "error", err)
			continue
		}
		if c.Origin == s.node {
			continue
		}
		if _, err := s.hub.PublishWith(c, nil); errors.Is(err, store.ErrClosed) {
			return nil
		}
	}
}

// stopOnCancel turns errors caused by cancellation into nil so the retry
// loop exits.
func stopOnCancel(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

var _ store.Backend = (*Store)(nil)
