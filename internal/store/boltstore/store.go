// Package boltstore is a store.Backend on bbolt: one bucket per collection,
// keys are record ids, values are canonical JSON archives. Bucket cursors
// iterate keys in byte order, which gives ReadAll its id ordering for free.
package boltstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
)

// metaBucket holds the last published seq. The leading NUL keeps it out of
// the collection namespace.
var (
	metaBucket = []byte("\x00livedoc")
	seqKey     = []byte("seq")
)

// ErrReservedCollection is returned when a write names the meta bucket.
var ErrReservedCollection = errors.New("collection name is reserved")

var errAbsent = errors.New("absent")

// Store is a bbolt-backed store.Backend.
type Store struct {
	db     *bbolt.DB
	hub    *store.Hub
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Option configures a Store.
type Option func(*config)

type config struct {
	logger  *slog.Logger
	timeout time.Duration
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithLockTimeout bounds how long Open waits for the file lock held by
// another process. Default 1s.
func WithLockTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Open creates or opens the bbolt file at path.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := config{logger: slog.Default(), timeout: time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: cfg.timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	var seq int64
	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if v := meta.Get(seqKey); len(v) == 8 {
			seq = int64(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init bolt %s: %w", path, err)
	}

	logger := cfg.logger.With("component", "boltstore")
	logger.Debug("opened", "path", path, "seq", seq)
	return &Store{
		db:     db,
		hub:    store.NewHub(store.WithClock(store.NewClockAt(seq)), store.WithHubLogger(cfg.logger)),
		logger: logger,
	}, nil
}

// Hub implements store.Backend.
func (s *Store) Hub() *store.Hub { return s.hub }

// ReadAll implements store.Backend.
func (s *Store) ReadAll(ctx context.Context, collection string) ([]store.Entry, error) {
	var out []store.Entry
	err := s.view(func(tx *bbolt.Tx) error {
		b := bucket(tx, collection)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			a, err := record.ParseArchive(v)
			if err != nil {
				s.logger.Warn("skipping unparseable archive", "collection", collection, "id", string(k), "error", err)
				return nil
			}
			out = append(out, store.Entry{ID: string(k), Archive: a})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read all %s: %w", collection, err)
	}
	return out, nil
}

// ReadByID implements store.Backend.
func (s *Store) ReadByID(ctx context.Context, collection, id string) (record.Archive, error) {
	var a record.Archive
	err := s.view(func(tx *bbolt.Tx) error {
		b := bucket(tx, collection)
		if b == nil {
			return store.ErrNotFound
		}
		v := b.Get([]byte(id))
		if v == nil {
			return store.ErrNotFound
		}
		parsed, err := record.ParseArchive(v)
		if err != nil {
			return fmt.Errorf("%w: %v", record.ErrMalformed, err)
		}
		a = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", collection, id, err)
	}
	return a, nil
}

// Write implements store.Backend.
func (s *Store) Write(ctx context.Context, collection, id string, a record.Archive) error {
	if reserved(collection) {
		return fmt.Errorf("write %s/%s: %w", collection, id, ErrReservedCollection)
	}
	data, err := record.MarshalCanonical(a)
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, id, err)
	}

	change := store.Change{Collection: collection, ID: id, Kind: store.Modified}
	_, err = s.hub.PublishWith(change, func(seq int64) error {
		return s.db.Update(func(tx *bbolt.Tx) error {
			b, err := tx.CreateBucketIfNotExists([]byte(collection))
			if err != nil {
				return err
			}
			if err := b.Put([]byte(id), data); err != nil {
				return err
			}
			return putSeq(tx, seq)
		})
	})
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete implements store.Backend.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if reserved(collection) {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrReservedCollection)
	}
	change := store.Change{Collection: collection, ID: id, Kind: store.Removed}
	_, err := s.hub.PublishWith(change, func(seq int64) error {
		return s.db.Update(func(tx *bbolt.Tx) error {
			b := tx.Bucket([]byte(collection))
			if b == nil || b.Get([]byte(id)) == nil {
				return errAbsent
			}
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
			return putSeq(tx, seq)
		})
	})
	if errors.Is(err, errAbsent) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Count implements store.Backend.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	n := 0
	err := s.view(func(tx *bbolt.Tx) error {
		b := bucket(tx, collection)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Truncate drops the collection's bucket and publishes Removed per id. The
// bucket drop, the seq of the last Removed and every delivery happen under
// the hub lock, so no write to the collection can slip in between.
func (s *Store) Truncate(ctx context.Context, collection string) error {
	if reserved(collection) {
		return fmt.Errorf("truncate %s: %w", collection, ErrReservedCollection)
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.hub.PublishAllWith(func(stamp func(store.Change) store.Change) error {
		return s.db.Update(func(tx *bbolt.Tx) error {
			b := tx.Bucket([]byte(collection))
			if b == nil {
				return nil
			}
			var last int64
			if err := b.ForEach(func(k, _ []byte) error {
				c := stamp(store.Change{Collection: collection, ID: string(k), Kind: store.Removed})
				last = c.Seq
				return nil
			}); err != nil {
				return err
			}
			if err := tx.DeleteBucket([]byte(collection)); err != nil {
				return err
			}
			if last == 0 {
				return nil
			}
			return putSeq(tx, last)
		})
	})
	if err != nil {
		return fmt.Errorf("truncate %s: %w", collection, err)
	}
	return nil
}

// Close closes the hub and the bolt file. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.hub.Close()
	return s.db.Close()
}

func (s *Store) view(fn func(*bbolt.Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func reserved(collection string) bool {
	return collection == string(metaBucket)
}

// bucket returns the collection's bucket, or nil if it does not exist.
// The meta bucket is never returned.
func bucket(tx *bbolt.Tx, collection string) *bbolt.Bucket {
	if reserved(collection) {
		return nil
	}
	return tx.Bucket([]byte(collection))
}

func putSeq(tx *bbolt.Tx, seq int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seq))
	return tx.Bucket(metaBucket).Put(seqKey, buf[:])
}

var _ store.Backend = (*Store)(nil)
