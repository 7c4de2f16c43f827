// Package memstore is an in-memory store.Backend used by tests, scenarios
// and the CLI's memory backend.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
)

// Store keeps one map per collection. Changes are published while the
// store lock is held so seq order matches write order.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]record.Archive
	hub         *store.Hub
	closed      bool

	// failWrites, when set, makes every Write and Delete fail. Test hook.
	failWrites error
}

// Option configures a Store.
type Option func(*Store)

// WithHub makes the store publish to an existing hub.
func WithHub(h *store.Hub) Option {
	return func(s *Store) {
		s.hub = h
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{collections: make(map[string]map[string]record.Archive)}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = store.NewHub()
	}
	return s
}

// FailWrites makes subsequent writes and deletes return err. Pass nil to
// restore normal behaviour.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = err
}

// Hub implements store.Backend.
func (s *Store) Hub() *store.Hub { return s.hub }

// ReadAll implements store.Backend.
func (s *Store) ReadAll(ctx context.Context, collection string) ([]store.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}
	coll := s.collections[collection]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]store.Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, store.Entry{ID: id, Archive: coll[id].Clone()})
	}
	return out, nil
}

// ReadByID implements store.Backend.
func (s *Store) ReadByID(ctx context.Context, collection, id string) (record.Archive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}
	a, ok := s.collections[collection][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a.Clone(), nil
}

// Write implements store.Backend.
func (s *Store) Write(ctx context.Context, collection, id string, a record.Archive) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return err
	}
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]record.Archive)
		s.collections[collection] = coll
	}
	coll[id] = a.Clone()

	s.hub.Publish(store.Change{Collection: collection, ID: id, Kind: store.Modified})
	return nil
}

// Delete implements store.Backend.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return err
	}
	coll := s.collections[collection]
	if _, ok := coll[id]; !ok {
		return nil
	}
	delete(coll, id)

	s.hub.Publish(store.Change{Collection: collection, ID: id, Kind: store.Removed})
	return nil
}

// Count implements store.Backend.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, store.ErrClosed
	}
	return len(s.collections[collection]), nil
}

// Truncate implements store.Backend.
func (s *Store) Truncate(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return err
	}
	coll := s.collections[collection]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	delete(s.collections, collection)

	for _, id := range ids {
		s.hub.Publish(store.Change{Collection: collection, ID: id, Kind: store.Removed})
	}
	return nil
}

// Close implements store.Backend. It closes the hub as well.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.hub.Close()
	return nil
}

func (s *Store) writable() error {
	if s.closed {
		return store.ErrClosed
	}
	if s.failWrites != nil {
		return fmt.Errorf("memstore: %w", s.failWrites)
	}
	return nil
}

var _ store.Backend = (*Store)(nil)
