package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/livedoc/internal/record"
)

// Collection is the typed read/write surface over one collection of a
// Backend. Archives that fail to decode are skipped by ReadAll (with a
// warning) and reported as record.ErrMalformed by ReadByID.
type Collection[T record.Model] struct {
	backend Backend
	typ     record.Type[T]
	logger  *slog.Logger
}

// CollectionOption configures a Collection.
type CollectionOption func(*collectionConfig)

type collectionConfig struct {
	logger *slog.Logger
}

// WithLogger sets the collection's logger.
func WithLogger(l *slog.Logger) CollectionOption {
	return func(c *collectionConfig) {
		c.logger = l
	}
}

// Bind returns the Collection of b named by t.Name.
func Bind[T record.Model](b Backend, t record.Type[T], opts ...CollectionOption) *Collection[T] {
	cfg := collectionConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Collection[T]{
		backend: b,
		typ:     t,
		logger:  cfg.logger.With("collection", t.Name),
	}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.typ.Name }

// ReadAll decodes every record in the collection, ordered by id.
func (c *Collection[T]) ReadAll(ctx context.Context) ([]T, error) {
	entries, err := c.backend.ReadAll(ctx, c.typ.Name)
	if err != nil {
		return nil, fmt.Errorf("read all %s: %w", c.typ.Name, err)
	}
	return c.decodeAll(entries), nil
}

// ReadByID decodes one record. Returns ErrNotFound or record.ErrMalformed.
func (c *Collection[T]) ReadByID(ctx context.Context, id string) (T, error) {
	var zero T
	a, err := c.backend.ReadByID(ctx, c.typ.Name, id)
	if err != nil {
		return zero, fmt.Errorf("read %s/%s: %w", c.typ.Name, id, err)
	}
	return c.typ.DecodeArchive(id, a)
}

// Write upserts r.
func (c *Collection[T]) Write(ctx context.Context, r T) error {
	if r.UID() == "" {
		return fmt.Errorf("write %s: record has empty uid", c.typ.Name)
	}
	if err := c.backend.Write(ctx, c.typ.Name, r.UID(), r.Archive()); err != nil {
		return fmt.Errorf("write %s/%s: %w", c.typ.Name, r.UID(), err)
	}
	return nil
}

// Delete removes r by id.
func (c *Collection[T]) Delete(ctx context.Context, r T) error {
	return c.DeleteID(ctx, r.UID())
}

// DeleteID removes the record with the given id. Absent ids are a no-op.
func (c *Collection[T]) DeleteID(ctx context.Context, id string) error {
	if err := c.backend.Delete(ctx, c.typ.Name, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.typ.Name, id, err)
	}
	return nil
}

// Count returns the number of stored records, malformed ones included.
func (c *Collection[T]) Count(ctx context.Context) (int, error) {
	n, err := c.backend.Count(ctx, c.typ.Name)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.typ.Name, err)
	}
	return n, nil
}

// Truncate deletes every record in the collection.
func (c *Collection[T]) Truncate(ctx context.Context) error {
	if err := c.backend.Truncate(ctx, c.typ.Name); err != nil {
		return fmt.Errorf("truncate %s: %w", c.typ.Name, err)
	}
	return nil
}

// Subscribe opens a change subscription for this collection.
func (c *Collection[T]) Subscribe() *Subscription {
	return c.backend.Hub().Subscribe(c.typ.Name)
}

// Decode converts entries produced by a backend-specific read (such as a
// pushed-down query) with the same skip policy as ReadAll.
func (c *Collection[T]) Decode(entries []Entry) []T {
	return c.decodeAll(entries)
}

func (c *Collection[T]) decodeAll(entries []Entry) []T {
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		r, err := c.typ.DecodeArchive(e.ID, e.Archive)
		if err != nil {
			c.logger.Warn("skipping malformed record", "id", e.ID, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
