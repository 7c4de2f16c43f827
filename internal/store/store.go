package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/livedoc/internal/record"
)

var (
	// ErrNotFound is returned by point lookups for an absent id.
	ErrNotFound = errors.New("record not found")

	// ErrClosed is returned by operations on a closed backend or subscription.
	ErrClosed = errors.New("store closed")
)

// Kind is the kind of change a notification carries.
type Kind int

const (
	// Modified covers inserts and replacements.
	Modified Kind = iota + 1
	// Removed means the id no longer exists.
	Removed
)

// String returns the lower-case name used in logs and on the wire.
func (k Kind) String() string {
	switch k {
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "modified":
		return Modified, nil
	case "removed":
		return Removed, nil
	default:
		return 0, fmt.Errorf("unknown change kind %q", s)
	}
}

// Change is one entry of the change feed.
type Change struct {
	Collection string
	ID         string
	Kind       Kind

	// Seq is stamped by the Hub on publish; strictly increasing per hub.
	Seq int64

	// Origin is empty for changes made in this process and carries the
	// remote node id for changes relayed from elsewhere.
	Origin string
}

// Entry is a stored archive with its key.
type Entry struct {
	ID      string
	Archive record.Archive
}

// Backend is the untyped storage contract shared by every implementation.
//
// Writes are upserts. Deleting an absent id succeeds and publishes nothing.
// Truncate publishes Removed for every id it deletes. ReadAll returns
// entries ordered by id.
type Backend interface {
	ReadAll(ctx context.Context, collection string) ([]Entry, error)
	ReadByID(ctx context.Context, collection, id string) (record.Archive, error)
	Write(ctx context.Context, collection, id string, a record.Archive) error
	Delete(ctx context.Context, collection, id string) error
	Count(ctx context.Context, collection string) (int, error)
	Truncate(ctx context.Context, collection string) error

	// Hub returns the change feed the backend publishes to.
	Hub() *Hub

	Close() error
}
