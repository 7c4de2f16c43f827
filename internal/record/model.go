package record

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned when a stored archive cannot be decoded into the
// expected Go type.
var ErrMalformed = errors.New("malformed record")

// Model is the capability every record type provides: a stable unique
// identifier and a serializable archive. Records are values; a change to a
// record is a replacement keyed by UID.
type Model interface {
	UID() string
	Archive() Archive
}

// Type binds a record Go type to the name of the collection it is stored in
// and to the decoder that rebuilds it from an archive.
type Type[T Model] struct {
	// Name scopes storage and change notifications. Two Types sharing a Name
	// share a collection.
	Name string

	// Decode rebuilds a record from its archive. Errors are wrapped into
	// ErrMalformed by DecodeArchive.
	Decode func(id string, a Archive) (T, error)
}

// DecodeArchive runs the type's decoder and normalizes every failure into
// an ErrMalformed chain.
func (t Type[T]) DecodeArchive(id string, a Archive) (T, error) {
	var zero T
	if t.Decode == nil {
		return zero, fmt.Errorf("%s/%s: no decoder: %w", t.Name, id, ErrMalformed)
	}
	rec, err := t.Decode(id, a)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			return zero, err
		}
		return zero, fmt.Errorf("%s/%s: %w: %v", t.Name, id, ErrMalformed, err)
	}
	return rec, nil
}
