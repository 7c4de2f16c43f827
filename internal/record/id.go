package record

import "github.com/google/uuid"

// NewID returns a time-sortable UUIDv7 string for a new record.
// Panics if the system random source fails.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
