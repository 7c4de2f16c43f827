package testutil

import (
	"strconv"
	"sync"
)

// SequentialIDs hands out "0", "1", "2", ... so record ids, and therefore
// golden traces, are identical across runs. Thread-safe.
type SequentialIDs struct {
	mu   sync.Mutex
	next int
}

// NewSequentialIDs creates a generator whose first id is "0".
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// Next returns the next id.
func (g *SequentialIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := strconv.Itoa(g.next)
	g.next++
	return id
}

// Reset restarts the sequence at "0".
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next = 0
}
