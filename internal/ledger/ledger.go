// Package ledger tracks writes a live view issued itself so the store's echo
// of each write can be swallowed exactly once.
package ledger

import "sync"

// Ledger is a counted set of identifiers. Marking an id twice requires two
// consumes before it is gone. Safe for concurrent use.
type Ledger struct {
	mu     sync.Mutex
	counts map[string]int
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{counts: make(map[string]int)}
}

// Mark records one pending self-originated write for id.
func (l *Ledger) Mark(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[id]++
}

// ConsumeIfMarked removes one occurrence of id and reports whether there was
// one to remove.
func (l *Ledger) ConsumeIfMarked(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.counts[id]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(l.counts, id)
	} else {
		l.counts[id] = n - 1
	}
	return true
}

// Unmark drops one occurrence without reporting. Used to roll back a Mark
// whose write never reached the store.
func (l *Ledger) Unmark(id string) {
	l.ConsumeIfMarked(id)
}

// Count returns the pending occurrences for id.
func (l *Ledger) Count(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[id]
}

// Len returns the total number of pending occurrences.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := 0
	for _, n := range l.counts {
		total += n
	}
	return total
}
