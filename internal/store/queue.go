package store

import "sync"

// changeQueue is an unbounded FIFO of changes for one subscriber.
//
// Enqueue never blocks, so a backend can publish while holding its own lock.
// The signal channel (buffer 1) coalesces wakeups for a single reader that
// loops on TryDequeue and selects on Wait.
type changeQueue struct {
	mu      sync.Mutex
	changes []Change
	closed  bool
	signal  chan struct{}
}

func newChangeQueue() *changeQueue {
	return &changeQueue{
		changes: make([]Change, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue appends a change. Returns false if the queue is closed.
func (q *changeQueue) Enqueue(c Change) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.changes = append(q.changes, c)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front change without blocking.
func (q *changeQueue) TryDequeue() (Change, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.changes) == 0 {
		return Change{}, false
	}
	c := q.changes[0]
	q.changes[0] = Change{}
	if len(q.changes) == 1 {
		q.changes = q.changes[:0]
	} else {
		q.changes = q.changes[1:]
	}
	return c, true
}

// Wait returns a channel that fires when changes may be available. It is
// closed once the queue is closed.
func (q *changeQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued changes.
func (q *changeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.changes)
}

// Closed reports whether Close was called.
func (q *changeQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further enqueues and wakes the reader. Queued changes are
// dropped.
func (q *changeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.changes = nil
	close(q.signal)
}
