package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// Hub fans published changes out to subscribers of the change's collection
// and to taps, which observe every collection.
//
// Publish stamps the seq and enqueues under one lock, so every subscriber
// sees changes in seq order.
type Hub struct {
	mu     sync.Mutex
	clock  *Clock
	subs   map[string]map[*Subscription]struct{}
	taps   map[*Subscription]struct{}
	closed bool
	logger *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithClock makes the hub stamp seqs from c. Durable backends pass a clock
// resumed from their highest persisted seq.
func WithClock(c *Clock) HubOption {
	return func(h *Hub) {
		h.clock = c
	}
}

// WithHubLogger sets the hub's logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = l
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clock:  NewClock(),
		subs:   make(map[string]map[*Subscription]struct{}),
		taps:   make(map[*Subscription]struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "hub")
	return h
}

// Publish stamps c with the next seq and delivers it. The stamped change is
// returned. Publishing on a closed hub is dropped.
func (h *Hub) Publish(c Change) Change {
	c, _ = h.PublishWith(c, nil)
	return c
}

// PublishWith stamps c, runs commit with the stamped seq and delivers c only
// if commit succeeds. Durable backends persist the seq alongside the write
// inside commit. A failed commit burns the seq; gaps are allowed. On a
// closed hub commit is not run and ErrClosed is returned.
func (h *Hub) PublishWith(c Change, commit func(seq int64) error) (Change, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return c, ErrClosed
	}
	c.Seq = h.clock.Next()

	if commit != nil {
		if err := commit(c.Seq); err != nil {
			return c, err
		}
	}
	h.deliver(c)
	return c, nil
}

// PublishAllWith is PublishWith for writes that touch many ids at once,
// such as a truncate. commit runs under the hub lock and reports each change
// it made through stamp, which assigns the next seq. The stamped changes are
// delivered in stamp order once commit returns without error. No other
// publish can land between the commit and the last delivery.
func (h *Hub) PublishAllWith(commit func(stamp func(Change) Change) error) ([]Change, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	var changes []Change
	stamp := func(c Change) Change {
		c.Seq = h.clock.Next()
		changes = append(changes, c)
		return c
	}
	if err := commit(stamp); err != nil {
		return nil, err
	}
	for _, c := range changes {
		h.deliver(c)
	}
	return changes, nil
}

// deliver enqueues c for its collection's subscribers and every tap.
// Callers hold h.mu.
func (h *Hub) deliver(c Change) {
	for sub := range h.subs[c.Collection] {
		sub.deliver(c)
	}
	for tap := range h.taps {
		tap.deliver(c)
	}

	h.logger.Debug("change published",
		"collection", c.Collection,
		"id", c.ID,
		"kind", c.Kind.String(),
		"seq", c.Seq,
		"origin", c.Origin,
	)
}

// Subscribe opens a subscription to one collection.
// On a closed hub the subscription is returned already closed.
func (h *Hub) Subscribe(collection string) *Subscription {
	sub := newSubscription(h, collection)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub.queue.Close()
		return sub
	}
	set, ok := h.subs[collection]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[collection] = set
	}
	set[sub] = struct{}{}

	h.logger.Debug("subscribed", "collection", collection, "subscription", sub.id)
	return sub
}

// Tap opens a subscription that receives changes for every collection.
func (h *Hub) Tap() *Subscription {
	sub := newSubscription(h, "")

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub.queue.Close()
		return sub
	}
	h.taps[sub] = struct{}{}
	return sub
}

// Seq returns the seq of the most recently published change.
func (h *Hub) Seq() int64 {
	return h.clock.Current()
}

// Subscribers returns the number of open subscriptions for collection.
func (h *Hub) Subscribers(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection])
}

// Close closes every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, set := range h.subs {
		for sub := range set {
			sub.queue.Close()
		}
	}
	for tap := range h.taps {
		tap.queue.Close()
	}
	h.subs = nil
	h.taps = nil
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub.collection == "" {
		delete(h.taps, sub)
		return
	}
	set := h.subs[sub.collection]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.collection)
	}
}

// Subscription is one consumer's view of the change feed. It must be closed
// when no longer needed.
type Subscription struct {
	id         string
	collection string
	hub        *Hub
	queue      *changeQueue
	last       atomic.Int64
	closeOnce  sync.Once
}

func newSubscription(h *Hub, collection string) *Subscription {
	return &Subscription{
		id:         ulid.Make().String(),
		collection: collection,
		hub:        h,
		queue:      newChangeQueue(),
	}
}

// deliver is called with the hub lock held.
func (s *Subscription) deliver(c Change) {
	if s.queue.Enqueue(c) {
		s.last.Store(c.Seq)
	}
}

// ID returns the subscription's ULID.
func (s *Subscription) ID() string { return s.id }

// Collection returns the subscribed collection, empty for a tap.
func (s *Subscription) Collection() string { return s.collection }

// Last returns the seq of the last change queued to this subscription, or 0.
func (s *Subscription) Last() int64 {
	return s.last.Load()
}

// Pending returns the number of queued changes not yet returned by Next.
func (s *Subscription) Pending() int {
	return s.queue.Len()
}

// Next blocks until a change is available, the context is done or the
// subscription is closed (ErrClosed).
func (s *Subscription) Next(ctx context.Context) (Change, error) {
	for {
		if c, ok := s.queue.TryDequeue(); ok {
			return c, nil
		}
		if s.queue.Closed() {
			return Change{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return Change{}, ctx.Err()
		case <-s.queue.Wait():
		}
	}
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.remove(s)
		s.queue.Close()
	})
}
