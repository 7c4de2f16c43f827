// Package relay bridges a store.Hub to Redis pub/sub so live views in other
// processes observe this process's writes and vice versa.
//
// Local changes (empty Origin) are published as store.Notice payloads
// stamped with this relay's node id. Notices from other nodes are
// republished into the local hub with their origin; a node's own notices
// are dropped. Changes that arrived from elsewhere are never forwarded
// again, so relays sharing a channel cannot loop.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/roach88/livedoc/internal/store"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "livedoc"

// Relay forwards changes between one hub and one Redis channel.
type Relay struct {
	client  redis.UniversalClient
	hub     *store.Hub
	channel string
	node    string
	logger  *slog.Logger

	publishTimeout time.Duration

	readyOnce sync.Once
	ready     chan struct{}
}

// Option configures a Relay.
type Option func(*Relay)

// WithChannel sets the Redis channel.
func WithChannel(name string) Option {
	return func(r *Relay) {
		r.channel = name
	}
}

// WithLogger sets the relay's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = l
	}
}

// WithPublishTimeout bounds how long one outbound notice is retried before
// it is dropped. Default 10s.
func WithPublishTimeout(d time.Duration) Option {
	return func(r *Relay) {
		r.publishTimeout = d
	}
}

// New creates a relay. Nothing is sent or received until Run.
func New(client redis.UniversalClient, hub *store.Hub, opts ...Option) *Relay {
	r := &Relay{
		client:         client,
		hub:            hub,
		channel:        DefaultChannel,
		node:           ulid.Make().String(),
		logger:         slog.Default(),
		publishTimeout: 10 * time.Second,
		ready:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "relay", "node", r.node, "channel", r.channel)
	return r
}

// Node returns the origin id stamped on outbound notices.
func (r *Relay) Node() string { return r.node }

// Ready is closed once the Redis subscription is confirmed.
func (r *Relay) Ready() <-chan struct{} { return r.ready }

// Run subscribes and forwards in both directions until ctx is cancelled.
// It returns nil on cancellation.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	err := backoff.RetryNotify(func() error {
		_, err := pubsub.Receive(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		r.logger.Warn("subscribe failed", "error", err, "retry_in", d)
	})
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.logger.Info("relay running")

	tap := r.hub.Tap()
	defer tap.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.outbound(ctx, tap)
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			tap.Close()
			wg.Wait()
			return nil
		case msg, ok := <-ch:
			if !ok {
				tap.Close()
				wg.Wait()
				return nil
			}
			r.inbound(msg.Payload)
		}
	}
}

func (r *Relay) outbound(ctx context.Context, tap *store.Subscription) {
	for {
		c, err := tap.Next(ctx)
		if err != nil {
			return
		}
		if c.Origin != "" {
			continue
		}
		if err := r.publish(ctx, c); err != nil && ctx.Err() == nil {
			r.logger.Error("dropping change", "collection", c.Collection, "id", c.ID, "seq", c.Seq, "error", err)
		}
	}
}

func (r *Relay) publish(ctx context.Context, c store.Change) error {
	payload, err := store.EncodeNotice(c, r.node)
	if err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = r.publishTimeout
	return backoff.Retry(func() error {
		return r.client.Publish(ctx, r.channel, payload).Err()
	}, backoff.WithContext(b, ctx))
}

// inbound republishes a remote notice into the hub.
func (r *Relay) inbound(payload string) {
	c, err := store.DecodeNotice([]byte(payload))
	if err != nil {
		r.logger.Warn("dropping malformed notice", "payload", payload, "error", err)
		return
	}
	if c.Origin == r.node {
		return
	}
	if _, err := r.hub.PublishWith(c, nil); err != nil {
		r.logger.Debug("hub closed, notice dropped", "collection", c.Collection, "id", c.ID)
	}
}
