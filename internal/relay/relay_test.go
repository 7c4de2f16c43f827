package relay

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/store"
	"github.com/roach88/livedoc/internal/store/storetest"
)

func TestInbound_RepublishesRemoteNotices(t *testing.T) {
	hub := store.NewHub()
	defer hub.Close()
	r := New(nil, hub)

	sub := hub.Subscribe("c")
	defer sub.Close()

	payload, err := store.EncodeNotice(store.Change{Collection: "c", ID: "1", Kind: store.Modified}, "other-node")
	require.NoError(t, err)
	r.inbound(string(payload))

	got := storetest.NextChange(t, sub)
	assert.Equal(t, "1", got.ID)
	assert.Equal(t, store.Modified, got.Kind)
	assert.Equal(t, "other-node", got.Origin)
	assert.Equal(t, int64(1), got.Seq)
}

func TestInbound_DropsOwnAndMalformed(t *testing.T) {
	hub := store.NewHub()
	defer hub.Close()
	r := New(nil, hub)

	sub := hub.Subscribe("c")
	defer sub.Close()

	own, err := store.EncodeNotice(store.Change{Collection: "c", ID: "1", Kind: store.Modified}, r.Node())
	require.NoError(t, err)
	r.inbound(string(own))
	r.inbound(`{"collection":"c"}`)
	r.inbound(`garbage`)

	assert.Equal(t, 0, sub.Pending())
	assert.Equal(t, int64(0), hub.Seq())
}

func TestNew_Options(t *testing.T) {
	r := New(nil, store.NewHub(), WithChannel("x"), WithPublishTimeout(time.Second))
	assert.Equal(t, "x", r.channel)
	assert.Equal(t, time.Second, r.publishTimeout)
	assert.NotEqual(t, New(nil, store.NewHub()).Node(), r.Node())
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("LIVEDOC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LIVEDOC_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	return client
}

func startRelay(t *testing.T, client *redis.Client, hub *store.Hub, channel string) *Relay {
	t.Helper()
	r := New(client, hub, WithChannel(channel))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	select {
	case <-r.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not subscribe")
	}
	return r
}

func TestRelay_ForwardsBetweenHubs(t *testing.T) {
	client := redisClient(t)
	channel := "livedoc-test-" + ulid.Make().String()

	hubA, hubB := store.NewHub(), store.NewHub()
	defer hubA.Close()
	defer hubB.Close()
	relayA := startRelay(t, client, hubA, channel)
	startRelay(t, client, hubB, channel)

	subA := hubA.Subscribe("c")
	defer subA.Close()
	subB := hubB.Subscribe("c")
	defer subB.Close()

	hubA.Publish(store.Change{Collection: "c", ID: "1", Kind: store.Removed})

	local := storetest.NextChange(t, subA)
	assert.Empty(t, local.Origin)

	remote := storetest.NextChange(t, subB)
	assert.Equal(t, "1", remote.ID)
	assert.Equal(t, store.Removed, remote.Kind)
	assert.Equal(t, relayA.Node(), remote.Origin)

	// Neither side sees a second copy.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, subA.Pending())
	assert.Equal(t, 0, subB.Pending())
}
