package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
	"github.com/roach88/livedoc/internal/store/memstore"
)

type message struct {
	id   string
	text string
}

func (m message) UID() string { return m.id }

func (m message) Archive() record.Archive {
	return record.Archive{"uid": record.String(m.id), "text": record.String(m.text)}
}

var messageType = record.Type[message]{
	Name: "messages",
	Decode: func(id string, a record.Archive) (message, error) {
		text, ok := a.String("text")
		if !ok {
			return message{}, fmt.Errorf("text missing")
		}
		return message{id: id, text: text}, nil
	},
}

func TestCollection_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	defer backend.Close()
	coll := store.Bind(backend, messageType)

	require.NoError(t, coll.Write(ctx, message{id: "1", text: "hi"}))

	got, err := coll.ReadByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, message{id: "1", text: "hi"}, got)

	all, err := coll.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []message{{id: "1", text: "hi"}}, all)
}

func TestCollection_MalformedSkippedOnScan(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	defer backend.Close()
	coll := store.Bind(backend, messageType)

	require.NoError(t, coll.Write(ctx, message{id: "1", text: "ok"}))
	require.NoError(t, backend.Write(ctx, "messages", "2", record.Archive{"text": record.Int(5)}))

	all, err := coll.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = coll.ReadByID(ctx, "2")
	assert.ErrorIs(t, err, record.ErrMalformed)

	n, err := coll.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCollection_NotFound(t *testing.T) {
	backend := memstore.New()
	defer backend.Close()
	coll := store.Bind(backend, messageType)

	_, err := coll.ReadByID(context.Background(), "missing")
	assert.True(t, store.IsNotFound(err))
}

func TestCollection_RejectsEmptyUID(t *testing.T) {
	backend := memstore.New()
	defer backend.Close()
	coll := store.Bind(backend, messageType)

	assert.Error(t, coll.Write(context.Background(), message{}))
}

func TestCollection_SubscribeScopedToName(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	defer backend.Close()
	coll := store.Bind(backend, messageType)
	sub := coll.Subscribe()
	defer sub.Close()

	require.NoError(t, backend.Write(ctx, "other", "1", record.Archive{}))
	require.NoError(t, coll.Write(ctx, message{id: "1", text: "x"}))
	require.NoError(t, coll.Delete(ctx, message{id: "1"}))

	assert.Equal(t, 2, sub.Pending())
	c, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Modified, c.Kind)
	c, err = sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Removed, c.Kind)
}
