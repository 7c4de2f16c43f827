// Package storetest holds the behaviour every store.Backend must share. Each
// backend's tests call Run with a constructor for a fresh, empty backend.
package storetest

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/query"
	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
	"github.com/roach88/livedoc/internal/view"
)

// Run exercises a backend against the shared contract.
func Run(t *testing.T, open func(t *testing.T) store.Backend) {
	t.Helper()

	t.Run("WriteThenRead", func(t *testing.T) { testWriteThenRead(t, open(t)) })
	t.Run("WriteIsUpsert", func(t *testing.T) { testWriteIsUpsert(t, open(t)) })
	t.Run("ReadByIDMissing", func(t *testing.T) { testReadByIDMissing(t, open(t)) })
	t.Run("ReadAllOrderedByID", func(t *testing.T) { testReadAllOrderedByID(t, open(t)) })
	t.Run("CollectionsAreIsolated", func(t *testing.T) { testCollectionsAreIsolated(t, open(t)) })
	t.Run("DeleteMissingIsNoop", func(t *testing.T) { testDeleteMissingIsNoop(t, open(t)) })
	t.Run("ChangeFeed", func(t *testing.T) { testChangeFeed(t, open(t)) })
	t.Run("CountAndTruncate", func(t *testing.T) { testCountAndTruncate(t, open(t)) })
	t.Run("TruncateRacingWrites", func(t *testing.T) { testTruncateRacingWrites(t, open(t)) })
	t.Run("PreservesValueKinds", func(t *testing.T) { testPreservesValueKinds(t, open(t)) })
	t.Run("ClosedBackend", func(t *testing.T) { testClosedBackend(t, open(t)) })
}

// Archive builds an archive with a text field, failing the test on error.
func Archive(t *testing.T, fields map[string]any) record.Archive {
	t.Helper()
	a, err := record.ArchiveFrom(fields)
	require.NoError(t, err)
	return a
}

// NextChange reads one change or fails after a second.
func NextChange(t *testing.T, sub *store.Subscription) store.Change {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := sub.Next(ctx)
	require.NoError(t, err)
	return c
}

func testWriteThenRead(t *testing.T, b store.Backend) {
	ctx := context.Background()
	a := Archive(t, map[string]any{"uid": "1", "text": "hello"})

	require.NoError(t, b.Write(ctx, "messages", "1", a))

	got, err := b.ReadByID(ctx, "messages", "1")
	require.NoError(t, err)
	assert.True(t, a.Equal(got), "got %v", got)
}

func testWriteIsUpsert(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Write(ctx, "messages", "1", Archive(t, map[string]any{"text": "v1"})))
	require.NoError(t, b.Write(ctx, "messages", "1", Archive(t, map[string]any{"text": "v2"})))

	got, err := b.ReadByID(ctx, "messages", "1")
	require.NoError(t, err)
	text, _ := got.String("text")
	assert.Equal(t, "v2", text)

	n, err := b.Count(ctx, "messages")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testReadByIDMissing(t *testing.T, b store.Backend) {
	_, err := b.ReadByID(context.Background(), "messages", "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testReadAllOrderedByID(t *testing.T, b store.Backend) {
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, b.Write(ctx, "messages", id, Archive(t, map[string]any{"uid": id})))
	}

	entries, err := b.ReadAll(ctx, "messages")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)
	assert.Equal(t, "c", entries[2].ID)
}

func testCollectionsAreIsolated(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Write(ctx, "messages", "1", Archive(t, map[string]any{"text": "m"})))
	require.NoError(t, b.Write(ctx, "users", "1", Archive(t, map[string]any{"name": "u"})))

	entries, err := b.ReadAll(ctx, "messages")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, hasName := entries[0].Archive["name"]
	assert.False(t, hasName)

	empty, err := b.ReadAll(ctx, "nothing-here")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testDeleteMissingIsNoop(t *testing.T, b store.Backend) {
	sub := b.Hub().Subscribe("messages")
	defer sub.Close()

	require.NoError(t, b.Delete(context.Background(), "messages", "ghost"))
	assert.Equal(t, 0, sub.Pending())
	assert.Equal(t, int64(0), sub.Last())
}

func testChangeFeed(t *testing.T, b store.Backend) {
	ctx := context.Background()
	sub := b.Hub().Subscribe("messages")
	defer sub.Close()

	require.NoError(t, b.Write(ctx, "messages", "1", Archive(t, map[string]any{"text": "x"})))
	require.NoError(t, b.Delete(ctx, "messages", "1"))

	c1 := NextChange(t, sub)
	assert.Equal(t, "messages", c1.Collection)
	assert.Equal(t, "1", c1.ID)
	assert.Equal(t, store.Modified, c1.Kind)
	assert.Empty(t, c1.Origin)

	c2 := NextChange(t, sub)
	assert.Equal(t, store.Removed, c2.Kind)
	assert.Greater(t, c2.Seq, c1.Seq)
	assert.Equal(t, c2.Seq, sub.Last())
}

func testCountAndTruncate(t *testing.T, b store.Backend) {
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, b.Write(ctx, "messages", id, Archive(t, map[string]any{"uid": id})))
	}
	n, err := b.Count(ctx, "messages")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	sub := b.Hub().Subscribe("messages")
	defer sub.Close()

	require.NoError(t, b.Truncate(ctx, "messages"))

	removed := map[string]bool{}
	for i := 0; i < 3; i++ {
		c := NextChange(t, sub)
		assert.Equal(t, store.Removed, c.Kind)
		removed[c.ID] = true
	}
	assert.Equal(t, map[string]bool{"1": true, "2": true, "3": true}, removed)

	n, err = b.Count(ctx, "messages")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// testTruncateRacingWrites rewrites every id while a truncate runs. Whatever
// survives in the store must be exactly what a live view shows once synced.
func testTruncateRacingWrites(t *testing.T, b store.Backend) {
	const (
		rounds = 20
		size   = 20
	)
	ctx := context.Background()
	coll := store.Bind(b, record.DocumentType("racing"))

	v, err := view.New(ctx, query.New[record.Document](), coll)
	require.NoError(t, err)
	defer v.Close()

	write := func(i int) error {
		d, err := record.NewDocument(strconv.Itoa(i), map[string]any{"n": i})
		if err != nil {
			return err
		}
		return coll.Write(ctx, d)
	}

	for round := 0; round < rounds; round++ {
		for i := 0; i < size; i++ {
			require.NoError(t, write(i))
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Truncate(ctx, "racing"))
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < size; i++ {
				assert.NoError(t, write(i))
			}
		}()
		wg.Wait()

		syncCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		require.NoError(t, v.Sync(syncCtx))
		cancel()

		entries, err := b.ReadAll(ctx, "racing")
		require.NoError(t, err)
		stored := make([]string, 0, len(entries))
		for _, e := range entries {
			stored = append(stored, e.ID)
		}
		require.ElementsMatch(t, stored, v.IDs(), "round %d", round)
	}
}

func testPreservesValueKinds(t *testing.T, b store.Backend) {
	ctx := context.Background()
	a := record.Archive{
		"s":   record.String("7"),
		"n":   record.Int(1 << 62),
		"neg": record.Int(-3),
		"b":   record.Bool(false),
	}
	require.NoError(t, b.Write(ctx, "kinds", "k", a))

	got, err := b.ReadByID(ctx, "kinds", "k")
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func testClosedBackend(t *testing.T, b store.Backend) {
	sub := b.Hub().Subscribe("messages")
	require.NoError(t, b.Close())

	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, store.ErrClosed)

	err = b.Write(context.Background(), "messages", "1", record.Archive{})
	assert.Error(t, err)
}
