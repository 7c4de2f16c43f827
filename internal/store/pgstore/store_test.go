package pgstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
	"github.com/roach88/livedoc/internal/store/storetest"
)

// dsn returns the test database or skips. The tests wipe
// livedoc_documents, so point this at a scratch database.
func dsn(t *testing.T) string {
	t.Helper()
	d := os.Getenv("LIVEDOC_TEST_POSTGRES_DSN")
	if d == "" {
		t.Skip("LIVEDOC_TEST_POSTGRES_DSN not set")
	}
	return d
}

func openStore(t *testing.T, dsn string) *Store {
	t.Helper()
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s := openStore(t, dsn(t))
	_, err := s.Pool().Exec(context.Background(), "DELETE FROM livedoc_documents")
	require.NoError(t, err)
	return s
}

func TestBackendContract(t *testing.T) {
	dsn(t)
	storetest.Run(t, func(t *testing.T) store.Backend {
		return createTestStore(t)
	})
}

func TestNotify_ReachesOtherNode(t *testing.T) {
	a := createTestStore(t)
	b := openStore(t, dsn(t))
	ctx := context.Background()

	subB := b.Hub().Subscribe("c")
	defer subB.Close()

	require.NoError(t, a.Write(ctx, "c", "1", record.Archive{"n": record.Int(1)}))
	got := storetest.NextChange(t, subB)
	assert.Equal(t, "1", got.ID)
	assert.Equal(t, store.Modified, got.Kind)
	assert.Equal(t, a.Node(), got.Origin)

	archive, err := b.ReadByID(ctx, "c", "1")
	require.NoError(t, err)
	assert.Equal(t, record.Archive{"n": record.Int(1)}, archive)

	require.NoError(t, a.Delete(ctx, "c", "1"))
	got = storetest.NextChange(t, subB)
	assert.Equal(t, store.Removed, got.Kind)
}

func TestNotify_OwnNoticesDropped(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sub := s.Hub().Subscribe("c")
	defer sub.Close()

	require.NoError(t, s.Write(ctx, "c", "1", record.Archive{}))
	got := storetest.NextChange(t, sub)
	assert.Empty(t, got.Origin)

	// A second write flushes the channel; if the first notice had looped
	// back it would arrive before this one.
	require.NoError(t, s.Write(ctx, "c", "2", record.Archive{}))
	got = storetest.NextChange(t, sub)
	assert.Equal(t, "2", got.ID)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, sub.Pending())
}

func TestReadByID_Malformed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.Pool().Exec(ctx,
		`INSERT INTO livedoc_documents (collection, id, archive, seq) VALUES ('c', 'x', '{"n": 1.5}', 0)`)
	require.NoError(t, err)

	_, err = s.ReadByID(ctx, "c", "x")
	assert.ErrorIs(t, err, record.ErrMalformed)

	entries, err := s.ReadAll(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
