package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/queryir"
	"github.com/roach88/livedoc/internal/querysql"
	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
	"github.com/roach88/livedoc/internal/store/storetest"
)

// createTestStore opens a store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBackendContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		return createTestStore(t)
	})
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "2"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Write(ctx, "c", "a", record.Archive{"n": record.Int(1)}))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.ReadByID(ctx, "c", "a")
	require.NoError(t, err)
	assert.Equal(t, record.Archive{"n": record.Int(1)}, got)
}

func TestOpen_ResumesSeq(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s1.Write(ctx, "c", id, record.Archive{}))
	}
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	assert.Equal(t, int64(3), s2.Hub().Seq())

	sub := s2.Hub().Subscribe("c")
	defer sub.Close()
	require.NoError(t, s2.Write(ctx, "c", "d", record.Archive{}))
	c := storetest.NextChange(t, sub)
	assert.Equal(t, int64(4), c.Seq)

	var rowSeq int64
	require.NoError(t, s2.DB().QueryRow(
		"SELECT seq FROM documents WHERE collection = 'c' AND id = 'd'").Scan(&rowSeq))
	assert.Equal(t, c.Seq, rowSeq)
}

func TestWrite_StoresCanonicalJSON(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "c", "a", record.Archive{
		"z": record.String("<tag>"),
		"a": record.Int(1),
	}))

	var archive string
	require.NoError(t, s.DB().QueryRow(
		"SELECT archive FROM documents WHERE id = 'a'").Scan(&archive))
	assert.Equal(t, `{"a":1,"z":"<tag>"}`, archive)
}

func TestReadByID_Malformed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.DB().Exec(
		"INSERT INTO documents (collection, id, archive, seq) VALUES ('c', 'bad', '{\"f\":1.5}', 1)")
	require.NoError(t, err)

	_, err = s.ReadByID(ctx, "c", "bad")
	assert.ErrorIs(t, err, record.ErrMalformed)

	entries, err := s.ReadAll(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func seedMessages(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	rows := []map[string]any{
		{"uid": "m1", "room": "general", "ts": 30, "pinned": true, "author": "bob"},
		{"uid": "m2", "room": "general", "ts": 10, "pinned": false, "author": "Alice"},
		{"uid": "m3", "room": "random", "ts": 20, "author": "carol"},
		{"uid": "m4", "room": "general", "ts": 20, "author": "alice"},
		{"uid": "m5", "room": "gen", "ts": "late"},
	}
	for _, fields := range rows {
		d, err := record.NewDocument(fields["uid"].(string), fields)
		require.NoError(t, err)
		require.NoError(t, s.Write(ctx, "messages", d.UID(), d.Archive()))
	}
}

func ids(entries []store.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

// TestFind_MatchesGoEvaluation runs each spec through SQL pushdown and
// through queryir.Build over a full scan; both must return the same ids in
// the same order.
func TestFind_MatchesGoEvaluation(t *testing.T) {
	s := createTestStore(t)
	seedMessages(t, s)
	ctx := context.Background()

	specs := []*queryir.Spec{
		{Where: queryir.Equals{Field: "room", Value: record.String("general")}},
		{Where: queryir.Compare{Field: "ts", Op: queryir.OpGE, Value: record.Int(20)}},
		{Where: queryir.Compare{Field: "ts", Op: queryir.OpNE, Value: record.Int(20)}},
		{Where: queryir.Prefix{Field: "room", Prefix: "gen"}},
		{Where: queryir.Exists{Field: "pinned"}},
		{Where: queryir.Equals{Field: "pinned", Value: record.Bool(false)}},
		{Where: queryir.Compare{Field: "uid", Op: queryir.OpGT, Value: record.String("m2")}},
		{Order: []queryir.OrderKey{{Field: "ts"}}},
		{Order: []queryir.OrderKey{{Field: "ts", Desc: true}, {Field: "room"}}},
		{Order: []queryir.OrderKey{{Field: "pinned"}}},
		{Order: []queryir.OrderKey{{Field: "ts"}}, Window: &queryir.Window{Start: 1, Length: 2}},
		{
			Where: queryir.And{Predicates: []queryir.Predicate{
				queryir.Equals{Field: "room", Value: record.String("general")},
				queryir.Compare{Field: "ts", Op: queryir.OpLT, Value: record.Int(30)},
			}},
			Order: []queryir.OrderKey{{Field: "ts", Desc: true}},
		},
	}

	for i, spec := range specs {
		spec.Name = "spec"
		spec.Collection = "messages"

		_, compileErr := querysql.Compile(spec)
		require.NoError(t, compileErr, "spec %d should push down", i)

		pushed, err := s.Find(ctx, spec)
		require.NoError(t, err)
		scanned, err := s.findScan(ctx, spec)
		require.NoError(t, err)

		assert.Equal(t, ids(scanned), ids(pushed), "spec %d", i)
	}
}

func TestFind_CollationFallsBackToScan(t *testing.T) {
	s := createTestStore(t)
	seedMessages(t, s)

	got, err := s.Find(context.Background(), &queryir.Spec{
		Name:       "by-author",
		Collection: "messages",
		Where:      queryir.Exists{Field: "author"},
		Order:      []queryir.OrderKey{{Field: "author", Collation: "en"}},
	})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "carol", mustString(t, got[3].Archive, "author"))
}

func TestFind_InvalidSpec(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Find(context.Background(), &queryir.Spec{Name: "x"})
	assert.Error(t, err)
}

func mustString(t *testing.T, a record.Archive, field string) string {
	t.Helper()
	v, ok := a.String(field)
	require.True(t, ok)
	return v
}
