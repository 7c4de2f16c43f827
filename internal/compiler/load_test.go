package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/queryir"
	"github.com/roach88/livedoc/internal/record"
)

func writeCUE(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
}

func TestLoadQueries(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "messages.cue", `
package app

query: recent: {
	collection: "messages"
	order: [{field: "created", desc: true}]
	window: {start: 0, length: 10}
}
`)
	writeCUE(t, dir, "notes.cue", `
package app

query: all_notes: collection: "notes"
`)

	result, errs := LoadQueries(dir, LoadModeCollectAll)
	require.Empty(t, errs)
	assert.Equal(t, 2, result.FileCount)
	require.Len(t, result.Queries, 2)
	assert.Equal(t, "all_notes", result.Queries[0].Name)
	assert.Equal(t, "recent", result.Queries[1].Name)

	spec, ok := result.Lookup("recent")
	require.True(t, ok)
	assert.Equal(t, "messages", spec.Collection)

	_, ok = result.Lookup("missing")
	assert.False(t, ok)
}

func TestLoadQueries_CollectAll(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "q.cue", `
package app

query: bad_value: { collection: "c", where: [{field: "a", eq: 1.5}] }
query: bad_collation: { collection: "c", order: [{field: "a", collation: "!!"}] }
query: ok: collection: "c"
`)

	result, errs := LoadQueries(dir, LoadModeCollectAll)
	require.Len(t, errs, 2)
	require.Len(t, result.Queries, 1)
	assert.Equal(t, "ok", result.Queries[0].Name)

	codes := map[string]bool{}
	for _, err := range errs {
		var le *LoadError
		require.ErrorAs(t, err, &le)
		codes[le.Code] = true
	}
	assert.True(t, codes[queryir.ErrOrderCollation])
	assert.True(t, codes[ErrCodeValue])
}

func TestLoadQueries_FailFast(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "q.cue", `
package app

query: a: { where: [] }
query: b: { where: [] }
`)

	_, errs := LoadQueries(dir, LoadModeFailFast)
	require.Len(t, errs, 1)
	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrCodeCollection, le.Code)
}

func TestLoadQueries_DirectoryErrors(t *testing.T) {
	_, errs := LoadQueries(filepath.Join(t.TempDir(), "nope"), LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeNotFound)

	_, errs = LoadQueries(t.TempDir(), LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeNoFiles)
}

func TestLoadQuery(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "q.cue", "package app\n\nquery: notes: collection: \"notes\"\n")

	spec, err := LoadQuery(dir, "notes")
	require.NoError(t, err)
	assert.Equal(t, "notes", spec.Collection)

	_, err = LoadQuery(dir, "other")
	assert.ErrorContains(t, err, ErrCodeNotFound)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.cue")
	writeCUE(t, filepath.Dir(path), "one.cue", `query: only: { collection: "c", window: {length: 3} }`)

	result, errs := LoadFile(path, LoadModeFailFast)
	require.Empty(t, errs)
	require.Len(t, result.Queries, 1)
	assert.Equal(t, &queryir.Window{Start: 0, Length: 3}, result.Queries[0].Window)
}

func TestCompileSource(t *testing.T) {
	spec, err := CompileSource("inline", `
collection: "items"
where: {field: "n", ge: 2}
`)
	require.NoError(t, err)
	assert.Equal(t, "inline", spec.Name)
	assert.Equal(t, "items", spec.Collection)
	assert.Equal(t, queryir.Compare{Field: "n", Op: queryir.OpGE, Value: record.Int(2)}, spec.Where)

	_, err = CompileSource("bad", `collection: ""`)
	assert.ErrorContains(t, err, queryir.ErrSpecCollectionEmpty)

	_, err = CompileSource("broken", `collection: `)
	assert.Error(t, err)
}
