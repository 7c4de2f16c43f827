package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/compiler"
)

func runValidateCmd(t *testing.T, format, dir string, verbose bool) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format, Verbose: verbose})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{dir})
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestValidateValidQueries(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tasks.cue"), tasksCUE)

	out, _, err := runValidateCmd(t, "text", dir, false)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All 2 queries valid")
}

func TestValidateValidQueriesJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tasks.cue"), tasksCUE)

	out, _, err := runValidateCmd(t, "json", dir, false)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, []string{"first_title", "urgent"}, resp.Data.Queries)
}

func TestValidateVerboseGoesToStderr(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tasks.cue"), tasksCUE)

	out, errOut, err := runValidateCmd(t, "json", dir, true)
	require.NoError(t, err)
	assert.NotContains(t, out, "Found")
	assert.Contains(t, errOut, "Found 1 CUE file(s)")
	assert.Contains(t, errOut, "Valid query: urgent (collection tasks)")
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, _, err := runValidateCmd(t, "text", "/nonexistent/queries", false)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.Contains(t, out, compiler.ErrCodeNotFound)
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, _, err := runValidateCmd(t, "text", t.TempDir(), false)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.Contains(t, out, compiler.ErrCodeNoFiles)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.cue"), `package queries

query: float_value: { collection: "c", where: [{field: "a", eq: 1.5}] }
query: no_collection: { order: [{field: "a"}] }
query: fine: collection: "c"
`)

	out, _, err := runValidateCmd(t, "json", dir, false)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, []string{"fine"}, resp.Data.Queries)

	codes := make([]string, len(resp.Data.Errors))
	for i, issue := range resp.Data.Errors {
		codes[i] = issue.Code
		assert.NotEmpty(t, issue.Message)
	}
	assert.ElementsMatch(t, []string{compiler.ErrCodeValue, compiler.ErrCodeCollection}, codes)
}

func TestValidateTextShowsPositions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.cue"), `package queries

query: float_value: { collection: "c", where: [{field: "a", eq: 1.5}] }
`)

	out, _, err := runValidateCmd(t, "text", dir, false)
	require.Error(t, err)
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "bad.cue:3")
	assert.Contains(t, out, compiler.ErrCodeValue)
}
