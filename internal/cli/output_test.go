package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/record"
)

func TestPrinter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &Printer{Format: "json", Out: buf}

	require.NoError(t, formatter.Success(map[string]int{"count": 3}))

	var resp Envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"count": float64(3)}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestPrinter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &Printer{Format: "json", Out: buf}

	require.NoError(t, formatter.Error(ErrCodeNotFound, "record not found", map[string]string{"id": "t1"}))

	var resp Envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "record not found", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestPrinter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &Printer{Format: "text", Out: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error(ErrCodeStore, "disk full", "tasks/t1"))
			assert.Contains(t, buf.String(), "Error [STORE]: disk full")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details: tasks/t1")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestPrinter_VerbosefGoesToDiag(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}
	formatter := &Printer{Format: "json", Out: out, Diag: diag, Verbose: true}

	formatter.Verbosef("wrote %s", "tasks/t1")

	assert.Empty(t, out.String())
	assert.Equal(t, "wrote tasks/t1\n", diag.String())

	quiet := &Printer{Format: "text", Out: out}
	quiet.Verbosef("hidden")
	assert.Empty(t, out.String())
}

func TestPrintArchive(t *testing.T) {
	doc, err := record.NewDocument("t1", map[string]any{"title": "ship", "done": false})
	require.NoError(t, err)

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, printArchive(&Printer{Format: "text", Out: buf}, doc.Archive()))
		assert.Equal(t, `{"done":false,"title":"ship","uid":"t1"}`+"\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, printArchive(&Printer{Format: "json", Out: buf}, doc.Archive()))
		assert.JSONEq(t, `{"status":"ok","data":{"done":false,"title":"ship","uid":"t1"}}`, buf.String())
	})
}

func TestPrintDocuments_Text(t *testing.T) {
	a, err := record.NewDocument("a", map[string]any{"n": 1})
	require.NoError(t, err)
	b, err := record.NewDocument("b", map[string]any{"n": 2})
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, printDocuments(&Printer{Format: "text", Out: buf}, []record.Document{a, b}))
	assert.Equal(t, "{\"n\":1,\"uid\":\"a\"}\n{\"n\":2,\"uid\":\"b\"}\n", buf.String())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, ExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, ExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitFailure, "failed"))))
	assert.Equal(t, ExitFailure, ExitCode(fmt.Errorf("plain")))

	err := WrapExitError(ExitFailure, "write failed", fmt.Errorf("disk full"))
	assert.Equal(t, "write failed: disk full", err.Error())
}
