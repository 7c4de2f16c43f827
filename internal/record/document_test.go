package record

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_ArchiveCarriesUID(t *testing.T) {
	doc, err := NewDocument("m-1", map[string]any{"text": "hi", "uid": "ignored"})
	require.NoError(t, err)

	a := doc.Archive()
	uid, ok := a.String(UIDField)
	require.True(t, ok)
	assert.Equal(t, "m-1", uid)
	assert.NotContains(t, doc.Fields, UIDField)
}

func TestDecodeDocument(t *testing.T) {
	doc, err := DecodeDocument("m-1", Archive{"uid": String("m-1"), "text": String("hi")})
	require.NoError(t, err)
	assert.Equal(t, "m-1", doc.UID())
	assert.Equal(t, Archive{"text": String("hi")}, doc.Fields)

	v, ok := doc.Get(UIDField)
	require.True(t, ok)
	assert.Equal(t, String("m-1"), v)
}

func TestDecodeDocument_UIDMismatch(t *testing.T) {
	_, err := DocumentType("messages").DecodeArchive("m-1", Archive{"uid": String("other")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDecodeDocument_UIDWrongKind(t *testing.T) {
	_, err := DocumentType("messages").DecodeArchive("m-1", Archive{"uid": Int(1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
	assert.Contains(t, err.Error(), "messages/m-1")
}

func TestType_NoDecoder(t *testing.T) {
	_, err := Type[Document]{Name: "x"}.DecodeArchive("1", Archive{})
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestNewID_IsUUIDv7(t *testing.T) {
	id := NewID()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, id, NewID())
}
