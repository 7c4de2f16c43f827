package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotice_EncodeDecode(t *testing.T) {
	data, err := EncodeNotice(Change{Collection: "c", ID: "1", Kind: Removed, Seq: 9}, "node-a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"collection":"c","id":"1","kind":"removed","origin":"node-a"}`, string(data))

	c, err := DecodeNotice(data)
	require.NoError(t, err)
	assert.Equal(t, Change{Collection: "c", ID: "1", Kind: Removed, Origin: "node-a"}, c)
}

func TestDecodeNotice_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `nope`},
		{"missing origin", `{"collection":"c","id":"1","kind":"removed"}`},
		{"missing id", `{"collection":"c","kind":"removed","origin":"n"}`},
		{"bad kind", `{"collection":"c","id":"1","kind":"renamed","origin":"n"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeNotice([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}
