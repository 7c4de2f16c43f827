package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_Archive(t *testing.T) {
	a := Archive{
		"text":    String("a<b>&c"),
		"count":   Int(-4),
		"enabled": Bool(true),
	}

	data, err := MarshalCanonical(a)
	require.NoError(t, err)
	assert.Equal(t, `{"count":-4,"enabled":true,"text":"a<b>&c"}`, string(data))
}

func TestMarshalCanonical_Escapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"quote and backslash", `a"b\c`, `"a\"b\\c"`},
		{"newline and tab", "a\nb\tc", `"a\nb\tc"`},
		{"control char", "\x01", `"\u0001"`},
		{"line separator kept literal", "a\u2028b", "\"a\u2028b\""},
		{"nfc normalized", "e\u0301", "\"\u00e9\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestMarshalCanonical_Trace(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{
		"name":   "s",
		"events": []string{"begin", "add <0,0>", "end"},
		"steps":  []any{map[string]any{"n": 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"events":["begin","add <0,0>","end"],"name":"s","steps":[{"n":1}]}`, string(data))
}

func TestMarshalCanonical_RejectsFloatAndNull(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"f": 1.5})
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)
}

func TestMarshalCanonical_RoundTrip(t *testing.T) {
	a := Archive{"uid": String("x"), "n": Int(7), "flag": Bool(false)}
	data, err := MarshalCanonical(a)
	require.NoError(t, err)

	back, err := ParseArchive(data)
	require.NoError(t, err)
	assert.True(t, a.Equal(back))
}
