package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveFrom_AcceptsPrimitives(t *testing.T) {
	a, err := ArchiveFrom(map[string]any{
		"text":    "hello",
		"count":   3,
		"big":     int64(1) << 60,
		"enabled": true,
	})
	require.NoError(t, err)

	assert.Equal(t, String("hello"), a["text"])
	assert.Equal(t, Int(3), a["count"])
	assert.Equal(t, Int(1<<60), a["big"])
	assert.Equal(t, Bool(true), a["enabled"])
}

func TestArchiveFrom_RejectsFloatsAndNull(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"float64", 1.5},
		{"float32", float32(2)},
		{"nil", nil},
		{"nested map", map[string]any{"a": "b"}},
		{"slice", []any{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ArchiveFrom(map[string]any{"field": tt.value})
			require.Error(t, err)
			assert.Contains(t, err.Error(), `field "field"`)
		})
	}
}

func TestArchive_UnmarshalJSON(t *testing.T) {
	var a Archive
	err := json.Unmarshal([]byte(`{"uid":"x","n":9007199254740993,"ok":false}`), &a)
	require.NoError(t, err)

	n, ok := a.Int("n")
	require.True(t, ok)
	assert.Equal(t, int64(9007199254740993), n, "large integers must not lose precision")

	b, ok := a.Bool("ok")
	require.True(t, ok)
	assert.False(t, b)
}

func TestArchive_UnmarshalJSON_Rejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"float", `{"n":1.5}`},
		{"exponent", `{"n":1e3}`},
		{"null value", `{"n":null}`},
		{"nested", `{"n":{"a":1}}`},
		{"not an object", `[1,2]`},
		{"null document", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArchive([]byte(tt.json))
			assert.Error(t, err)
		})
	}
}

func TestArchive_CloneIsIndependent(t *testing.T) {
	a := Archive{"k": String("v")}
	c := a.Clone()
	c["k"] = String("changed")

	assert.Equal(t, String("v"), a["k"])
	assert.True(t, a.Equal(Archive{"k": String("v")}))
	assert.False(t, a.Equal(c))
}

func TestArchive_SortedKeysUTF16Order(t *testing.T) {
	// U+1F600 is a surrogate pair in UTF-16 (0xD83D...) and sorts before
	// U+FF21 (0xFF21), the reverse of UTF-8 byte order.
	a := Archive{"Ａ": Int(1), "\U0001F600": Int(2), "a": Int(3)}
	assert.Equal(t, []string{"a", "\U0001F600", "Ａ"}, a.SortedKeys())
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare(Int(1), Int(2)))
	assert.Equal(t, 1, Compare(String("b"), String("a")))
	assert.Equal(t, 0, Compare(Bool(true), Bool(true)))
	assert.Equal(t, -1, Compare(Bool(false), Bool(true)))
	assert.Equal(t, -1, Compare(nil, Int(0)))
	assert.Equal(t, 0, Compare(nil, nil))
	// mixed kinds order by kind name: "bool" < "int" < "string"
	assert.Equal(t, -1, Compare(Bool(true), Int(0)))
	assert.Equal(t, -1, Compare(Int(99), String("0")))
}
