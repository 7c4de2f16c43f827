package querysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/queryir"
	"github.com/roach88/livedoc/internal/record"
)

func TestCompile_CollectionOnly(t *testing.T) {
	plan, err := Compile(&queryir.Spec{Name: "all", Collection: "messages"})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, archive FROM documents WHERE collection = ? ORDER BY id ASC COLLATE BINARY",
		plan.SQL)
	assert.Equal(t, []any{"messages"}, plan.Args)
}

func TestCompile_Equals(t *testing.T) {
	tests := []struct {
		name     string
		value    record.Value
		wantSQL  string
		wantArgs []any
	}{
		{
			"string",
			record.String("general"),
			"(json_type(archive, ?) = 'text' AND json_extract(archive, ?) = ? COLLATE BINARY)",
			[]any{"messages", "$.room", "$.room", "general"},
		},
		{
			"int",
			record.Int(3),
			"(json_type(archive, ?) = 'integer' AND json_extract(archive, ?) = ?)",
			[]any{"messages", "$.room", "$.room", int64(3)},
		},
		{
			"bool",
			record.Bool(true),
			"(json_type(archive, ?) IN ('true', 'false') AND (CASE json_type(archive, ?) WHEN 'true' THEN 1 ELSE 0 END) = ?)",
			[]any{"messages", "$.room", "$.room", 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Compile(&queryir.Spec{
				Name:       "q",
				Collection: "messages",
				Where:      queryir.Equals{Field: "room", Value: tt.value},
			})
			require.NoError(t, err)
			assert.Contains(t, plan.SQL, "WHERE collection = ? AND "+tt.wantSQL+" ORDER BY")
			assert.Equal(t, tt.wantArgs, plan.Args)
		})
	}
}

func TestCompile_NeverInterpolates(t *testing.T) {
	evil := "x' OR 1=1; DROP TABLE documents; --"
	plan, err := Compile(&queryir.Spec{
		Name:       "q",
		Collection: evil,
		Where: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "room", Value: record.String(evil)},
			queryir.Prefix{Field: "room", Prefix: evil},
		}},
	})
	require.NoError(t, err)
	assert.NotContains(t, plan.SQL, "DROP")
	assert.Contains(t, plan.Args, evil)
}

func TestCompile_UIDUsesIDColumn(t *testing.T) {
	plan, err := Compile(&queryir.Spec{
		Name:       "q",
		Collection: "c",
		Where: queryir.And{Predicates: []queryir.Predicate{
			queryir.Compare{Field: "uid", Op: queryir.OpGE, Value: record.String("m")},
			queryir.Prefix{Field: "uid", Prefix: "mé"},
			queryir.Exists{Field: "uid"},
		}},
	})
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "(id >= ? COLLATE BINARY AND substr(id, 1, ?) = ? AND 1 = 1)")
	assert.Equal(t, []any{"c", "m", 2, "mé"}, plan.Args)
}

func TestCompile_OrderAndWindow(t *testing.T) {
	plan, err := Compile(&queryir.Spec{
		Name:       "q",
		Collection: "c",
		Order:      []queryir.OrderKey{{Field: "ts", Desc: true}},
		Window:     &queryir.Window{Start: 10, Length: 5},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(plan.SQL,
		"json_extract(archive, ?) COLLATE BINARY DESC, id ASC COLLATE BINARY LIMIT ? OFFSET ?"), plan.SQL)
	assert.Equal(t, []any{"c", "$.ts", "$.ts", 5, 10}, plan.Args)
}

func TestCompile_NotPushable(t *testing.T) {
	tests := []struct {
		name string
		spec *queryir.Spec
	}{
		{"collation", &queryir.Spec{Name: "q", Collection: "c", Order: []queryir.OrderKey{{Field: "name", Collation: "en"}}}},
		{"odd field name", &queryir.Spec{Name: "q", Collection: "c", Where: queryir.Exists{Field: "a.b"}}},
		{"quoted field", &queryir.Spec{Name: "q", Collection: "c", Order: []queryir.OrderKey{{Field: `x"`}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.spec)
			assert.ErrorIs(t, err, ErrNotPushable)
		})
	}
}
