package query

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

type item struct {
	id    string
	group int
}

func byGroup(a, b item) bool { return a.group < b.group }

func ids(items []item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.id
	}
	return out
}

func TestApply_EmptyInput(t *testing.T) {
	queries := map[string]Query[item]{
		"none":   New[item](),
		"filter": New(Where(func(item) bool { return true })),
		"order":  New(OrderBy(byGroup)),
		"window": New[item](Limit[item](0, 5)),
		"all": New(
			Where(func(i item) bool { return i.group > 0 }),
			OrderBy(byGroup),
			Limit[item](2, 3),
		),
	}

	for name, q := range queries {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, q.Apply(nil))
			assert.Empty(t, q.Apply([]item{}))
		})
	}
}

func TestApply_WindowLargerThanInput(t *testing.T) {
	var in []item
	for i := 0; i < 7; i++ {
		in = append(in, item{id: strconv.Itoa(i)})
	}

	out := New[item](Limit[item](0, 10)).Apply(in)
	assert.Equal(t, ids(in), ids(out))
}

func TestApply_WindowStartPastEnd(t *testing.T) {
	in := []item{{id: "a"}, {id: "b"}}

	assert.Empty(t, New[item](Limit[item](2, 1)).Apply(in))
	assert.Empty(t, New[item](Limit[item](10, 1)).Apply(in))
}

func TestApply_NegativeWindowClamped(t *testing.T) {
	in := []item{{id: "a"}, {id: "b"}, {id: "c"}}

	assert.Empty(t, New[item](Limit[item](0, -1)).Apply(in))
	assert.Equal(t, []string{"a", "b"}, ids(New[item](Limit[item](-4, 2)).Apply(in)))
}

func TestApply_WindowMiddle(t *testing.T) {
	in := []item{{id: "a"}, {id: "b"}, {id: "c"}, {id: "d"}}

	out := New[item](Limit[item](1, 2)).Apply(in)
	assert.Equal(t, []string{"b", "c"}, ids(out))
}

func TestApply_StableTies(t *testing.T) {
	in := []item{
		{id: "x", group: 2},
		{id: "a", group: 1},
		{id: "y", group: 2},
		{id: "b", group: 1},
		{id: "z", group: 2},
	}

	out := New(OrderBy(byGroup)).Apply(in)
	assert.Equal(t, []string{"a", "b", "x", "y", "z"}, ids(out))
}

func TestApply_FilterThenOrderThenWindow(t *testing.T) {
	in := []item{
		{id: "3", group: 3},
		{id: "skip", group: -1},
		{id: "1", group: 1},
		{id: "2", group: 2},
		{id: "0", group: 0},
	}

	q := New(
		Where(func(i item) bool { return i.group >= 0 }),
		OrderBy(byGroup),
		Limit[item](0, 3),
	)
	assert.Equal(t, []string{"0", "1", "2"}, ids(q.Apply(in)))
}

func TestApply_DoesNotModifyInput(t *testing.T) {
	in := []item{{id: "b", group: 2}, {id: "a", group: 1}}

	New(OrderBy(byGroup)).Apply(in)
	assert.Equal(t, []string{"b", "a"}, ids(in))
}

func TestAccepts(t *testing.T) {
	assert.True(t, New[item]().Accepts(item{}))

	q := New(Where(func(i item) bool { return i.id != "" }))
	assert.False(t, q.Accepts(item{}))
	assert.True(t, q.Accepts(item{id: "x"}))
}
