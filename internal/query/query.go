// Package query describes which records a live view exposes: a filter, a
// strict ordering and a window. Applying a Query is a pure function.
package query

import (
	"slices"
)

// Window is an offset+length slice applied after filtering and ordering.
type Window struct {
	Start  int
	Length int
}

// Query is an immutable description of a result set over records of type T.
// Every stage is optional; a nil Filter keeps everything, a nil Less keeps
// input order and a nil Window keeps the whole sequence.
type Query[T any] struct {
	filter func(T) bool
	less   func(a, b T) bool
	window *Window
}

// Option configures a Query at construction.
type Option[T any] func(*Query[T])

// Where sets the filter predicate.
func Where[T any](pred func(T) bool) Option[T] {
	return func(q *Query[T]) {
		q.filter = pred
	}
}

// OrderBy sets the strict less-than comparator. Ties keep input order.
func OrderBy[T any](less func(a, b T) bool) Option[T] {
	return func(q *Query[T]) {
		q.less = less
	}
}

// Limit sets the window [start, start+length). A negative start or length
// is clamped to 0, so Limit(0, -1) matches nothing.
func Limit[T any](start, length int) Option[T] {
	return func(q *Query[T]) {
		q.window = &Window{Start: max(start, 0), Length: max(length, 0)}
	}
}

// New builds a Query. New[T]() with no options matches every record.
func New[T any](opts ...Option[T]) Query[T] {
	var q Query[T]
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// Accepts reports whether r passes the filter.
func (q Query[T]) Accepts(r T) bool {
	return q.filter == nil || q.filter(r)
}

// Apply filters, stable-sorts and windows records into a new slice. The
// input is never modified. A window starting at or past the end yields an
// empty result, never an error.
func (q Query[T]) Apply(records []T) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		if q.Accepts(r) {
			out = append(out, r)
		}
	}

	if q.less != nil {
		slices.SortStableFunc(out, func(a, b T) int {
			switch {
			case q.less(a, b):
				return -1
			case q.less(b, a):
				return 1
			default:
				return 0
			}
		})
	}

	if q.window != nil {
		start := q.window.Start
		if start >= len(out) {
			return out[:0]
		}
		end := min(start+q.window.Length, len(out))
		out = out[start:end]
	}
	return out
}
