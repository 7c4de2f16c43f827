package queryir

import (
	"github.com/roach88/livedoc/internal/record"
)

// Spec is a named, declarative query over one collection.
type Spec struct {
	Name       string
	Collection string

	// Where filters documents; nil keeps everything.
	Where Predicate

	// Order lists sort keys, most significant first.
	Order []OrderKey

	// Window slices the ordered result; nil keeps everything.
	Window *Window
}

// OrderKey is one sort key.
type OrderKey struct {
	Field string
	Desc  bool

	// Collation is a BCP 47 tag ("en", "de-u-co-phonebk"). Empty compares
	// strings by code point.
	Collation string
}

// Window is an offset+length slice.
type Window struct {
	Start  int
	Length int
}

// Predicate is a filter condition. Sealed: only types in this package
// implement it.
type Predicate interface {
	predicateNode()
}

// Equals matches documents whose field holds Value (same kind).
type Equals struct {
	Field string
	Value record.Value
}

func (Equals) predicateNode() {}

// CompareOp is a comparison operator for Compare.
type CompareOp string

const (
	OpLT CompareOp = "lt"
	OpLE CompareOp = "le"
	OpGT CompareOp = "gt"
	OpGE CompareOp = "ge"
	OpNE CompareOp = "ne"
)

// Valid reports whether op is a known operator.
func (op CompareOp) Valid() bool {
	switch op {
	case OpLT, OpLE, OpGT, OpGE, OpNE:
		return true
	}
	return false
}

// Compare matches documents whose field compares to Value as Op says.
// The field must be present and of Value's kind.
type Compare struct {
	Field string
	Op    CompareOp
	Value record.Value
}

func (Compare) predicateNode() {}

// Prefix matches string fields starting with Prefix (byte-wise).
type Prefix struct {
	Field  string
	Prefix string
}

func (Prefix) predicateNode() {}

// Exists matches documents that have the field, whatever its value.
type Exists struct {
	Field string
}

func (Exists) predicateNode() {}

// And matches when every predicate matches. Empty And matches everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
