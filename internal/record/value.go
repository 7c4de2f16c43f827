package record

import (
	"cmp"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a sealed interface over the primitive field types an Archive may
// hold. Only String, Int and Bool implement it.
type Value interface {
	recordValue()
	// Kind names the primitive type ("string", "int", "bool").
	Kind() string
}

// String is a string field value.
type String string

func (String) recordValue()     {}
func (String) Kind() string     { return "string" }
func (s String) String() string { return string(s) }

// Int is an integer field value. Always int64, never float.
type Int int64

func (Int) recordValue()     {}
func (Int) Kind() string     { return "int" }
func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

// Bool is a boolean field value.
type Bool bool

func (Bool) recordValue()     {}
func (Bool) Kind() string     { return "bool" }
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// Equal reports whether two values have the same kind and content.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	default:
		return a == nil && b == nil
	}
}

// Compare orders two values. Values of different kinds order by kind name so
// that a mixed column still sorts deterministically; nil sorts first.
func Compare(a, b Value) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if a.Kind() != b.Kind() {
		return cmp.Compare(a.Kind(), b.Kind())
	}
	switch av := a.(type) {
	case String:
		return cmp.Compare(av, b.(String))
	case Int:
		return cmp.Compare(av, b.(Int))
	case Bool:
		bv := b.(Bool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	}
	return 0
}

// Native returns the plain Go value (string, int64 or bool) for v.
func Native(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	default:
		return nil
	}
}

// ValueOf converts a plain Go value into a Value.
// Accepts string, bool, every integer kind and json.Number holding an integer.
// Floats, nil and composite values are rejected.
func ValueOf(v any) (Value, error) {
	switch val := v.(type) {
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case json.Number:
		n, err := strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("number %s is not an int64: floats are not allowed", val)
		}
		return Int(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not allowed in archives: %v", val)
	case nil:
		return nil, fmt.Errorf("null is not allowed in archives")
	default:
		return nil, fmt.Errorf("unsupported archive value type: %T", v)
	}
}
