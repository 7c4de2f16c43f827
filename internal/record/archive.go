package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
)

// Archive is the serializable form of a record: field name to primitive value.
// Field order is irrelevant; use SortedKeys for deterministic iteration.
type Archive map[string]Value

// ArchiveFrom builds an Archive from plain Go values (see ValueOf).
func ArchiveFrom(fields map[string]any) (Archive, error) {
	a := make(Archive, len(fields))
	for k, v := range fields {
		val, err := ValueOf(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		a[k] = val
	}
	return a, nil
}

// Clone returns a shallow copy. Values are immutable so this is a full copy.
func (a Archive) Clone() Archive {
	if a == nil {
		return nil
	}
	c := make(Archive, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// Equal reports whether both archives hold the same fields and values.
func (a Archive) Equal(b Archive) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if !Equal(v, b[k]) {
			return false
		}
	}
	return true
}

// SortedKeys returns keys in canonical order (UTF-16 code units, as RFC 8785
// requires; plain Go string order differs for astral characters).
func (a Archive) SortedKeys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// String returns the field as a string if it is one.
func (a Archive) String(field string) (string, bool) {
	v, ok := a[field].(String)
	return string(v), ok
}

// Int returns the field as an int64 if it is one.
func (a Archive) Int(field string) (int64, bool) {
	v, ok := a[field].(Int)
	return int64(v), ok
}

// Bool returns the field as a bool if it is one.
func (a Archive) Bool(field string) (bool, bool) {
	v, ok := a[field].(Bool)
	return bool(v), ok
}

// Native converts the archive into a map of plain Go values.
func (a Archive) Native() map[string]any {
	m := make(map[string]any, len(a))
	for k, v := range a {
		m[k] = Native(v)
	}
	return m
}

// MarshalJSON renders the archive in canonical form.
func (a Archive) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(a)
}

// UnmarshalJSON decodes a flat JSON object. Integers are kept exact via
// json.Number; floats, nulls and nested values are rejected.
func (a *Archive) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("archive must be a JSON object")
	}

	out, err := ArchiveFrom(raw)
	if err != nil {
		return err
	}
	*a = out
	return nil
}

// ParseArchive decodes canonical (or any flat) JSON into an Archive.
func ParseArchive(data []byte) (Archive, error) {
	var a Archive
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse archive: %w", err)
	}
	return a, nil
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
