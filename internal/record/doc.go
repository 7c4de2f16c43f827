// Package record defines the value model shared by every store backend and
// by the live view layer.
//
// A record is any Go type implementing Model: it has a stable string
// identifier and can render itself as an Archive, a flat map from field name
// to primitive Value. Archives are what the stores persist; Type binds a Go
// type to a collection name and a decoder back from the archive form.
//
// Key design constraints:
//   - Values are primitives only: String, Int (int64) and Bool
//   - No floats: numbers decode as int64 or fail, so the canonical encoding
//     is byte-stable across backends
//   - Archives are treated as immutable once handed to a store; use Clone
//     before editing one you did not build
package record
