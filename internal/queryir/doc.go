// Package queryir is the declarative form of a live-view query.
//
// A Spec names a collection, a filter predicate, an ordering and a window.
// Specs come from CUE files (internal/compiler), scenario YAML
// (internal/harness) or code. They have two consumers:
//
//	[Spec] → Build         → query.Query[record.Document]   (live views, any backend)
//	       → querysql      → parameterized SQLite            (sqlitestore.Find)
//
// Build and the SQL compiler must agree on which documents match, so
// predicate semantics are strict:
//   - A missing field never matches Equals, Compare or Prefix
//   - Values of different kinds never compare equal or ordered
//   - Prefix applies to strings only
//
// # Sealed Predicates
//
// Predicate is sealed with a marker method so backends can switch on it
// exhaustively:
//
//	switch p := pred.(type) {
//	case Equals, Compare, Prefix, Exists, And:
//	}
//
// # Ordering
//
// Order keys compare field values with record.Compare, or with a
// golang.org/x/text/collate collator when the key names a collation.
// Missing values sort first. The record id is always the final key, so the
// order is total and results are deterministic.
package queryir
