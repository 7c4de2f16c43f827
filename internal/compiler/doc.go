// Package compiler turns CUE query definitions into queryir specs.
//
// A query lives under the top-level "query" struct, keyed by name:
//
//	package app
//
//	query: general_recent: {
//		collection: "messages"
//		where: [
//			{field: "channel", eq: "general"},
//			{field: "created", gt: 100},
//		]
//		order: [{field: "created", desc: true}]
//		window: {start: 0, length: 20}
//	}
//
// Each where clause names a field and exactly one operator: eq, ne, lt, le,
// gt, ge, prefix or exists. Clauses are conjunctive. Values are strings,
// integers or booleans; floats are rejected. Order keys take an optional
// desc flag and a BCP 47 collation tag.
//
// Uses the CUE SDK's Go API directly, not the cue CLI.
package compiler
