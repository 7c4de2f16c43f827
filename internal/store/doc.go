// Package store defines the storage contract live views are built on and the
// change feed every backend publishes through.
//
// A Backend persists archives keyed by (collection, id) and announces every
// write and delete on its Hub. Backends live in sub-packages:
//   - memstore: maps, for tests and scenarios
//   - sqlitestore: WAL SQLite, canonical JSON column, SQL pushdown
//   - boltstore: bbolt, one bucket per collection
//   - pgstore: Postgres jsonb with a LISTEN/NOTIFY feed shared between processes
//
// # Change Feed
//
// Every change is stamped with a seq from the hub's logical clock and
// appended to each subscriber's unbounded queue, so a writer never waits on
// a slow reader. A Subscription remembers the seq of the last change queued
// to it; live views use that watermark to implement Sync.
//
// Collection binds a Backend to a record.Type and is the typed read/write
// surface a live view consumes.
package store
