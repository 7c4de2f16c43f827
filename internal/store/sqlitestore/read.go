package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/livedoc/internal/queryir"
	"github.com/roach88/livedoc/internal/querysql"
	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
)

// ReadAll returns every row of a collection ordered by id.
func (s *Store) ReadAll(ctx context.Context, collection string) ([]store.Entry, error) {
	rows, err := s.query(ctx, `
		SELECT id, archive FROM documents
		WHERE collection = ?
		ORDER BY id ASC COLLATE BINARY
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("read all %s: %w", collection, err)
	}
	return s.scanEntries(rows)
}

// ReadByID returns one archive or store.ErrNotFound.
func (s *Store) ReadByID(ctx context.Context, collection, id string) (record.Archive, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var archive string
	err := s.db.QueryRowContext(ctx,
		"SELECT archive FROM documents WHERE collection = ? AND id = ?", collection, id,
	).Scan(&archive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", collection, id, err)
	}

	a, err := record.ParseArchive([]byte(archive))
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w: %v", collection, id, record.ErrMalformed, err)
	}
	return a, nil
}

// Count returns the number of rows in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE collection = ?", collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Find evaluates a spec inside SQLite when it can be pushed down, and in Go
// over a full scan otherwise. Results are identical either way.
func (s *Store) Find(ctx context.Context, spec *queryir.Spec) ([]store.Entry, error) {
	if errs := queryir.Validate(spec); len(errs) > 0 {
		return nil, fmt.Errorf("find %s: %w", spec.Name, errs[0])
	}

	plan, err := querysql.Compile(spec)
	if errors.Is(err, querysql.ErrNotPushable) {
		s.logger.Debug("find falls back to scan", "query", spec.Name, "reason", err)
		return s.findScan(ctx, spec)
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", spec.Name, err)
	}

	rows, err := s.query(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", spec.Name, err)
	}
	return s.scanEntries(rows)
}

func (s *Store) findScan(ctx context.Context, spec *queryir.Spec) ([]store.Entry, error) {
	q, err := queryir.Build(spec)
	if err != nil {
		return nil, err
	}
	entries, err := s.ReadAll(ctx, spec.Collection)
	if err != nil {
		return nil, err
	}

	docs := make([]record.Document, 0, len(entries))
	byID := make(map[string]record.Archive, len(entries))
	for _, e := range entries {
		d, err := record.DecodeDocument(e.ID, e.Archive)
		if err != nil {
			s.logger.Warn("skipping malformed record", "collection", spec.Collection, "id", e.ID, "error", err)
			continue
		}
		docs = append(docs, d)
		byID[e.ID] = e.Archive
	}

	matched := q.Apply(docs)
	out := make([]store.Entry, len(matched))
	for i, d := range matched {
		out[i] = store.Entry{ID: d.UID(), Archive: byID[d.UID()]}
	}
	return out, nil
}

func (s *Store) scanEntries(rows *sql.Rows) ([]store.Entry, error) {
	defer rows.Close()

	var out []store.Entry
	for rows.Next() {
		var id, archive string
		if err := rows.Scan(&id, &archive); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		a, err := record.ParseArchive([]byte(archive))
		if err != nil {
			s.logger.Warn("skipping unparseable archive", "id", id, "error", err)
			continue
		}
		out = append(out, store.Entry{ID: id, Archive: a})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return out, nil
}
