package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
)

// ReadAll returns the collection ordered by id in byte order.
func (s *Store) ReadAll(ctx context.Context, collection string) ([]store.Entry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, archive::text FROM livedoc_documents
		WHERE collection = $1
		ORDER BY id COLLATE "C"
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("read all %s: %w", collection, err)
	}
	defer rows.Close()

	var out []store.Entry
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("read all %s: %w", collection, err)
		}
		a, err := record.ParseArchive([]byte(raw))
		if err != nil {
			s.logger.Warn("skipping unparseable archive", "collection", collection, "id", id, "error", err)
			continue
		}
		out = append(out, store.Entry{ID: id, Archive: a})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read all %s: %w", collection, err)
	}
	return out, nil
}

// ReadByID implements store.Backend.
func (s *Store) ReadByID(ctx context.Context, collection, id string) (record.Archive, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var raw string
	err := s.pool.QueryRow(ctx,
		"SELECT archive::text FROM livedoc_documents WHERE collection = $1 AND id = $2",
		collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read %s/%s: %w", collection, id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", collection, id, err)
	}
	a, err := record.ParseArchive([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w: %v", collection, id, record.ErrMalformed, err)
	}
	return a, nil
}

// Count implements store.Backend.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var n int
	err := s.pool.QueryRow(ctx,
		"SELECT count(*) FROM livedoc_documents WHERE collection = $1", collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}
