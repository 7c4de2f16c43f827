package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
)

// Write upserts an archive. The row's seq is the seq of the published change.
func (s *Store) Write(ctx context.Context, collection, id string, a record.Archive) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	archive, err := record.MarshalCanonical(a)
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, id, err)
	}

	change := store.Change{Collection: collection, ID: id, Kind: store.Modified}
	_, err = s.hub.PublishWith(change, func(seq int64) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO documents (collection, id, archive, seq)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(collection, id) DO UPDATE SET
				archive = excluded.archive,
				seq = excluded.seq
		`, collection, id, string(archive), seq)
		return err
	})
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes one row. Deleting an absent id publishes nothing.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	errAbsent := errors.New("absent")
	change := store.Change{Collection: collection, ID: id, Kind: store.Removed}
	_, err := s.hub.PublishWith(change, func(int64) error {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM documents WHERE collection = ? AND id = ?", collection, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errAbsent
		}
		return nil
	})
	if errors.Is(err, errAbsent) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Truncate deletes every row of a collection in one transaction and
// publishes Removed for each deleted id in id order. The transaction and
// the deliveries run under the hub lock, so no write to the collection can
// slip in between.
func (s *Store) Truncate(ctx context.Context, collection string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	changes, err := s.hub.PublishAllWith(func(stamp func(store.Change) store.Change) error {
		ids, err := s.truncateTx(ctx, collection)
		if err != nil {
			return err
		}
		for _, id := range ids {
			stamp(store.Change{Collection: collection, ID: id, Kind: store.Removed})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("truncate %s: %w", collection, err)
	}
	s.logger.Debug("truncated", "collection", collection, "removed", len(changes))
	return nil
}

func (s *Store) truncateTx(ctx context.Context, collection string) (ids []string, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	ids, err = scanIDs(tx.QueryContext(ctx,
		"SELECT id FROM documents WHERE collection = ? ORDER BY id ASC COLLATE BINARY", collection))
	if err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM documents WHERE collection = ?", collection); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

func scanIDs(rows *sql.Rows, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
