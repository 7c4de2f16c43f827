package pgstore

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
)

var errAbsent = errors.New("absent")

// Write upserts an archive and notifies other nodes in the same
// transaction.
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
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `
				INSERT INTO livedoc_documents (collection, id, archive, seq)
				VALUES ($1, $2, $3::jsonb, $4)
				ON CONFLICT (collection, id) DO UPDATE SET
					archive = EXCLUDED.archive,
					seq = EXCLUDED.seq
			`, collection, id, string(archive), seq)
			if err != nil {
				return err
			}
			return s.notify(ctx, tx, change)
		})
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

	change := store.Change{Collection: collection, ID: id, Kind: store.Removed}
	_, err := s.hub.PublishWith(change, func(int64) error {
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx,
				"DELETE FROM livedoc_documents WHERE collection = $1 AND id = $2", collection, id)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return errAbsent
			}
			return s.notify(ctx, tx, change)
		})
	})
	if errors.Is(err, errAbsent) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Truncate deletes every row in the collection and publishes Removed per
// id, in id order. The transaction and the local deliveries run under the
// hub lock, so no local write to the collection can slip in between.
func (s *Store) Truncate(ctx context.Context, collection string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.hub.PublishAllWith(func(stamp func(store.Change) store.Change) error {
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx,
				"DELETE FROM livedoc_documents WHERE collection = $1 RETURNING id", collection)
			if err != nil {
				return err
			}
			ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
			if err != nil {
				return err
			}
			slices.Sort(ids)
			for _, id := range ids {
				c := stamp(store.Change{Collection: collection, ID: id, Kind: store.Removed})
				if err := s.notify(ctx, tx, c); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("truncate %s: %w", collection, err)
	}
	return nil
}

func (s *Store) notify(ctx context.Context, tx pgx.Tx, c store.Change) error {
	payload, err := store.EncodeNotice(c, s.node)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, "SELECT pg_notify($1, $2)", Channel, string(payload))
	return err
}
