package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
	"github.com/roach88/livedoc/internal/store/boltstore"
	"github.com/roach88/livedoc/internal/store/memstore"
	"github.com/roach88/livedoc/internal/store/pgstore"
	"github.com/roach88/livedoc/internal/store/sqlitestore"
)

// openBackend opens the configured store. The memory backend lives only as
// long as the process.
func openBackend(ctx context.Context, cfg StoreConfig, logger *slog.Logger) (store.Backend, error) {
	switch cfg.Backend {
	case BackendMemory:
		return memstore.New(), nil
	case BackendSQLite:
		s, err := sqlitestore.Open(cfg.Path, sqlitestore.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
		}
		return s, nil
	case BackendBolt:
		s, err := boltstore.Open(cfg.Path, boltstore.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open bolt %s: %w", cfg.Path, err)
		}
		return s, nil
	case BackendPostgres:
		s, err := pgstore.Open(ctx, cfg.DSN, pgstore.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// withBackend opens the configured backend for the duration of fn.
func withBackend(ctx context.Context, opts *RootOptions, fn func(store.Backend) error) error {
	cfg, err := opts.Config()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	backend, err := openBackend(ctx, cfg.Store, slog.Default())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()
	return fn(backend)
}

func documents(b store.Backend, collection string) *store.Collection[record.Document] {
	return store.Bind(b, record.DocumentType(collection), store.WithLogger(slog.Default()))
}
