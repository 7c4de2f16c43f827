package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/livedoc/internal/compiler"
	"github.com/roach88/livedoc/internal/relay"
	"github.com/roach88/livedoc/internal/server"
	"github.com/roach88/livedoc/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve <queries-dir>",
		Short: "Serve records and live queries over HTTP",
		Long: `Start the HTTP server: REST access to records under /v1/collections and
a websocket per named query under /v1/watch/{query}.

Example:
  livedoc serve ./queries --listen :8081
  livedoc serve ./queries --config livedoc.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides server.listen)")

	return cmd
}

func runServe(opts *ServeOptions, queriesDir string, cmd *cobra.Command) error {
	cfg, err := opts.Config()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}

	slog.Info("loading queries", "dir", queriesDir)
	loaded, errs := compiler.LoadQueries(queriesDir, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return WrapExitError(ExitCommandError, "failed to load queries", errs[0])
	}
	slog.Info("queries loaded", "count", len(loaded.Queries))

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	return withBackend(ctx, opts.RootOptions, func(b store.Backend) error {
		stopRelay, err := startRelay(ctx, cfg.Relay, b.Hub())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start relay", err)
		}
		defer stopRelay()

		srv := server.New(b, loaded.Queries, server.WithLogger(slog.Default()))
		fmt.Fprintf(cmd.OutOrStdout(), "Serving %d queries on %s\n", len(loaded.Queries), cfg.Server.Listen)
		if err := srv.ListenAndServe(ctx, cfg.Server.Listen); err != nil && !errors.Is(err, context.Canceled) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		slog.Info("server stopped gracefully")
		return nil
	})
}

// startRelay bridges hub to redis when an address is configured. The
// returned func stops the relay and waits for it.
func startRelay(ctx context.Context, cfg RelayConfig, hub *store.Hub) (func(), error) {
	if cfg.RedisAddr == "" {
		return func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}

	r := relay.New(client, hub, relay.WithChannel(cfg.Channel), relay.WithLogger(slog.Default()))
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := r.Run(ctx); err != nil {
			slog.Error("relay stopped", "error", err)
		}
	}()
	slog.Info("relay started", "redis", cfg.RedisAddr, "channel", cfg.Channel, "node", r.Node())

	return func() {
		cancel()
		<-done
		if err := client.Close(); err != nil {
			slog.Warn("error closing redis client", "error", err)
		}
	}, nil
}
