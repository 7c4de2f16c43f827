package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/livedoc/internal/compiler"
	"github.com/roach88/livedoc/internal/queryir"
	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/server"
	"github.com/roach88/livedoc/internal/store"
	"github.com/roach88/livedoc/internal/view"
)

// ErrCodeQuery reports a query that failed to load or build.
const ErrCodeQuery = "QUERY"

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <queries-dir> <name>",
		Short: "Run a named query once",
		Long: `Load the CUE queries in <queries-dir> and print the current result of
<name>, in query order.

Example:
  livedoc query ./queries open_tasks
  livedoc query ./queries top_ten --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			spec, err := loadSpec(formatter, args[0], args[1])
			if err != nil {
				return err
			}
			return withBackend(cmd.Context(), rootOpts, func(b store.Backend) error {
				docs, err := runSpec(cmd.Context(), b, spec)
				if err != nil {
					_ = formatter.Error(ErrCodeStore, err.Error(), nil)
					return WrapExitError(ExitFailure, "query failed", err)
				}
				formatter.Verbosef("%s matched %d record(s)", spec.Name, len(docs))
				return printDocuments(formatter, docs)
			})
		},
	}
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <queries-dir> <name>",
		Short: "Follow a named query as the store changes",
		Long: `Print the current result of <name>, then one line per change event
until interrupted.

Changes made by other processes are seen when the backend has a native
feed (postgres) or when relay.redis_addr is configured.

Text output:
  snapshot 2
  begin
  add <0,0> {"title":"new","uid":"t3"}
  remove <2,0>
  end`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			spec, err := loadSpec(formatter, args[0], args[1])
			if err != nil {
				return err
			}
			q, err := queryir.Build(spec)
			if err != nil {
				_ = formatter.Error(ErrCodeQuery, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid query", err)
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withBackend(ctx, rootOpts, func(b store.Backend) error {
				cfg, err := rootOpts.Config()
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid configuration", err)
				}
				stopRelay, err := startRelay(ctx, cfg.Relay, b.Hub())
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to start relay", err)
				}
				defer stopRelay()

				v, err := view.New(ctx, q, documents(b, spec.Collection), view.WithLogger(slog.Default()))
				if err != nil {
					return WrapExitError(ExitFailure, "failed to open view", err)
				}
				defer v.Close()

				p := &eventPrinter{w: cmd.OutOrStdout(), asJSON: formatter.Format == "json", view: v, query: spec.Name}
				v.Attach(p, p.snapshot)

				<-ctx.Done()
				return p.err()
			})
		},
	}
}

func loadSpec(formatter *Printer, dir, name string) (*queryir.Spec, error) {
	spec, err := compiler.LoadQuery(dir, name)
	if err != nil {
		code := ErrCodeQuery
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) {
			code = loadErr.Code
		}
		_ = formatter.Error(code, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load query", err)
	}
	return spec, nil
}

// runSpec evaluates spec once, in the store when the backend can.
func runSpec(ctx context.Context, b store.Backend, spec *queryir.Spec) ([]record.Document, error) {
	coll := documents(b, spec.Collection)
	if f, ok := b.(server.Finder); ok {
		entries, err := f.Find(ctx, spec)
		if err != nil {
			return nil, err
		}
		return coll.Decode(entries), nil
	}

	q, err := queryir.Build(spec)
	if err != nil {
		return nil, err
	}
	docs, err := coll.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return q.Apply(docs), nil
}

// signalContext is cancelled by SIGINT, SIGTERM or the parent.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// eventPrinter renders view events as lines. JSON mode writes one
// server.Message per line, the same frames the websocket endpoint sends.
type eventPrinter struct {
	w      io.Writer
	asJSON bool
	view   *view.LiveView[record.Document]
	query  string

	mu       sync.Mutex
	writeErr error
}

func (p *eventPrinter) snapshot(records []record.Document) {
	if p.asJSON {
		archives := make([]record.Archive, len(records))
		for i, r := range records {
			archives[i] = r.Archive()
		}
		p.message(server.Message{Type: server.MsgSnapshot, Query: p.query, Records: archives})
		return
	}
	p.line(fmt.Sprintf("snapshot %d", len(records)))
	for _, r := range records {
		p.line(canonicalLine(r.Archive()))
	}
}

func (p *eventPrinter) BeginBatch()                { p.simple(server.MsgBegin) }
func (p *eventPrinter) EndBatch()                  { p.simple(server.MsgEnd) }
func (p *eventPrinter) Removed(ps []view.Position) { p.event(server.MsgRemove, ps, false) }
func (p *eventPrinter) Added(ps []view.Position)   { p.event(server.MsgAdd, ps, true) }
func (p *eventPrinter) Updated(ps []view.Position) { p.event(server.MsgUpdate, ps, true) }

func (p *eventPrinter) simple(typ string) {
	if p.asJSON {
		p.message(server.Message{Type: typ})
		return
	}
	p.line(typ)
}

func (p *eventPrinter) event(typ string, ps []view.Position, withRecords bool) {
	if p.asJSON {
		m := server.Message{Type: typ, Positions: ps}
		if withRecords {
			for _, pos := range ps {
				if a, ok := p.archiveAt(pos); ok {
					m.Records = append(m.Records, a)
				}
			}
		}
		p.message(m)
		return
	}
	for _, pos := range ps {
		line := fmt.Sprintf("%s <%d,%d>", typ, pos.Row, pos.Section)
		if withRecords {
			if a, ok := p.archiveAt(pos); ok {
				line += " " + canonicalLine(a)
			}
		}
		p.line(line)
	}
}

func (p *eventPrinter) archiveAt(pos view.Position) (record.Archive, bool) {
	r, err := p.view.At(pos.Row)
	if err != nil {
		slog.Warn("position out of range", "row", pos.Row, "error", err)
		return nil, false
	}
	return r.Archive(), true
}

func (p *eventPrinter) message(m server.Message) {
	data, err := json.Marshal(m)
	if err != nil {
		p.fail(err)
		return
	}
	p.line(string(data))
}

func (p *eventPrinter) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return
	}
	if _, err := fmt.Fprintln(p.w, s); err != nil {
		p.writeErr = err
	}
}

func (p *eventPrinter) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr == nil {
		p.writeErr = err
	}
}

func (p *eventPrinter) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeErr
}

func canonicalLine(a record.Archive) string {
	data, err := record.MarshalCanonical(a)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

var _ view.Delegate = (*eventPrinter)(nil)
