package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/livedoc/internal/compiler"
	"github.com/roach88/livedoc/internal/queryir"
	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
	"github.com/roach88/livedoc/internal/store/memstore"
	"github.com/roach88/livedoc/internal/testutil"
	"github.com/roach88/livedoc/internal/view"
)

// Error codes reported in traces.
const (
	ErrorOutOfRange = string(view.ErrCodeOutOfRange)
	ErrorNotFound   = string(view.ErrCodeNotFound)
	ErrorMalformed  = string(view.ErrCodeMalformedRecord)
	ErrorStore      = "STORE"
)

// errInjected is what the backend returns for steps with fail_store.
var errInjected = errors.New("injected store failure")

// stepTimeout bounds the wait for a view to reconcile one step.
const stepTimeout = 5 * time.Second

// Harness holds the per-run state of one scenario.
type Harness struct {
	backend *memstore.Store
	coll    *store.Collection[record.Document]
	view    *view.LiveView[record.Document]
	rec     *testutil.Recorder
	logger  *slog.Logger
}

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger for the store and view. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// Run executes a scenario and returns the result. An error means the
// scenario could not be executed at all (bad query, seed rejected);
// expectation failures are reported in the result.
//
// Each scenario runs in a fresh in-memory store for isolation.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	spec, err := resolveQuery(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to compile query: %w", err)
	}
	q, err := queryir.Build(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	ctx := context.Background()
	backend := memstore.New()
	defer backend.Close()
	coll := store.Bind(backend, record.DocumentType(spec.Collection), store.WithLogger(cfg.logger))

	for i, d := range scenario.Seed {
		doc, err := toDocument(d)
		if err != nil {
			return nil, fmt.Errorf("seed[%d]: %w", i, err)
		}
		if err := coll.Write(ctx, doc); err != nil {
			return nil, fmt.Errorf("seed[%d]: %w", i, err)
		}
	}

	rec := testutil.NewRecorder()
	v, err := view.New(ctx, q, coll, view.WithDelegate(rec), view.WithLogger(cfg.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open view: %w", err)
	}
	defer v.Close()

	h := &Harness{backend: backend, coll: coll, view: v, rec: rec, logger: cfg.logger}
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	result.Visible = v.IDs()
	entries, err := backend.ReadAll(ctx, spec.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to read final store: %w", err)
	}
	result.Stored = make([]string, len(entries))
	for i, e := range entries {
		result.Stored[i] = e.ID
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func resolveQuery(s *Scenario) (*queryir.Spec, error) {
	if s.Query != "" {
		return compiler.CompileSource(s.Name, s.Query)
	}
	loaded, errs := compiler.LoadFile(s.QueryFile, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	spec, ok := loaded.Lookup(s.QueryName)
	if !ok {
		return nil, fmt.Errorf("query %q not defined in %s", s.QueryName, s.QueryFile)
	}
	return spec, nil
}

// executeStep runs one step, waits for the view to settle, records the
// trace entry and checks the step's expectations.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	h.rec.Reset()
	if step.FailStore {
		h.backend.FailWrites(errInjected)
	}

	target, opErr, err := h.apply(ctx, step)
	h.backend.FailWrites(nil)
	if err != nil {
		return err
	}

	syncCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	if err := h.view.Sync(syncCtx); err != nil {
		return fmt.Errorf("waiting for view: %w", err)
	}

	entry := TraceEvent{
		Step:    index,
		Op:      step.Op(),
		Target:  target,
		Events:  h.rec.Events(),
		Visible: h.view.IDs(),
		Error:   errorCode(opErr),
	}
	if entry.Events == nil {
		entry.Events = []string{}
	}
	if entry.Visible == nil {
		entry.Visible = []string{}
	}
	result.Trace = append(result.Trace, entry)

	h.logger.Debug("step executed", "step", index, "op", entry.Op, "target", target, "events", len(entry.Events))

	if step.Expect != nil {
		for _, msg := range checkExpect(index, step.Expect, entry) {
			result.AddError(msg)
		}
	} else if opErr != nil {
		result.AddError(fmt.Sprintf("steps[%d]: unexpected error: %v", index, opErr))
	}
	return nil
}

// apply performs the step's operation. opErr is the operation's own
// error, which the scenario may expect; err aborts the run.
func (h *Harness) apply(ctx context.Context, step Step) (target string, opErr, err error) {
	switch {
	case step.Append != nil:
		doc, err := toDocument(*step.Append)
		if err != nil {
			return "", nil, err
		}
		return doc.ID, h.view.Append(ctx, doc), nil

	case step.AppendAll != nil:
		docs := make([]record.Document, 0, len(step.AppendAll))
		ids := make([]string, 0, len(step.AppendAll))
		for _, d := range step.AppendAll {
			doc, err := toDocument(d)
			if err != nil {
				return "", nil, err
			}
			docs = append(docs, doc)
			ids = append(ids, doc.ID)
		}
		return strings.Join(ids, ","), h.view.AppendAll(ctx, docs), nil

	case step.RemoveAt != nil:
		_, opErr := h.view.RemoveAt(ctx, *step.RemoveAt)
		return strconv.Itoa(*step.RemoveAt), opErr, nil

	case step.Update != nil:
		doc, err := toDocument(*step.Update)
		if err != nil {
			return "", nil, err
		}
		return doc.ID, h.view.Update(ctx, doc), nil

	case step.ExternalWrite != nil:
		doc, err := toDocument(*step.ExternalWrite)
		if err != nil {
			return "", nil, err
		}
		return doc.ID, h.coll.Write(ctx, doc), nil

	case step.ExternalDelete != nil:
		id := *step.ExternalDelete
		return id, h.coll.DeleteID(ctx, id), nil

	default:
		return "", nil, fmt.Errorf("step has no operation")
	}
}

func checkExpect(index int, exp *Expect, got TraceEvent) []string {
	var errs []string
	if exp.Events != nil && !slices.Equal(exp.Events, got.Events) {
		errs = append(errs, fmt.Sprintf("steps[%d]: events: expected %q, got %q", index, exp.Events, got.Events))
	}
	if exp.Visible != nil && !slices.Equal(exp.Visible, got.Visible) {
		errs = append(errs, fmt.Sprintf("steps[%d]: visible: expected %q, got %q", index, exp.Visible, got.Visible))
	}
	if exp.Error != got.Error {
		errs = append(errs, fmt.Sprintf("steps[%d]: error: expected %q, got %q", index, exp.Error, got.Error))
	}
	return errs
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := view.CodeOf(err); code != "" {
		return string(code)
	}
	return ErrorStore
}

func toDocument(d DocStep) (record.Document, error) {
	return record.NewDocument(d.ID, d.Fields)
}
