package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/livedoc/internal/ledger"
	"github.com/roach88/livedoc/internal/query"
	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
)

// ErrClosed is returned by mutators and Sync after Close.
var ErrClosed = errors.New("view closed")

// Source is the typed store surface a LiveView reads, writes and watches.
// *store.Collection implements it.
type Source[T record.Model] interface {
	Name() string
	ReadAll(ctx context.Context) ([]T, error)
	ReadByID(ctx context.Context, id string) (T, error)
	Write(ctx context.Context, r T) error
	Delete(ctx context.Context, r T) error
	Subscribe() *store.Subscription
}

// LiveView is the materialized, continuously reconciled result of a Query
// over a Source.
type LiveView[T record.Model] struct {
	query    query.Query[T]
	src      Source[T]
	delegate Delegate
	logger   *slog.Logger
	ledger   *ledger.Ledger
	sub      *store.Subscription

	// passMu admits one reconciliation pass at a time; it also guards
	// delegate and closed.
	passMu sync.Mutex
	closed bool

	// stateMu guards records and ids for readers.
	stateMu sync.RWMutex
	records []T
	ids     []string

	progress *progress
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures a LiveView.
type Option func(*options)

type options struct {
	delegate Delegate
	logger   *slog.Logger
}

// WithDelegate sets the delegate receiving change events.
func WithDelegate(d Delegate) Option {
	return func(o *options) {
		o.delegate = d
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New subscribes to src, materializes q over its current contents and
// starts reconciling notifications. No events are emitted for the initial
// load. The view must be closed with Close.
func New[T record.Model](ctx context.Context, q query.Query[T], src Source[T], opts ...Option) (*LiveView[T], error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.delegate == nil {
		o.delegate = DelegateFuncs{}
	}

	// Subscribe before the scan so no change between the two is lost.
	sub := src.Subscribe()

	all, err := src.ReadAll(ctx)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("load %s: %w", src.Name(), err)
	}
	visible := q.Apply(all)

	v := &LiveView[T]{
		query:    q,
		src:      src,
		delegate: o.delegate,
		logger:   o.logger.With("component", "view", "collection", src.Name()),
		ledger:   ledger.New(),
		sub:      sub,
		records:  visible,
		ids:      idsOf(visible),
		progress: newProgress(),
		done:     make(chan struct{}),
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	v.cancel = cancel
	go v.run(runCtx)

	v.logger.Debug("view live", "visible", len(visible), "scanned", len(all))
	return v, nil
}

// Attach installs d and calls fn with the visible records while no pass can
// run, so the first event d receives applies to exactly the records fn saw.
// fn must not call back into the view's mutators.
func (v *LiveView[T]) Attach(d Delegate, fn func(records []T)) {
	if d == nil {
		d = DelegateFuncs{}
	}
	v.passMu.Lock()
	defer v.passMu.Unlock()
	v.delegate = d
	fn(v.snapshot())
}

// Append writes r through to the store and reconciles. Appending an id that
// is already visible replaces it and reports Updated.
func (v *LiveView[T]) Append(ctx context.Context, r T) error {
	return v.AppendAll(ctx, []T{r})
}

// AppendAll writes every record, then reconciles once: one batch for the
// whole call. If a write fails, the records written before it are still
// reconciled and the error is returned.
func (v *LiveView[T]) AppendAll(ctx context.Context, rs []T) error {
	v.passMu.Lock()
	defer v.passMu.Unlock()

	if v.closed {
		return ErrClosed
	}
	if len(rs) == 0 {
		return nil
	}

	staged := v.snapshot()
	touched := make(map[string]bool, len(rs))
	var writeErr error
	for _, r := range rs {
		id := r.UID()
		v.ledger.Mark(id)
		if err := v.src.Write(ctx, r); err != nil {
			v.ledger.Unmark(id)
			writeErr = fmt.Errorf("append %s: %w", id, err)
			break
		}
		staged = stage(staged, r)
		touched[id] = true
	}

	if len(touched) > 0 {
		v.reapply(staged, touched)
	}
	return writeErr
}

// RemoveAt deletes the record at visible position i and reconciles. An
// invalid position returns an OUT_OF_RANGE error with no write and no events.
func (v *LiveView[T]) RemoveAt(ctx context.Context, i int) (T, error) {
	v.passMu.Lock()
	defer v.passMu.Unlock()

	var zero T
	if v.closed {
		return zero, ErrClosed
	}

	staged := v.snapshot()
	if i < 0 || i >= len(staged) {
		return zero, NewOutOfRangeError(i, len(staged))
	}
	r := staged[i]
	id := r.UID()

	v.ledger.Mark(id)
	if err := v.src.Delete(ctx, r); err != nil {
		v.ledger.Unmark(id)
		return zero, fmt.Errorf("remove %s: %w", id, err)
	}

	staged = slices.Delete(staged, i, i+1)
	v.reapply(staged, nil)
	return r, nil
}

// Update upserts r and reconciles. A visible record is replaced and reported
// Updated once per call; a record the filter now accepts is reported Added;
// a visible record the filter now rejects is reported Removed.
func (v *LiveView[T]) Update(ctx context.Context, r T) error {
	v.passMu.Lock()
	defer v.passMu.Unlock()

	if v.closed {
		return ErrClosed
	}

	id := r.UID()
	v.ledger.Mark(id)
	if err := v.src.Write(ctx, r); err != nil {
		v.ledger.Unmark(id)
		return fmt.Errorf("update %s: %w", id, err)
	}

	staged := v.snapshot()
	if _, visible := v.IndexOf(id); visible || v.query.Accepts(r) {
		staged = stage(staged, r)
	}
	v.reapply(staged, map[string]bool{id: true})
	return nil
}

// Count returns the number of visible records.
func (v *LiveView[T]) Count() int {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	return len(v.records)
}

// IsEmpty reports whether no record is visible.
func (v *LiveView[T]) IsEmpty() bool {
	return v.Count() == 0
}

// At returns the visible record at position i.
func (v *LiveView[T]) At(i int) (T, error) {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()

	if i < 0 || i >= len(v.records) {
		var zero T
		return zero, NewOutOfRangeError(i, len(v.records))
	}
	return v.records[i], nil
}

// IndexOf returns the visible position of id.
func (v *LiveView[T]) IndexOf(id string) (int, bool) {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()

	i := slices.Index(v.ids, id)
	return i, i >= 0
}

// Records returns a copy of the visible records.
func (v *LiveView[T]) Records() []T {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	return slices.Clone(v.records)
}

// IDs returns a copy of the visible identifiers, in visible order.
func (v *LiveView[T]) IDs() []string {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	return slices.Clone(v.ids)
}

// Sync blocks until every change queued to the view before the call has
// been reconciled. Must not be called from a delegate.
func (v *LiveView[T]) Sync(ctx context.Context) error {
	return v.progress.wait(ctx, v.sub.Last(), v.done)
}

// Close unsubscribes and stops the notification goroutine. Must not be
// called from a delegate. Safe to call more than once.
func (v *LiveView[T]) Close() {
	v.passMu.Lock()
	if v.closed {
		v.passMu.Unlock()
		<-v.done
		return
	}
	v.closed = true
	v.passMu.Unlock()

	v.cancel()
	v.sub.Close()
	<-v.done
	v.logger.Debug("view closed")
}

func (v *LiveView[T]) run(ctx context.Context) {
	defer close(v.done)

	for {
		c, err := v.sub.Next(ctx)
		if err != nil {
			if !errors.Is(err, store.ErrClosed) && !errors.Is(err, context.Canceled) {
				v.logger.Error("change feed failed", "error", err)
			}
			return
		}
		v.handle(ctx, c)
		v.progress.advance(c.Seq)
	}
}

// handle reconciles one change notification.
func (v *LiveView[T]) handle(ctx context.Context, c store.Change) {
	v.passMu.Lock()
	defer v.passMu.Unlock()

	if v.closed {
		return
	}
	if v.ledger.ConsumeIfMarked(c.ID) {
		v.logger.Debug("self write echo suppressed", "id", c.ID, "seq", c.Seq)
		return
	}

	v.logger.Debug("change received",
		"id", c.ID,
		"kind", c.Kind.String(),
		"seq", c.Seq,
		"origin", c.Origin,
	)

	switch c.Kind {
	case store.Removed:
		v.handleRemoved(c.ID)
	case store.Modified:
		v.handleModified(ctx, c.ID)
	default:
		v.logger.Warn("unknown change kind", "id", c.ID, "kind", int(c.Kind))
	}
}

func (v *LiveView[T]) handleRemoved(id string) {
	staged := v.snapshot()
	i := slices.IndexFunc(staged, func(x T) bool { return x.UID() == id })
	if i < 0 {
		return
	}
	staged = slices.Delete(staged, i, i+1)
	v.swap(staged, idsOf(staged))
	v.delegate.Removed(rows(i))
}

func (v *LiveView[T]) handleModified(ctx context.Context, id string) {
	staged := v.snapshot()
	r, err := v.src.ReadByID(ctx, id)
	if err != nil {
		v.logger.Warn("fetch failed, change skipped", "id", id, "error", classifyFetchError(id, err))
	}

	i := slices.IndexFunc(staged, func(x T) bool { return x.UID() == id })
	switch {
	case i >= 0 && err == nil:
		staged[i] = r
		v.swap(staged, idsOf(staged))
		v.delegate.Updated(rows(i))
		staged = v.snapshot()
	case i < 0 && err == nil && v.query.Accepts(r):
		staged = append(staged, r)
	}

	v.reapply(staged, nil)
}

// reapply recomputes the visible sequence from staged and emits the batch.
// touched ids that were visible before and after are reported Updated.
func (v *LiveView[T]) reapply(staged []T, touched map[string]bool) {
	prevIDs := v.IDs()
	next := v.query.Apply(staged)
	nextIDs := idsOf(next)

	prevIndex := indexOf(prevIDs)
	nextIndex := indexOf(nextIDs)

	var removed, added, updated []Position
	for i, id := range prevIDs {
		if _, ok := nextIndex[id]; !ok {
			removed = append(removed, Position{Row: i})
		}
	}
	for i, id := range nextIDs {
		if _, ok := prevIndex[id]; !ok {
			added = append(added, Position{Row: i})
		} else if touched[id] {
			updated = append(updated, Position{Row: i})
		}
	}

	v.swap(next, nextIDs)

	v.delegate.BeginBatch()
	if len(removed) > 0 {
		v.delegate.Removed(removed)
	}
	if len(added) > 0 {
		v.delegate.Added(added)
	}
	if len(updated) > 0 {
		v.delegate.Updated(updated)
	}
	v.delegate.EndBatch()

	v.logger.Debug("reapplied",
		"visible", len(next),
		"removed", len(removed),
		"added", len(added),
		"updated", len(updated),
	)
}

func (v *LiveView[T]) snapshot() []T {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	return slices.Clone(v.records)
}

func (v *LiveView[T]) swap(records []T, ids []string) {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	v.records = records
	v.ids = ids
}

// stage replaces the record with r's id, or appends r.
func stage[T record.Model](staged []T, r T) []T {
	id := r.UID()
	for i := range staged {
		if staged[i].UID() == id {
			staged[i] = r
			return staged
		}
	}
	return append(staged, r)
}

func idsOf[T record.Model](records []T) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.UID()
	}
	return ids
}

func indexOf(ids []string) map[string]int {
	m := make(map[string]int, len(ids))
	for i, id := range ids {
		m[id] = i
	}
	return m
}
