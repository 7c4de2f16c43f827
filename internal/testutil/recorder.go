package testutil

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/livedoc/internal/view"
)

// Recorder is a view.Delegate that renders every event as a string:
//
//	begin
//	add <row,section>
//	remove <row,section>
//	update <row,section>
//	end
//
// One string is recorded per position, so Added([0 1]) records two lines.
// Thread-safe.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) BeginBatch() { r.record("begin") }
func (r *Recorder) EndBatch()   { r.record("end") }

func (r *Recorder) Added(p []view.Position)   { r.positions("add", p) }
func (r *Recorder) Removed(p []view.Position) { r.positions("remove", p) }
func (r *Recorder) Updated(p []view.Position) { r.positions("update", p) }

// Events returns every recorded line, brackets included.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Changes returns the recorded lines without begin/end.
func (r *Recorder) Changes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		if e == "begin" || e == "end" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Count returns how many lines start with prefix ("add", "update", ...).
func (r *Recorder) Count(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.events {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *Recorder) positions(kind string, ps []view.Position) {
	for _, p := range ps {
		r.record(fmt.Sprintf("%s <%d,%d>", kind, p.Row, p.Section))
	}
}

func (r *Recorder) record(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

var _ view.Delegate = (*Recorder)(nil)
