package view

// Position addresses one row of the visible sequence. Section is always 0;
// it exists for list widgets that address rows in two levels.
type Position struct {
	Row     int `json:"row"`
	Section int `json:"section"`
}

// Delegate receives positional change events. Calls are synchronous and
// arrive on whichever goroutine ran the pass.
type Delegate interface {
	BeginBatch()
	Added(positions []Position)
	Removed(positions []Position)
	Updated(positions []Position)
	EndBatch()
}

// DelegateFuncs adapts plain functions to Delegate. Nil fields are skipped.
type DelegateFuncs struct {
	OnBeginBatch func()
	OnAdded      func([]Position)
	OnRemoved    func([]Position)
	OnUpdated    func([]Position)
	OnEndBatch   func()
}

func (d DelegateFuncs) BeginBatch() {
	if d.OnBeginBatch != nil {
		d.OnBeginBatch()
	}
}

func (d DelegateFuncs) Added(p []Position) {
	if d.OnAdded != nil {
		d.OnAdded(p)
	}
}

func (d DelegateFuncs) Removed(p []Position) {
	if d.OnRemoved != nil {
		d.OnRemoved(p)
	}
}

func (d DelegateFuncs) Updated(p []Position) {
	if d.OnUpdated != nil {
		d.OnUpdated(p)
	}
}

func (d DelegateFuncs) EndBatch() {
	if d.OnEndBatch != nil {
		d.OnEndBatch()
	}
}

func rows(idx ...int) []Position {
	out := make([]Position, len(idx))
	for i, r := range idx {
		out[i] = Position{Row: r}
	}
	return out
}
