package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Step    int      `json:"step"`
	Op      string   `json:"op"`
	Target  string   `json:"target,omitempty"`
	Events  []string `json:"events"`
	Visible []string `json:"visible"`
	Error   string   `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion holds.
	Pass bool `json:"pass"`

	// Trace has one entry per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Visible is the view's id list after the last step.
	Visible []string `json:"visible"`

	// Stored is the collection's ids after the last step, in id order.
	Stored []string `json:"stored"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AllEvents concatenates the events of every step.
func (r *Result) AllEvents() []string {
	var out []string
	for _, e := range r.Trace {
		out = append(out, e.Events...)
	}
	return out
}
