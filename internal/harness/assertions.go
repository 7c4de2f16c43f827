package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the full event list to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, step := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s: %s\n", step.Step, step.Op, step.Target, strings.Join(step.Events, ", "))
	}

	return buf.String()
}

// assertEventCount checks that events of one kind ("add", "begin", ...)
// occur exactly Count times. Each position counts once.
func assertEventCount(result *Result, assertion Assertion) error {
	n := 0
	for _, e := range result.AllEvents() {
		if eventKind(e) == assertion.Event {
			n++
		}
	}
	if n == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("%d %s events", assertion.Count, assertion.Event),
		Actual:   fmt.Sprintf("%d", n),
		Trace:    result.Trace,
	}
}

// assertEventOrder checks that the events appear in the given relative
// order. Intervening events are allowed.
func assertEventOrder(result *Result, assertion Assertion) error {
	events := result.AllEvents()
	next := 0
	for _, e := range events {
		if next < len(assertion.Events) && e == assertion.Events[next] {
			next++
		}
	}
	if next == len(assertion.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventOrder,
		Expected: fmt.Sprintf("events in order %q", assertion.Events),
		Actual:   fmt.Sprintf("matched up to %q, missing %q", assertion.Events[:next], assertion.Events[next]),
		Trace:    result.Trace,
	}
}

func assertIDs(kind string, got []string, result *Result, assertion Assertion) error {
	if slices.Equal(got, assertion.IDs) {
		return nil
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprintf("%q", assertion.IDs),
		Actual:   fmt.Sprintf("%q", got),
		Trace:    result.Trace,
	}
}

// eventKind strips the position from "add <0,0>".
func eventKind(e string) string {
	kind, _, _ := strings.Cut(e, " ")
	return kind
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEventCount:
			err = assertEventCount(result, assertion)
		case AssertEventOrder:
			err = assertEventOrder(result, assertion)
		case AssertFinalVisible:
			err = assertIDs(AssertFinalVisible, result.Visible, result, assertion)
		case AssertFinalStore:
			err = assertIDs(AssertFinalStore, result.Stored, result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
