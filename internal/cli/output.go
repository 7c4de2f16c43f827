package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/livedoc/internal/record"
)

// Exit codes. Anything that is not an *ExitError exits with ExitFailure.
const (
	ExitFailure      = 1 // record missing, write rejected, scenario or validation failed
	ExitCommandError = 2 // bad arguments or config, store could not be opened
)

// ExitError carries the process exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError with no cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode returns the code carried by err, or ExitFailure.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Envelope is the single JSON object a command prints with --format json.
type Envelope struct {
	Status string         `json:"status"` // ok or error
	Data   any            `json:"data,omitempty"`
	Error  *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError is the error half of an Envelope. Code is one of the
// ErrCode constants or a queryir error code.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Printer renders command results as text lines or JSON envelopes. Verbose
// lines go to Diag so they never interleave with a JSON envelope on Out.
type Printer struct {
	Format  string
	Out     io.Writer
	Diag    io.Writer
	Verbose bool
}

func (p *Printer) isJSON() bool { return p.Format == "json" }

// Success prints data as an ok envelope, or as a plain line.
func (p *Printer) Success(data any) error {
	if p.isJSON() {
		return json.NewEncoder(p.Out).Encode(Envelope{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(p.Out, data)
	return err
}

// Error prints an error envelope, or "Error [CODE]: message". Details are
// shown in text mode only with --verbose.
func (p *Printer) Error(code, message string, details any) error {
	if p.isJSON() {
		return json.NewEncoder(p.Out).Encode(Envelope{
			Status: "error",
			Error:  &EnvelopeError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(p.Out, "Error [%s]: %s\n", code, message)
	if p.Verbose && details != nil {
		fmt.Fprintf(p.Out, "Details: %v\n", details)
	}
	return nil
}

// Verbosef prints a diagnostic line when --verbose is set.
func (p *Printer) Verbosef(format string, args ...any) {
	if !p.Verbose {
		return
	}
	w := p.Diag
	if w == nil {
		w = p.Out
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// printArchive writes one record: canonical JSON in text mode, the record
// object as data in JSON mode.
func printArchive(p *Printer, a record.Archive) error {
	if p.isJSON() {
		return p.Success(a)
	}
	return printCanonical(p.Out, a)
}

// printDocuments writes records one canonical JSON line each in text mode,
// or as a data array in JSON mode.
func printDocuments(p *Printer, docs []record.Document) error {
	archives := make([]record.Archive, len(docs))
	for i, d := range docs {
		archives[i] = d.Archive()
	}
	if p.isJSON() {
		return p.Success(archives)
	}
	for _, a := range archives {
		if err := printCanonical(p.Out, a); err != nil {
			return err
		}
	}
	return nil
}

func printCanonical(w io.Writer, a record.Archive) error {
	data, err := record.MarshalCanonical(a)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
