package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/livedoc/internal/compiler"
)

// ValidationIssue is one problem found in a queries directory.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Queries []string          `json:"queries,omitempty"`
	Errors  []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <queries-dir>",
		Short: "Check query definitions without touching a store",
		Long: `Compile and validate every query in the CUE package at <queries-dir>.

All problems are reported, each with its code and source position.

Exit codes:
  0 - All queries valid
  1 - One or more queries invalid
  2 - Command error (directory missing, no CUE files, CUE load failure)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded, errs := compiler.LoadQueries(dir, compiler.LoadModeCollectAll)
	if loaded == nil {
		code, msg := compiler.ErrCodeGeneric, "failed to load queries"
		if len(errs) > 0 {
			msg = errs[0].Error()
			var loadErr *compiler.LoadError
			if errors.As(errs[0], &loadErr) {
				code, msg = loadErr.Code, loadErr.Message
			}
		}
		_ = formatter.Error(code, msg, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, msg))
	}

	formatter.Verbosef("Found %d CUE file(s) in %s", loaded.FileCount, dir)
	names := make([]string, len(loaded.Queries))
	for i, q := range loaded.Queries {
		names[i] = q.Name
		formatter.Verbosef("Valid query: %s (collection %s)", q.Name, q.Collection)
	}

	if len(errs) > 0 {
		return outputValidationErrors(formatter, names, issuesFrom(errs))
	}
	return outputValidateSuccess(formatter, names)
}

func issuesFrom(errs []error) []ValidationIssue {
	issues := make([]ValidationIssue, 0, len(errs))
	for _, err := range errs {
		var loadErr *compiler.LoadError
		if !errors.As(err, &loadErr) {
			issues = append(issues, ValidationIssue{Code: compiler.ErrCodeGeneric, Message: err.Error()})
			continue
		}
		issue := ValidationIssue{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			issue.File = loadErr.Pos.Filename()
			issue.Line = loadErr.Pos.Line()
		}
		issues = append(issues, issue)
	}
	return issues
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *Printer, names []string) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Queries: names})
	}

	fmt.Fprintf(formatter.Out, "✓ All %d queries valid\n", len(names))
	return nil
}

// outputValidationErrors outputs every issue and fails with exit code 1.
func outputValidationErrors(formatter *Printer, names []string, issues []ValidationIssue) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))

	if formatter.Format == "json" {
		response := Envelope{
			Status: "error",
			Data:   ValidationResult{Valid: false, Queries: names, Errors: issues},
			Error: &EnvelopeError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintln(formatter.Out, "✗ Validation failed")
	fmt.Fprintln(formatter.Out)
	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Out, "%s:%d\n", issue.File, issue.Line)
		}
		fmt.Fprintf(formatter.Out, "  %s: %s\n\n", issue.Code, issue.Message)
	}
	return failed
}
