package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
	"github.com/roach88/livedoc/internal/view"
)

// Error codes for record commands.
const (
	ErrCodeBadRecord = "BAD_RECORD"
	ErrCodeNotFound  = "NOT_FOUND"
	ErrCodeMalformed = "MALFORMED_RECORD"
	ErrCodeStore     = "STORE"
)

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "put <collection> <json>",
		Short: "Write a record",
		Long: `Write (upsert) one record given as a flat JSON object.

The identifier comes from --id, else from the uid field, else a new
UUIDv7 is generated.

Example:
  livedoc put tasks '{"title": "ship it", "priority": 2}'
  livedoc put tasks --id t1 '{"done": true}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(rootOpts, cmd, args[0], args[1], id)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "record identifier")

	return cmd
}

func runPut(opts *RootOptions, cmd *cobra.Command, collection, body, id string) error {
	formatter := opts.formatter(cmd)

	a, err := record.ParseArchive([]byte(body))
	if err != nil {
		_ = formatter.Error(ErrCodeBadRecord, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid record", err)
	}
	if id == "" {
		if uid, ok := a.String(record.UIDField); ok {
			id = uid
		} else {
			id = record.NewID()
		}
	}
	doc, err := record.DecodeDocument(id, a)
	if err != nil {
		_ = formatter.Error(ErrCodeBadRecord, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid record", err)
	}

	return withBackend(cmd.Context(), opts, func(b store.Backend) error {
		if err := documents(b, collection).Write(cmd.Context(), doc); err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitFailure, "write failed", err)
		}
		formatter.Verbosef("wrote %s/%s", collection, doc.ID)
		return printArchive(formatter, doc.Archive())
	})
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <collection> <id>",
		Short:         "Read one record",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			return withBackend(cmd.Context(), rootOpts, func(b store.Backend) error {
				doc, err := documents(b, args[0]).ReadByID(cmd.Context(), args[1])
				if err != nil {
					return readError(formatter, err)
				}
				return printArchive(formatter, doc.Archive())
			})
		},
	}
}

// NewRmCommand creates the rm command.
func NewRmCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rm <collection> <id>...",
		Short:         "Delete records",
		Long:          "Delete records by id. Deleting an absent id succeeds.",
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			return withBackend(cmd.Context(), rootOpts, func(b store.Backend) error {
				coll := documents(b, args[0])
				for _, id := range args[1:] {
					if err := coll.DeleteID(cmd.Context(), id); err != nil {
						_ = formatter.Error(ErrCodeStore, err.Error(), nil)
						return WrapExitError(ExitFailure, "delete failed", err)
					}
				}
				return formatter.Success(fmt.Sprintf("removed %d record(s) from %s", len(args)-1, args[0]))
			})
		},
	}
}

// NewLsCommand creates the ls command.
func NewLsCommand(rootOpts *RootOptions) *cobra.Command {
	var countOnly bool

	cmd := &cobra.Command{
		Use:   "ls <collection>",
		Short: "List a collection in id order",
		Long: `List every record of a collection in id order. Records that fail to
decode are skipped (run with --verbose to see them logged).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			return withBackend(cmd.Context(), rootOpts, func(b store.Backend) error {
				coll := documents(b, args[0])
				if countOnly {
					n, err := coll.Count(cmd.Context())
					if err != nil {
						_ = formatter.Error(ErrCodeStore, err.Error(), nil)
						return WrapExitError(ExitFailure, "count failed", err)
					}
					return formatter.Success(n)
				}
				docs, err := coll.ReadAll(cmd.Context())
				if err != nil {
					_ = formatter.Error(ErrCodeStore, err.Error(), nil)
					return WrapExitError(ExitFailure, "read failed", err)
				}
				return printDocuments(formatter, docs)
			})
		},
	}

	cmd.Flags().BoolVar(&countOnly, "count", false, "print only the number of stored records")

	return cmd
}

// NewTruncateCommand creates the truncate command.
func NewTruncateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "truncate <collection>",
		Short:         "Delete every record of a collection",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			return withBackend(cmd.Context(), rootOpts, func(b store.Backend) error {
				if err := documents(b, args[0]).Truncate(cmd.Context()); err != nil {
					_ = formatter.Error(ErrCodeStore, err.Error(), nil)
					return WrapExitError(ExitFailure, "truncate failed", err)
				}
				return formatter.Success(fmt.Sprintf("truncated %s", args[0]))
			})
		},
	}
}

func readError(formatter *Printer, err error) error {
	switch {
	case view.IsNotFound(err):
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitFailure, "record not found", err)
	case view.IsMalformed(err):
		_ = formatter.Error(ErrCodeMalformed, err.Error(), nil)
		return WrapExitError(ExitFailure, "record malformed", err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "read failed", err)
	}
}
