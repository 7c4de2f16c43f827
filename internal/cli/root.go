package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Store overrides; empty means "use the config file or default".
	Backend string
	DB      string
	DSN     string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the livedoc CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "livedoc",
		Short: "livedoc - live query views over a document store",
		Long: `Store schemaless documents, define queries in CUE, and watch their
results change as the store is written.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			setupLogging(opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "store backend (memory|sqlite|bolt|postgres)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "database file for sqlite and bolt")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "postgres connection string")

	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewRmCommand(opts))
	cmd.AddCommand(NewLsCommand(opts))
	cmd.AddCommand(NewTruncateCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Config resolves the effective configuration: defaults, then the config
// file, then flags.
func (o *RootOptions) Config() (Config, error) {
	cfg := DefaultConfig()
	if o.ConfigPath != "" {
		loaded, err := LoadConfig(o.ConfigPath)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	if o.Backend != "" {
		cfg.Store.Backend = o.Backend
	}
	if o.DB != "" {
		cfg.Store.Path = o.DB
	}
	if o.DSN != "" {
		cfg.Store.DSN = o.DSN
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *Printer {
	return &Printer{
		Format:  o.Format,
		Out:     cmd.OutOrStdout(),
		Diag:    cmd.ErrOrStderr(),
		Verbose: o.Verbose,
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
