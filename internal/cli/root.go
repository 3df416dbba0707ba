package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/reqsync/internal/config"
	"github.com/roach88/reqsync/internal/slot"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Layout  string // directory of CUE slot declarations; empty for the default layout

	// Config holds environment defaults. Flags override them.
	Config config.Config

	logger *slog.Logger
	layout *slot.Layout
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the reqsync CLI.
func NewRootCommand() *cobra.Command {
	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		cfg = config.Default()
	}
	opts := &RootOptions{Config: cfg}

	cmd := &cobra.Command{
		Use:   "reqsync",
		Short: "reqsync - requestable storage sync between a root and a child layer",
		Long: `Move ownership of requestable storage slots between a root layer and a
child layer. A request is committed on its origin layer and applied on its
destination layer once the destination can verify the origin commitment.

Each layer is a SQLite database created with "reqsync init".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return WrapExitError(ExitCommandError, "invalid environment", cfgErr)
			}
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			level := opts.Config.Level()
			if opts.Verbose {
				level = slog.LevelDebug
			}
			opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", cfg.Format, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Layout, "layout", cfg.LayoutDir, "directory of CUE slot declarations")

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewOriginCommand(opts))
	cmd.AddCommand(NewDestinationCommand(opts))
	cmd.AddCommand(NewValueCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewRelayCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewEncodeCommand(opts))
	cmd.AddCommand(NewDecodeCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// Logger returns the logger configured by the root command. Commands built
// without a root command log nowhere.
func (o *RootOptions) Logger() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.logger
}

// LoadLayout returns the slot layout named by --layout, or the default
// single-owner layout.
func (o *RootOptions) LoadLayout() (*slot.Layout, error) {
	if o.layout != nil {
		return o.layout, nil
	}
	if o.Layout == "" {
		o.layout = slot.DefaultLayout()
		return o.layout, nil
	}
	l, err := slot.LoadLayout(o.Layout)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load layout", err)
	}
	o.layout = l
	return l, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
