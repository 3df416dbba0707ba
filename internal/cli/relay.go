package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/reqsync/internal/relay"
	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
)

// RelayOptions holds flags for the relay command.
type RelayOptions struct {
	*RootOptions
	From     string
	To       string
	After    int64
	Watch    bool
	Interval time.Duration
}

// RelayResult summarizes one relay pass.
type RelayResult struct {
	Session   string    `json:"session"`
	Delivered EventList `json:"delivered"`
	Skipped   int       `json:"skipped"`
	Pending   bool      `json:"pending"`
	Cursor    int64     `json:"cursor"`
}

func newRelayResult(p relay.PassResult, cursor int64, layout *slot.Layout) RelayResult {
	return RelayResult{
		Session:   p.Session,
		Delivered: newEventList(p.Delivered, layout),
		Skipped:   p.Skipped,
		Pending:   p.Pending,
		Cursor:    cursor,
	}
}

func (r RelayResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Relay %s: %d delivered, %d skipped, cursor %d", r.Session, len(r.Delivered), r.Skipped, r.Cursor)
	for _, ev := range r.Delivered {
		fmt.Fprintf(&b, "\n  %s", ev)
	}
	if r.Pending {
		b.WriteString("\n  waiting for origin proof; run again to retry")
	}
	return b.String()
}

// NewRelayCommand creates the relay command.
func NewRelayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RelayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Deliver committed requests to the other layer",
		Long: `Read origin commits from one layer's log and apply them on the other layer.
Each delivered request is applied on behalf of the address it installs.

Requests already applied are skipped, so a relay can always restart from
the beginning of the log. With --watch the relay polls until interrupted.

Example:
  reqsync relay --from root.db --to child.db
  reqsync relay --from child.db --to root.db --watch --interval 500ms`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "path to the origin layer database (required)")
	cmd.Flags().StringVar(&opts.To, "to", "", "path to the destination layer database (required)")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "start after this origin seq")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "keep relaying until interrupted")
	cmd.Flags().DurationVar(&opts.Interval, "interval", rootOpts.Config.RelayInterval, "polling interval with --watch")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runRelay(ctx context.Context, opts *RelayOptions, cmd *cobra.Command) error {
	layout, err := opts.LoadLayout()
	if err != nil {
		return err
	}

	origin, err := openLayer(ctx, opts.RootOptions, opts.From)
	if err != nil {
		return err
	}
	defer origin.Close()
	dest, err := openLayer(ctx, opts.RootOptions, opts.To)
	if err != nil {
		return err
	}
	defer dest.Close()

	dest.SetVerifier(relay.LogVerifier(origin.Layer))

	r, err := relay.New(origin.Layer, dest.Layer,
		relay.WithLogger(opts.Logger()),
		relay.WithCursor(opts.After),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid relay", err)
	}

	f := opts.formatter(cmd)
	if !opts.Watch {
		pass, err := r.Pass(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "relay pass failed", err)
		}
		return f.Success(newRelayResult(pass, r.Cursor(), layout))
	}

	// Print each delivery as it is applied.
	dest.Subscribe(func(ev request.Event) {
		if ev.Phase == request.PhaseDestination {
			_ = f.Success(newEventView(ev, layout))
		}
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.Run(ctx, opts.Interval); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitCommandError, "relay stopped", err)
	}
	return nil
}
