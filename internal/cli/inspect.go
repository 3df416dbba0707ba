package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reqsync/internal/ledger"
	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/store"
)

// ValueOptions holds flags for the value command.
type ValueOptions struct {
	*RootOptions
	Database string
	Slot     string
}

// ValueResult is a slot's current content.
type ValueResult struct {
	Layer string `json:"layer"`
	Slot  string `json:"slot"`
	Key   string `json:"key"`
	Value string `json:"value"`
	Word  string `json:"word"`
}

func (r ValueResult) String() string {
	return fmt.Sprintf("%s.%s = %s", r.Layer, r.Slot, r.Value)
}

// NewValueCommand creates the value command.
func NewValueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "value",
		Short: "Print a slot's current value",
		Long: `Print the current content of a slot on one layer. A slot that was never
written reads as the zero word.

Example:
  reqsync value --db child.db
  reqsync value --db root.db --layout ./layout --slot supply`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValue(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Slot, "slot", "owner", "slot name in the layout")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runValue(ctx context.Context, opts *ValueOptions, cmd *cobra.Command) error {
	layout, err := opts.LoadLayout()
	if err != nil {
		return err
	}
	def, ok := layout.Lookup(opts.Slot)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown slot %q", opts.Slot))
	}

	layer, err := openLayer(ctx, opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer layer.Close()

	v, err := layer.CurrentValue(ctx, def.Key)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read slot", err)
	}
	return opts.formatter(cmd).Success(ValueResult{
		Layer: layer.Role().String(),
		Slot:  def.Name,
		Key:   def.Key.String(),
		Value: formatSlot(def, v),
		Word:  v.String(),
	})
}

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
	After    int64
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print a layer's request log",
		Long: `Print the events a layer appended for accepted requests, in seq order.

Example:
  reqsync log --db root.db
  reqsync log --db child.db --after 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only print events with seq greater than this")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runLog(ctx context.Context, opts *LogOptions, cmd *cobra.Command) error {
	layout, err := opts.LoadLayout()
	if err != nil {
		return err
	}
	layer, err := openLayer(ctx, opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer layer.Close()

	events, err := layer.Events(ctx, opts.After)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log", err)
	}
	return opts.formatter(cmd).Success(newEventList(events, layout))
}

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	RootDB    string
	ChildDB   string
	Direction string
	ID        uint64
}

// StatusResult is the progress of one request.
type StatusResult struct {
	Direction string `json:"direction"`
	RequestID uint64 `json:"request_id"`
	Status    string `json:"status"`
}

func (r StatusResult) String() string {
	return fmt.Sprintf("%s#%d: %s", r.Direction, r.RequestID, r.Status)
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report how far a request has progressed",
		Long: `Report whether a request is not submitted, committed on its origin layer,
or applied on its destination layer.

Example:
  reqsync status --root root.db --child child.db --direction enter --id 0`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RootDB, "root", "", "path to the root layer database (required)")
	cmd.Flags().StringVar(&opts.ChildDB, "child", "", "path to the child layer database (required)")
	cmd.Flags().StringVar(&opts.Direction, "direction", "", "request direction: enter or exit (required)")
	cmd.Flags().Uint64Var(&opts.ID, "id", 0, "request id (required)")
	_ = cmd.MarkFlagRequired("root")
	_ = cmd.MarkFlagRequired("child")
	_ = cmd.MarkFlagRequired("direction")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func runStatus(ctx context.Context, opts *StatusOptions, cmd *cobra.Command) error {
	dir, err := request.ParseDirection(opts.Direction)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --direction", err)
	}

	root, err := openLayer(ctx, opts.RootOptions, opts.RootDB)
	if err != nil {
		return err
	}
	defer root.Close()
	child, err := openLayer(ctx, opts.RootOptions, opts.ChildDB)
	if err != nil {
		return err
	}
	defer child.Close()

	st, err := ledger.Status(ctx, root.Layer, child.Layer, dir, opts.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read status", err)
	}
	return opts.formatter(cmd).Success(StatusResult{Direction: dir.String(), RequestID: opts.ID, Status: st.String()})
}

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Database string
}

// CheckResult is the printable form of an integrity report.
type CheckResult struct {
	Database          string   `json:"database"`
	Role              string   `json:"role"`
	LastSeq           int64    `json:"last_seq"`
	OriginEvents      int      `json:"origin_events"`
	DestinationEvents int      `json:"destination_events"`
	SeqGaps           []int64  `json:"seq_gaps,omitempty"`
	UnloggedApplied   []string `json:"unlogged_applied,omitempty"`
	StaleSlots        []string `json:"stale_slots,omitempty"`
	OK                bool     `json:"ok"`
}

func newCheckResult(path string, r store.IntegrityReport) CheckResult {
	out := CheckResult{
		Database:          path,
		Role:              r.Role.String(),
		LastSeq:           r.LastSeq,
		OriginEvents:      r.OriginEvents,
		DestinationEvents: r.DestinationEvents,
		SeqGaps:           r.SeqGaps,
		OK:                r.OK(),
	}
	for _, rk := range r.UnloggedApplied {
		out.UnloggedApplied = append(out.UnloggedApplied, fmt.Sprintf("%s#%d", rk.Direction, rk.ID))
	}
	for _, key := range r.StaleSlots {
		out.StaleSlots = append(out.StaleSlots, key.String())
	}
	return out
}

func (r CheckResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Layer: %s (%s)\n", r.Database, r.Role)
	fmt.Fprintf(&b, "  Events: %d origin, %d destination, last seq %d\n", r.OriginEvents, r.DestinationEvents, r.LastSeq)
	for _, seq := range r.SeqGaps {
		fmt.Fprintf(&b, "  ✗ missing seq %d\n", seq)
	}
	for _, rk := range r.UnloggedApplied {
		fmt.Fprintf(&b, "  ✗ %s applied without a destination event\n", rk)
	}
	for _, key := range r.StaleSlots {
		fmt.Fprintf(&b, "  ✗ slot %s differs from its last applied value\n", key)
	}
	if r.OK {
		b.WriteString("✓ Log, applied set and slots are consistent")
	} else {
		b.WriteString("✗ Integrity check failed")
	}
	return b.String()
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify a layer's log against its state",
		Long: `Replay a layer's log and compare it with the applied set and slot values.

Exit codes:
  0 - Layer is consistent
  1 - Inconsistencies found
  2 - Command error

Example:
  reqsync check --db child.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runCheck(ctx context.Context, opts *CheckOptions, cmd *cobra.Command) error {
	layer, err := openLayer(ctx, opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer layer.Close()

	report, err := layer.store.CheckIntegrity(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to check integrity", err)
	}

	result := newCheckResult(opts.Database, report)
	f := opts.formatter(cmd)
	if result.OK {
		return f.Success(result)
	}
	if err := f.Failure("INTEGRITY", "integrity check failed", result); err != nil {
		return err
	}
	return &ExitError{Code: ExitFailure, Message: "integrity check failed", Reported: true}
}
