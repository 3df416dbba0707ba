package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/reqsync/internal/ledger"
	"github.com/roach88/reqsync/internal/relay"
	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
)

// SubmitOptions holds flags for the origin and destination commands.
type SubmitOptions struct {
	*RootOptions
	requestFlags
	Database string
	OriginDB string // destination only
}

// SubmitResult is the event appended by an accepted request.
type SubmitResult struct {
	Event EventView `json:"event"`
}

func (r SubmitResult) String() string {
	return fmt.Sprintf("Accepted %s", r.Event)
}

func addRequestFlags(cmd *cobra.Command, f *requestFlags) {
	cmd.Flags().StringVar(&f.Direction, "direction", "", "request direction: enter or exit (required)")
	cmd.Flags().Uint64Var(&f.ID, "id", 0, "request id")
	cmd.Flags().StringVar(&f.Requestor, "requestor", "", "address submitting the request (required)")
	cmd.Flags().StringVar(&f.Slot, "slot", "owner", "slot name in the layout")
	cmd.Flags().StringVar(&f.Value, "value", "", "new slot value (required)")
	cmd.Flags().BoolVar(&f.Raw, "raw", false, "treat --value as a 32-byte hex word")
	_ = cmd.MarkFlagRequired("direction")
	_ = cmd.MarkFlagRequired("requestor")
	_ = cmd.MarkFlagRequired("value")
}

// NewOriginCommand creates the origin command.
func NewOriginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "origin",
		Short: "Commit a request on the layer where the move starts",
		Long: `Commit a request on its origin layer. The requestor must hold the slot.
The slot value is not changed; the request is recorded in the layer's log
for the destination layer to verify.

Enter requests originate on the root layer, exit requests on the child layer.
Without --id the next unused id for the direction is allocated.

Exit codes:
  0 - Request committed
  1 - Request rejected (UNAUTHORIZED, DUPLICATE_REQUEST, MALFORMED_SLOT_VALUE, WRONG_ROLE)
  2 - Command error

Example:
  reqsync origin --db root.db --direction enter \
    --requestor 0x1111111111111111111111111111111111111111 \
    --value 0x2222222222222222222222222222222222222222`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), opts, cmd, false)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the origin layer database (required)")
	_ = cmd.MarkFlagRequired("db")
	addRequestFlags(cmd, &opts.requestFlags)

	return cmd
}

// NewDestinationCommand creates the destination command.
func NewDestinationCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "destination",
		Short: "Apply a request on the layer where the move lands",
		Long: `Apply a request on its destination layer. The request is verified against
the origin layer's log; the requestor must be the address being installed.

UNVERIFIED_ORIGIN is retryable: submit again once the origin commit exists.

Exit codes:
  0 - Request applied
  1 - Request rejected (UNAUTHORIZED, DUPLICATE_REQUEST, UNVERIFIED_ORIGIN, MALFORMED_SLOT_VALUE, WRONG_ROLE)
  2 - Command error

Example:
  reqsync destination --db child.db --origin-db root.db --direction enter --id 0 \
    --requestor 0x2222222222222222222222222222222222222222 \
    --value 0x2222222222222222222222222222222222222222`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), opts, cmd, true)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the destination layer database (required)")
	cmd.Flags().StringVar(&opts.OriginDB, "origin-db", "", "path to the origin layer database (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("origin-db")
	addRequestFlags(cmd, &opts.requestFlags)
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func runSubmit(ctx context.Context, opts *SubmitOptions, cmd *cobra.Command, destination bool) error {
	layout, err := opts.LoadLayout()
	if err != nil {
		return err
	}

	layer, err := openLayer(ctx, opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer layer.Close()

	var nextID func(context.Context, request.Direction) (uint64, error)
	if !destination {
		nextID = layer.NextRequestID
	}
	req, _, err := opts.build(ctx, layout, cmd.Flags().Changed("id"), nextID)
	if err != nil {
		return err
	}
	opts.formatter(cmd).VerboseLog("submitting %s to %s layer", req, layer.Role())

	var (
		ev        request.Event
		submitErr error
	)
	if destination {
		origin, err := openLayer(ctx, opts.RootOptions, opts.OriginDB)
		if err != nil {
			return err
		}
		defer origin.Close()
		if origin.Role() == layer.Role() {
			return NewExitError(ExitCommandError, fmt.Sprintf("--db and --origin-db are both %s layers", layer.Role()))
		}
		layer.SetVerifier(relay.LogVerifier(origin.Layer))
		ev, submitErr = layer.SubmitDestination(ctx, req)
	} else {
		ev, submitErr = layer.SubmitOrigin(ctx, req)
	}

	f := opts.formatter(cmd)
	if err := submitErr; err != nil {
		if _, ok := ledger.CodeOf(err); ok {
			return f.Rejected(err)
		}
		return WrapExitError(ExitCommandError, "failed to submit request", err)
	}
	return f.Success(SubmitResult{Event: newEventView(ev, layout)})
}

// formatSlot renders v in def's text form, or as a hex word if it does not decode.
func formatSlot(def slot.Def, v slot.Value) string {
	if text, err := def.Format(v); err == nil {
		return text
	}
	return v.String()
}
