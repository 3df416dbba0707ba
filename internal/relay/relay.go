package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/reqsync/internal/ledger"
	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
)

// DefaultInterval is the polling interval used by Run when none is given.
const DefaultInterval = 2 * time.Second

// Relay copies origin requests from one layer to the other.
//
// Thread-safety model:
//   - Pass / Run: must not be called concurrently on the same Relay
//   - Cursor: safe from any goroutine after Pass returns
type Relay struct {
	origin *ledger.Layer
	dest   *ledger.Layer
	logger *slog.Logger
	gen    SessionGenerator

	// cursor is the highest origin seq fully handled.
	cursor int64
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithSessionGenerator sets the session id source. Default: UUIDv7Generator.
func WithSessionGenerator(gen SessionGenerator) Option {
	return func(r *Relay) {
		r.gen = gen
	}
}

// WithCursor starts the relay after origin seq. Default 0 (whole log).
func WithCursor(seq int64) Option {
	return func(r *Relay) {
		r.cursor = seq
	}
}

// New creates a relay from origin to dest. The layers must have opposite roles.
func New(origin, dest *ledger.Layer, opts ...Option) (*Relay, error) {
	if origin.Role() == dest.Role() {
		return nil, fmt.Errorf("relay: origin and destination are both %s", origin.Role())
	}
	r := &Relay{
		origin: origin,
		dest:   dest,
		logger: slog.Default(),
		gen:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("from", origin.Role().String(), "to", dest.Role().String())
	return r, nil
}

// Cursor returns the highest origin seq the relay has finished with.
func (r *Relay) Cursor() int64 { return r.cursor }

// PassResult summarizes one relay pass.
type PassResult struct {
	Session   string
	Delivered []request.Event
	Skipped   int

	// Pending is true when the pass stopped at an unverified request.
	Pending bool
}

// Pass delivers every origin event after the cursor whose direction lands on
// the destination layer.
//
// The destination requestor is the address being installed, as the new
// holder reasserts its identity on the destination layer. DUPLICATE_REQUEST
// means the request was already delivered and is skipped. UNVERIFIED_ORIGIN
// stops the pass without advancing the cursor so the next pass retries.
// Any other rejection is logged and skipped. Storage errors abort the pass.
func (r *Relay) Pass(ctx context.Context) (PassResult, error) {
	result := PassResult{Session: r.gen.Generate()}
	logger := r.logger.With("session", result.Session)

	events, err := r.origin.Events(ctx, r.cursor)
	if err != nil {
		return result, fmt.Errorf("relay pass: %w", err)
	}

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if ev.Phase != request.PhaseOrigin || ev.Request.Direction.Destination() != r.dest.Role() {
			r.cursor = ev.Seq
			continue
		}

		delivered, err := r.deliver(ctx, logger, ev)
		switch {
		case err == nil && delivered != nil:
			result.Delivered = append(result.Delivered, *delivered)
		case err == nil:
			result.Skipped++
		case ledger.IsRetryable(err):
			result.Pending = true
			logger.Info("relay waiting for origin proof", "request_id", ev.Request.ID, "seq", ev.Seq)
			return result, nil
		default:
			return result, err
		}
		r.cursor = ev.Seq
	}

	if len(result.Delivered) > 0 || result.Skipped > 0 {
		logger.Info("relay pass complete",
			"delivered", len(result.Delivered),
			"skipped", result.Skipped,
			"cursor", r.cursor,
		)
	}
	return result, nil
}

// deliver submits ev on the destination. Returns (nil, nil) when the request
// was skipped, and a RequestError only when it is retryable.
func (r *Relay) deliver(ctx context.Context, logger *slog.Logger, ev request.Event) (*request.Event, error) {
	req := ev.Request
	requestor, err := slot.DecodeAddress(req.Value)
	if err != nil {
		logger.Warn("relay skipping request with non-address value",
			"direction", req.Direction.String(),
			"request_id", req.ID,
			"error", err,
		)
		return nil, nil
	}
	req.Requestor = requestor

	applied, err := r.dest.SubmitDestination(ctx, req)
	if err == nil {
		logger.Debug("relay delivered",
			"direction", req.Direction.String(),
			"request_id", req.ID,
			"origin_seq", ev.Seq,
			"dest_seq", applied.Seq,
		)
		return &applied, nil
	}

	code, isRequestErr := ledger.CodeOf(err)
	switch {
	case !isRequestErr:
		return nil, fmt.Errorf("relay deliver %s#%d: %w", req.Direction, req.ID, err)
	case ledger.IsRetryable(err):
		return nil, err
	case errors.Is(err, ledger.ErrDuplicateRequest):
		logger.Debug("relay skipping delivered request", "direction", req.Direction.String(), "request_id", req.ID)
	default:
		logger.Warn("relay request rejected",
			"direction", req.Direction.String(),
			"request_id", req.ID,
			"code", string(code),
			"error", err,
		)
	}
	return nil, nil
}

// Run calls Pass every interval until ctx is cancelled.
//
// A failing pass is logged and retried on the next tick; the relay never
// gives up on a committed origin request.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r.logger.Info("relay starting", "interval", interval.String(), "cursor", r.cursor)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Pass(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("relay pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopping: context cancelled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
