package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
)

// Layer is one ledger (root or child) exposing the two request entry points.
//
// Thread-safety model:
//   - SubmitOrigin / SubmitDestination: serialized by mu, safe from any goroutine
//   - CurrentValue / Events: read-only, safe from any goroutine
//   - Subscribe: safe from any goroutine; subscribers run after commit, under mu
type Layer struct {
	role     request.Role
	state    State
	verifier OriginVerifier
	layout   *slot.Layout
	logger   *slog.Logger

	mu          sync.Mutex
	subscribers []Subscriber
}

// LayerOption configures a Layer.
type LayerOption func(*Layer)

// WithVerifier sets the origin proof verifier used by SubmitDestination.
// Without one every destination submission fails with UNVERIFIED_ORIGIN.
func WithVerifier(v OriginVerifier) LayerOption {
	return func(l *Layer) {
		l.verifier = v
	}
}

// WithLayout restricts requests to the address slots declared in layout.
// Without one every key is treated as an address slot.
func WithLayout(layout *slot.Layout) LayerOption {
	return func(l *Layer) {
		l.layout = layout
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) LayerOption {
	return func(l *Layer) {
		l.logger = logger
	}
}

// NewLayer creates a layer with the given role over state.
func NewLayer(role request.Role, state State, opts ...LayerOption) *Layer {
	l := &Layer{
		role:   role,
		state:  state,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("layer", role.String())
	return l
}

// Role returns the layer's fixed role.
func (l *Layer) Role() request.Role { return l.role }

// State returns the layer's state aggregate.
func (l *Layer) State() State { return l.state }

// SetVerifier replaces the origin proof verifier.
func (l *Layer) SetVerifier(v OriginVerifier) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verifier = v
}

// CurrentValue returns the slot word at key. Read-only, any caller.
func (l *Layer) CurrentValue(ctx context.Context, key slot.Key) (slot.Value, error) {
	v, err := l.state.CurrentValue(ctx, key)
	if err != nil {
		return slot.Value{}, fmt.Errorf("current value %s: %w", key, err)
	}
	return v, nil
}

// Holder decodes the address held in an address slot.
func (l *Layer) Holder(ctx context.Context, key slot.Key) (slot.Address, error) {
	v, err := l.CurrentValue(ctx, key)
	if err != nil {
		return slot.Address{}, err
	}
	return slot.DecodeAddress(v)
}

// Seed sets a slot's genesis value.
func (l *Layer) Seed(ctx context.Context, key slot.Key, value slot.Value) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.state.Seed(ctx, key, value); err != nil {
		return fmt.Errorf("seed %s: %w", key, err)
	}
	l.logger.Info("slot seeded", "key", key.String(), "value", value.String())
	return nil
}

// Events returns the layer's log after afterSeq.
func (l *Layer) Events(ctx context.Context, afterSeq int64) ([]request.Event, error) {
	evs, err := l.state.Events(ctx, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	return evs, nil
}

// NextRequestID returns the next unused origin id for dir on this layer.
func (l *Layer) NextRequestID(ctx context.Context, dir request.Direction) (uint64, error) {
	id, err := l.state.NextOriginID(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("next request id: %w", err)
	}
	return id, nil
}

// requestable rejects keys that do not name a declared address slot. Slots
// of other types are state the request protocol cannot move.
func (l *Layer) requestable(phase request.Phase, req request.Request) error {
	if l.layout == nil {
		return nil
	}
	def, ok := l.layout.ByKey(req.Key)
	if !ok {
		return newRequestError(CodeMalformedSlotValue, l.role, phase, req, slot.ErrMalformedSlotValue,
			"slot %s is not declared", req.Key)
	}
	if def.Type != slot.TypeAddress {
		return newRequestError(CodeMalformedSlotValue, l.role, phase, req, slot.ErrMalformedSlotValue,
			"slot %q holds a %s, not an address", def.Name, def.Type)
	}
	return nil
}

func (l *Layer) reject(phase request.Phase, req request.Request, err error) error {
	code, _ := CodeOf(err)
	l.logger.Warn("request rejected",
		"phase", phase.String(),
		"direction", req.Direction.String(),
		"request_id", req.ID,
		"requestor", req.Requestor.String(),
		"code", string(code),
		"error", err,
	)
	return err
}
