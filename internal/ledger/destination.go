package ledger

import (
	"context"
	"fmt"

	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
)

// SubmitDestination applies req on the layer where the move lands.
//
// Preconditions, in order:
//  1. The layer's role accepts req.Direction at destination (else WRONG_ROLE).
//  2. With a layout, req.Key is a declared address slot (else MALFORMED_SLOT_VALUE).
//  3. req.Value decodes as an address (else MALFORMED_SLOT_VALUE) equal to
//     req.Requestor and not zero (else UNAUTHORIZED). This is checked before
//     the proof so a valid proof never lets a third party redirect a transfer.
//  4. (direction, id) is not in the applied set (else DUPLICATE_REQUEST).
//  5. The OriginVerifier confirms the origin layer accepted the request
//     (else UNVERIFIED_ORIGIN, which is retryable).
//
// On success the slot holds req.Value, (direction, id) is applied, and one
// destination event is appended, all in one atomic state update.
func (l *Layer) SubmitDestination(ctx context.Context, req request.Request) (request.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	phase := request.PhaseDestination
	if err := dispatch(l.role, phase, req); err != nil {
		return request.Event{}, l.reject(phase, req, err)
	}

	if err := l.requestable(phase, req); err != nil {
		return request.Event{}, l.reject(phase, req, err)
	}

	claimed, err := slot.DecodeAddress(req.Value)
	if err != nil {
		return request.Event{}, l.reject(phase, req,
			newRequestError(CodeMalformedSlotValue, l.role, phase, req, err, "value is not an address"))
	}
	if claimed.IsZero() || claimed != req.Requestor {
		return request.Event{}, l.reject(phase, req,
			newRequestError(CodeUnauthorized, l.role, phase, req, nil, "%s cannot install %s", req.Requestor, claimed))
	}

	applied, err := l.state.IsApplied(ctx, req.ReplayKey())
	if err != nil {
		return request.Event{}, fmt.Errorf("submit destination: %w", err)
	}
	if applied {
		return request.Event{}, l.reject(phase, req,
			newRequestError(CodeDuplicateRequest, l.role, phase, req, nil, "request already applied on this layer"))
	}

	if err := l.verify(ctx, req); err != nil {
		return request.Event{}, l.reject(phase, req, err)
	}

	ev, applied, err := l.state.ApplyDestination(ctx, l.role, req)
	if err != nil {
		return request.Event{}, fmt.Errorf("submit destination: %w", err)
	}
	if !applied {
		return request.Event{}, l.reject(phase, req,
			newRequestError(CodeDuplicateRequest, l.role, phase, req, nil, "request already applied on this layer"))
	}

	l.logger.Info("request applied",
		"phase", phase.String(),
		"direction", req.Direction.String(),
		"request_id", req.ID,
		"requestor", req.Requestor.String(),
		"seq", ev.Seq,
	)
	l.notify(ev)
	return ev, nil
}

func (l *Layer) verify(ctx context.Context, req request.Request) error {
	phase := request.PhaseDestination
	if l.verifier == nil {
		return newRequestError(CodeUnverifiedOrigin, l.role, phase, req, nil, "no origin verifier configured")
	}
	ok, err := l.verifier.VerifyOrigin(ctx, req)
	if err != nil {
		return newRequestError(CodeUnverifiedOrigin, l.role, phase, req, err, "origin verification failed")
	}
	if !ok {
		return newRequestError(CodeUnverifiedOrigin, l.role, phase, req, nil, "no proof that %s layer accepted the request", req.Direction.Origin())
	}
	return nil
}
