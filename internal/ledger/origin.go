package ledger

import (
	"context"
	"fmt"

	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
)

// SubmitOrigin commits req on the layer where the move starts.
//
// Preconditions, in order:
//  1. The layer's role accepts req.Direction at origin (else WRONG_ROLE).
//  2. With a layout, req.Key is a declared address slot (else MALFORMED_SLOT_VALUE).
//  3. The slot at req.Key decodes to an address equal to req.Requestor, and
//     that address is not zero (else UNAUTHORIZED, or MALFORMED_SLOT_VALUE if
//     the stored word is not an address).
//  4. req.Value decodes as an address (else MALFORMED_SLOT_VALUE).
//  5. (direction, id) has not been committed on this layer (else DUPLICATE_REQUEST).
//
// The slot value and the applied set are never touched; exactly one origin
// event is appended.
func (l *Layer) SubmitOrigin(ctx context.Context, req request.Request) (request.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	phase := request.PhaseOrigin
	if err := dispatch(l.role, phase, req); err != nil {
		return request.Event{}, l.reject(phase, req, err)
	}

	if err := l.requestable(phase, req); err != nil {
		return request.Event{}, l.reject(phase, req, err)
	}

	current, err := l.state.CurrentValue(ctx, req.Key)
	if err != nil {
		return request.Event{}, fmt.Errorf("submit origin: %w", err)
	}
	holder, err := slot.DecodeAddress(current)
	if err != nil {
		return request.Event{}, l.reject(phase, req,
			newRequestError(CodeMalformedSlotValue, l.role, phase, req, err, "stored slot %s is not an address", req.Key))
	}
	if holder.IsZero() || holder != req.Requestor {
		return request.Event{}, l.reject(phase, req,
			newRequestError(CodeUnauthorized, l.role, phase, req, nil, "%s does not hold slot %s", req.Requestor, req.Key))
	}

	if _, err := slot.DecodeAddress(req.Value); err != nil {
		return request.Event{}, l.reject(phase, req,
			newRequestError(CodeMalformedSlotValue, l.role, phase, req, err, "target value is not an address"))
	}

	ev, appended, err := l.state.AppendOrigin(ctx, l.role, req)
	if err != nil {
		return request.Event{}, fmt.Errorf("submit origin: %w", err)
	}
	if !appended {
		return request.Event{}, l.reject(phase, req,
			newRequestError(CodeDuplicateRequest, l.role, phase, req, nil, "request already committed on this layer"))
	}

	l.logger.Info("request committed",
		"phase", phase.String(),
		"direction", req.Direction.String(),
		"request_id", req.ID,
		"requestor", req.Requestor.String(),
		"seq", ev.Seq,
	)
	l.notify(ev)
	return ev, nil
}
