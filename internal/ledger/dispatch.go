package ledger

import (
	"context"
	"fmt"

	"github.com/roach88/reqsync/internal/request"
)

// Accepts reports whether a layer with role takes direction at phase.
//
//	         origin   destination
//	root     enter    exit
//	child    exit     enter
func Accepts(role request.Role, phase request.Phase, dir request.Direction) bool {
	switch phase {
	case request.PhaseOrigin:
		return dir.Origin() == role
	case request.PhaseDestination:
		return dir.Destination() == role
	default:
		return false
	}
}

// dispatch rejects calls to the wrong entry point for a direction.
func dispatch(role request.Role, phase request.Phase, req request.Request) error {
	switch role {
	case request.Root, request.Child:
	default:
		return newRequestError(CodeWrongRole, role, phase, req, nil, "layer has no role")
	}
	if !Accepts(role, phase, req.Direction) {
		want := req.Direction.Origin()
		if phase == request.PhaseDestination {
			want = req.Direction.Destination()
		}
		return newRequestError(CodeWrongRole, role, phase, req, nil,
			"%s %s must be submitted on the %s layer", req.Direction, phase, want)
	}
	return nil
}

// Status reports how far (direction, id) has progressed between two layers.
//
// NotSubmitted → OriginCommitted → DestinationApplied. A destination write is
// only ever reported as applied; it cannot be un-applied.
func Status(ctx context.Context, root, child *Layer, dir request.Direction, id uint64) (request.Status, error) {
	if root.Role() != request.Root || child.Role() != request.Child {
		return request.NotSubmitted, fmt.Errorf("status: want root and child layers, got %s and %s", root.Role(), child.Role())
	}

	origin, dest := root, child
	if dir == request.Exit {
		origin, dest = child, root
	}
	rk := request.ReplayKey{Direction: dir, ID: id}

	applied, err := dest.state.IsApplied(ctx, rk)
	if err != nil {
		return request.NotSubmitted, fmt.Errorf("status: %w", err)
	}
	if applied {
		return request.DestinationApplied, nil
	}

	committed, err := origin.state.HasOrigin(ctx, rk)
	if err != nil {
		return request.NotSubmitted, fmt.Errorf("status: %w", err)
	}
	if committed {
		return request.OriginCommitted, nil
	}
	return request.NotSubmitted, nil
}
