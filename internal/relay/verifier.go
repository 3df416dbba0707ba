package relay

import (
	"context"
	"fmt"

	"github.com/roach88/reqsync/internal/ledger"
	"github.com/roach88/reqsync/internal/request"
)

// LogVerifier returns an OriginVerifier that looks up req.Subject() among the
// origin events of origin.
//
// The origin layer must be the one the request's direction starts on; a
// request whose origin role differs from origin's role is never verified.
func LogVerifier(origin *ledger.Layer) ledger.OriginVerifier {
	return ledger.VerifierFunc(func(ctx context.Context, req request.Request) (bool, error) {
		if req.Direction.Origin() != origin.Role() {
			return false, nil
		}
		ev, ok, err := origin.State().FindOrigin(ctx, req.Subject())
		if err != nil {
			return false, fmt.Errorf("log verifier: %w", err)
		}
		return ok && ev.Phase == request.PhaseOrigin, nil
	})
}
