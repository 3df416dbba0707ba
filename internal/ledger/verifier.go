package ledger

import (
	"context"

	"github.com/roach88/reqsync/internal/request"
)

// OriginVerifier is the external proof collaborator.
//
// In production it checks a trie proof that the other layer's origin entry
// point accepted a request with the same (direction, id, key, value) against
// a committed state root. The ledger only consumes the verdict.
type OriginVerifier interface {
	VerifyOrigin(ctx context.Context, req request.Request) (bool, error)
}

// VerifierFunc adapts a function to OriginVerifier.
type VerifierFunc func(ctx context.Context, req request.Request) (bool, error)

// VerifyOrigin calls f.
func (f VerifierFunc) VerifyOrigin(ctx context.Context, req request.Request) (bool, error) {
	return f(ctx, req)
}
