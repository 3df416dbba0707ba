package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
)

var (
	ownerKey = slot.KeyAt(0)

	addrA = mustAddr("0x1111111111111111111111111111111111111111")
	addrB = mustAddr("0x2222222222222222222222222222222222222222")
	addrC = mustAddr("0x3333333333333333333333333333333333333333")
)

func mustAddr(s string) slot.Address {
	a, err := slot.ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// originLogVerifier accepts a request if origin's log holds a matching origin event.
func originLogVerifier(origin *Layer) OriginVerifier {
	return VerifierFunc(func(ctx context.Context, req request.Request) (bool, error) {
		_, ok, err := origin.State().FindOrigin(ctx, req.Subject())
		return ok, err
	})
}

// trustAll accepts every request.
var trustAll = VerifierFunc(func(context.Context, request.Request) (bool, error) { return true, nil })

// newPair creates root and child layers wired to verify against each other's
// logs. Root holds owner=rootOwner.
func newPair(t *testing.T, rootOwner slot.Address) (root, child *Layer) {
	t.Helper()
	root = NewLayer(request.Root, NewMemoryState(), WithLogger(quietLogger()))
	child = NewLayer(request.Child, NewMemoryState(), WithLogger(quietLogger()))
	root.SetVerifier(originLogVerifier(child))
	child.SetVerifier(originLogVerifier(root))

	require.NoError(t, root.Seed(context.Background(), ownerKey, slot.EncodeAddress(rootOwner)))
	return root, child
}

func req(dir request.Direction, id uint64, requestor, target slot.Address) request.Request {
	return request.Request{
		Direction: dir,
		ID:        id,
		Requestor: requestor,
		Key:       ownerKey,
		Value:     slot.EncodeAddress(target),
	}
}

func holder(t *testing.T, l *Layer) slot.Address {
	t.Helper()
	a, err := l.Holder(context.Background(), ownerKey)
	require.NoError(t, err)
	return a
}

func mustEvents(t *testing.T, l *Layer) []request.Event {
	t.Helper()
	evs, err := l.Events(context.Background(), 0)
	require.NoError(t, err)
	return evs
}
