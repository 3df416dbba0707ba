package ledger

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
)

func TestEnterEndToEnd(t *testing.T) {
	ctx := context.Background()
	root, child := newPair(t, addrA)

	ev, err := root.SubmitOrigin(ctx, req(request.Enter, 0, addrA, addrB))
	require.NoError(t, err)
	assert.Equal(t, request.PhaseOrigin, ev.Phase)
	assert.Equal(t, request.Root, ev.Role)
	assert.Equal(t, addrA, holder(t, root), "origin must not mutate the slot")

	ev, err = child.SubmitDestination(ctx, req(request.Enter, 0, addrB, addrB))
	require.NoError(t, err)
	assert.Equal(t, request.PhaseDestination, ev.Phase)
	assert.Equal(t, addrB, holder(t, child))
	assert.Equal(t, addrA, holder(t, root))

	assert.Len(t, mustEvents(t, root), 1)
	assert.Len(t, mustEvents(t, child), 1)
}

func TestExitEndToEnd(t *testing.T) {
	ctx := context.Background()
	root, child := newPair(t, addrA)
	require.NoError(t, child.Seed(ctx, ownerKey, slot.EncodeAddress(addrB)))

	_, err := child.SubmitOrigin(ctx, req(request.Exit, 1, addrB, addrA))
	require.NoError(t, err)
	assert.Equal(t, addrB, holder(t, child))

	_, err = root.SubmitDestination(ctx, req(request.Exit, 1, addrA, addrA))
	require.NoError(t, err)
	assert.Equal(t, addrA, holder(t, root))
}

// The fixture walk: enter to nextOwner, restore, then exit back to nextOwner.
// All requests use id 0; the replay keys differ by direction.
func TestFixtureWalkReusesIDAcrossDirections(t *testing.T) {
	ctx := context.Background()
	root, child := newPair(t, addrA)

	_, err := root.SubmitOrigin(ctx, req(request.Enter, 0, addrC, addrA))
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = root.SubmitOrigin(ctx, req(request.Enter, 0, addrA, addrB))
	require.NoError(t, err)
	_, err = child.SubmitDestination(ctx, req(request.Enter, 0, addrB, addrB))
	require.NoError(t, err)

	// child owner restored to A outside the request protocol
	require.NoError(t, child.Seed(ctx, ownerKey, slot.EncodeAddress(addrA)))

	_, err = child.SubmitOrigin(ctx, req(request.Exit, 0, addrA, addrB))
	require.NoError(t, err)
	_, err = root.SubmitDestination(ctx, req(request.Exit, 0, addrB, addrB))
	require.NoError(t, err)

	assert.Equal(t, addrB, holder(t, root))
}

func TestOriginUnauthorizedLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	root, _ := newPair(t, addrA)

	before, err := root.CurrentValue(ctx, ownerKey)
	require.NoError(t, err)

	_, err = root.SubmitOrigin(ctx, req(request.Enter, 2, addrC, addrC))
	require.ErrorIs(t, err, ErrUnauthorized)

	after, err := root.CurrentValue(ctx, ownerKey)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, mustEvents(t, root))

	applied, err := root.State().IsApplied(ctx, request.ReplayKey{Direction: request.Enter, ID: 2})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestOriginUnsetSlotIsUnauthorized(t *testing.T) {
	ctx := context.Background()
	_, child := newPair(t, addrA)

	// child slot never seeded: zero address holds it, and nobody may claim that
	_, err := child.SubmitOrigin(ctx, req(request.Exit, 0, slot.ZeroAddress, addrA))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestOriginMalformedValues(t *testing.T) {
	ctx := context.Background()
	root, _ := newPair(t, addrA)

	bad := req(request.Enter, 0, addrA, addrB)
	bad.Value[0] = 0xff
	_, err := root.SubmitOrigin(ctx, bad)
	require.ErrorIs(t, err, ErrMalformedSlotValue)
	assert.True(t, errors.Is(err, slot.ErrMalformedSlotValue))

	var corrupt slot.Value
	corrupt[0] = 1
	require.NoError(t, root.Seed(ctx, ownerKey, corrupt))
	_, err = root.SubmitOrigin(ctx, req(request.Enter, 0, addrA, addrB))
	require.ErrorIs(t, err, ErrMalformedSlotValue)
	assert.Empty(t, mustEvents(t, root))
}

func TestOriginDuplicateCommit(t *testing.T) {
	ctx := context.Background()
	root, _ := newPair(t, addrA)

	_, err := root.SubmitOrigin(ctx, req(request.Enter, 5, addrA, addrB))
	require.NoError(t, err)
	_, err = root.SubmitOrigin(ctx, req(request.Enter, 5, addrA, addrC))
	require.ErrorIs(t, err, ErrDuplicateRequest)
	assert.Len(t, mustEvents(t, root), 1)

	next, err := root.NextRequestID(ctx, request.Enter)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), next)

	next, err = root.NextRequestID(ctx, request.Exit)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), next)
}

func TestDestinationIdentityCheckIgnoresProof(t *testing.T) {
	ctx := context.Background()
	root, child := newPair(t, addrA)
	child.SetVerifier(trustAll)

	_, err := root.SubmitOrigin(ctx, req(request.Enter, 0, addrA, addrB))
	require.NoError(t, err)

	// C tries to install B's incoming value
	_, err = child.SubmitDestination(ctx, req(request.Enter, 0, addrC, addrB))
	require.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, slot.ZeroAddress, holder(t, child))
	assert.Empty(t, mustEvents(t, child))
}

func TestDestinationReplayRejected(t *testing.T) {
	ctx := context.Background()
	root, child := newPair(t, addrA)

	_, err := root.SubmitOrigin(ctx, req(request.Enter, 0, addrA, addrB))
	require.NoError(t, err)

	_, err = child.SubmitDestination(ctx, req(request.Enter, 0, addrB, addrB))
	require.NoError(t, err)

	before := mustEvents(t, child)
	_, err = child.SubmitDestination(ctx, req(request.Enter, 0, addrB, addrB))
	require.ErrorIs(t, err, ErrDuplicateRequest)

	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.False(t, re.Retryable())
	assert.Equal(t, before, mustEvents(t, child))
	assert.Equal(t, addrB, holder(t, child))
}

func TestDestinationUnverifiedOrigin(t *testing.T) {
	ctx := context.Background()
	_, child := newPair(t, addrA)

	// nothing committed on root
	_, err := child.SubmitDestination(ctx, req(request.Enter, 0, addrB, addrB))
	require.ErrorIs(t, err, ErrUnverifiedOrigin)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, slot.ZeroAddress, holder(t, child))
}

func TestDestinationVerifierErrorIsUnverified(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("proof service down")
	child := NewLayer(request.Child, NewMemoryState(), WithLogger(quietLogger()),
		WithVerifier(VerifierFunc(func(context.Context, request.Request) (bool, error) {
			return false, boom
		})))

	_, err := child.SubmitDestination(ctx, req(request.Enter, 0, addrB, addrB))
	require.ErrorIs(t, err, ErrUnverifiedOrigin)
	assert.ErrorIs(t, err, boom)
}

func TestDestinationWithoutVerifier(t *testing.T) {
	child := NewLayer(request.Child, NewMemoryState(), WithLogger(quietLogger()))
	_, err := child.SubmitDestination(context.Background(), req(request.Enter, 0, addrB, addrB))
	require.ErrorIs(t, err, ErrUnverifiedOrigin)
}

func TestDestinationRejectsZeroAddress(t *testing.T) {
	child := NewLayer(request.Child, NewMemoryState(), WithLogger(quietLogger()), WithVerifier(trustAll))
	_, err := child.SubmitDestination(context.Background(), req(request.Enter, 0, slot.ZeroAddress, slot.ZeroAddress))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestWrongRoleEntryPoints(t *testing.T) {
	ctx := context.Background()
	root, child := newPair(t, addrA)
	require.NoError(t, child.Seed(ctx, ownerKey, slot.EncodeAddress(addrB)))
	root.SetVerifier(trustAll)
	child.SetVerifier(trustAll)

	tests := []struct {
		name   string
		submit func() error
	}{
		{"enter origin on child", func() error {
			_, err := child.SubmitOrigin(ctx, req(request.Enter, 0, addrB, addrB))
			return err
		}},
		{"exit origin on root", func() error {
			_, err := root.SubmitOrigin(ctx, req(request.Exit, 0, addrA, addrA))
			return err
		}},
		{"enter destination on root", func() error {
			_, err := root.SubmitDestination(ctx, req(request.Enter, 0, addrB, addrB))
			return err
		}},
		{"exit destination on child", func() error {
			_, err := child.SubmitDestination(ctx, req(request.Exit, 0, addrA, addrA))
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.submit()
			require.ErrorIs(t, err, ErrWrongRole)
			code, ok := CodeOf(err)
			require.True(t, ok)
			assert.Equal(t, CodeWrongRole, code)
		})
	}

	assert.Equal(t, addrA, holder(t, root))
	assert.Equal(t, addrB, holder(t, child))
	assert.Empty(t, mustEvents(t, root))
	assert.Empty(t, mustEvents(t, child))
}

func TestAcceptsTable(t *testing.T) {
	assert.True(t, Accepts(request.Root, request.PhaseOrigin, request.Enter))
	assert.True(t, Accepts(request.Root, request.PhaseDestination, request.Exit))
	assert.True(t, Accepts(request.Child, request.PhaseOrigin, request.Exit))
	assert.True(t, Accepts(request.Child, request.PhaseDestination, request.Enter))

	assert.False(t, Accepts(request.Root, request.PhaseOrigin, request.Exit))
	assert.False(t, Accepts(request.Child, request.PhaseDestination, request.Exit))
	assert.False(t, Accepts(request.Root, request.Phase(0), request.Enter))
}

func TestStatusProgression(t *testing.T) {
	ctx := context.Background()
	root, child := newPair(t, addrA)

	st, err := Status(ctx, root, child, request.Enter, 0)
	require.NoError(t, err)
	assert.Equal(t, request.NotSubmitted, st)

	_, err = root.SubmitOrigin(ctx, req(request.Enter, 0, addrA, addrB))
	require.NoError(t, err)
	st, err = Status(ctx, root, child, request.Enter, 0)
	require.NoError(t, err)
	assert.Equal(t, request.OriginCommitted, st)

	_, err = child.SubmitDestination(ctx, req(request.Enter, 0, addrB, addrB))
	require.NoError(t, err)
	st, err = Status(ctx, root, child, request.Enter, 0)
	require.NoError(t, err)
	assert.Equal(t, request.DestinationApplied, st)

	_, err = Status(ctx, child, root, request.Enter, 0)
	assert.Error(t, err)
}

func TestSubscribersSeeCommittedEvents(t *testing.T) {
	ctx := context.Background()
	root, _ := newPair(t, addrA)

	var seen []request.Event
	root.Subscribe(func(ev request.Event) { seen = append(seen, ev) })

	_, err := root.SubmitOrigin(ctx, req(request.Enter, 0, addrC, addrB))
	require.Error(t, err)
	_, err = root.SubmitOrigin(ctx, req(request.Enter, 0, addrA, addrB))
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, int64(1), seen[0].Seq)
}

func TestRequestErrorMessage(t *testing.T) {
	err := newRequestError(CodeUnauthorized, request.Root, request.PhaseOrigin,
		req(request.Enter, 4, addrC, addrC), nil, "nope")
	assert.Contains(t, err.Error(), "UNAUTHORIZED: nope")
	assert.Contains(t, err.Error(), "layer=root")
	assert.Contains(t, err.Error(), "enter#4")
}

func TestLayoutRestrictsRequestsToAddressSlots(t *testing.T) {
	ctx := context.Background()
	layout, err := slot.CompileLayout(`
slot: owner:  {index: 0, type: "address"}
slot: paused: {index: 1, type: "bool"}
slot: supply: {index: 2, type: "uint"}
`)
	require.NoError(t, err)
	pausedKey, supplyKey := slot.KeyAt(1), slot.KeyAt(2)

	// The word 2 also reads as the address 0x...02.
	two := mustAddr("0x0000000000000000000000000000000000000002")
	word := slot.UintCodec{}.Encode(2)
	require.Equal(t, slot.EncodeAddress(two), word)

	root := NewLayer(request.Root, NewMemoryState(), WithLogger(quietLogger()), WithLayout(layout))
	child := NewLayer(request.Child, NewMemoryState(), WithLogger(quietLogger()), WithLayout(layout), WithVerifier(trustAll))
	require.NoError(t, root.Seed(ctx, supplyKey, word))

	at := func(dir request.Direction, key slot.Key) request.Request {
		return request.Request{Direction: dir, Requestor: two, Key: key, Value: word}
	}
	tests := []struct {
		name   string
		submit func() error
	}{
		{"bool slot at destination", func() error {
			_, err := child.SubmitDestination(ctx, at(request.Enter, pausedKey))
			return err
		}},
		{"uint slot at destination", func() error {
			_, err := child.SubmitDestination(ctx, at(request.Enter, supplyKey))
			return err
		}},
		{"uint slot at origin", func() error {
			_, err := root.SubmitOrigin(ctx, at(request.Enter, supplyKey))
			return err
		}},
		{"undeclared slot at destination", func() error {
			_, err := child.SubmitDestination(ctx, at(request.Enter, slot.KeyAt(9)))
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.submit()
			require.ErrorIs(t, err, ErrMalformedSlotValue)
			assert.ErrorIs(t, err, slot.ErrMalformedSlotValue)
			assert.False(t, IsRetryable(err))
		})
	}

	paused, err := child.CurrentValue(ctx, pausedKey)
	require.NoError(t, err)
	assert.True(t, paused.IsZero())
	assert.Empty(t, mustEvents(t, root))
	assert.Empty(t, mustEvents(t, child))

	// Address slots still move under the layout.
	child.SetVerifier(originLogVerifier(root))
	require.NoError(t, root.Seed(ctx, ownerKey, slot.EncodeAddress(addrA)))
	_, err = root.SubmitOrigin(ctx, req(request.Enter, 0, addrA, addrB))
	require.NoError(t, err)
	_, err = child.SubmitDestination(ctx, req(request.Enter, 0, addrB, addrB))
	require.NoError(t, err)
	assert.Equal(t, addrB, holder(t, child))
}

func TestWithoutLayoutEveryKeyIsAnAddressSlot(t *testing.T) {
	ctx := context.Background()
	child := NewLayer(request.Child, NewMemoryState(), WithLogger(quietLogger()), WithVerifier(trustAll))

	r := req(request.Enter, 0, addrB, addrB)
	r.Key = slot.KeyAt(5)
	_, err := child.SubmitDestination(ctx, r)
	require.NoError(t, err)

	v, err := child.CurrentValue(ctx, slot.KeyAt(5))
	require.NoError(t, err)
	assert.Equal(t, slot.EncodeAddress(addrB), v)
}

func TestNextRequestIDComparesUnsigned(t *testing.T) {
	ctx := context.Background()
	root, _ := newPair(t, addrA)

	for _, id := range []uint64{math.MaxInt64, math.MaxInt64 + 1} {
		_, err := root.SubmitOrigin(ctx, req(request.Enter, id, addrA, addrB))
		require.NoError(t, err)
	}
	next, err := root.NextRequestID(ctx, request.Enter)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxInt64)+2, next)

	_, err = root.SubmitOrigin(ctx, req(request.Enter, math.MaxUint64, addrA, addrB))
	require.NoError(t, err)
	_, err = root.NextRequestID(ctx, request.Enter)
	assert.ErrorIs(t, err, request.ErrIDSpaceExhausted)
}
