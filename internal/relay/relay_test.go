package relay

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reqsync/internal/ledger"
	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
	"github.com/roach88/reqsync/internal/store"
)

var (
	ownerKey = slot.KeyAt(0)

	addrA = mustAddr("0x1111111111111111111111111111111111111111")
	addrB = mustAddr("0x2222222222222222222222222222222222222222")
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

func openLayer(t *testing.T, role request.Role) *ledger.Layer {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), role.String()+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.InitRole(context.Background(), role))
	return ledger.NewLayer(role, s, ledger.WithLogger(quietLogger()))
}

// newPair creates SQLite-backed root and child layers verifying against each
// other's logs, with root's owner slot held by addrA.
func newPair(t *testing.T) (root, child *ledger.Layer) {
	t.Helper()
	root = openLayer(t, request.Root)
	child = openLayer(t, request.Child)
	root.SetVerifier(LogVerifier(child))
	child.SetVerifier(LogVerifier(root))
	require.NoError(t, root.Seed(context.Background(), ownerKey, slot.EncodeAddress(addrA)))
	return root, child
}

func newRelay(t *testing.T, origin, dest *ledger.Layer) *Relay {
	t.Helper()
	r, err := New(origin, dest, WithLogger(quietLogger()), WithSessionGenerator(NewFixedGenerator()))
	require.NoError(t, err)
	return r
}

func enter(id uint64, requestor, target slot.Address) request.Request {
	return request.Request{Direction: request.Enter, ID: id, Requestor: requestor, Key: ownerKey, Value: slot.EncodeAddress(target)}
}

func TestPassDeliversEnter(t *testing.T) {
	ctx := context.Background()
	root, child := newPair(t)

	_, err := root.SubmitOrigin(ctx, enter(0, addrA, addrB))
	require.NoError(t, err)

	r := newRelay(t, root, child)
	result, err := r.Pass(ctx)
	require.NoError(t, err)
	require.Len(t, result.Delivered, 1)
	assert.Equal(t, "relay-session", result.Session)
	assert.False(t, result.Pending)
	assert.Equal(t, addrB, result.Delivered[0].Request.Requestor)
	assert.Equal(t, int64(1), r.Cursor())

	got, err := child.Holder(ctx, ownerKey)
	require.NoError(t, err)
	assert.Equal(t, addrB, got)

	// Origin slot untouched.
	got, err = root.Holder(ctx, ownerKey)
	require.NoError(t, err)
	assert.Equal(t, addrA, got)
}

func TestPassIsIdempotent(t *testing.T) {
	ctx := context.Background()
	root, child := newPair(t)

	_, err := root.SubmitOrigin(ctx, enter(0, addrA, addrB))
	require.NoError(t, err)

	_, err = newRelay(t, root, child).Pass(ctx)
	require.NoError(t, err)

	// A fresh relay rereads the whole log; the destination rejects the replay.
	result, err := newRelay(t, root, child).Pass(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Delivered)
	assert.Equal(t, 1, result.Skipped)

	evs, err := child.Events(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func TestPassFullRoundTrip(t *testing.T) {
	ctx := context.Background()
	root, child := newPair(t)
	down := newRelay(t, root, child)
	up := newRelay(t, child, root)

	_, err := root.SubmitOrigin(ctx, enter(0, addrA, addrB))
	require.NoError(t, err)
	_, err = down.Pass(ctx)
	require.NoError(t, err)

	exit := request.Request{Direction: request.Exit, ID: 0, Requestor: addrB, Key: ownerKey, Value: slot.EncodeAddress(addrA)}
	_, err = child.SubmitOrigin(ctx, exit)
	require.NoError(t, err)

	// The root relay ignores child's own destination event and only delivers the exit.
	result, err := up.Pass(ctx)
	require.NoError(t, err)
	require.Len(t, result.Delivered, 1)
	assert.Equal(t, request.Exit, result.Delivered[0].Request.Direction)

	got, err := root.Holder(ctx, ownerKey)
	require.NoError(t, err)
	assert.Equal(t, addrA, got)

	status, err := ledger.Status(ctx, root, child, request.Exit, 0)
	require.NoError(t, err)
	assert.Equal(t, request.DestinationApplied, status)
}

func TestPassStopsOnUnverified(t *testing.T) {
	ctx := context.Background()
	root, child := newPair(t)
	child.SetVerifier(ledger.VerifierFunc(func(context.Context, request.Request) (bool, error) {
		return false, nil
	}))

	_, err := root.SubmitOrigin(ctx, enter(0, addrA, addrB))
	require.NoError(t, err)

	r := newRelay(t, root, child)
	result, err := r.Pass(ctx)
	require.NoError(t, err)
	assert.True(t, result.Pending)
	assert.Empty(t, result.Delivered)
	assert.Equal(t, int64(0), r.Cursor(), "cursor must not pass an unverified request")

	child.SetVerifier(LogVerifier(root))
	result, err = r.Pass(ctx)
	require.NoError(t, err)
	assert.False(t, result.Pending)
	assert.Len(t, result.Delivered, 1)
}

func TestNewRejectsSameRole(t *testing.T) {
	root := openLayer(t, request.Root)
	other := ledger.NewLayer(request.Root, ledger.NewMemoryState())

	_, err := New(root, other)
	assert.Error(t, err)
}

func TestLogVerifier(t *testing.T) {
	ctx := context.Background()
	root, _ := newPair(t)
	v := LogVerifier(root)

	req := enter(0, addrA, addrB)
	_, err := root.SubmitOrigin(ctx, req)
	require.NoError(t, err)

	// Requestor differs on the destination; the subject still matches.
	dest := req
	dest.Requestor = addrB
	ok, err := v.VerifyOrigin(ctx, dest)
	require.NoError(t, err)
	assert.True(t, ok)

	forged := enter(0, addrA, addrA)
	ok, err = v.VerifyOrigin(ctx, forged)
	require.NoError(t, err)
	assert.False(t, ok)

	// Exit requests never originate on the root.
	wrongWay := req
	wrongWay.Direction = request.Exit
	ok, err = v.VerifyOrigin(ctx, wrongWay)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunStopsOnCancel(t *testing.T) {
	root, child := newPair(t)
	_, err := root.SubmitOrigin(context.Background(), enter(0, addrA, addrB))
	require.NoError(t, err)

	r := newRelay(t, root, child)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool {
		got, err := child.Holder(context.Background(), ownerKey)
		return err == nil && got == addrB
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("s1", "s2")
	assert.Equal(t, "s1", g.Generate())
	assert.Equal(t, "s2", g.Generate())
	assert.Equal(t, "s2", g.Generate())
}

func TestUUIDv7Generator(t *testing.T) {
	id := UUIDv7Generator{}.Generate()
	assert.Len(t, id, 36)
	assert.NotEqual(t, id, UUIDv7Generator{}.Generate())
}
