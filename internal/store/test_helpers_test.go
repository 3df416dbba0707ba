package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
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

// createTestStore creates a new file-backed store with the given role.
func createTestStore(t *testing.T, role request.Role) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitRole(context.Background(), role); err != nil {
		t.Fatalf("InitRole() failed: %v", err)
	}
	return s
}

// createTestRequest creates an owner-slot request handing the slot to target.
func createTestRequest(dir request.Direction, id uint64, requestor, target slot.Address) request.Request {
	return request.Request{
		Direction: dir,
		ID:        id,
		Requestor: requestor,
		Key:       ownerKey,
		Value:     slot.EncodeAddress(target),
	}
}
