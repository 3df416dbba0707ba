package ledger

import (
	"context"
	"math"
	"sync"

	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
)

// State is the LayerState aggregate of one layer: slot values, the applied
// set, and the append-only request log.
//
// Implementations must make AppendOrigin and ApplyDestination atomic: either
// every effect happens or none does. store.Store persists State in SQLite;
// MemoryState keeps it in process.
type State interface {
	// CurrentValue returns the slot word at key; unset slots are the zero word.
	CurrentValue(ctx context.Context, key slot.Key) (slot.Value, error)

	// Seed sets a slot's genesis value outside the request protocol.
	Seed(ctx context.Context, key slot.Key, value slot.Value) error

	// IsApplied reports whether (direction, id) is in the applied set.
	IsApplied(ctx context.Context, rk request.ReplayKey) (bool, error)

	// HasOrigin reports whether an origin event exists for (direction, id).
	HasOrigin(ctx context.Context, rk request.ReplayKey) (bool, error)

	// AppendOrigin logs an origin event without touching slots or the applied
	// set. Returns appended=false, with no effect, if (direction, id) was
	// already committed on this layer.
	AppendOrigin(ctx context.Context, role request.Role, req request.Request) (ev request.Event, appended bool, err error)

	// ApplyDestination writes req.Value at req.Key, adds (direction, id) to
	// the applied set and logs a destination event. Returns applied=false,
	// with no effect, if (direction, id) was already applied.
	ApplyDestination(ctx context.Context, role request.Role, req request.Request) (ev request.Event, applied bool, err error)

	// Events returns events with Seq > afterSeq in Seq order.
	Events(ctx context.Context, afterSeq int64) ([]request.Event, error)

	// FindOrigin returns the origin event whose request subject matches.
	FindOrigin(ctx context.Context, subject request.Hash) (request.Event, bool, error)

	// NextOriginID returns one more than the highest committed origin id in
	// direction, or 0 if none. Ids compare as unsigned. It fails with
	// request.ErrIDSpaceExhausted once the largest id is committed.
	NextOriginID(ctx context.Context, dir request.Direction) (uint64, error)
}

// MemoryState is an in-process State.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type MemoryState struct {
	mu      sync.Mutex
	clock   *Clock
	slots   map[slot.Key]slot.Value
	applied map[request.ReplayKey]struct{}
	origins map[request.ReplayKey]struct{}
	log     []request.Event
}

// NewMemoryState creates an empty in-memory layer state.
func NewMemoryState() *MemoryState {
	return &MemoryState{
		clock:   NewClock(),
		slots:   make(map[slot.Key]slot.Value),
		applied: make(map[request.ReplayKey]struct{}),
		origins: make(map[request.ReplayKey]struct{}),
	}
}

func (m *MemoryState) CurrentValue(_ context.Context, key slot.Key) (slot.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[key], nil
}

func (m *MemoryState) Seed(_ context.Context, key slot.Key, value slot.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[key] = value
	return nil
}

func (m *MemoryState) IsApplied(_ context.Context, rk request.ReplayKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.applied[rk]
	return ok, nil
}

func (m *MemoryState) HasOrigin(_ context.Context, rk request.ReplayKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.origins[rk]
	return ok, nil
}

func (m *MemoryState) AppendOrigin(_ context.Context, role request.Role, req request.Request) (request.Event, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rk := req.ReplayKey()
	if _, ok := m.origins[rk]; ok {
		return request.Event{}, false, nil
	}
	m.origins[rk] = struct{}{}
	ev := request.NewEvent(m.clock.Next(), role, request.PhaseOrigin, req)
	m.log = append(m.log, ev)
	return ev, true, nil
}

func (m *MemoryState) ApplyDestination(_ context.Context, role request.Role, req request.Request) (request.Event, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rk := req.ReplayKey()
	if _, ok := m.applied[rk]; ok {
		return request.Event{}, false, nil
	}
	m.applied[rk] = struct{}{}
	m.slots[req.Key] = req.Value
	ev := request.NewEvent(m.clock.Next(), role, request.PhaseDestination, req)
	m.log = append(m.log, ev)
	return ev, true, nil
}

func (m *MemoryState) Events(_ context.Context, afterSeq int64) ([]request.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []request.Event{}
	for _, ev := range m.log {
		if ev.Seq > afterSeq {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MemoryState) FindOrigin(_ context.Context, subject request.Hash) (request.Event, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range m.log {
		if ev.Phase == request.PhaseOrigin && ev.Subject == subject {
			return ev, true, nil
		}
	}
	return request.Event{}, false, nil
}

func (m *MemoryState) NextOriginID(_ context.Context, dir request.Direction) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var highest uint64
	seen := false
	for rk := range m.origins {
		if rk.Direction == dir && (!seen || rk.ID > highest) {
			highest, seen = rk.ID, true
		}
	}
	if !seen {
		return 0, nil
	}
	if highest == math.MaxUint64 {
		return 0, request.ErrIDSpaceExhausted
	}
	return highest + 1, nil
}
