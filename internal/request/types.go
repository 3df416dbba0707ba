package request

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/reqsync/internal/slot"
)

// Direction says which way a request moves a slot.
// On the wire it is a bool: false is Enter, true is Exit.
type Direction bool

const (
	// Enter moves a slot from the root layer to the child layer.
	Enter Direction = false
	// Exit moves a slot from the child layer to the root layer.
	Exit Direction = true
)

// IsExit returns the wire form of the direction.
func (d Direction) IsExit() bool { return bool(d) }

func (d Direction) String() string {
	if d == Exit {
		return "exit"
	}
	return "enter"
}

// ParseDirection accepts "enter"/"exit" and the wire forms "false"/"true".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enter", "false":
		return Enter, nil
	case "exit", "true":
		return Exit, nil
	default:
		return Enter, fmt.Errorf("invalid direction %q: must be enter or exit", s)
	}
}

// Origin returns the role of the layer a request in this direction starts on.
func (d Direction) Origin() Role {
	if d == Exit {
		return Child
	}
	return Root
}

// Destination returns the role of the layer a request in this direction lands on.
func (d Direction) Destination() Role {
	if d == Exit {
		return Root
	}
	return Child
}

// Role is a layer's fixed position in the two-layer architecture.
type Role int

const (
	// Root is the base, more trusted layer.
	Root Role = iota + 1
	// Child is the derived layer anchored to the root.
	Child
)

func (r Role) String() string {
	switch r {
	case Root:
		return "root"
	case Child:
		return "child"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole accepts "root" or "child".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "root":
		return Root, nil
	case "child":
		return Child, nil
	default:
		return 0, fmt.Errorf("invalid role %q: must be root or child", s)
	}
}

// Phase identifies which entry point accepted a request.
type Phase int

const (
	// PhaseOrigin marks a request committed where the move was initiated.
	PhaseOrigin Phase = iota + 1
	// PhaseDestination marks a request applied on the opposite layer.
	PhaseDestination
)

func (p Phase) String() string {
	switch p {
	case PhaseOrigin:
		return "origin"
	case PhaseDestination:
		return "destination"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "origin":
		return PhaseOrigin, nil
	case "destination":
		return PhaseDestination, nil
	default:
		return 0, fmt.Errorf("invalid phase %q", s)
	}
}

// Request is one intent to move a slot's value in one direction.
type Request struct {
	Direction Direction    `json:"is_exit"`
	ID        uint64       `json:"request_id"`
	Requestor slot.Address `json:"requestor"`
	Key       slot.Key     `json:"key"`
	Value     slot.Value   `json:"value"`
}

// ReplayKey is the identity of a request inside one layer's applied set.
type ReplayKey struct {
	Direction Direction
	ID        uint64
}

// ErrIDSpaceExhausted is returned when the largest uint64 id has been
// committed, so no id follows it.
var ErrIDSpaceExhausted = errors.New("request id space exhausted")

// ReplayKey returns the (direction, id) pair guarded against replay.
func (r Request) ReplayKey() ReplayKey {
	return ReplayKey{Direction: r.Direction, ID: r.ID}
}

func (r Request) String() string {
	return fmt.Sprintf("%s#%d(requestor=%s key=%s value=%s)", r.Direction, r.ID, r.Requestor, r.Key, r.Value)
}

// Event is the log entry emitted for every accepted request.
type Event struct {
	// Seq is the layer's logical clock value when the event was appended.
	Seq int64 `json:"seq"`

	// Role is the layer that emitted the event.
	Role Role `json:"-"`

	// Phase is the entry point that accepted the request.
	Phase Phase `json:"-"`

	Request Request `json:"request"`

	// Hash is Request.Hash().
	Hash Hash `json:"hash"`

	// Subject is Request.Subject(), the key proof verifiers look up.
	Subject Hash `json:"subject"`
}

// NewEvent stamps req as accepted by phase on role.
func NewEvent(seq int64, role Role, phase Phase, req Request) Event {
	return Event{Seq: seq, Role: role, Phase: phase, Request: req, Hash: req.Hash(), Subject: req.Subject()}
}

// Status is the progress of one (direction, id) request across both layers.
type Status int

const (
	NotSubmitted Status = iota
	OriginCommitted
	DestinationApplied
)

func (s Status) String() string {
	switch s {
	case NotSubmitted:
		return "not_submitted"
	case OriginCommitted:
		return "origin_committed"
	case DestinationApplied:
		return "destination_applied"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}
