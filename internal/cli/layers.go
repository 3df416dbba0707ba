package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/roach88/reqsync/internal/ledger"
	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
	"github.com/roach88/reqsync/internal/store"
)

// openedLayer is a layer backed by a SQLite database opened by a command.
type openedLayer struct {
	*ledger.Layer
	store *store.Store
	path  string
}

func (l *openedLayer) Close() error { return l.store.Close() }

// openLayer opens an initialized layer database. The database must already
// exist so a typo in --db never silently creates an empty layer. Requests
// are restricted to the address slots of the --layout declarations.
func openLayer(ctx context.Context, opts *RootOptions, path string) (*openedLayer, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "database path is required")
	}
	layout, err := opts.LoadLayout()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path), err)
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	role, err := st.Role(ctx)
	if err != nil {
		st.Close()
		if errors.Is(err, store.ErrNoRole) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("%s is not an initialized layer (run reqsync init)", path))
		}
		return nil, WrapExitError(ExitCommandError, "failed to read layer role", err)
	}

	layer := ledger.NewLayer(role, st,
		ledger.WithLogger(opts.Logger().With("db", path)),
		ledger.WithLayout(layout),
	)
	return &openedLayer{Layer: layer, store: st, path: path}, nil
}

// requestFlags are the flags shared by the origin and destination commands.
type requestFlags struct {
	Direction string
	ID        uint64
	Requestor string
	Slot      string
	Value     string
	Raw       bool
}

// build encodes the flags into a request. hasID is false when --id was not
// given, in which case nextID supplies it.
func (f *requestFlags) build(ctx context.Context, layout *slot.Layout, hasID bool, nextID func(context.Context, request.Direction) (uint64, error)) (request.Request, slot.Def, error) {
	def, ok := layout.Lookup(f.Slot)
	if !ok {
		return request.Request{}, slot.Def{}, NewExitError(ExitCommandError, fmt.Sprintf("unknown slot %q", f.Slot))
	}
	dir, err := request.ParseDirection(f.Direction)
	if err != nil {
		return request.Request{}, slot.Def{}, WrapExitError(ExitCommandError, "invalid --direction", err)
	}
	requestor, err := slot.ParseAddress(f.Requestor)
	if err != nil {
		return request.Request{}, slot.Def{}, WrapExitError(ExitCommandError, "invalid --requestor", err)
	}

	var value slot.Value
	if f.Raw {
		value, err = slot.ParseValue(f.Value)
	} else {
		value, err = def.Encode(f.Value)
	}
	if err != nil {
		return request.Request{}, slot.Def{}, WrapExitError(ExitCommandError, "invalid --value", err)
	}

	id := f.ID
	if !hasID {
		if nextID == nil {
			return request.Request{}, slot.Def{}, NewExitError(ExitCommandError, "--id is required")
		}
		if id, err = nextID(ctx, dir); err != nil {
			return request.Request{}, slot.Def{}, WrapExitError(ExitCommandError, "failed to allocate request id", err)
		}
	}

	return request.Request{Direction: dir, ID: id, Requestor: requestor, Key: def.Key, Value: value}, def, nil
}

// EventView is the printable form of a log event.
type EventView struct {
	Seq       int64  `json:"seq"`
	Layer     string `json:"layer"`
	Phase     string `json:"phase"`
	Direction string `json:"direction"`
	RequestID uint64 `json:"request_id"`
	Requestor string `json:"requestor"`
	Slot      string `json:"slot,omitempty"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Hash      string `json:"hash"`
}

func newEventView(ev request.Event, layout *slot.Layout) EventView {
	v := EventView{
		Seq:       ev.Seq,
		Layer:     ev.Role.String(),
		Phase:     ev.Phase.String(),
		Direction: ev.Request.Direction.String(),
		RequestID: ev.Request.ID,
		Requestor: ev.Request.Requestor.String(),
		Key:       ev.Request.Key.String(),
		Value:     ev.Request.Value.String(),
		Hash:      ev.Hash.String(),
	}
	if def, ok := layout.ByKey(ev.Request.Key); ok {
		v.Slot = def.Name
		if text, err := def.Format(ev.Request.Value); err == nil {
			v.Value = text
		}
	}
	return v
}

func (v EventView) String() string {
	name := v.Slot
	if name == "" {
		name = v.Key
	}
	return fmt.Sprintf("#%d %s %s %s#%d requestor=%s %s=%s", v.Seq, v.Layer, v.Phase, v.Direction, v.RequestID, v.Requestor, name, v.Value)
}

// EventList prints one event per line.
type EventList []EventView

func (l EventList) String() string {
	if len(l) == 0 {
		return "No events."
	}
	lines := make([]string, len(l))
	for i, v := range l {
		lines[i] = v.String()
	}
	return strings.Join(lines, "\n")
}

func newEventList(events []request.Event, layout *slot.Layout) EventList {
	out := make(EventList, len(events))
	for i, ev := range events {
		out[i] = newEventView(ev, layout)
	}
	return out
}
