package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/reqsync/internal/ledger"
	"github.com/roach88/reqsync/internal/relay"
	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
	"github.com/roach88/reqsync/internal/store"
)

// RelaySession is the fixed relay session id used by every scenario run.
const RelaySession = "harness-relay"

// Harness holds the two layers a scenario runs against.
type Harness struct {
	layout *slot.Layout
	layers map[request.Role]*ledger.Layer
	relays map[request.Role]*relay.Relay // keyed by the layer whose log is read
	stores []*store.Store
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against fresh in-memory root and child layers. The
// layers verify destination requests against each other's logs.
//
// Execution flow:
// 1. Create root and child layers
// 2. Seed genesis values
// 3. Execute steps, checking expect clauses
// 4. Evaluate assertions and capture final slot values
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	layout := slot.DefaultLayout()
	if scenario.Layout != "" {
		l, err := slot.LoadLayout(scenario.Layout)
		if err != nil {
			return nil, fmt.Errorf("failed to load layout: %w", err)
		}
		layout = l
	}

	h, err := New(ctx, layout)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	if err := h.seed(ctx, request.Root, scenario.Genesis.Root); err != nil {
		return nil, fmt.Errorf("failed to seed genesis: %w", err)
	}
	if err := h.seed(ctx, request.Child, scenario.Genesis.Child); err != nil {
		return nil, fmt.Errorf("failed to seed genesis: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, h, result, scenario.Assertions) {
		result.AddError(msg)
	}

	final, err := h.FinalValues(ctx)
	if err != nil {
		return nil, err
	}
	result.Final = final
	return result, nil
}

// New creates a harness with empty in-memory root and child layers.
func New(ctx context.Context, layout *slot.Layout) (*Harness, error) {
	h := &Harness{
		layout: layout,
		layers: make(map[request.Role]*ledger.Layer),
		relays: make(map[request.Role]*relay.Relay),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	for _, role := range []request.Role{request.Root, request.Child} {
		st, err := store.Open(":memory:")
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		h.stores = append(h.stores, st)
		if err := st.InitRole(ctx, role); err != nil {
			h.Close()
			return nil, err
		}
		h.layers[role] = ledger.NewLayer(role, st, ledger.WithLogger(h.logger), ledger.WithLayout(layout))
	}

	root, child := h.layers[request.Root], h.layers[request.Child]
	root.SetVerifier(relay.LogVerifier(child))
	child.SetVerifier(relay.LogVerifier(root))

	for origin, dest := range map[request.Role]*ledger.Layer{request.Root: child, request.Child: root} {
		r, err := relay.New(h.layers[origin], dest,
			relay.WithLogger(h.logger),
			relay.WithSessionGenerator(relay.NewFixedGenerator(RelaySession)),
		)
		if err != nil {
			h.Close()
			return nil, err
		}
		h.relays[origin] = r
	}
	return h, nil
}

// Layer returns the layer with role.
func (h *Harness) Layer(role request.Role) *ledger.Layer { return h.layers[role] }

// Close releases both stores.
func (h *Harness) Close() {
	for _, st := range h.stores {
		st.Close()
	}
}

// FinalValues formats every layout slot on both layers as "layer.slot".
func (h *Harness) FinalValues(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	for _, role := range []request.Role{request.Root, request.Child} {
		for _, def := range h.layout.Defs() {
			v, err := h.layers[role].CurrentValue(ctx, def.Key)
			if err != nil {
				return nil, err
			}
			out[role.String()+"."+def.Name] = formatValue(def, v)
		}
	}
	return out, nil
}

func (h *Harness) seed(ctx context.Context, role request.Role, values map[string]string) error {
	for name, text := range values {
		def, ok := h.layout.Lookup(name)
		if !ok {
			return fmt.Errorf("%s: unknown slot %q", role, name)
		}
		v, err := def.Encode(text)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", role, name, err)
		}
		if err := h.layers[role].Seed(ctx, def.Key, v); err != nil {
			return err
		}
	}
	return nil
}

// executeStep runs one step. Rejections are recorded in the trace; only
// scenario or storage errors are returned.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	if step.Action == ActionRelay {
		return h.executeRelay(ctx, i, step, result)
	}

	role, err := request.ParseRole(step.Layer)
	if err != nil {
		return err
	}
	layer := h.layers[role]

	req, def, err := h.buildRequest(ctx, step, layer)
	if err != nil {
		return err
	}

	var ev request.Event
	if step.Action == ActionOrigin {
		ev, err = layer.SubmitOrigin(ctx, req)
	} else {
		ev, err = layer.SubmitDestination(ctx, req)
	}

	outcome := ExpectOK
	if err != nil {
		code, ok := ledger.CodeOf(err)
		if !ok {
			return err
		}
		outcome = string(code)
	}

	result.AddTrace(TraceEvent{
		Step:      i,
		Action:    step.Action,
		Layer:     role.String(),
		Direction: req.Direction.String(),
		RequestID: req.ID,
		Requestor: req.Requestor.String(),
		Slot:      def.Name,
		Value:     formatValue(def, req.Value),
		Outcome:   outcome,
		Seq:       ev.Seq,
	})

	if step.Expect != "" && step.Expect != outcome {
		result.AddError(fmt.Sprintf("step %d (%s on %s): expected %s, got %s", i, step.Action, role, step.Expect, outcome))
	}

	h.logger.Info("step completed", "step", i, "action", step.Action, "layer", role.String(), "outcome", outcome)
	return nil
}

func (h *Harness) buildRequest(ctx context.Context, step Step, layer *ledger.Layer) (request.Request, slot.Def, error) {
	name := step.Slot
	if name == "" {
		name = DefaultSlot
	}
	def, ok := h.layout.Lookup(name)
	if !ok {
		return request.Request{}, slot.Def{}, fmt.Errorf("unknown slot %q", name)
	}

	dir, err := request.ParseDirection(step.Direction)
	if err != nil {
		return request.Request{}, slot.Def{}, err
	}
	requestor, err := slot.ParseAddress(step.Requestor)
	if err != nil {
		return request.Request{}, slot.Def{}, fmt.Errorf("requestor: %w", err)
	}

	var value slot.Value
	if step.RawValue != "" {
		value, err = slot.ParseValue(step.RawValue)
	} else {
		value, err = def.Encode(step.Value)
	}
	if err != nil {
		return request.Request{}, slot.Def{}, fmt.Errorf("value: %w", err)
	}

	var id uint64
	if step.ID != nil {
		id = *step.ID
	} else {
		id, err = layer.NextRequestID(ctx, dir)
		if err != nil {
			return request.Request{}, slot.Def{}, err
		}
	}

	return request.Request{Direction: dir, ID: id, Requestor: requestor, Key: def.Key, Value: value}, def, nil
}

func (h *Harness) executeRelay(ctx context.Context, i int, step Step, result *Result) error {
	role, err := request.ParseRole(step.Layer)
	if err != nil {
		return err
	}
	dest := request.Child
	if role == request.Child {
		dest = request.Root
	}

	pass, err := h.relays[role].Pass(ctx)
	if err != nil {
		return err
	}

	for _, ev := range pass.Delivered {
		result.AddTrace(h.relayTrace(i, dest, ev))
	}

	outcome := ExpectOK
	switch {
	case pass.Pending:
		outcome = string(ledger.CodeUnverifiedOrigin)
		result.AddTrace(TraceEvent{Step: i, Action: ActionRelay, Layer: dest.String(), Outcome: OutcomePending})
	case len(pass.Delivered) == 0:
		result.AddTrace(TraceEvent{Step: i, Action: ActionRelay, Layer: dest.String(), Outcome: OutcomeIdle})
	}

	if step.Expect != "" && step.Expect != outcome {
		result.AddError(fmt.Sprintf("step %d (relay from %s): expected %s, got %s", i, role, step.Expect, outcome))
	}
	if step.Delivered != nil && *step.Delivered != len(pass.Delivered) {
		result.AddError(fmt.Sprintf("step %d (relay from %s): expected %d delivered, got %d", i, role, *step.Delivered, len(pass.Delivered)))
	}
	return nil
}

func (h *Harness) relayTrace(i int, dest request.Role, ev request.Event) TraceEvent {
	req := ev.Request
	name := req.Key.String()
	value := req.Value.String()
	if def, ok := h.layout.ByKey(req.Key); ok {
		name = def.Name
		value = formatValue(def, req.Value)
	}
	return TraceEvent{
		Step:      i,
		Action:    ActionRelay,
		Layer:     dest.String(),
		Direction: req.Direction.String(),
		RequestID: req.ID,
		Requestor: req.Requestor.String(),
		Slot:      name,
		Value:     value,
		Outcome:   ExpectOK,
		Seq:       ev.Seq,
	}
}

// formatValue renders v in def's text form, or as a hex word if it does not decode.
func formatValue(def slot.Def, v slot.Value) string {
	s, err := def.Format(v)
	if err != nil {
		return v.String()
	}
	return s
}
