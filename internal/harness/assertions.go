package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/reqsync/internal/ledger"
	"github.com/roach88/reqsync/internal/request"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s on %s %s#%d -> %s\n", ev.Step, ev.Action, ev.Layer, ev.Direction, ev.RequestID, ev.Outcome)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns failure messages.
func EvaluateAssertions(ctx context.Context, h *Harness, result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertValue:
			err = assertValue(ctx, h, a)
		case AssertEventCount:
			err = assertEventCount(ctx, h, a)
		case AssertStatus:
			err = assertStatus(ctx, h, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Trace = result.Trace
			}
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertValue compares a slot's current value in the layout's text form.
func assertValue(ctx context.Context, h *Harness, a Assertion) error {
	role, err := request.ParseRole(a.Layer)
	if err != nil {
		return err
	}
	name := a.Slot
	if name == "" {
		name = DefaultSlot
	}
	def, ok := h.layout.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown slot %q", name)
	}

	v, err := h.layers[role].CurrentValue(ctx, def.Key)
	if err != nil {
		return err
	}
	got := formatValue(def, v)

	want := a.Equals
	if encoded, err := def.Encode(a.Equals); err == nil {
		want = formatValue(def, encoded)
	}
	if got != want {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s.%s = %s", role, name, want),
			Actual:   got,
		}
	}
	return nil
}

// assertEventCount counts a layer's events, optionally of one phase.
func assertEventCount(ctx context.Context, h *Harness, a Assertion) error {
	role, err := request.ParseRole(a.Layer)
	if err != nil {
		return err
	}
	events, err := h.layers[role].Events(ctx, 0)
	if err != nil {
		return err
	}

	count := 0
	for _, ev := range events {
		if a.Phase == "" || ev.Phase.String() == a.Phase {
			count++
		}
	}
	if count != *a.Count {
		what := "events"
		if a.Phase != "" {
			what = a.Phase + " events"
		}
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s on %s", *a.Count, what, role),
			Actual:   fmt.Sprintf("%d", count),
		}
	}
	return nil
}

// assertStatus checks how far (direction, id) progressed across the layers.
func assertStatus(ctx context.Context, h *Harness, a Assertion) error {
	dir, err := request.ParseDirection(a.Direction)
	if err != nil {
		return err
	}
	want, err := parseStatus(a.Equals)
	if err != nil {
		return err
	}

	got, err := ledger.Status(ctx, h.layers[request.Root], h.layers[request.Child], dir, *a.ID)
	if err != nil {
		return err
	}
	if got != want {
		return &AssertionError{
			Type:     AssertStatus,
			Expected: fmt.Sprintf("%s#%d %s", dir, *a.ID, want),
			Actual:   got.String(),
		}
	}
	return nil
}
