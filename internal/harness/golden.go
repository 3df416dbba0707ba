package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/reqsync/internal/request"
)

// GoldenDir is where golden trace files live, relative to the test's package.
const GoldenDir = "testdata/golden"

// TraceSnapshot captures the complete observable outcome of a scenario.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Final        map[string]string
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"step":    ev.Step,
			"action":  ev.Action,
			"layer":   ev.Layer,
			"outcome": ev.Outcome,
		}
		if ev.Direction != "" {
			m["direction"] = ev.Direction
			m["request_id"] = ev.RequestID
		}
		if ev.Requestor != "" {
			m["requestor"] = ev.Requestor
		}
		if ev.Slot != "" {
			m["slot"] = ev.Slot
		}
		if ev.Value != "" {
			m["value"] = ev.Value
		}
		if ev.Seq != 0 {
			m["seq"] = ev.Seq
		}
		traceList[i] = m
	}

	final := make(map[string]any, len(s.Final))
	for k, v := range s.Final {
		final[k] = v
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
		"final":         final,
	}
}

// Marshal renders the snapshot as canonical JSON.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return request.MarshalCanonical(s.toCanonicalMap())
}

// Snapshot builds the golden snapshot of a result.
func Snapshot(name string, result *Result) *TraceSnapshot {
	return &TraceSnapshot{ScenarioName: name, Trace: result.Trace, Final: result.Final}
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}

// CompareGolden checks a result against {dir}/{name}.golden outside of tests.
// With update set, the golden file is (re)written instead.
func CompareGolden(dir, scenarioName string, result *Result, update bool) error {
	traceJSON, err := Snapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	path := filepath.Join(dir, scenarioName+".golden")
	if update {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create golden dir: %w", err)
		}
		if err := os.WriteFile(path, traceJSON, 0o644); err != nil {
			return fmt.Errorf("write golden file: %w", err)
		}
		return nil
	}

	want, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if string(want) != string(traceJSON) {
		return fmt.Errorf("trace differs from %s", path)
	}
	return nil
}
