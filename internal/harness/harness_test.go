package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
)

func loadBundled(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestBundledScenariosGolden(t *testing.T) {
	for _, name := range []string{"enter_exit_walk", "impersonation", "replay_and_wrong_role"} {
		t.Run(name, func(t *testing.T) {
			scenario := loadBundled(t, name)

			result, err := Run(scenario)
			require.NoError(t, err)
			require.True(t, result.Pass, "errors: %v", result.Errors)

			require.NoError(t, AssertGolden(t, scenario.Name, result))
		})
	}
}

func TestBundledMatchesFiles(t *testing.T) {
	bundled, err := Bundled()
	require.NoError(t, err)
	require.Len(t, bundled, 3)
	assert.Equal(t, "enter_exit_walk", bundled[0].Name)
}

func TestRunWithGolden(t *testing.T) {
	require.NoError(t, RunWithGolden(t, loadBundled(t, "enter_exit_walk")))
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectation
description: "Owner commit expected to fail"
genesis:
  root:
    owner: "` + addrA + `"
steps:
  - action: origin
    layer: root
    direction: enter
    requestor: "` + addrA + `"
    value: "` + addrB + `"
    expect: UNAUTHORIZED
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected UNAUTHORIZED, got OK")
}

func TestRun_AssertionFailureCarriesTrace(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad_assertion
description: "Child value asserted before any relay"
genesis:
  root:
    owner: "` + addrA + `"
steps:
  - action: origin
    layer: root
    direction: enter
    requestor: "` + addrA + `"
    value: "` + addrB + `"
assertions:
  - type: value
    layer: child
    equals: "` + addrB + `"
  - type: status
    direction: enter
    id: 0
    equals: origin_committed
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: value")
	assert.Contains(t, result.Errors[0], "Full trace:")
}

func TestRun_MalformedRawValue(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: malformed
description: "A word with high bytes set is not an address"
genesis:
  root:
    owner: "` + addrA + `"
steps:
  - action: origin
    layer: root
    direction: enter
    requestor: "` + addrA + `"
    raw_value: "0xff00000000000000000000002222222222222222222222222222222222222222"
    expect: MALFORMED_SLOT_VALUE
assertions:
  - type: event_count
    layer: root
    count: 0
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "0xff00000000000000000000002222222222222222222222222222222222222222", result.Trace[0].Value)
}

func TestRun_RelayPendingWithoutOrigin(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: idle
description: "Nothing to relay"
steps:
  - action: relay
    layer: child
    delivered: 0
    expect: OK
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, OutcomeIdle, result.Trace[0].Outcome)
	assert.Equal(t, "root", result.Trace[0].Layer)
	assert.Equal(t, "0x0000000000000000000000000000000000000000", result.Final["root.owner"])
}

func TestRun_CustomLayout(t *testing.T) {
	dir := t.TempDir()
	layoutDir := filepath.Join(dir, "layout")
	require.NoError(t, os.MkdirAll(layoutDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(layoutDir, "token.cue"), []byte(`package token

slot: {
	owner:  {index: 0, type: "address"}
	minter: {index: 1, type: "address"}
	supply: {index: 2, type: "uint"}
}
`), 0o644))

	path := filepath.Join(dir, "minter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: minter_enter
description: "A non-owner slot moves independently"
layout: layout
genesis:
  root:
    owner: "`+addrA+`"
    minter: "`+addrB+`"
    supply: "100"
steps:
  - action: origin
    layer: root
    direction: enter
    slot: minter
    requestor: "`+addrB+`"
    value: "`+addrA+`"
    expect: OK
  - action: relay
    layer: root
    delivered: 1
  - action: origin
    layer: root
    direction: enter
    slot: supply
    requestor: "`+addrA+`"
    value: "5"
    expect: MALFORMED_SLOT_VALUE
assertions:
  - type: value
    layer: child
    slot: minter
    equals: "`+addrA+`"
  - type: value
    layer: root
    slot: supply
    equals: "100"
`), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, layoutDir, scenario.Layout)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "100", result.Final["root.supply"])
	assert.Equal(t, "0", result.Final["child.supply"])
	assert.Equal(t, "minter", result.Trace[1].Slot)
}

func TestCompareGolden(t *testing.T) {
	dir := t.TempDir()
	result, err := Run(loadBundled(t, "enter_exit_walk"))
	require.NoError(t, err)

	assert.Error(t, CompareGolden(dir, "enter_exit_walk", result, false), "missing golden file")
	require.NoError(t, CompareGolden(dir, "enter_exit_walk", result, true))
	require.NoError(t, CompareGolden(dir, "enter_exit_walk", result, false))

	want, err := os.ReadFile(filepath.Join(GoldenDir, "enter_exit_walk.golden"))
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dir, "enter_exit_walk.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}
