// Package harness runs request scenarios against a root and a child layer.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: enter_exit_walk
//	description: "Owner moves into the child layer and back"
//	layout: layouts/token      # optional CUE layout dir, default: owner address at slot 0
//	genesis:
//	  root:
//	    owner: "0x1111111111111111111111111111111111111111"
//	steps:
//	  - action: origin
//	    layer: root
//	    direction: enter
//	    id: 0
//	    requestor: "0x1111111111111111111111111111111111111111"
//	    value: "0x2222222222222222222222222222222222222222"
//	    expect: OK
//	  - action: relay
//	    layer: root              # relay reads root's log and delivers to child
//	    delivered: 1
//	assertions:
//	  - type: value
//	    layer: child
//	    slot: owner
//	    equals: "0x2222222222222222222222222222222222222222"
//
// Step actions are origin, destination and relay. expect is OK or a
// request error code (UNAUTHORIZED, DUPLICATE_REQUEST, UNVERIFIED_ORIGIN,
// MALFORMED_SLOT_VALUE, WRONG_ROLE); an empty expect is not checked.
// raw_value replaces value with a 32-byte hex word, bypassing the layout.
//
// # Assertion Types
//
//   - value: a slot's current value on a layer, in the layout's text form
//   - event_count: number of events on a layer, optionally of one phase
//   - status: progress of (direction, id) across both layers
//
// # Deterministic Testing
//
// Every run uses fresh in-memory SQLite layers, logical seq numbers and a
// fixed relay session id, so the same scenario always yields the same trace.
// RunWithGolden compares that trace with testdata/golden/{name}.golden.
package harness
