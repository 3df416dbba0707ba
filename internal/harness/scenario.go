package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/reqsync/internal/ledger"
	"github.com/roach88/reqsync/internal/request"
)

// Scenario is a scripted sequence of requests across both layers.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Layout is an optional directory of CUE slot declarations.
	// Relative paths are resolved against the scenario file's directory.
	Layout string `yaml:"layout,omitempty"`

	// Genesis seeds slot values before any step runs.
	Genesis Genesis `yaml:"genesis"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state of both layers.
	Assertions []Assertion `yaml:"assertions"`
}

// Genesis maps slot names to text values, per layer.
type Genesis struct {
	Root  map[string]string `yaml:"root,omitempty"`
	Child map[string]string `yaml:"child,omitempty"`
}

// Step is one call into a layer.
type Step struct {
	// Action is origin, destination or relay.
	Action string `yaml:"action"`

	// Layer is the layer called. For relay it is the layer whose log is read.
	Layer string `yaml:"layer"`

	Direction string `yaml:"direction,omitempty"`

	// ID defaults to the origin layer's next unused id for origin steps.
	ID *uint64 `yaml:"id,omitempty"`

	Requestor string `yaml:"requestor,omitempty"`

	// Slot defaults to "owner".
	Slot string `yaml:"slot,omitempty"`

	// Value is the slot's new content in the layout's text form.
	Value string `yaml:"value,omitempty"`

	// RawValue is a hex word used instead of Value.
	RawValue string `yaml:"raw_value,omitempty"`

	// Expect is OK or an error code. Empty means unchecked.
	Expect string `yaml:"expect,omitempty"`

	// Delivered is the expected number of relayed requests (relay only).
	Delivered *int `yaml:"delivered,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is value, event_count or status.
	Type string `yaml:"type"`

	Layer string `yaml:"layer,omitempty"`
	Slot  string `yaml:"slot,omitempty"`

	// Equals is the expected slot text (value) or status name (status).
	Equals string `yaml:"equals,omitempty"`

	// Phase restricts event_count to origin or destination events.
	Phase string `yaml:"phase,omitempty"`

	Count *int `yaml:"count,omitempty"`

	Direction string  `yaml:"direction,omitempty"`
	ID        *uint64 `yaml:"id,omitempty"`
}

// Step action constants.
const (
	ActionOrigin      = "origin"
	ActionDestination = "destination"
	ActionRelay       = "relay"
)

// Assertion type constants.
const (
	AssertValue      = "value"
	AssertEventCount = "event_count"
	AssertStatus     = "status"
)

// ExpectOK marks a step that must succeed.
const ExpectOK = "OK"

// DefaultSlot is used when a step or assertion names no slot.
const DefaultSlot = "owner"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative layout path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Layout != "" && !filepath.IsAbs(scenario.Layout) {
		scenario.Layout = filepath.Join(filepath.Dir(path), scenario.Layout)
	}
	if scenario.Layout != "" {
		if _, err := os.Stat(scenario.Layout); err != nil {
			return nil, fmt.Errorf("invalid scenario: layout: %w", err)
		}
	}
	return scenario, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	if _, err := request.ParseRole(step.Layer); err != nil {
		return fmt.Errorf("steps[%d]: layer: %w", i, err)
	}
	if err := validateExpect(step.Expect); err != nil {
		return fmt.Errorf("steps[%d]: %w", i, err)
	}

	switch step.Action {
	case ActionOrigin, ActionDestination:
		if _, err := request.ParseDirection(step.Direction); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.Requestor == "" {
			return fmt.Errorf("steps[%d]: requestor is required for %s", i, step.Action)
		}
		if (step.Value == "") == (step.RawValue == "") {
			return fmt.Errorf("steps[%d]: exactly one of value or raw_value is required", i)
		}
		if step.Action == ActionDestination && step.ID == nil {
			return fmt.Errorf("steps[%d]: id is required for destination", i)
		}
		if step.Delivered != nil {
			return fmt.Errorf("steps[%d]: delivered is only valid for relay", i)
		}
	case ActionRelay:
		if step.Direction != "" || step.ID != nil || step.Requestor != "" || step.Value != "" || step.RawValue != "" {
			return fmt.Errorf("steps[%d]: relay takes only layer, delivered and expect", i)
		}
	case "":
		return fmt.Errorf("steps[%d]: action is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
	}
	return nil
}

func validateExpect(expect string) error {
	switch ledger.ErrorCode(expect) {
	case "", ExpectOK,
		ledger.CodeUnauthorized,
		ledger.CodeDuplicateRequest,
		ledger.CodeUnverifiedOrigin,
		ledger.CodeMalformedSlotValue,
		ledger.CodeWrongRole:
		return nil
	default:
		return fmt.Errorf("unknown expect %q", expect)
	}
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case AssertValue:
		if _, err := request.ParseRole(a.Layer); err != nil {
			return fmt.Errorf("assertions[%d]: layer: %w", i, err)
		}
		if a.Equals == "" {
			return fmt.Errorf("assertions[%d]: equals is required for value", i)
		}
	case AssertEventCount:
		if _, err := request.ParseRole(a.Layer); err != nil {
			return fmt.Errorf("assertions[%d]: layer: %w", i, err)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for event_count", i)
		}
		if a.Phase != "" {
			if _, err := request.ParsePhase(a.Phase); err != nil {
				return fmt.Errorf("assertions[%d]: %w", i, err)
			}
		}
	case AssertStatus:
		if _, err := request.ParseDirection(a.Direction); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
		if a.ID == nil {
			return fmt.Errorf("assertions[%d]: id is required for status", i)
		}
		if _, err := parseStatus(a.Equals); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}

func parseStatus(s string) (request.Status, error) {
	for _, st := range []request.Status{request.NotSubmitted, request.OriginCommitted, request.DestinationApplied} {
		if st.String() == s {
			return st, nil
		}
	}
	return request.NotSubmitted, fmt.Errorf("unknown status %q", s)
}
