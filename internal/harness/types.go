package harness

// TraceEvent is one observed outcome of a scenario step.
// A relay step contributes one entry per delivered request.
type TraceEvent struct {
	Step      int    `json:"step"`
	Action    string `json:"action"`
	Layer     string `json:"layer"`
	Direction string `json:"direction,omitempty"`
	RequestID uint64 `json:"request_id"`
	Requestor string `json:"requestor,omitempty"`
	Slot      string `json:"slot,omitempty"`
	Value     string `json:"value,omitempty"`

	// Outcome is OK, an error code, or for relay IDLE/PENDING.
	Outcome string `json:"outcome"`

	// Seq is the accepting layer's event seq; 0 when rejected.
	Seq int64 `json:"seq,omitempty"`
}

// Relay outcomes that deliver nothing.
const (
	OutcomeIdle    = "IDLE"
	OutcomePending = "PENDING"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace lists step outcomes in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final maps "layer.slot" to the slot's final text value for every
	// slot of the layout, on both layers.
	Final map[string]string `json:"final"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Final:  make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step outcome.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
