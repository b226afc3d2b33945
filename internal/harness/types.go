package harness

import "github.com/roach88/sourcechain/internal/ir"

// Trace event types.
const (
	EventAction   = "action"
	EventResponse = "response"
)

// Response cases.
const (
	CaseOK    = "ok"
	CaseError = "error"
)

// TraceEvent is one dispatched action or the response it produced.
type TraceEvent struct {
	Type   string            `json:"type"` // "action" or "response"
	Kind   string            `json:"kind"`
	Args   map[string]string `json:"args,omitempty"`
	Case   string            `json:"case,omitempty"`
	Result ir.IRObject       `json:"result,omitempty"`
	Seq    int64             `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds actions and responses in dispatch order.
	Trace []TraceEvent `json:"trace"`

	// Errors is empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Head is the header address at the end of the scenario.
	Head *ir.Address `json:"head"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddActionTrace appends a dispatched action.
func (r *Result) AddActionTrace(kind string, args map[string]string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type: EventAction,
		Kind: kind,
		Args: args,
		Seq:  seq,
	})
}

// AddResponseTrace appends the response to the preceding action.
func (r *Result) AddResponseTrace(kind, responseCase string, result ir.IRObject, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventResponse,
		Kind:   kind,
		Case:   responseCase,
		Result: result,
		Seq:    seq,
	})
}
