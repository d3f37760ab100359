package harness

import "github.com/roach88/rollcall/internal/ir"

// TraceEvent is one step and the notifications it produced.
type TraceEvent struct {
	Step          int               `json:"step"`
	Action        string            `json:"action"`
	Notifications []ir.Notification `json:"notifications"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step produced its expected messages and state.
	Pass bool `json:"pass"`

	// Trace holds every step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains mismatch descriptions. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a mismatch and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(step int, action string, ns []ir.Notification) {
	if ns == nil {
		ns = []ir.Notification{}
	}
	r.Trace = append(r.Trace, TraceEvent{Step: step, Action: action, Notifications: ns})
}

// Messages returns the control messages of the whole trace in order.
func (r *Result) Messages() []string {
	var out []string
	for _, ev := range r.Trace {
		for _, n := range ev.Notifications {
			out = append(out, n.Message)
		}
	}
	return out
}
