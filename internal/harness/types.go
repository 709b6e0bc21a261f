package harness

// Outcome values recorded in the trace for a step that did not fail with
// an engine error.
const (
	OutcomeOK            = "OK"
	OutcomeStepsExceeded = "STEPS_EXCEEDED"
)

// TraceEvent records one executed step and the program it left behind.
type TraceEvent struct {
	Step        int      `json:"step"`
	Op          string   `json:"op"`
	Participant string   `json:"participant"`
	Activity    string   `json:"activity,omitempty"`
	Activities  []string `json:"activities,omitempty"`

	// Outcome is OK, an engine error kind, or STEPS_EXCEEDED.
	Outcome string `json:"outcome"`

	AutoPicked []string `json:"auto_picked,omitempty"`
	Evicted    []string `json:"evicted,omitempty"`
	Added      []string `json:"added,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`

	// Program is the participant's activity ids after the step, in
	// enrolment order.
	Program []string `json:"program"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Programs holds each participant's final activity ids.
	Programs map[string][]string `json:"programs"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Programs: make(map[string][]string),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
