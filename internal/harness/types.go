package harness

import "github.com/roach88/govbot/internal/ir"

// StepResult is the outcome of one scenario step.
type StepResult struct {
	Name string `json:"name,omitempty"`
	Kind string `json:"kind"`

	// Results is the number of entries or registrations the query
	// resolved to. Zero for other step kinds.
	Results int `json:"results"`

	// Error is the query error code when the engine rejected the query.
	Error string `json:"error,omitempty"`

	// Notifies are the records rendered by this step, in order.
	Notifies []*ir.Notify `json:"notifies"`

	part ir.QueryPart
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success.
	// True if every assertion held.
	Pass bool `json:"pass"`

	// Steps holds one entry per scenario step.
	Steps []StepResult `json:"steps"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Notifies returns every notify rendered across all steps, in order.
func (r *Result) Notifies() []*ir.Notify {
	var out []*ir.Notify
	for _, s := range r.Steps {
		out = append(out, s.Notifies...)
	}
	return out
}

// Step returns the result of the named step.
func (r *Result) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name != "" && s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}
