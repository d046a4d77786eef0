package harness

import (
	"github.com/roach88/modhost/internal/trace"
	"github.com/roach88/modhost/internal/value"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the expectation and every assertion hold.
	Pass bool `json:"pass"`

	RunID string `json:"run_id"`

	// Value is the entry's settled value, nil when the run failed.
	Value value.Value `json:"value,omitempty"`

	// ErrorCode and ErrorSpecifier classify a failed run.
	ErrorCode      string `json:"error_code,omitempty"`
	ErrorSpecifier string `json:"error_specifier,omitempty"`

	// Trace is the run's trace as stored, in seq order.
	Trace []trace.Event `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// evaluations counts module body evaluations, by canonical specifier.
	evaluations func(string) int
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []trace.Event{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
