package harness

import "github.com/roach88/sysarch/internal/assembly"

// StepRecord is the outcome of one executed step.
type StepRecord struct {
	Step  int            `json:"step"`
	Op    string         `json:"op"`
	Args  map[string]any `json:"args,omitempty"` // refs resolved to ids
	ID    int64          `json:"id,omitempty"`   // created id, 0 for updates and deletes
	Error string         `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as expected and every assertion held.
	Pass bool `json:"pass"`

	// Trace lists executed steps in order. Execution stops at the first step
	// that does not behave as expected.
	Trace []StepRecord `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Hierarchy is the tree of the scenario's golden assembly, if it names one.
	Hierarchy *assembly.HierarchyNode `json:"hierarchy,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []StepRecord{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addStep(rec StepRecord) {
	r.Trace = append(r.Trace, rec)
}
