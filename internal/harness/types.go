package harness

import (
	"github.com/roach88/eventguard/internal/engine"
	"github.com/roach88/eventguard/internal/model"
)

// TraceEvent records the outcome of one executed step.
type TraceEvent struct {
	Step    int    `json:"step"`
	Station string `json:"station,omitempty"`
	Action  string `json:"action"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Log     string `json:"log,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StationState is the final state of one station.
type StationState struct {
	Name        string
	Mode        engine.Mode
	Connections int
	Snapshot    model.Snapshot
	Alerts      []string
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Stations holds the final state, in scenario order.
	Stations []StationState `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Station returns the final state of the named station.
func (r *Result) Station(name string) (StationState, bool) {
	for _, s := range r.Stations {
		if s.Name == name {
			return s, true
		}
	}
	return StationState{}, false
}
