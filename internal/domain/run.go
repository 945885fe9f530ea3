package domain

import "time"

// Run states.
const (
	RunPending    = "pending"
	RunRunning    = "running"
	RunSucceeded  = "succeeded"
	RunFailed     = "failed"
	RunRolledBack = "rolled_back"
)

// Run is one execution attempt of a plan within a session. At most one run
// may be in progress per session at a time.
type Run struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"sessionId"`
	PlanID     string     `json:"planId"`
	State      string     `json:"state"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	// Steps holds outcomes in completion order.
	Steps []StepOutcome `json:"steps,omitempty"`

	// Compensations holds compensation attempts in the order they ran
	// (reverse completion order of the compensated steps).
	Compensations []CompensationOutcome `json:"compensations,omitempty"`

	// FailedStep is the id of the critical step that halted the run.
	FailedStep string `json:"failedStep,omitempty"`
	Error      string `json:"error,omitempty"`
}

// StepOutcome records the result of one executed step.
type StepOutcome struct {
	StepID      string            `json:"stepId"`
	OK          bool              `json:"ok"`
	Critical    bool              `json:"critical"`
	Outputs     map[string]string `json:"outputs,omitempty"`
	DurationMs  int64             `json:"durationMs"`
	Error       string            `json:"error,omitempty"`
	Explanation string            `json:"explanation,omitempty"` // classifier output, when available
	CompletedAt time.Time         `json:"completedAt"`
}

// CompensationOutcome records one compensation attempt.
type CompensationOutcome struct {
	StepID     string    `json:"stepId"` // step being compensated
	Operation  string    `json:"operation"`
	OK         bool      `json:"ok"`
	DurationMs int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
	AttemptAt  time.Time `json:"attemptAt"`
}

// Terminal reports whether the run reached a final state.
func (r *Run) Terminal() bool {
	switch r.State {
	case RunSucceeded, RunFailed, RunRolledBack:
		return true
	}
	return false
}
