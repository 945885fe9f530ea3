package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the harness error taxonomy. Informational conditions
// (duplicate deliveries, failed signature checks) are recorded as event data
// and deliberately have no sentinel here.
var (
	// ErrSessionNotFound is returned for operations against an unknown or
	// already-expired session token.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidPlan is returned when plan validation fails (cyclic
	// dependencies, missing criticality, dangling references).
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrRunInProgress is returned when a second execute call races an
	// in-progress run on the same session.
	ErrRunInProgress = errors.New("run already in progress for session")

	// ErrRunNotFound is returned when a run id does not resolve.
	ErrRunNotFound = errors.New("run not found")

	// ErrUnresolvedBinding is returned when a step declares an input that
	// no prior step produced. This is a plan bug, not a retry case.
	ErrUnresolvedBinding = errors.New("unresolved input binding")

	// ErrStepTimeout marks a step that exceeded its wall-clock ceiling.
	ErrStepTimeout = errors.New("step timed out")

	// ErrRunTimeout marks a run that exceeded its overall ceiling.
	ErrRunTimeout = errors.New("run timed out")

	// ErrCompensationFailed marks a failed compensation attempt. Never
	// retried automatically; manual intervention required.
	ErrCompensationFailed = errors.New("compensation failed")

	// ErrPlannerUnavailable is returned when plan synthesis needs the AI
	// capability and it is unreachable or over its deadline.
	ErrPlannerUnavailable = errors.New("planner unavailable")
)

// StepError carries the detail of a single failed step.
type StepError struct {
	StepID   string
	Critical bool
	Reason   string
	Err      error
}

func (e *StepError) Error() string {
	crit := "non-critical"
	if e.Critical {
		crit = "critical"
	}
	if e.Err != nil {
		return fmt.Sprintf("step %s (%s) failed: %s: %v", e.StepID, crit, e.Reason, e.Err)
	}
	return fmt.Sprintf("step %s (%s) failed: %s", e.StepID, crit, e.Reason)
}

func (e *StepError) Unwrap() error { return e.Err }

// PlanError wraps ErrInvalidPlan with the specific validation failure.
type PlanError struct {
	Message string
}

func (e *PlanError) Error() string { return "invalid plan: " + e.Message }

func (e *PlanError) Unwrap() error { return ErrInvalidPlan }
