package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hookbench/hookbench/internal/domain"
	"github.com/hookbench/hookbench/internal/executor"
)

// compensate undoes completed steps in reverse completion order by
// invoking each step's compensation operation with the outputs the step
// originally produced. Rollback proceeds even when the run itself was
// cancelled; a failed compensation stops the pass and is surfaced for
// manual intervention rather than retried.
func (r *Runner) compensate(ctx context.Context, run *domain.Run, plan *domain.Plan, creds executor.Credentials, completed []domain.StepOutcome) ([]domain.CompensationOutcome, error) {
	if len(completed) == 0 {
		return nil, nil
	}

	base := context.WithoutCancel(ctx)
	var comps []domain.CompensationOutcome

	for i := len(completed) - 1; i >= 0; i-- {
		outcome := completed[i]
		step := plan.Steps[plan.StepIndex(outcome.StepID)]

		compCtx, cancel := context.WithTimeout(base, r.stepTimeout)
		start := time.Now()
		res, execErr := r.exec.Execute(compCtx, executor.Call{
			Step:      step,
			Operation: step.Compensation,
			Inputs:    outcome.Outputs,
			Cred:      creds[step.API],
		})
		cancel()
		elapsed := time.Since(start)

		comp := domain.CompensationOutcome{
			StepID:     step.ID,
			Operation:  step.Compensation,
			OK:         execErr == nil,
			DurationMs: elapsed.Milliseconds(),
			AttemptAt:  time.Now().UTC(),
		}
		if res != nil {
			comp.DurationMs = res.DurationMs
		}
		if execErr != nil {
			comp.Error = execErr.Error()
		}
		comps = append(comps, comp)

		r.appendTrace(base, run, step.ID, domain.TracePhaseCompensation, step.Critical, res, execErr, elapsed)
		r.metrics.Compensation(execErr == nil)

		if execErr != nil {
			r.log.Error().Err(execErr).Str("run", run.ID).Str("step", step.ID).
				Str("operation", step.Compensation).Msg("compensation failed")
			return comps, fmt.Errorf("compensating %s via %s: %w",
				step.ID, step.Compensation, domain.ErrCompensationFailed)
		}
		r.log.Info().Str("run", run.ID).Str("step", step.ID).
			Str("operation", step.Compensation).Msg("step compensated")
	}
	return comps, nil
}
