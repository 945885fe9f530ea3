// Package engine executes plans against external APIs. A run walks the
// plan's steps in dependency order, records a trace event for every
// attempt, and compensates completed steps in reverse order when a
// critical step fails.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hookbench/hookbench/internal/classifier"
	"github.com/hookbench/hookbench/internal/domain"
	"github.com/hookbench/hookbench/internal/executor"
	"github.com/hookbench/hookbench/internal/logging"
	"github.com/hookbench/hookbench/internal/metrics"
	"github.com/hookbench/hookbench/internal/planner"
	"github.com/hookbench/hookbench/internal/store"
)

// Broadcaster pushes freshly appended events to live observers. Delivery
// is best effort; the event store remains the ordering authority.
type Broadcaster interface {
	Publish(ev domain.Event)
}

// Config wires a Runner's dependencies. Retries, Classifier, Notify, and
// Metrics are optional.
type Config struct {
	Events     store.EventStore
	Runs       store.RunStore
	Retries    store.RetryQueue
	Executor   executor.StepExecutor
	Classifier *classifier.Classifier
	Notify     Broadcaster
	Metrics    *metrics.Metrics
	Log        *logging.Logger

	StepTimeout time.Duration
	RunTimeout  time.Duration
	RetryDelay  time.Duration
}

// Runner executes plans. At most one run per session is in flight at a
// time; a second submission fails with ErrRunInProgress instead of
// queueing.
type Runner struct {
	events  store.EventStore
	runs    store.RunStore
	retries store.RetryQueue
	exec    executor.StepExecutor
	cls     *classifier.Classifier
	notify  Broadcaster
	metrics *metrics.Metrics
	log     *logging.Logger

	stepTimeout time.Duration
	runTimeout  time.Duration
	retryDelay  time.Duration

	mu        sync.Mutex
	bySession map[string]string             // session -> active run id
	cancels   map[string]context.CancelFunc // run id -> cancel
	done      sync.WaitGroup
}

// NewRunner creates a runner from cfg.
func NewRunner(cfg Config) *Runner {
	return &Runner{
		events:      cfg.Events,
		runs:        cfg.Runs,
		retries:     cfg.Retries,
		exec:        cfg.Executor,
		cls:         cfg.Classifier,
		notify:      cfg.Notify,
		metrics:     cfg.Metrics,
		log:         cfg.Log.Sub("engine"),
		stepTimeout: cfg.StepTimeout,
		runTimeout:  cfg.RunTimeout,
		retryDelay:  cfg.RetryDelay,
		bySession:   make(map[string]string),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Launch validates the plan, claims the session's execution slot, and
// starts the run in the background. The returned run is the pending
// snapshot; callers poll the run store or watch trace events for
// progress.
func (r *Runner) Launch(ctx context.Context, sessionID string, plan *domain.Plan, creds executor.Credentials) (*domain.Run, error) {
	if err := planner.Validate(plan); err != nil {
		return nil, err
	}

	run := &domain.Run{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		PlanID:    plan.ID,
		State:     domain.RunPending,
		StartedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	if active, busy := r.bySession[sessionID]; busy {
		r.mu.Unlock()
		return nil, fmt.Errorf("run %s still active: %w", active, domain.ErrRunInProgress)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.bySession[sessionID] = run.ID
	r.cancels[run.ID] = cancel
	r.mu.Unlock()

	if err := r.runs.Save(ctx, run); err != nil {
		r.release(run)
		cancel()
		return nil, err
	}

	r.log.Info().Str("run", run.ID).Str("plan", plan.ID).
		Int("steps", len(plan.Steps)).Msg("run launched")

	// Copy before the goroutine starts; execute mutates run concurrently.
	snapshot := *run

	r.done.Add(1)
	go func() {
		defer r.done.Done()
		defer cancel()
		r.execute(runCtx, run, plan, creds)
	}()

	return &snapshot, nil
}

// Cancel stops a running run. Steps already issued finish under their
// own deadline; completed steps are compensated. Returns false when the
// run is not active.
func (r *Runner) Cancel(runID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[runID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until all in-flight runs finish. Used during shutdown.
func (r *Runner) Wait() {
	r.done.Wait()
}

func (r *Runner) release(run *domain.Run) {
	r.mu.Lock()
	if r.bySession[run.SessionID] == run.ID {
		delete(r.bySession, run.SessionID)
	}
	delete(r.cancels, run.ID)
	r.mu.Unlock()
}

// execute drives the run to a terminal state. ctx carries the external
// cancellation signal; the run ceiling is layered on top of it.
func (r *Runner) execute(ctx context.Context, run *domain.Run, plan *domain.Plan, creds executor.Credentials) {
	defer r.release(run)

	runCtx, cancel := context.WithTimeout(ctx, r.runTimeout)
	defer cancel()

	run.State = domain.RunRunning
	if err := r.runs.Save(context.WithoutCancel(ctx), run); err != nil {
		r.log.Error().Err(err).Str("run", run.ID).Msg("persisting run state")
	}

	outputs := make(map[string]map[string]string)
	var compensatable []domain.StepOutcome // succeeded steps with a compensation, completion order

	order := planner.ExecutionOrder(plan)

	for _, id := range order {
		if err := runCtx.Err(); err != nil {
			r.abort(ctx, run, plan, creds, compensatable, abortReason(err))
			return
		}

		step := plan.Steps[plan.StepIndex(id)]

		inputs, err := resolveInputs(plan, &step, outputs)
		if err != nil {
			run.FailedStep = step.ID
			r.abort(ctx, run, plan, creds, compensatable, err.Error())
			return
		}

		outcome := r.runStep(runCtx, run, &step, inputs, creds[step.API])
		run.Steps = append(run.Steps, *outcome)
		if err := r.runs.Save(context.WithoutCancel(ctx), run); err != nil {
			r.log.Error().Err(err).Str("run", run.ID).Msg("persisting step outcome")
		}

		if !outcome.OK {
			if step.Critical {
				run.FailedStep = step.ID
				r.abort(ctx, run, plan, creds, compensatable, outcome.Error)
				return
			}
			r.deferRetry(ctx, run, &step, inputs, creds[step.API])
			continue
		}

		outputs[step.ID] = outcome.Outputs
		if step.Compensation != "" {
			compensatable = append(compensatable, *outcome)
		}
	}

	r.finish(ctx, run, domain.RunSucceeded)
}

// runStep executes one step under the per-step deadline and records its
// trace event.
func (r *Runner) runStep(ctx context.Context, run *domain.Run, step *domain.Step, inputs map[string]string, cred executor.Credential) *domain.StepOutcome {
	stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout)
	defer cancel()

	start := time.Now()
	res, execErr := r.exec.Execute(stepCtx, executor.Call{
		Step:      *step,
		Operation: step.Operation,
		Inputs:    inputs,
		Cred:      cred,
	})
	elapsed := time.Since(start)

	if execErr != nil && stepCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		execErr = fmt.Errorf("step %s after %s: %w", step.ID, r.stepTimeout, domain.ErrStepTimeout)
	}

	outcome := &domain.StepOutcome{
		StepID:      step.ID,
		OK:          execErr == nil,
		Critical:    step.Critical,
		DurationMs:  elapsed.Milliseconds(),
		CompletedAt: time.Now().UTC(),
	}
	if res != nil {
		outcome.Outputs = res.Outputs
		outcome.DurationMs = res.DurationMs
	}
	if execErr != nil {
		outcome.Error = execErr.Error()
		if r.cls != nil && res != nil {
			cl := r.cls.Classify(ctx, step.API, strconv.Itoa(res.Status), res.Response)
			outcome.Explanation = cl.Explanation
		}
	}

	r.appendTrace(ctx, run, step.ID, domain.TracePhaseStep, step.Critical, res, execErr, elapsed)
	r.metrics.ObserveStep(step.API, execErr == nil, elapsed.Seconds())

	if execErr != nil {
		r.log.Warn().Err(execErr).Str("run", run.ID).Str("step", step.ID).
			Bool("critical", step.Critical).Msg("step failed")
	} else {
		r.log.Debug().Str("run", run.ID).Str("step", step.ID).
			Int64("durationMs", outcome.DurationMs).Msg("step completed")
	}
	return outcome
}

// abort rolls back completed steps and moves the run to its terminal
// state: RolledBack when every compensation succeeds, Failed otherwise.
func (r *Runner) abort(ctx context.Context, run *domain.Run, plan *domain.Plan, creds executor.Credentials, compensatable []domain.StepOutcome, reason string) {
	run.State = domain.RunFailed
	run.Error = reason

	comps, err := r.compensate(ctx, run, plan, creds, compensatable)
	run.Compensations = comps
	if err != nil {
		run.Error = reason + "; " + err.Error()
		r.finish(ctx, run, domain.RunFailed)
		return
	}
	if len(comps) > 0 {
		r.finish(ctx, run, domain.RunRolledBack)
		return
	}
	r.finish(ctx, run, domain.RunFailed)
}

func (r *Runner) finish(ctx context.Context, run *domain.Run, state string) {
	now := time.Now().UTC()
	run.State = state
	run.FinishedAt = &now
	if err := r.runs.Save(context.WithoutCancel(ctx), run); err != nil {
		r.log.Error().Err(err).Str("run", run.ID).Msg("persisting terminal run")
	}
	r.metrics.RunCompleted(state)
	r.log.Info().Str("run", run.ID).Str("state", state).
		Str("failedStep", run.FailedStep).Msg("run finished")
}

// deferRetry queues a failed non-critical notification step for later
// redelivery. Other non-critical failures stay failed.
func (r *Runner) deferRetry(ctx context.Context, run *domain.Run, step *domain.Step, inputs map[string]string, cred executor.Credential) {
	if r.retries == nil || !notificationAPIs[step.API] {
		return
	}
	entry := &store.RetryEntry{
		SessionID:     run.SessionID,
		RunID:         run.ID,
		StepID:        step.ID,
		API:           step.API,
		Operation:     step.Operation,
		Inputs:        inputs,
		BaseURL:       cred.BaseURL,
		APIKey:        cred.APIKey,
		NextAttemptAt: time.Now().UTC().Add(r.retryDelay),
	}
	if err := r.retries.Enqueue(context.WithoutCancel(ctx), entry); err != nil {
		r.log.Error().Err(err).Str("run", run.ID).Str("step", step.ID).
			Msg("queueing notification retry")
		return
	}
	r.log.Info().Str("run", run.ID).Str("step", step.ID).
		Time("nextAttempt", entry.NextAttemptAt).Msg("notification retry queued")
}

// appendTrace records one attempt in the session's event log and pushes
// it to observers.
func (r *Runner) appendTrace(ctx context.Context, run *domain.Run, stepID, phase string, critical bool, res *executor.Result, execErr error, elapsed time.Duration) {
	trace := &domain.TraceEvent{
		RunID:      run.ID,
		StepID:     stepID,
		Phase:      phase,
		Critical:   critical,
		DurationMs: elapsed.Milliseconds(),
		OK:         execErr == nil,
	}
	if res != nil {
		trace.Method = res.Method
		trace.URL = res.URL
		trace.Status = res.Status
		trace.DurationMs = res.DurationMs
		trace.Response = res.Response
	}
	if execErr != nil {
		trace.Error = execErr.Error()
	}

	ev := domain.Event{
		ID:        uuid.NewString(),
		SessionID: run.SessionID,
		Kind:      domain.EventKindTrace,
		Timestamp: time.Now().UTC(),
		Trace:     trace,
	}
	if _, err := r.events.Append(context.WithoutCancel(ctx), &ev); err != nil {
		r.log.Error().Err(err).Str("run", run.ID).Str("step", stepID).
			Msg("appending trace event")
		return
	}
	r.metrics.EventAppended(domain.EventKindTrace)
	if r.notify != nil {
		r.notify.Publish(ev)
	}
}

// resolveInputs turns "stepID.outputKey" references into values recorded
// by prior steps. Values that do not name a plan step pass through as
// literals. A reference to an output the step never produced fails the
// run immediately.
func resolveInputs(plan *domain.Plan, step *domain.Step, outputs map[string]map[string]string) (map[string]string, error) {
	if len(step.Inputs) == 0 {
		return nil, nil
	}
	resolved := make(map[string]string, len(step.Inputs))
	for name, ref := range step.Inputs {
		ir, ok := domain.ParseInputRef(ref)
		if !ok || plan.StepIndex(ir.StepID) < 0 {
			resolved[name] = ref
			continue
		}
		val, found := outputs[ir.StepID][ir.Output]
		if !found {
			return nil, fmt.Errorf("step %s input %s references %s: %w",
				step.ID, name, ref, domain.ErrUnresolvedBinding)
		}
		resolved[name] = val
	}
	return resolved, nil
}

// notificationAPIs are the APIs whose failed sends get durable retries.
var notificationAPIs = map[string]bool{
	"email": true,
	"sms":   true,
}

func abortReason(err error) string {
	if err == context.DeadlineExceeded {
		return fmt.Errorf("run ceiling reached: %w", domain.ErrRunTimeout).Error()
	}
	return "run cancelled"
}
