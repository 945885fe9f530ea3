package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hookbench/hookbench/internal/domain"
	"github.com/hookbench/hookbench/internal/executor"
	"github.com/hookbench/hookbench/internal/logging"
	"github.com/hookbench/hookbench/internal/metrics"
	"github.com/hookbench/hookbench/internal/store"
)

const retryBatchSize = 32

// RetryWorker drains the durable notification retry queue. Each due
// entry is re-sent; successes are removed, failures rescheduled until
// the attempt cap is reached.
type RetryWorker struct {
	queue   store.RetryQueue
	exec    executor.StepExecutor
	events  store.EventStore
	notify  Broadcaster
	metrics *metrics.Metrics
	log     *logging.Logger

	interval    time.Duration
	stepTimeout time.Duration
	maxAttempts int
}

// NewRetryWorker creates a worker. notify and metrics may be nil.
func NewRetryWorker(queue store.RetryQueue, exec executor.StepExecutor, events store.EventStore, notify Broadcaster, m *metrics.Metrics, log *logging.Logger, interval, stepTimeout time.Duration, maxAttempts int) *RetryWorker {
	return &RetryWorker{
		queue:       queue,
		exec:        exec,
		events:      events,
		notify:      notify,
		metrics:     m,
		log:         log.Sub("retry"),
		interval:    interval,
		stepTimeout: stepTimeout,
		maxAttempts: maxAttempts,
	}
}

// Run drains the queue on a fixed interval until ctx is cancelled.
func (w *RetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info().Dur("interval", w.interval).Msg("retry worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("retry worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *RetryWorker) drain(ctx context.Context) {
	due, err := w.queue.Due(ctx, time.Now(), retryBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("listing due retries")
		return
	}
	for i := range due {
		if ctx.Err() != nil {
			return
		}
		w.attempt(ctx, &due[i])
	}
}

func (w *RetryWorker) attempt(ctx context.Context, e *store.RetryEntry) {
	callCtx, cancel := context.WithTimeout(ctx, w.stepTimeout)
	defer cancel()

	step := domain.Step{ID: e.StepID, API: e.API, Operation: e.Operation}
	start := time.Now()
	res, execErr := w.exec.Execute(callCtx, executor.Call{
		Step:      step,
		Operation: e.Operation,
		Inputs:    e.Inputs,
		Cred:      executor.Credential{BaseURL: e.BaseURL, APIKey: e.APIKey},
	})
	elapsed := time.Since(start)

	w.appendTrace(ctx, e, res, execErr, elapsed)
	w.metrics.ObserveStep(e.API, execErr == nil, elapsed.Seconds())

	if execErr != nil {
		w.log.Warn().Err(execErr).Str("run", e.RunID).Str("step", e.StepID).
			Int("attempts", e.Attempts+1).Msg("notification retry failed")
		if err := w.queue.Reschedule(ctx, e.ID, time.Now().Add(w.interval), w.maxAttempts); err != nil {
			w.log.Error().Err(err).Int64("entry", e.ID).Msg("rescheduling retry")
		}
		return
	}

	if err := w.queue.Remove(ctx, e.ID); err != nil {
		w.log.Error().Err(err).Int64("entry", e.ID).Msg("removing retry")
	}
	w.log.Info().Str("run", e.RunID).Str("step", e.StepID).
		Msg("notification delivered on retry")
}

func (w *RetryWorker) appendTrace(ctx context.Context, e *store.RetryEntry, res *executor.Result, execErr error, elapsed time.Duration) {
	trace := &domain.TraceEvent{
		RunID:      e.RunID,
		StepID:     e.StepID,
		Phase:      domain.TracePhaseStep,
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
		SessionID: e.SessionID,
		Kind:      domain.EventKindTrace,
		Timestamp: time.Now().UTC(),
		Trace:     trace,
	}
	if _, err := w.events.Append(context.WithoutCancel(ctx), &ev); err != nil {
		w.log.Error().Err(err).Str("step", e.StepID).Msg("appending retry trace")
		return
	}
	w.metrics.EventAppended(domain.EventKindTrace)
	if w.notify != nil {
		w.notify.Publish(ev)
	}
}
