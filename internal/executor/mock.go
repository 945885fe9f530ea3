package executor

import (
	"context"
	"sync"
)

// MockExecutor is a test double for StepExecutor. It records calls and
// dispatches to per-operation handlers.
type MockExecutor struct {
	mu    sync.Mutex
	calls []Call

	// Handlers maps "stepID/operation" (or just operation) to a handler.
	Handlers map[string]func(ctx context.Context, call Call) (*Result, error)

	// Default handles calls with no matching handler.
	Default func(ctx context.Context, call Call) (*Result, error)
}

// NewMockExecutor creates an executor whose calls all succeed with empty
// outputs unless handlers are installed.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		Handlers: make(map[string]func(ctx context.Context, call Call) (*Result, error)),
	}
}

func (m *MockExecutor) Execute(ctx context.Context, call Call) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	if h, ok := m.Handlers[call.Step.ID+"/"+call.Operation]; ok {
		return h(ctx, call)
	}
	if h, ok := m.Handlers[call.Operation]; ok {
		return h(ctx, call)
	}
	if m.Default != nil {
		return m.Default(ctx, call)
	}
	return &Result{Status: 200, DurationMs: 1}, nil
}

// Calls returns a copy of all recorded calls in order.
func (m *MockExecutor) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

var _ StepExecutor = (*MockExecutor)(nil)
