// Package executor issues a plan's external API calls. The executor is
// the isolation boundary: it enforces an egress allowlist and returns a
// trace record value for every attempt, success or not.
package executor

import (
	"context"

	"github.com/hookbench/hookbench/internal/domain"
)

// Credential holds per-API connection material supplied by the caller.
type Credential struct {
	BaseURL string `json:"baseUrl"`
	APIKey  string `json:"apiKey,omitempty"`
}

// Credentials maps API identifiers to credentials.
type Credentials map[string]Credential

// Call is one step (or compensation) invocation with its resolved inputs.
type Call struct {
	Step      domain.Step
	Operation string // step operation, or the compensation operation
	Inputs    map[string]string
	Cred      Credential
}

// Result is the trace record of one attempt. It is returned as a value
// rather than written through a shared log so callers decide how to
// record it.
type Result struct {
	Method     string
	URL        string
	Status     int
	DurationMs int64
	Outputs    map[string]string
	Response   string // truncated body
}

// StepExecutor executes one external call under the context deadline.
// A non-nil Result accompanies errors whenever the call got far enough
// to produce trace data.
type StepExecutor interface {
	Execute(ctx context.Context, call Call) (*Result, error)
}
