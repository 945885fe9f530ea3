// Package ai defines the external AI inference capability used for plan
// synthesis and error explanation. The capability is a black box with
// bounded latency and potential unavailability; callers must degrade
// gracefully (static templates, static error table) when it is down.
package ai

import "context"

// Request is the input to a Generate call.
type Request struct {
	Prompt  string `json:"prompt"`
	Context string `json:"context,omitempty"` // originating code / error context
	Model   string `json:"model,omitempty"`
}

// Response is the generated text, unmodified by the core.
type Response struct {
	Text string `json:"text"`
}

// Client is the interface all AI providers must implement.
type Client interface {
	// Generate sends a prompt and returns the generated text. The call is
	// bounded by the context deadline; callers always set one.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name.
	Name() string
}
