package domain

import "time"

// Event kinds.
const (
	EventKindWebhook = "webhook"
	EventKindTrace   = "trace"
)

// Signature verification outcomes for webhook events.
const (
	VerifiedTrue    = "true"
	VerifiedFalse   = "false"
	VerifiedUnknown = "unknown" // provider not recognized; still recorded
)

// Event is one occurrence observed within a session: an inbound webhook
// delivery or an execution-trace entry. Events are immutable once appended;
// the sequence number is assigned by the event store at append time and is
// the ordering authority for the session.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Seq       int64     `json:"seq"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	Webhook *WebhookEvent `json:"webhook,omitempty"`
	Trace   *TraceEvent   `json:"trace,omitempty"`
}

// WebhookEvent is the payload of an inbound webhook delivery.
type WebhookEvent struct {
	Provider    string            `json:"provider"`
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body"`
	Verified    string            `json:"verified"` // "true" | "false" | "unknown"
	DeliveryKey string            `json:"deliveryKey"`
	Duplicate   bool              `json:"duplicate,omitempty"`
	DuplicateOf string            `json:"duplicateOf,omitempty"` // original event id
}

// Trace phases.
const (
	TracePhaseStep         = "step"
	TracePhaseCompensation = "compensation"
)

// TraceEvent is the recorded outcome of one executed step or compensation.
type TraceEvent struct {
	RunID      string `json:"runId"`
	StepID     string `json:"stepId"`
	Phase      string `json:"phase"`    // "step" | "compensation"
	Critical   bool   `json:"critical"` // step criticality at execution time
	Method     string `json:"method,omitempty"`
	URL        string `json:"url,omitempty"`
	Status     int    `json:"status,omitempty"`
	DurationMs int64  `json:"durationMs"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	Response   string `json:"response,omitempty"` // truncated response body
}
