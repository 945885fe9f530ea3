// Package classifier maps provider error codes to known explanations and
// fixes, falling back to the AI capability for unknown errors.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hookbench/hookbench/internal/ai"
	"github.com/hookbench/hookbench/internal/logging"
)

// Classification sources.
const (
	SourceStatic = "static"
	SourceAI     = "ai"
	SourceRaw    = "raw"
)

// Classification is an explanation of a provider error with suggested
// fixes. Source records where it came from.
type Classification struct {
	Explanation string   `json:"explanation"`
	FixSteps    []string `json:"fixSteps,omitempty"`
	CodeExample string   `json:"codeExample,omitempty"`
	Source      string   `json:"source"`
}

// Classifier resolves (provider, code) pairs. Static lookups always take
// priority over the AI fallback: they are fast, deterministic, and
// testable without the external dependency.
type Classifier struct {
	ai      ai.Client // nil disables the fallback
	timeout time.Duration
	log     *logging.Logger
}

// New creates a classifier. aiClient may be nil.
func New(aiClient ai.Client, timeout time.Duration, log *logging.Logger) *Classifier {
	return &Classifier{ai: aiClient, timeout: timeout, log: log.Sub("classifier")}
}

// Classify returns an explanation for a provider error. It never fails:
// when both the static table and the AI capability miss, the raw provider
// message is surfaced verbatim rather than suppressed.
func (c *Classifier) Classify(ctx context.Context, provider, code, rawMessage string) *Classification {
	if entry, ok := staticTable[key{provider, code}]; ok {
		cl := entry
		cl.Source = SourceStatic
		return &cl
	}

	if c.ai != nil {
		if cl := c.classifyWithAI(ctx, provider, code, rawMessage); cl != nil {
			return cl
		}
	}

	return &Classification{Explanation: rawMessage, Source: SourceRaw}
}

func (c *Classifier) classifyWithAI(ctx context.Context, provider, code, rawMessage string) *Classification {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Explain this %s API error (code %q) to a developer integrating the API. "+
			"Respond as JSON with fields explanation, fixSteps (array), codeExample.",
		provider, code,
	)
	resp, err := c.ai.Generate(ctx, ai.Request{Prompt: prompt, Context: rawMessage})
	if err != nil {
		c.log.Warn().Err(err).Str("provider", provider).Str("code", code).
			Msg("ai classification unavailable")
		return nil
	}

	var cl Classification
	if err := json.Unmarshal([]byte(resp.Text), &cl); err != nil || cl.Explanation == "" {
		// Unstructured answer; still better than nothing.
		cl = Classification{Explanation: resp.Text}
	}
	cl.Source = SourceAI
	return &cl
}

type key struct {
	provider string
	code     string
}

// staticTable holds known (provider, code) explanations.
var staticTable = map[key]Classification{
	{"stripe", "card_declined"}: {
		Explanation: "The card was declined by the issuing bank. This is not an integration bug.",
		FixSteps: []string{
			"Use a test card number (4242 4242 4242 4242) in test mode",
			"Surface the decline_code from the error body to the end user",
		},
	},
	{"stripe", "rate_limit"}: {
		Explanation: "Too many requests hit the Stripe API too quickly.",
		FixSteps: []string{
			"Retry with exponential backoff",
			"Batch reads where possible",
		},
	},
	{"stripe", "idempotency_error"}: {
		Explanation: "An idempotency key was reused with different request parameters.",
		FixSteps: []string{
			"Generate a fresh idempotency key per logical operation",
			"Reuse the key only when retrying the identical request",
		},
	},
	{"stripe", "authentication_error"}: {
		Explanation: "The API key is missing, malformed, or for the wrong mode (test vs live).",
		FixSteps: []string{
			"Check the secret key starts with sk_test_ or sk_live_ as intended",
			"Pass it in the Authorization: Bearer header",
		},
	},
	{"github", "401"}: {
		Explanation: "The request is unauthenticated: the token is missing, expired, or lacks scopes.",
		FixSteps: []string{
			"Send the token as Authorization: Bearer <token>",
			"For fine-grained tokens, grant the repository permission the endpoint needs",
		},
	},
	{"github", "404"}: {
		Explanation: "The resource does not exist or the token cannot see it. GitHub returns 404 instead of 403 for private resources.",
		FixSteps: []string{
			"Verify the owner/repo path",
			"Check the token has access to the repository",
		},
	},
	{"github", "422"}: {
		Explanation: "The request body failed validation (missing or malformed fields).",
		FixSteps: []string{
			"Inspect the errors array in the response body",
		},
	},
	{"shopify", "429"}: {
		Explanation: "The shop's API call limit was exceeded (leaky bucket, 2 requests/second).",
		FixSteps: []string{
			"Honor the Retry-After response header",
			"Watch X-Shopify-Shop-Api-Call-Limit and throttle proactively",
		},
	},
	{"object-storage", "403"}: {
		Explanation: "The credentials are valid but not authorized for this bucket or key, or the request signature is wrong.",
		FixSteps: []string{
			"Check the bucket policy grants the operation",
			"Verify the clock skew is under the signature validity window",
		},
	},
	{"email", "550"}: {
		Explanation: "The recipient address was rejected by the receiving server.",
		FixSteps: []string{
			"Validate recipient addresses before sending",
			"Check the sending domain's SPF and DKIM records",
		},
	},
}
