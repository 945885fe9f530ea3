package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hookbench/hookbench/internal/logging"
)

// HTTPClient talks to a text-generation endpoint over HTTP. Transient
// failures are retried by the underlying client; the context deadline is
// the hard ceiling after which callers see an error rather than a hang.
type HTTPClient struct {
	endpoint string
	apiKey   string
	model    string
	http     *retryablehttp.Client
}

// NewHTTPClient creates an HTTP-backed AI client.
func NewHTTPClient(endpoint, apiKey, model string, timeout time.Duration, log *logging.Logger) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil
	sub := log.Sub("ai")
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			sub.Debug().Int("attempt", attempt).Str("url", req.URL.Path).Msg("retrying inference call")
		}
	}

	return &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		http:     rc,
	}
}

// Name returns the provider name.
func (c *HTTPClient) Name() string { return "http" }

type generateBody struct {
	Model   string `json:"model,omitempty"`
	Prompt  string `json:"prompt"`
	Context string `json:"context,omitempty"`
}

type generateResult struct {
	Text string `json:"text"`
}

// Generate posts the prompt and returns the generated text.
func (c *HTTPClient) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	body, err := json.Marshal(generateBody{Model: model, Prompt: req.Prompt, Context: req.Context})
	if err != nil {
		return nil, fmt.Errorf("encoding generate request: %w", err)
	}

	hr, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building generate request: %w", err)
	}
	hr.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		hr.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("inference call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference call: status %d: %s", resp.StatusCode, snippet)
	}

	var result generateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding generate response: %w", err)
	}
	return &Response{Text: result.Text}, nil
}
