package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hookbench/hookbench/internal/logging"
)

// HTTPExecutor issues step calls as JSON POSTs against the API's base URL.
// Outbound hosts are restricted to the configured allowlist; an empty
// allowlist permits everything and is meant for local development only.
type HTTPExecutor struct {
	allowedHosts     map[string]bool
	maxResponseBytes int
	http             *retryablehttp.Client
	log              *logging.Logger
}

// NewHTTPExecutor creates an executor with the given egress allowlist.
func NewHTTPExecutor(allowedHosts []string, maxRetries, maxResponseBytes int, log *logging.Logger) *HTTPExecutor {
	allowed := make(map[string]bool, len(allowedHosts))
	for _, h := range allowedHosts {
		allowed[strings.ToLower(h)] = true
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = maxRetries
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil

	if maxResponseBytes <= 0 {
		maxResponseBytes = 4096
	}

	return &HTTPExecutor{
		allowedHosts:     allowed,
		maxResponseBytes: maxResponseBytes,
		http:             rc,
		log:              log.Sub("executor"),
	}
}

// Execute performs the call. The context deadline is the per-step timeout.
func (e *HTTPExecutor) Execute(ctx context.Context, call Call) (*Result, error) {
	if call.Cred.BaseURL == "" {
		return nil, fmt.Errorf("no credentials for api %q", call.Step.API)
	}

	target, err := url.JoinPath(call.Cred.BaseURL, call.Operation)
	if err != nil {
		return nil, fmt.Errorf("building call url: %w", err)
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parsing call url: %w", err)
	}
	if err := e.checkEgress(parsed.Hostname()); err != nil {
		return nil, err
	}

	body, err := json.Marshal(call.Inputs)
	if err != nil {
		return nil, fmt.Errorf("encoding step inputs: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building step request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if call.Cred.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+call.Cred.APIKey)
	}

	start := time.Now()
	resp, err := e.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return &Result{
			Method:     http.MethodPost,
			URL:        target,
			DurationMs: elapsed.Milliseconds(),
		}, fmt.Errorf("calling %s %s: %w", call.Step.API, call.Operation, err)
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, int64(e.maxResponseBytes)))

	result := &Result{
		Method:     http.MethodPost,
		URL:        target,
		Status:     resp.StatusCode,
		DurationMs: elapsed.Milliseconds(),
		Response:   string(snippet),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, fmt.Errorf("%s %s returned status %d", call.Step.API, call.Operation, resp.StatusCode)
	}

	result.Outputs = parseOutputs(snippet)
	return result, nil
}

func (e *HTTPExecutor) checkEgress(host string) error {
	if len(e.allowedHosts) == 0 {
		return nil
	}
	if !e.allowedHosts[strings.ToLower(host)] {
		return fmt.Errorf("egress to host %q is not in the allowlist", host)
	}
	return nil
}

// parseOutputs flattens a top-level JSON object into string bindings for
// later steps. Non-object responses produce no bindings.
func parseOutputs(body []byte) map[string]string {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	outputs := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			outputs[k] = val
		case float64, bool, json.Number:
			outputs[k] = fmt.Sprintf("%v", val)
		}
	}
	return outputs
}

var _ StepExecutor = (*HTTPExecutor)(nil)
