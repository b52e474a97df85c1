package steps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nestor-assistant/nestor/internal/engine"
)

const maxResponseBytes = 1 << 20 // 1 MiB

// HTTPRunner performs an HTTP request. Task params:
//
//	url     (string, required)
//	method  (string, optional, default GET)
//	body    (string, optional)
//	headers (map[string]any, optional)
//
// Status codes >= 400 are step failures. The result carries status and the
// response body (capped at 1 MiB) for verification.
type HTTPRunner struct {
	client *http.Client
}

// NewHTTPRunner creates an HTTP runner; a nil client gets a 30s-timeout
// default.
func NewHTTPRunner(client *http.Client) *HTTPRunner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPRunner{client: client}
}

func (r *HTTPRunner) RunStep(ctx context.Context, t *engine.Task) (*engine.StepResult, error) {
	url, _ := t.Params["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http step %s: url param is required", t.ID)
	}

	method, _ := t.Params["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if b, _ := t.Params["body"].(string); b != "" {
		body = strings.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return nil, fmt.Errorf("http step %s: %w", t.ID, err)
	}
	if headers, ok := t.Params["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http step %s: %w", t.ID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("http step %s: read body: %w", t.ID, err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http step %s: status %d: %s",
			t.ID, resp.StatusCode, truncate(string(data), 500))
	}

	return &engine.StepResult{Output: map[string]any{
		"status": resp.StatusCode,
		"body":   string(data),
	}}, nil
}
