package llmmediator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/memhub/memoryd/pkg/apperr"
)

// HTTPTransport calls an OpenAI-compatible chat/embeddings API over
// plain HTTP, the ecosystem default for the upstream this service
// depends on.
type HTTPTransport struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPTransport constructs an HTTPTransport with a bounded client
// timeout — the mediator layers its own per-attempt timeout on top via
// context, this is the floor.
func NewHTTPTransport(baseURL, apiKey string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("upstream LLM returned status %d: %s", e.status, e.body)
}

// Retryable reports true for 5xx and 429 responses, mirroring the
// classification tarsy's pkg/mcp/recovery.go applies to transport
// failures: retry transient server-side trouble, not client errors.
func (e *httpError) Retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}

func (t *HTTPTransport) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	reqBody := map[string]any{"model": model, "input": texts}
	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := t.post(ctx, "/embeddings", reqBody, &resp); err != nil {
		return nil, err
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (t *HTTPTransport) ChatJSON(ctx context.Context, messages []Message, model string) (map[string]any, error) {
	wireMessages := make([]map[string]string, len(messages))
	for i, m := range messages {
		wireMessages[i] = map[string]string{"role": m.Role, "content": m.Content}
	}
	reqBody := map[string]any{
		"model":           model,
		"messages":        wireMessages,
		"response_format": map[string]string{"type": "json_object"},
	}
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := t.post(ctx, "/chat/completions", reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("upstream returned no choices")
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstreamMalformed, err)
	}
	return parsed, nil
}

func (t *HTTPTransport) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return &httpError{status: resp.StatusCode, body: string(respBody)}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrUpstreamMalformed, err)
	}
	return nil
}

// transportError wraps a network-level failure (connection reset, DNS,
// timeout) as retryable — the same spirit as tarsy's isConnectionError
// classification, generalized to a boolean rather than a three-way
// recovery action since this mediator only ever retries in place.
type transportError struct{ err error }

func (e *transportError) Error() string   { return e.err.Error() }
func (e *transportError) Unwrap() error   { return e.err }
func (e *transportError) Retryable() bool { return true }
