package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonathan/zeroecho/internal/errs"
)

const maxResponseBytes = 16 << 20

// HTTPBackend posts batches to a JSON analysis endpoint.
type HTTPBackend struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewHTTPBackend creates a backend for endpoint with the given request timeout.
func NewHTTPBackend(endpoint, apiKey string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPBackend{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: timeout},
	}
}

// Name identifies the backend in logs and breaker state.
func (b *HTTPBackend) Name() string {
	return "http"
}

type batchRequest struct {
	Articles []Request `json:"articles"`
}

// Call sends reqs and decodes the response batch.
// 429 and 5xx responses are transient; other non-2xx statuses are POLICY_BLOCKED.
func (b *HTTPBackend) Call(ctx context.Context, reqs []Request) ([]any, error) {
	payload, err := json.Marshal(batchRequest{Articles: reqs})
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if b.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.APIKey)
	}

	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.NetworkTransient, "analysis request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errs.Wrap(errs.NetworkTransient, "analysis response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := errs.PolicyBlocked
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			kind = errs.NetworkTransient
		}
		return nil, errs.New(kind, "analysis request", fmt.Sprintf("HTTP %d: %s", resp.StatusCode, snippet(body)))
	}

	return DecodeBatch(body)
}

func snippet(body []byte) string {
	const max = 200
	s := string(bytes.TrimSpace(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
