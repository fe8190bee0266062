package judgesim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	maxBusyRetries = 5
	busyBackoff    = 50 * time.Millisecond
)

// ErrStatus reports an unexpected HTTP status.
var ErrStatus = errors.New("unexpected status")

// HTTPClient wraps http.Client with JSON helpers and retry on 503.
type HTTPClient struct {
	client     *http.Client
	baseURL    string
	adminToken string
	retries    func()
}

func newHTTPClient(cfg *Config, onRetry func()) *HTTPClient {
	if onRetry == nil {
		onRetry = func() {}
	}
	return &HTTPClient{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		adminToken: cfg.AdminToken,
		retries:    onRetry,
	}
}

// do sends a request and decodes a JSON body into out, retrying while the
// service reports itself busy. It returns the final status code.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return 0, fmt.Errorf("failed to create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.adminToken != "" {
			req.Header.Set("X-Admin-Token", c.adminToken)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return 0, err
		}
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return resp.StatusCode, err
		}

		if resp.StatusCode == http.StatusServiceUnavailable && attempt < maxBusyRetries {
			c.retries()
			select {
			case <-ctx.Done():
				return resp.StatusCode, ctx.Err()
			case <-time.After(busyBackoff * time.Duration(attempt+1)):
			}
			continue
		}
		if out != nil && resp.StatusCode < http.StatusBadRequest {
			if err := json.Unmarshal(data, out); err != nil {
				return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
			}
		}
		return resp.StatusCode, nil
	}
}

func (c *HTTPClient) expect(ctx context.Context, method, path string, want int, body, out any) error {
	code, err := c.do(ctx, method, path, body, out)
	if err != nil {
		return err
	}
	if code != want {
		return fmt.Errorf("%w: %s %s returned %d", ErrStatus, method, path, code)
	}
	return nil
}
