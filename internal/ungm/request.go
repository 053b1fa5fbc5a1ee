package ungm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	contentType = "application/json"

	retryAttempts  = 5
	retryBaseDelay = 1 * time.Second
	retryMaxDelay  = 32 * time.Second
)

// RequestError reports a catalog request that failed after retry exhaustion
// or with a non-retryable status. Fatal for that single request.
type RequestError struct {
	Op     string
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// postJSON sends an authenticated POST with the given payload and decodes
// the response into target, retrying transient failures.
func (c *Client) postJSON(ctx context.Context, op, path string, payload any, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}

	data, err := c.doWithRetry(ctx, op, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, target); err != nil {
		return &RequestError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}

// getJSON sends an authenticated GET and decodes the response into target,
// retrying transient failures.
func (c *Client) getJSON(ctx context.Context, op, path string, target any) ([]byte, error) {
	data, err := c.doWithRetry(ctx, op, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL+path, nil)
	})
	if err != nil {
		return nil, err
	}

	if target != nil {
		if err := json.Unmarshal(data, target); err != nil {
			return nil, &RequestError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}

	return data, nil
}

// doWithRetry executes the request with exponential backoff on connection
// errors, 5xx responses and 429 rate limiting. A fresh request is built per
// attempt so the bearer token can be refreshed mid-retry. The last error is
// returned when attempts are exhausted; other 4xx statuses fail immediately.
func (c *Client) doWithRetry(ctx context.Context, op string, build func() (*http.Request, error)) ([]byte, error) {
	delay := c.retryBase
	var lastErr error

	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		data, retryable, err := c.attempt(ctx, op, build)
		if err == nil {
			return data, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err

		if attempt == c.retryAttempts {
			break
		}

		c.logger.Debug("retrying catalog request",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		if err := sleep(ctx, delay); err != nil {
			return nil, &RequestError{Op: op, Err: err}
		}

		delay *= 2
		if delay > c.retryCap {
			delay = c.retryCap
		}
	}

	return nil, lastErr
}

// attempt performs a single request. The second return value reports whether
// the failure is worth retrying.
func (c *Client) attempt(ctx context.Context, op string, build func() (*http.Request, error)) ([]byte, bool, error) {
	req, err := build()
	if err != nil {
		return nil, false, &RequestError{Op: op, Err: err}
	}

	if err := c.setHeaders(ctx, req); err != nil {
		return nil, false, err
	}

	c.logger.Debug("catalog request", zap.String("op", op), zap.String("url", req.URL.String()))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, true, &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &RequestError{Op: op, Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		return body, false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, &RequestError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("rate limited")}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, true, &RequestError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("server error")}
	default:
		return nil, false, &RequestError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("bad status: %s", resp.Status)}
	}
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	req.Header.Set("Accept", contentType)
	req.Header.Set("User-Agent", c.UserAgent)

	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
