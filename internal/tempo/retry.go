package tempo

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"
)

// Retry policy for one fetch. The whole fetch must finish well inside one poll interval.
const (
	DefaultMaxRetries = 3
	DefaultBackoff    = 250 * time.Millisecond
	maxBackoff        = 2 * time.Second
)

func (c *Client) doRequestWithRetry(req *http.Request) (*http.Response, error) {
	maxRetries := c.maxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	ctx := req.Context()
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("tempo: request canceled: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		retryAfter, retry := shouldRetry(resp, err)
		if !retry {
			if err != nil {
				return nil, fmt.Errorf("tempo: %w", err)
			}
			return resp, nil
		}

		if attempt == maxRetries-1 {
			if err != nil {
				return nil, fmt.Errorf("tempo: request failed after %d attempts: %w", maxRetries, err)
			}
			resp.Body.Close()
			return nil, fmt.Errorf("tempo: request failed after %d attempts: status %d", maxRetries, resp.StatusCode)
		}

		if err != nil {
			log.Printf("WARN tempo: retry %d/%d after error: %v", attempt+1, maxRetries, err)
		} else {
			log.Printf("WARN tempo: retry %d/%d after status %d", attempt+1, maxRetries, resp.StatusCode)
			resp.Body.Close()
		}

		backoff := c.baseBackoff * time.Duration(1<<attempt)
		if retryAfter > 0 {
			backoff = retryAfter
		}
		if backoff > maxBackoff {
			backoff = maxBackoff
		}

		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("tempo: request failed after %d attempts", maxRetries)
}

// shouldRetry reports whether a request is worth repeating, and any
// server-requested delay.
func shouldRetry(resp *http.Response, err error) (time.Duration, bool) {
	if err != nil {
		return 0, true
	}
	if resp == nil {
		return 0, false
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return parseRetryAfter(resp), true
	}
	return 0, false
}

func parseRetryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(raw); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}
	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("tempo: request canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
