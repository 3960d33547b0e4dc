package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 3

	// Hosted free tiers throttle aggressively; stay well under their
	// documented request limits.
	defaultRequestsPerSecond = 2
	defaultBurst             = 4

	// maxErrorBodyBytes bounds how much of an error response is read
	// back for diagnostics.
	maxErrorBodyBytes = 4 << 10
)

// apiClient is the shared HTTP plumbing for the hosted backends:
// JSON request/response, bearer auth, client-side rate limiting, and
// retry with exponential backoff on 429 and 5xx honoring Retry-After.
type apiClient struct {
	http       *http.Client
	apiKey     string
	limiter    *rate.Limiter
	maxRetries int
	logger     *slog.Logger
}

func newAPIClient(apiKey string, logger *slog.Logger) *apiClient {
	return &apiClient{
		http:       &http.Client{Timeout: defaultTimeout},
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurst),
		maxRetries: defaultMaxRetries,
		logger:     logger,
	}
}

// postJSON posts body to url and decodes the response into out.
// Retries transient failures; respects ctx for cancellation throughout.
func (c *apiClient) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Debug("request failed, retrying", "url", url, "attempt", attempt, "error", err)
			if sleepErr := sleepCtx(ctx, backoffDelay(attempt, "")); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			retryAfter := resp.Header.Get("Retry-After")
			drainClose(resp.Body)
			lastErr = fmt.Errorf("server returned %s", resp.Status)
			c.logger.Debug("retryable status", "url", url, "status", resp.StatusCode, "attempt", attempt)
			if sleepErr := sleepCtx(ctx, backoffDelay(attempt, retryAfter)); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		if resp.StatusCode >= 300 {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			drainClose(resp.Body)
			return fmt.Errorf("api request failed: %s: %s", resp.Status, bytes.TrimSpace(detail))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		drainClose(resp.Body)
		if err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// backoffDelay returns the wait before the next attempt. A parseable
// Retry-After header wins over exponential backoff.
func backoffDelay(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(1<<attempt) * 500 * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBodyBytes))
	_ = body.Close()
}
