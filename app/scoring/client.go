package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrPermanent marks a rejection the scoring service will repeat on retry.
// Everything else returned by Score is transient and already retried
// internally up to the attempt bound.
var ErrPermanent = errors.New("permanent scoring rejection")

type Correction struct {
	URL     string  `json:"url"`
	Score   float64 `json:"score"`
	Version int64   `json:"version"`
}

// Client wraps the remote scoring capability. One request per entry; the
// remote's batching semantics are unknown, so none are assumed.
type Client struct {
	baseURL     string
	userAgent   string
	maxAttempts int
	httpClient  *http.Client
}

func NewClient(baseURL, userAgent string, timeout time.Duration, maxAttempts int) *Client {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Client{
		baseURL:     baseURL,
		userAgent:   userAgent,
		maxAttempts: maxAttempts,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Score asks the remote service to rank one article URL. Transient failures
// (network errors, 5xx) are retried with capped exponential backoff;
// permanent rejections (4xx, zero score) come back wrapped in ErrPermanent.
func (c *Client) Score(ctx context.Context, articleURL string) (float64, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(delay):
			}
			slog.Debug("Retrying scoring request", "url", articleURL, "attempt", attempt)
		}

		score, err := c.score(ctx, articleURL)
		if err == nil {
			return score, nil
		}
		if errors.Is(err, ErrPermanent) || errors.Is(err, context.Canceled) {
			return 0, err
		}
		lastErr = err
	}

	return 0, fmt.Errorf("scoring failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) score(ctx context.Context, articleURL string) (float64, error) {
	target := fmt.Sprintf("%s/rank?%s", c.baseURL, url.Values{"url": {articleURL}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("scoring request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return 0, fmt.Errorf("scoring service rejected input (HTTP %d): %w", resp.StatusCode, ErrPermanent)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("scoring service error: HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Rank float64 `json:"rank"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return 0, fmt.Errorf("invalid scoring response: %w", err)
	}

	if payload.Rank == 0 {
		return 0, fmt.Errorf("score returned 0: %w", ErrPermanent)
	}

	return payload.Rank, nil
}

// Corrections fetches score corrections issued since the given version.
// Failures are not retried here; the next sync pass picks up from the same
// checkpoint.
func (c *Client) Corrections(ctx context.Context, since int64) ([]Correction, error) {
	target := fmt.Sprintf("%s/corrections?since=%s", c.baseURL, strconv.FormatInt(since, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("corrections request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("corrections service error: HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Items []Correction `json:"items"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid corrections response: %w", err)
	}

	return payload.Items, nil
}
