package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrRateLimited is returned while the channel is inside a rate-limit
// backoff window. The caller should stop its batch; affected entries are
// retried on a later pass.
var ErrRateLimited = errors.New("notification channel rate limited")

const summaryMaxLength = 200

// Notifier emits one message per published entry.
type Notifier interface {
	Send(ctx context.Context, title, link, summary, feedName string, score float64) error
}

// DiscordNotifier posts messages to a Discord webhook. Delivery is
// at-least-once; deduplication lives in the entry store's published flag,
// not here.
type DiscordNotifier struct {
	webhookURL string
	backoff    time.Duration
	client     *http.Client

	mu           sync.Mutex
	limitedUntil time.Time
}

var _ Notifier = (*DiscordNotifier)(nil)

func NewDiscordNotifier(webhookURL string, backoff time.Duration) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		backoff:    backoff,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *DiscordNotifier) Send(ctx context.Context, title, link, summary, feedName string, score float64) error {
	if n.webhookURL == "" {
		return fmt.Errorf("discord notifier misconfigured: no webhook URL")
	}

	n.mu.Lock()
	limitedUntil := n.limitedUntil
	n.mu.Unlock()

	if now := time.Now(); now.Before(limitedUntil) {
		return fmt.Errorf("%w until %s", ErrRateLimited, limitedUntil.Format(time.RFC3339))
	}

	message := FormatMessage(title, link, summary, feedName, score)

	body, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		until := time.Now().Add(n.backoff)
		n.mu.Lock()
		n.limitedUntil = until
		n.mu.Unlock()
		slog.Warn("Discord rate limited, backing off", "until", until.Format(time.RFC3339))
		return fmt.Errorf("%w until %s", ErrRateLimited, until.Format(time.RFC3339))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord error: HTTP %d", resp.StatusCode)
	}

	return nil
}

// FormatMessage lays out one notification: score and source on top, bold
// title, truncated plain-text summary, then the link so Discord embeds it.
func FormatMessage(title, link, summary, feedName string, score float64) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("**%.1f** · %s", score, feedName))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("**%s**", title))

	if text := StripHTML(summary); text != "" {
		if runes := []rune(text); len(runes) > summaryMaxLength {
			text = string(runes[:summaryMaxLength-3]) + "..."
		}
		lines = append(lines, text)
	}

	lines = append(lines, "")
	lines = append(lines, link)

	return strings.Join(lines, "\n")
}

// StripHTML reduces feed summary markup to plain text with normalized
// whitespace.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}

	return strings.Join(strings.Fields(doc.Text()), " ")
}
