package tasks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"feedranker/app/database"
	"feedranker/app/feed"
)

const fetchTimeout = 30 * time.Second

// DiscoverFeedTask fetches one feed, deduplicates its entries against the
// store, and records first sightings in the discovered state.
type DiscoverFeedTask struct {
	Task
	Feed       database.Feed
	httpClient *http.Client
	parser     *feed.Parser
	feedRepo   database.FeedRepository
	entryRepo  database.EntryRepository
	userAgent  string
}

func NewDiscoverFeedTask(f database.Feed, httpClient *http.Client, parser *feed.Parser,
	feedRepo database.FeedRepository, entryRepo database.EntryRepository, userAgent string) *DiscoverFeedTask {
	return &DiscoverFeedTask{
		Task:       NewTask(TaskTypeDiscoverFeed, f.Name),
		Feed:       f,
		httpClient: httpClient,
		parser:     parser,
		feedRepo:   feedRepo,
		entryRepo:  entryRepo,
		userAgent:  userAgent,
	}
}

func (t *DiscoverFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := t.fetchFeed(ctx, t.Feed.URL)
	if err != nil {
		// A bad source must not abort sibling feeds and must not trigger
		// an immediate retry storm: record the pass and wait for the next
		// scheduled tick.
		slog.Error("Feed fetch failed", "feed", t.Feed.Name, "url", t.Feed.URL, "error", err)
		if markErr := t.feedRepo.MarkFetched(t.Feed.ID, false); markErr != nil {
			return fmt.Errorf("failed to record fetch failure: %w", markErr)
		}
		return nil
	}

	rawEntries, err := t.parser.Run(t.Feed.Name, data)
	if err != nil {
		slog.Error("Feed parse failed", "feed", t.Feed.Name, "error", err)
		if markErr := t.feedRepo.MarkFetched(t.Feed.ID, false); markErr != nil {
			return fmt.Errorf("failed to record parse failure: %w", markErr)
		}
		return nil
	}

	newCount := 0
	for _, raw := range rawEntries {
		inserted, err := t.entryRepo.TryInsert(database.NewEntry{
			FeedID:      t.Feed.ID,
			Fingerprint: raw.Fingerprint,
			GUID:        raw.GUID,
			Link:        raw.Link,
			Title:       raw.Title,
			Summary:     raw.Summary,
			RawContent:  raw.RawContent,
		})
		if err != nil {
			return fmt.Errorf("failed to insert entry: %w", err)
		}
		if inserted {
			newCount++
			slog.Info("New entry discovered", "feed", t.Feed.Name, "title", raw.Title, "guid", raw.GUID)
		}
	}

	if err := t.feedRepo.MarkFetched(t.Feed.ID, newCount > 0); err != nil {
		return fmt.Errorf("failed to mark feed fetched: %w", err)
	}

	slog.Info("Task completed",
		"type", "DiscoverFeed",
		"feed", t.Feed.Name,
		"duration", t.GetDuration(),
		"total", len(rawEntries),
		"new", newCount)

	return nil
}

func (t *DiscoverFeedTask) fetchFeed(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
