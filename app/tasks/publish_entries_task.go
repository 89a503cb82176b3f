package tasks

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedranker/app/database"
	"feedranker/app/notify"
)

// PublishEntriesTask emits notifications for scored entries above the
// threshold and marks them published. Failed sends leave the entry scored,
// so publishing retries until the channel heals; duplicates are possible
// and preferred over losses.
type PublishEntriesTask struct {
	Task
	entryRepo database.EntryRepository
	feedRepo  database.FeedRepository
	notifier  notify.Notifier
	threshold float64
	batchSize int
}

func NewPublishEntriesTask(entryRepo database.EntryRepository, feedRepo database.FeedRepository,
	notifier notify.Notifier, threshold float64, batchSize int) *PublishEntriesTask {
	return &PublishEntriesTask{
		Task:      NewTask(TaskTypePublishEntries, ""),
		entryRepo: entryRepo,
		feedRepo:  feedRepo,
		notifier:  notifier,
		threshold: threshold,
		batchSize: batchSize,
	}
}

func (t *PublishEntriesTask) Execute(ctx context.Context) error {
	entries, err := t.entryRepo.GetPublishable(t.threshold, t.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get publishable entries: %w", err)
	}

	if len(entries) == 0 {
		return nil
	}

	feedNames := make(map[string]string)
	publishedCount := 0

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		feedName, ok := feedNames[entry.FeedID]
		if !ok {
			feedName = t.resolveFeedName(entry.FeedID)
			feedNames[entry.FeedID] = feedName
		}

		score := 0.0
		if entry.Score != nil {
			score = *entry.Score
		}
		title := cmp.Or(entry.Title, entry.GUID)

		err := t.notifier.Send(ctx, title, entry.Link, entry.Summary, feedName, score)
		if errors.Is(err, notify.ErrRateLimited) {
			// The rest of the batch would hit the same window; entries
			// stay scored and the next pass picks them up.
			slog.Warn("Notification channel rate limited, stopping batch", "remaining", len(entries)-publishedCount)
			break
		}
		if err != nil {
			slog.Error("Notification failed, will retry", "feed", feedName, "title", title, "error", err)
			continue
		}

		now := time.Now().UTC()
		committed, err := t.entryRepo.CommitTransition(entry.Fingerprint,
			database.StateScored, database.StatePublished, database.TransitionFields{
				PublishedAt: &now,
			})
		if err != nil {
			slog.Error("Failed to mark entry published", "fingerprint", entry.Fingerprint, "error", err)
			continue
		}
		if !committed {
			slog.Debug("Entry reassigned during publishing, skipping", "fingerprint", entry.Fingerprint)
			continue
		}

		publishedCount++
		slog.Info("Entry published", "feed", feedName, "title", title, "score", score)
	}

	slog.Info("Task completed",
		"type", "PublishEntries",
		"duration", t.GetDuration(),
		"eligible", len(entries),
		"published", publishedCount)

	return nil
}

func (t *PublishEntriesTask) resolveFeedName(feedID string) string {
	f, err := t.feedRepo.GetFeed(feedID)
	if err != nil || f == nil {
		return "Unknown"
	}
	return f.Name
}
