package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedranker/app/database"
)

// ReapStaleTask returns entries stuck in the in-flight scoring state to
// discovered. A worker that crashed after claiming leaves its batch behind;
// age is the only signal available to tell a crashed claim from a slow one.
type ReapStaleTask struct {
	Task
	entryRepo database.EntryRepository
	maxAge    time.Duration
}

func NewReapStaleTask(entryRepo database.EntryRepository, maxAge time.Duration) *ReapStaleTask {
	return &ReapStaleTask{
		Task:      NewTask(TaskTypeReapStale, ""),
		entryRepo: entryRepo,
		maxAge:    maxAge,
	}
}

func (t *ReapStaleTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	cutoff := time.Now().UTC().Add(-t.maxAge)

	reaped, err := t.entryRepo.ReapStale(cutoff)
	if err != nil {
		return fmt.Errorf("failed to reap stale entries: %w", err)
	}

	if reaped > 0 {
		slog.Warn("Reclaimed stale in-flight entries", "count", reaped, "older_than", t.maxAge.String())
	}

	return nil
}
