package tasks

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedranker/app/database"
	"feedranker/app/scoring"
)

// ScoreEntriesTask drains a bounded batch of discovered entries through the
// scoring client. The claim flips entries to the in-flight scoring state
// before any network call, so a crash leaves them recoverable by the reaper
// instead of half-written.
type ScoreEntriesTask struct {
	Task
	entryRepo database.EntryRepository
	scorer    Scorer
	batchSize int
}

func NewScoreEntriesTask(entryRepo database.EntryRepository, scorer Scorer, batchSize int) *ScoreEntriesTask {
	return &ScoreEntriesTask{
		Task:      NewTask(TaskTypeScoreEntries, ""),
		entryRepo: entryRepo,
		scorer:    scorer,
		batchSize: batchSize,
	}
}

func (t *ScoreEntriesTask) Execute(ctx context.Context) error {
	entries, err := t.entryRepo.ClaimBatch(database.StateDiscovered, t.batchSize)
	if err != nil {
		return fmt.Errorf("failed to claim entries for scoring: %w", err)
	}

	if len(entries) == 0 {
		return nil
	}

	scoredCount := 0
	failedCount := 0

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			// Unprocessed claims go back via the reaper; finish nothing
			// mid-flight.
			return ctx.Err()
		default:
		}

		// The scoring service ranks by canonical URL; entries without a
		// link fall back to their guid, matching how they were identified.
		target := cmp.Or(entry.Link, entry.GUID)

		score, err := t.scorer.Score(ctx, target)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			t.commitFailure(entry, err)
			failedCount++
			continue
		}

		now := time.Now().UTC()
		version := now.Unix()
		committed, err := t.entryRepo.CommitTransition(entry.Fingerprint,
			database.StateScoring, database.StateScored, database.TransitionFields{
				Score:        &score,
				ScoreVersion: &version,
				ScoredAt:     &now,
			})
		if err != nil {
			slog.Error("Failed to commit score", "fingerprint", entry.Fingerprint, "error", err)
			continue
		}
		if !committed {
			slog.Debug("Entry reassigned during scoring, skipping", "fingerprint", entry.Fingerprint)
			continue
		}

		scoredCount++
		slog.Info("Entry scored", "link", target, "score", score)
	}

	slog.Info("Task completed",
		"type", "ScoreEntries",
		"duration", t.GetDuration(),
		"claimed", len(entries),
		"scored", scoredCount,
		"failed", failedCount)

	return nil
}

func (t *ScoreEntriesTask) commitFailure(entry database.Entry, cause error) {
	committed, err := t.entryRepo.CommitTransition(entry.Fingerprint,
		database.StateScoring, database.StateScoreFailed, database.TransitionFields{
			LastError: cause.Error(),
		})
	if err != nil {
		slog.Error("Failed to commit scoring failure", "fingerprint", entry.Fingerprint, "error", err)
		return
	}
	if !committed {
		slog.Debug("Entry reassigned during scoring, skipping failure", "fingerprint", entry.Fingerprint)
		return
	}

	if errors.Is(cause, scoring.ErrPermanent) {
		slog.Warn("Entry rejected by scoring service", "link", entry.Link, "error", cause)
	} else {
		slog.Error("Entry scoring failed", "link", entry.Link, "error", cause)
	}
}
