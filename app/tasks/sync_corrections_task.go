package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"feedranker/app/database"
)

// SyncCorrectionsTask reconciles locally stored scores with corrections the
// scoring service issued after initial scoring. The high-water mark only
// advances once the whole batch is applied; re-applying a batch after a
// crash is harmless because score updates are guarded by version.
type SyncCorrectionsTask struct {
	Task
	entryRepo      database.EntryRepository
	checkpointRepo database.CheckpointRepository
	source         CorrectionSource
}

func NewSyncCorrectionsTask(entryRepo database.EntryRepository,
	checkpointRepo database.CheckpointRepository, source CorrectionSource) *SyncCorrectionsTask {
	return &SyncCorrectionsTask{
		Task:           NewTask(TaskTypeSyncCorrections, ""),
		entryRepo:      entryRepo,
		checkpointRepo: checkpointRepo,
		source:         source,
	}
}

func (t *SyncCorrectionsTask) Execute(ctx context.Context) error {
	mark, err := t.checkpointRepo.GetHighWaterMark()
	if err != nil {
		return fmt.Errorf("failed to read sync checkpoint: %w", err)
	}

	corrections, err := t.source.Corrections(ctx, mark)
	if err != nil {
		return fmt.Errorf("failed to fetch corrections: %w", err)
	}

	if len(corrections) == 0 {
		slog.Debug("No corrections since checkpoint", "high_water_mark", mark)
		return nil
	}

	appliedCount := 0
	skippedCount := 0
	maxVersion := mark

	for _, correction := range corrections {
		applied, err := t.entryRepo.UpdateScoreIfNewer(correction.URL, correction.Score, correction.Version)
		if err != nil {
			return fmt.Errorf("failed to apply correction for %s: %w", correction.URL, err)
		}

		if applied {
			appliedCount++
			slog.Info("Score corrected", "url", correction.URL, "score", correction.Score, "version", correction.Version)
		} else {
			// Unknown locally, already newer, or never scored here. All
			// expected, none an error.
			skippedCount++
		}

		if correction.Version > maxVersion {
			maxVersion = correction.Version
		}
	}

	if maxVersion > mark {
		if err := t.checkpointRepo.SetHighWaterMark(maxVersion); err != nil {
			return fmt.Errorf("failed to advance sync checkpoint: %w", err)
		}
	}

	slog.Info("Task completed",
		"type", "SyncCorrections",
		"duration", t.GetDuration(),
		"corrections", len(corrections),
		"applied", appliedCount,
		"skipped", skippedCount,
		"high_water_mark", maxVersion)

	return nil
}
