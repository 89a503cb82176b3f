package tasks

import (
	"context"
	"testing"
	"time"

	"feedranker/app/database"
	"feedranker/app/scoring"
)

func TestSyncCorrectionsTask_AppliesAndAdvancesCheckpoint(t *testing.T) {
	db := newTestDB(t)
	f := newTestFeed(t, db, "https://example.com/rss")
	entryRepo := database.NewEntryRepository(db)
	checkpointRepo := database.NewCheckpointRepository(db)

	insertTestEntry(t, entryRepo, f.ID, "fp-1", "https://example.com/one")
	scoreTestEntry(t, entryRepo, "fp-1", 9.2, 1)

	source := &fakeCorrectionSource{items: []scoring.Correction{
		{URL: "https://example.com/one", Score: 7.0, Version: 2},
		{URL: "https://example.com/unknown", Score: 4.0, Version: 3},
	}}

	task := NewSyncCorrectionsTask(entryRepo, checkpointRepo, source)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if source.lastSince != 0 {
		t.Errorf("First sync should start from checkpoint 0, got %d", source.lastSince)
	}

	entry := entryState(t, entryRepo, "fp-1")
	if entry.Score == nil || *entry.Score != 7.0 {
		t.Errorf("Expected corrected score 7.0, got %v", entry.Score)
	}
	if entry.ScoreVersion == nil || *entry.ScoreVersion != 2 {
		t.Errorf("Expected score version 2, got %v", entry.ScoreVersion)
	}

	mark, err := checkpointRepo.GetHighWaterMark()
	if err != nil {
		t.Fatalf("GetHighWaterMark failed: %v", err)
	}
	if mark != 3 {
		t.Errorf("Checkpoint should advance to the highest seen version, got %d", mark)
	}
}

func TestSyncCorrectionsTask_Idempotent(t *testing.T) {
	db := newTestDB(t)
	f := newTestFeed(t, db, "https://example.com/rss")
	entryRepo := database.NewEntryRepository(db)
	checkpointRepo := database.NewCheckpointRepository(db)

	insertTestEntry(t, entryRepo, f.ID, "fp-1", "https://example.com/one")
	scoreTestEntry(t, entryRepo, "fp-1", 9.2, 1)

	source := &fakeCorrectionSource{items: []scoring.Correction{
		{URL: "https://example.com/one", Score: 7.0, Version: 2},
	}}

	task := NewSyncCorrectionsTask(entryRepo, checkpointRepo, source)
	for i := 0; i < 2; i++ {
		if err := task.Execute(context.Background()); err != nil {
			t.Fatalf("Execute pass %d failed: %v", i+1, err)
		}
	}

	if source.lastSince != 2 {
		t.Errorf("Second sync should resume from the advanced checkpoint, got %d", source.lastSince)
	}

	entry := entryState(t, entryRepo, "fp-1")
	if *entry.Score != 7.0 || *entry.ScoreVersion != 2 {
		t.Errorf("Re-applying the same batch should be a no-op, got score=%v version=%v", *entry.Score, *entry.ScoreVersion)
	}
}

func TestSyncCorrectionsTask_PublishedStaysPublished(t *testing.T) {
	db := newTestDB(t)
	f := newTestFeed(t, db, "https://example.com/rss")
	entryRepo := database.NewEntryRepository(db)
	checkpointRepo := database.NewCheckpointRepository(db)

	insertTestEntry(t, entryRepo, f.ID, "fp-1", "https://example.com/one")
	scoreTestEntry(t, entryRepo, "fp-1", 9.2, 1)

	now := time.Now().UTC()
	committed, err := entryRepo.CommitTransition("fp-1", database.StateScored, database.StatePublished,
		database.TransitionFields{PublishedAt: &now})
	if err != nil || !committed {
		t.Fatalf("Failed to publish entry: committed=%v err=%v", committed, err)
	}

	source := &fakeCorrectionSource{items: []scoring.Correction{
		{URL: "https://example.com/one", Score: 2.0, Version: 2},
	}}
	if err := NewSyncCorrectionsTask(entryRepo, checkpointRepo, source).Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	entry := entryState(t, entryRepo, "fp-1")
	if *entry.Score != 2.0 {
		t.Errorf("Downward correction should still apply, got %f", *entry.Score)
	}
	if entry.State != database.StatePublished {
		t.Errorf("A correction must not retract a publication, got state %s", entry.State)
	}
}

func TestSyncCorrectionsTask_EmptyBatchKeepsCheckpoint(t *testing.T) {
	db := newTestDB(t)
	checkpointRepo := database.NewCheckpointRepository(db)
	entryRepo := database.NewEntryRepository(db)

	if err := checkpointRepo.SetHighWaterMark(42); err != nil {
		t.Fatalf("SetHighWaterMark failed: %v", err)
	}

	source := &fakeCorrectionSource{}
	if err := NewSyncCorrectionsTask(entryRepo, checkpointRepo, source).Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if source.lastSince != 42 {
		t.Errorf("Sync should query from the stored checkpoint, got %d", source.lastSince)
	}

	mark, _ := checkpointRepo.GetHighWaterMark()
	if mark != 42 {
		t.Errorf("Empty batch should not move the checkpoint, got %d", mark)
	}
}
