package tasks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"feedranker/app/cfg"
	"feedranker/app/database"
	"feedranker/app/feed"
)

type signalTask struct {
	Task
	executed chan struct{}
}

func (t *signalTask) Execute(ctx context.Context) error {
	close(t.executed)
	return nil
}

func schedulerTestCfg(interval int) *cfg.Cfg {
	return &cfg.Cfg{
		Port:              "8080",
		WorkerCount:       2,
		SchedulerInterval: interval,
		ScoringBatchSize:  10,
		PublishBatchSize:  10,
		ScoreThreshold:    8.0,
		SyncInterval:      3600,
		ReapAge:           600,
		UserAgent:         "test/1.0",
		Version:           "test",
	}
}

func TestScheduler_ExecutesEnqueuedTask(t *testing.T) {
	cfg.Set(schedulerTestCfg(3600))

	db := newTestDB(t)
	scheduler := NewScheduler(database.NewFeedRepository(db), database.NewEntryRepository(db),
		database.NewCheckpointRepository(db), &http.Client{}, feed.NewParser(),
		&fakeScorer{scoreFn: func(string) (float64, error) { return 1, nil }},
		&fakeCorrectionSource{}, nil)

	scheduler.Start()
	defer scheduler.Stop()

	task := &signalTask{Task: NewTask(TaskTypeScoreEntries, ""), executed: make(chan struct{})}
	if err := scheduler.EnqueueTask(task); err != nil {
		t.Fatalf("EnqueueTask failed: %v", err)
	}

	select {
	case <-task.executed:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueued task was not executed")
	}
}

func TestScheduler_PipelineConverges(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping multi-second pipeline test in short mode")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(discoverTestRSS))
	}))
	defer server.Close()

	cfg.Set(schedulerTestCfg(1))

	db := newTestDB(t)
	newTestFeed(t, db, server.URL)
	entryRepo := database.NewEntryRepository(db)

	scorer := &fakeScorer{scoreFn: func(url string) (float64, error) {
		if url == "https://example.com/one" {
			return 9.2, nil
		}
		return 3.5, nil
	}}
	notifier := &fakeNotifier{}

	scheduler := NewScheduler(database.NewFeedRepository(db), entryRepo,
		database.NewCheckpointRepository(db), server.Client(), feed.NewParser(),
		scorer, &fakeCorrectionSource{}, notifier)

	scheduler.Start()
	defer scheduler.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		published, err := entryRepo.CountByState(database.StatePublished)
		if err != nil {
			t.Fatalf("CountByState failed: %v", err)
		}
		if published == 1 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	published, _ := entryRepo.CountByState(database.StatePublished)
	if published != 1 {
		t.Fatalf("Expected 1 published entry, got %d", published)
	}

	scored, _ := entryRepo.CountByState(database.StateScored)
	if scored != 1 {
		t.Errorf("Expected the below-threshold entry to stay scored, got %d", scored)
	}

	if sent := notifier.sentList(); len(sent) != 1 {
		t.Errorf("Expected exactly 1 notification, got %d", len(sent))
	}
}
