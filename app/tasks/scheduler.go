package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"feedranker/app/cfg"
	"feedranker/app/database"
	"feedranker/app/feed"
	"feedranker/app/notify"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	feedRepo       database.FeedRepository
	entryRepo      database.EntryRepository
	checkpointRepo database.CheckpointRepository
	httpClient     *http.Client
	parser         *feed.Parser
	scorer         Scorer
	corrections    CorrectionSource
	notifier       notify.Notifier

	userAgent        string
	interval         time.Duration
	workerCount      int
	scoringBatchSize int
	publishBatchSize int
	scoreThreshold   float64
	syncInterval     time.Duration
	reapAge          time.Duration

	lastSyncAt time.Time
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	taskQueue  chan TaskInterface
}

func NewScheduler(feedRepo database.FeedRepository, entryRepo database.EntryRepository,
	checkpointRepo database.CheckpointRepository, httpClient *http.Client, parser *feed.Parser,
	scorer Scorer, corrections CorrectionSource, notifier notify.Notifier) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		feedRepo:         feedRepo,
		entryRepo:        entryRepo,
		checkpointRepo:   checkpointRepo,
		httpClient:       httpClient,
		parser:           parser,
		scorer:           scorer,
		corrections:      corrections,
		notifier:         notifier,
		userAgent:        cfg.UserAgent,
		interval:         time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount:      cfg.WorkerCount,
		scoringBatchSize: cfg.ScoringBatchSize,
		publishBatchSize: cfg.PublishBatchSize,
		scoreThreshold:   cfg.ScoreThreshold,
		syncInterval:     time.Duration(cfg.SyncInterval) * time.Second,
		reapAge:          time.Duration(cfg.ReapAge) * time.Second,
		ctx:              ctx,
		cancel:           cancel,
		taskQueue:        make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// enqueueTasks schedules one pass of each pipeline stage. Workers may still
// be running the previous pass; that is safe because all coordination
// happens through the store's atomic claims and guarded transitions.
func (s *Scheduler) enqueueTasks() {
	dueFeeds, err := s.feedRepo.GetFeedsDueForFetch(50)
	if err != nil {
		slog.Warn("Failed to get feeds due for fetch", "error", err)
	} else {
		for _, f := range dueFeeds {
			task := NewDiscoverFeedTask(f, s.httpClient, s.parser, s.feedRepo, s.entryRepo, s.userAgent)
			if err := s.EnqueueTask(task); err != nil {
				slog.Warn("Failed to enqueue DiscoverFeedTask", "feed", f.Name, "error", err)
			}
		}
	}

	if err := s.EnqueueTask(NewScoreEntriesTask(s.entryRepo, s.scorer, s.scoringBatchSize)); err != nil {
		slog.Warn("Failed to enqueue ScoreEntriesTask", "error", err)
	}

	if s.notifier != nil {
		task := NewPublishEntriesTask(s.entryRepo, s.feedRepo, s.notifier, s.scoreThreshold, s.publishBatchSize)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue PublishEntriesTask", "error", err)
		}
	}

	if time.Since(s.lastSyncAt) >= s.syncInterval {
		s.lastSyncAt = time.Now()
		task := NewSyncCorrectionsTask(s.entryRepo, s.checkpointRepo, s.corrections)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue SyncCorrectionsTask", "error", err)
		}
	}

	if err := s.EnqueueTask(NewReapStaleTask(s.entryRepo, s.reapAge)); err != nil {
		slog.Warn("Failed to enqueue ReapStaleTask", "error", err)
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
