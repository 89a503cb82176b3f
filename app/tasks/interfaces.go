package tasks

import (
	"context"

	"feedranker/app/scoring"
)

// TaskSchedulerInterface defines the interface for task scheduling
// operations. The scheduler owns the worker pool and enqueues the periodic
// pipeline tasks: feed discovery, scoring, publishing, correction sync, and
// the in-flight reaper.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// Scorer is the slice of the scoring client the score task needs.
type Scorer interface {
	Score(ctx context.Context, articleURL string) (float64, error)
}

// CorrectionSource is the slice of the scoring client the sync task needs.
type CorrectionSource interface {
	Corrections(ctx context.Context, since int64) ([]scoring.Correction, error)
}
