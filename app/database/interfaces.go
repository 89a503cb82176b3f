package database

import (
	"time"
)

// NewEntry carries everything needed to record a first sighting.
type NewEntry struct {
	FeedID      string
	Fingerprint string
	GUID        string
	Link        string
	Title       string
	Summary     string
	RawContent  string
}

// TransitionFields are the columns a state transition may set alongside the
// state itself. Nil pointers leave the column untouched.
type TransitionFields struct {
	Score        *float64
	ScoreVersion *int64
	ScoredAt     *time.Time
	PublishedAt  *time.Time
	LastError    string
}

type EntryRepository interface {
	TryInsert(entry NewEntry) (bool, error)
	ClaimBatch(fromState string, limit int) ([]Entry, error)
	CommitTransition(fingerprint, fromState, toState string, fields TransitionFields) (bool, error)
	UpdateScoreIfNewer(link string, score float64, version int64) (bool, error)
	ReapStale(olderThan time.Time) (int, error)

	GetPublishable(threshold float64, limit int) ([]Entry, error)
	GetExportable(state string, minScore, maxScore float64, limit int) ([]Entry, error)
	GetByFingerprint(fingerprint string) (*Entry, error)
	CountByState(state string) (int, error)
	CountByFeed(feedID string) (int, error)
}

type FeedRepository interface {
	GetFeed(id string) (*Feed, error)
	GetAllFeeds() ([]Feed, error)
	GetFeedsDueForFetch(limit int) ([]Feed, error)
	GetFeedCount() (int, error)

	UpsertFeed(url, name string, enabled bool) (string, error)
	AddFeed(url, name string) (*Feed, error)
	DeleteFeed(id string) (bool, error)
	MarkFetched(id string, newEntries bool) error
}

type CheckpointRepository interface {
	GetHighWaterMark() (int64, error)
	SetHighWaterMark(mark int64) error
}
