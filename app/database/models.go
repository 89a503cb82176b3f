package database

import (
	"time"
)

// Entry lifecycle states. An entry only ever moves forward:
// discovered -> scoring -> scored | score_failed, and scored -> published.
const (
	StateDiscovered  = "discovered"
	StateScoring     = "scoring"
	StateScored      = "scored"
	StateScoreFailed = "score_failed"
	StatePublished   = "published"
)

type Feed struct {
	ID                   string // Database UUID
	URL                  string
	Name                 string
	Enabled              bool
	FetchIntervalSeconds int
	LastCheckedAt        *time.Time
	NextFetchAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Entry struct {
	ID           string // Database UUID
	FeedID       string
	Fingerprint  string // Dedup key: sha256 over feed name + guid-or-link
	GUID         string
	Link         string
	Title        string
	Summary      string
	RawContent   string // Original parsed entry, serialized as JSON
	State        string
	Score        *float64
	ScoreVersion *int64
	LastError    string
	DiscoveredAt time.Time
	ClaimedAt    *time.Time
	ScoredAt     *time.Time
	PublishedAt  *time.Time
}
