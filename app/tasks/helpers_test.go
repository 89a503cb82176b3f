package tasks

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"feedranker/app/database"
	"feedranker/app/scoring"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func newTestFeed(t *testing.T, db *database.DB, url string) database.Feed {
	t.Helper()

	feedRepo := database.NewFeedRepository(db)
	id, err := feedRepo.UpsertFeed(url, "Test Feed", true)
	if err != nil {
		t.Fatalf("Failed to create test feed: %v", err)
	}

	f, err := feedRepo.GetFeed(id)
	if err != nil {
		t.Fatalf("Failed to load test feed: %v", err)
	}
	return *f
}

func insertTestEntry(t *testing.T, repo database.EntryRepository, feedID, fingerprint, link string) {
	t.Helper()

	inserted, err := repo.TryInsert(database.NewEntry{
		FeedID:      feedID,
		Fingerprint: fingerprint,
		GUID:        "guid-" + fingerprint,
		Link:        link,
		Title:       "Entry " + fingerprint,
		Summary:     "Summary of " + fingerprint,
		RawContent:  "{}",
	})
	if err != nil {
		t.Fatalf("TryInsert failed: %v", err)
	}
	if !inserted {
		t.Fatalf("Expected entry %s to be inserted", fingerprint)
	}
}

type fakeScorer struct {
	scoreFn func(articleURL string) (float64, error)

	mu    sync.Mutex
	calls []string
}

func (s *fakeScorer) Score(_ context.Context, articleURL string) (float64, error) {
	s.mu.Lock()
	s.calls = append(s.calls, articleURL)
	s.mu.Unlock()
	return s.scoreFn(articleURL)
}

func (s *fakeScorer) callList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type sentMessage struct {
	title    string
	link     string
	feedName string
	score    float64
}

type fakeNotifier struct {
	sendErr func() error

	mu   sync.Mutex
	sent []sentMessage
}

func (n *fakeNotifier) Send(_ context.Context, title, link, summary, feedName string, score float64) error {
	if n.sendErr != nil {
		if err := n.sendErr(); err != nil {
			return err
		}
	}
	n.mu.Lock()
	n.sent = append(n.sent, sentMessage{title: title, link: link, feedName: feedName, score: score})
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) sentList() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

type fakeCorrectionSource struct {
	items     []scoring.Correction
	lastSince int64
}

func (s *fakeCorrectionSource) Corrections(_ context.Context, since int64) ([]scoring.Correction, error) {
	s.lastSince = since
	return s.items, nil
}

func entryState(t *testing.T, repo database.EntryRepository, fingerprint string) *database.Entry {
	t.Helper()

	entry, err := repo.GetByFingerprint(fingerprint)
	if err != nil {
		t.Fatalf("GetByFingerprint failed: %v", err)
	}
	if entry == nil {
		t.Fatalf("Entry %s not found", fingerprint)
	}
	return entry
}

func scoreTestEntry(t *testing.T, repo database.EntryRepository, fingerprint string, score float64, version int64) {
	t.Helper()

	committed, err := repo.CommitTransition(fingerprint, database.StateDiscovered, database.StateScoring, database.TransitionFields{})
	if err != nil || !committed {
		t.Fatalf("Failed to claim %s: committed=%v err=%v", fingerprint, committed, err)
	}

	now := time.Now().UTC()
	committed, err = repo.CommitTransition(fingerprint, database.StateScoring, database.StateScored, database.TransitionFields{
		Score:        &score,
		ScoreVersion: &version,
		ScoredAt:     &now,
	})
	if err != nil || !committed {
		t.Fatalf("Failed to score %s: committed=%v err=%v", fingerprint, committed, err)
	}
}
