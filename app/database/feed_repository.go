package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Polling frequency bounds. A feed that keeps yielding new entries is
// polled more often, an idle one less often, within these limits.
const (
	MinFetchIntervalSeconds     = 300
	MaxFetchIntervalSeconds     = 14400
	DefaultFetchIntervalSeconds = 3600
	FetchIntervalAdjustment     = 60
)

var ErrFeedExists = errors.New("feed already exists")

// FeedRepositoryImpl handles database operations for feeds
type FeedRepositoryImpl struct {
	db *DB
}

var _ FeedRepository = (*FeedRepositoryImpl)(nil)

func NewFeedRepository(db *DB) *FeedRepositoryImpl {
	return &FeedRepositoryImpl{db: db}
}

const feedColumns = `id, url, name, enabled, fetch_interval_seconds,
       last_checked_at, next_fetch_at, created_at, updated_at`

func scanFeed(row interface{ Scan(...any) error }) (Feed, error) {
	var f Feed
	err := row.Scan(
		&f.ID, &f.URL, &f.Name, &f.Enabled, &f.FetchIntervalSeconds,
		&f.LastCheckedAt, &f.NextFetchAt, &f.CreatedAt, &f.UpdatedAt,
	)
	return f, err
}

func (r *FeedRepositoryImpl) GetFeed(id string) (*Feed, error) {
	row := r.db.QueryRow(`SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)

	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	return &feed, nil
}

func (r *FeedRepositoryImpl) GetFeedByURL(url string) (*Feed, error) {
	row := r.db.QueryRow(`SELECT `+feedColumns+` FROM feeds WHERE url = ?`, url)

	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed by URL: %w", err)
	}

	return &feed, nil
}

func (r *FeedRepositoryImpl) GetAllFeeds() ([]Feed, error) {
	rows, err := r.db.Query(`SELECT ` + feedColumns + ` FROM feeds ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds: %w", err)
	}
	defer rows.Close()

	return collectFeeds(rows)
}

// GetFeedsDueForFetch returns enabled feeds whose next fetch time has
// passed (or was never set), longest-overdue first. Each feed carries its
// own timer, so one slow feed cannot delay the others.
func (r *FeedRepositoryImpl) GetFeedsDueForFetch(limit int) ([]Feed, error) {
	rows, err := r.db.Query(`
		SELECT `+feedColumns+`
		FROM feeds
		WHERE enabled = 1
		  AND (next_fetch_at IS NULL OR next_fetch_at <= ?)
		ORDER BY next_fetch_at ASC
		LIMIT ?
	`, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds due for fetch: %w", err)
	}
	defer rows.Close()

	return collectFeeds(rows)
}

func (r *FeedRepositoryImpl) GetFeedCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM feeds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

// UpsertFeed registers a feed by URL, updating name and enabled flag when it
// already exists. The conflict clause makes concurrent registrations of the
// same URL converge on one row. Used by the startup seed loader.
func (r *FeedRepositoryImpl) UpsertFeed(url, name string, enabled bool) (string, error) {
	now := time.Now().UTC()

	_, err := r.db.Exec(`
		INSERT INTO feeds (id, url, name, enabled, fetch_interval_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE
		SET name = excluded.name, enabled = excluded.enabled, updated_at = excluded.updated_at
	`, uuid.NewString(), url, name, enabled, DefaultFetchIntervalSeconds, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to upsert feed: %w", err)
	}

	feed, err := r.GetFeedByURL(url)
	if err != nil {
		return "", err
	}
	if feed == nil {
		return "", fmt.Errorf("feed %s missing after upsert", url)
	}

	return feed.ID, nil
}

// AddFeed creates a new enabled feed, failing with ErrFeedExists on a
// duplicate URL. The conflict clause resolves the duplicate at the
// statement level, so two concurrent registrations cannot race past an
// existence check. Used by the HTTP API.
func (r *FeedRepositoryImpl) AddFeed(url, name string) (*Feed, error) {
	now := time.Now().UTC()
	feed := Feed{
		ID:                   uuid.NewString(),
		URL:                  url,
		Name:                 name,
		Enabled:              true,
		FetchIntervalSeconds: DefaultFetchIntervalSeconds,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	result, err := r.db.Exec(`
		INSERT INTO feeds (id, url, name, enabled, fetch_interval_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO NOTHING
	`, feed.ID, feed.URL, feed.Name, feed.Enabled, feed.FetchIntervalSeconds, feed.CreatedAt, feed.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert feed: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read insert result: %w", err)
	}
	if inserted == 0 {
		return nil, ErrFeedExists
	}

	return &feed, nil
}

func (r *FeedRepositoryImpl) DeleteFeed(id string) (bool, error) {
	result, err := r.db.Exec(`DELETE FROM feeds WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete feed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}

	return affected > 0, nil
}

// MarkFetched records a completed fetch pass and adapts the polling
// frequency: finding new entries shortens the interval, an empty pass
// lengthens it, both within the configured bounds.
func (r *FeedRepositoryImpl) MarkFetched(id string, newEntries bool) error {
	feed, err := r.GetFeed(id)
	if err != nil {
		return err
	}
	if feed == nil {
		return fmt.Errorf("feed %s not found", id)
	}

	interval := feed.FetchIntervalSeconds
	if newEntries {
		interval = max(MinFetchIntervalSeconds, interval-FetchIntervalAdjustment)
	} else {
		interval = min(MaxFetchIntervalSeconds, interval+FetchIntervalAdjustment)
	}

	now := time.Now().UTC()
	nextFetch := now.Add(time.Duration(interval) * time.Second)

	_, err = r.db.Exec(`
		UPDATE feeds
		SET last_checked_at = ?, next_fetch_at = ?, fetch_interval_seconds = ?, updated_at = ?
		WHERE id = ?
	`, now, nextFetch, interval, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark feed fetched: %w", err)
	}

	return nil
}

func collectFeeds(rows *sql.Rows) ([]Feed, error) {
	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	return feeds, nil
}
