package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// EntryRepositoryImpl handles database operations for entries. Every
// cross-worker coordination primitive here is a single guarded statement or
// transaction; callers never read-then-write from the application layer.
type EntryRepositoryImpl struct {
	db *DB
}

var _ EntryRepository = (*EntryRepositoryImpl)(nil)

func NewEntryRepository(db *DB) *EntryRepositoryImpl {
	return &EntryRepositoryImpl{db: db}
}

const entryColumns = `id, feed_id, fingerprint, guid, link, title, summary, raw_content,
       state, score, score_version, last_error, discovered_at, claimed_at, scored_at, published_at`

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.FeedID, &e.Fingerprint, &e.GUID, &e.Link, &e.Title, &e.Summary, &e.RawContent,
		&e.State, &e.Score, &e.ScoreVersion, &e.LastError, &e.DiscoveredAt, &e.ClaimedAt, &e.ScoredAt, &e.PublishedAt,
	)
	return e, err
}

// TryInsert records a first sighting in the discovered state. Re-discovery
// of a known fingerprint is a no-op, so discovery can call this
// unconditionally for every entry a feed yields.
func (r *EntryRepositoryImpl) TryInsert(entry NewEntry) (bool, error) {
	result, err := r.db.Exec(`
		INSERT INTO entries (id, feed_id, fingerprint, guid, link, title, summary, raw_content, state, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO NOTHING
	`, uuid.NewString(), entry.FeedID, entry.Fingerprint, entry.GUID, entry.Link,
		entry.Title, entry.Summary, entry.RawContent, StateDiscovered, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert entry: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return inserted > 0, nil
}

// ClaimBatch atomically selects up to limit entries in fromState,
// oldest-discovered-first, and flips them to the in-flight scoring state.
// Two concurrent callers never receive the same entry: the select and the
// flip run in one transaction.
func (r *EntryRepositoryImpl) ClaimBatch(fromState string, limit int) ([]Entry, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT `+entryColumns+`
		FROM entries
		WHERE state = ?
		ORDER BY discovered_at ASC
		LIMIT ?
	`, fromState, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select claimable entries: %w", err)
	}

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			// One unreadable row must not stall its siblings. It stays in
			// fromState and is excluded from the flip below.
			slog.Error("Skipping unreadable entry row", "id", entry.ID, "fingerprint", entry.Fingerprint, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}
	rows.Close()

	if len(entries) == 0 {
		return nil, tx.Commit()
	}

	now := time.Now().UTC()
	for i := range entries {
		result, err := tx.Exec(`
			UPDATE entries SET state = ?, claimed_at = ? WHERE id = ? AND state = ?
		`, StateScoring, now, entries[i].ID, fromState)
		if err != nil {
			return nil, fmt.Errorf("failed to claim entry: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read claim result: %w", err)
		}
		if affected == 0 {
			return nil, fmt.Errorf("entry %s changed state during claim", entries[i].ID)
		}
		entries[i].State = StateScoring
		entries[i].ClaimedAt = &now
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}

	return entries, nil
}

// CommitTransition moves an entry from fromState to toState, setting any
// accompanying fields. Returns false without error when the entry is no
// longer in fromState; concurrent reassignment is expected, not fatal.
func (r *EntryRepositoryImpl) CommitTransition(fingerprint, fromState, toState string, fields TransitionFields) (bool, error) {
	update := sq.Update("entries").
		Set("state", toState).
		Set("last_error", fields.LastError).
		Where(sq.Eq{"fingerprint": fingerprint, "state": fromState})

	if fields.Score != nil {
		update = update.Set("score", *fields.Score)
	}
	if fields.ScoreVersion != nil {
		update = update.Set("score_version", *fields.ScoreVersion)
	}
	if fields.ScoredAt != nil {
		update = update.Set("scored_at", *fields.ScoredAt)
	}
	if fields.PublishedAt != nil {
		update = update.Set("published_at", *fields.PublishedAt)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build transition query: %w", err)
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to commit transition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read transition result: %w", err)
	}

	return affected > 0, nil
}

// UpdateScoreIfNewer applies a correction to every entry resolved by link,
// overwriting only on a strictly newer version and never touching lifecycle
// state. Only entries that already carry a score are eligible, which keeps
// score presence and state consistent.
func (r *EntryRepositoryImpl) UpdateScoreIfNewer(link string, score float64, version int64) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE entries
		SET score = ?, score_version = ?, scored_at = ?
		WHERE link = ?
		  AND state IN (?, ?)
		  AND score_version < ?
	`, score, version, time.Now().UTC(), link, StateScored, StatePublished, version)
	if err != nil {
		return false, fmt.Errorf("failed to apply correction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read correction result: %w", err)
	}

	return affected > 0, nil
}

// ReapStale returns entries stuck in the in-flight scoring state to
// discovered so they can be claimed again after a worker crash.
func (r *EntryRepositoryImpl) ReapStale(olderThan time.Time) (int, error) {
	result, err := r.db.Exec(`
		UPDATE entries
		SET state = ?, claimed_at = NULL
		WHERE state = ? AND claimed_at < ?
	`, StateDiscovered, StateScoring, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read reap result: %w", err)
	}

	return int(affected), nil
}

// GetPublishable returns scored entries at or above the threshold, oldest
// first. Entries stay scored until the notification succeeds, so a failed
// send is retried on the next pass.
func (r *EntryRepositoryImpl) GetPublishable(threshold float64, limit int) ([]Entry, error) {
	rows, err := r.db.Query(`
		SELECT `+entryColumns+`
		FROM entries
		WHERE state = ? AND score >= ?
		ORDER BY discovered_at ASC
		LIMIT ?
	`, StateScored, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get publishable entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// GetExportable returns entries in the given state with score in [min, max)
// for the RSS export. A max at or below min disables the upper bound.
func (r *EntryRepositoryImpl) GetExportable(state string, minScore, maxScore float64, limit int) ([]Entry, error) {
	query := sq.Select(entryColumns).
		From("entries").
		Where(sq.Eq{"state": state}).
		Where(sq.GtOrEq{"score": minScore}).
		OrderBy("COALESCE(published_at, scored_at) DESC").
		Limit(uint64(limit))

	if maxScore > minScore {
		query = query.Where(sq.Lt{"score": maxScore})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build export query: %w", err)
	}

	rows, err := r.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get exportable entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *EntryRepositoryImpl) GetByFingerprint(fingerprint string) (*Entry, error) {
	row := r.db.QueryRow(`
		SELECT `+entryColumns+`
		FROM entries
		WHERE fingerprint = ?
	`, fingerprint)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry by fingerprint: %w", err)
	}

	return &entry, nil
}

func (r *EntryRepositoryImpl) CountByState(state string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM entries WHERE state = ?", state).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries by state: %w", err)
	}
	return count, nil
}

func (r *EntryRepositoryImpl) CountByFeed(feedID string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM entries WHERE feed_id = ?", feedID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries by feed: %w", err)
	}
	return count, nil
}

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			slog.Error("Skipping unreadable entry row", "id", entry.ID, "fingerprint", entry.Fingerprint, "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}

	return entries, nil
}
