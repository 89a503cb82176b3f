package database

import (
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

type FeedCount struct {
	Name  string
	Count int
}

type FeedScore struct {
	Name     string
	AvgScore float64
}

type Stats struct {
	TotalFeeds           int
	TotalEntries         int
	FeedsWithZeroEntries int
	StateCounts          map[string]int
	EntriesToday         int
	ScoredToday          int
	TopFeedsByCount      []FeedCount
	TopFeedsByAvgScore   []FeedScore
}

// StatsRepository aggregates entry and feed counts for the stats endpoint.
type StatsRepository struct {
	db *DB
}

func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) GetStats() (*Stats, error) {
	stats := &Stats{StateCounts: make(map[string]int)}

	if err := r.db.QueryRow("SELECT COUNT(*) FROM feeds").Scan(&stats.TotalFeeds); err != nil {
		return nil, fmt.Errorf("failed to count feeds: %w", err)
	}
	if err := r.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&stats.TotalEntries); err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}

	rows, err := r.db.Query("SELECT state, COUNT(*) FROM entries GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("failed to count entries by state: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan state count: %w", err)
		}
		stats.StateCounts[state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating state counts: %w", err)
	}

	todayStart := time.Now().UTC().Truncate(24 * time.Hour)

	if err := r.countSince("discovered_at", todayStart, &stats.EntriesToday); err != nil {
		return nil, err
	}
	if err := r.countSince("scored_at", todayStart, &stats.ScoredToday); err != nil {
		return nil, err
	}

	if err := r.db.QueryRow(`
		SELECT COUNT(*) FROM feeds
		WHERE id NOT IN (SELECT DISTINCT feed_id FROM entries)
	`).Scan(&stats.FeedsWithZeroEntries); err != nil {
		return nil, fmt.Errorf("failed to count empty feeds: %w", err)
	}

	topByCount, err := r.topFeedsByCount(3)
	if err != nil {
		return nil, err
	}
	stats.TopFeedsByCount = topByCount

	topByScore, err := r.topFeedsByAvgScore(10)
	if err != nil {
		return nil, err
	}
	stats.TopFeedsByAvgScore = topByScore

	return stats, nil
}

func (r *StatsRepository) countSince(column string, since time.Time, dest *int) error {
	query, args, err := sq.Select("COUNT(*)").
		From("entries").
		Where(sq.GtOrEq{column: since}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build count query: %w", err)
	}

	if err := r.db.QueryRow(query, args...).Scan(dest); err != nil {
		return fmt.Errorf("failed to count entries since %s: %w", since, err)
	}
	return nil
}

func (r *StatsRepository) topFeedsByCount(limit int) ([]FeedCount, error) {
	query, args, err := sq.Select("f.name", "COUNT(e.id) AS count").
		From("feeds f").
		Join("entries e ON e.feed_id = f.id").
		GroupBy("f.id").
		OrderBy("count DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build top feeds query: %w", err)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get top feeds: %w", err)
	}
	defer rows.Close()

	var result []FeedCount
	for rows.Next() {
		var fc FeedCount
		if err := rows.Scan(&fc.Name, &fc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top feed row: %w", err)
		}
		result = append(result, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top feed rows: %w", err)
	}

	return result, nil
}

func (r *StatsRepository) topFeedsByAvgScore(limit int) ([]FeedScore, error) {
	query, args, err := sq.Select("f.name", "AVG(e.score) AS avg_score").
		From("feeds f").
		Join("entries e ON e.feed_id = f.id").
		Where(sq.NotEq{"e.score": nil}).
		GroupBy("f.id").
		OrderBy("avg_score DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build top score query: %w", err)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get top feeds by score: %w", err)
	}
	defer rows.Close()

	var result []FeedScore
	for rows.Next() {
		var fs FeedScore
		if err := rows.Scan(&fs.Name, &fs.AvgScore); err != nil {
			return nil, fmt.Errorf("failed to scan top score row: %w", err)
		}
		result = append(result, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top score rows: %w", err)
	}

	return result, nil
}
