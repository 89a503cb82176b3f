package api

import (
	"time"

	"feedranker/app/database"
	"feedranker/app/feed"
)

type Handler struct {
	feedRepo  database.FeedRepository
	entryRepo database.EntryRepository
	statsRepo *database.StatsRepository
	generator *feed.Generator
}

type FeedCreateRequest struct {
	URL  string `json:"url" binding:"required"`
	Name string `json:"name"`
}

type FeedResponse struct {
	ID                   string     `json:"id"`
	URL                  string     `json:"url"`
	Name                 string     `json:"name"`
	Enabled              bool       `json:"enabled"`
	FetchIntervalSeconds int        `json:"fetch_interval_seconds"`
	LastCheckedAt        *time.Time `json:"last_checked_at"`
	NextFetchAt          *time.Time `json:"next_fetch_at"`
	CreatedAt            time.Time  `json:"created_at"`
	EntryCount           int        `json:"entry_count"`
}
