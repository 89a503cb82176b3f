package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"feedranker/app/cfg"
	"feedranker/app/database"
	"feedranker/app/feed"
)

func NewHandler(feedRepo database.FeedRepository, entryRepo database.EntryRepository,
	statsRepo *database.StatsRepository) *Handler {
	return &Handler{
		feedRepo:  feedRepo,
		entryRepo: entryRepo,
		statsRepo: statsRepo,
		generator: feed.NewGenerator(),
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(); err == nil {
		health["feeds"] = feedCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.statsRepo.GetStats()
	if err != nil {
		slog.Error("Database error", "operation", "get_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	topFeeds := make([]gin.H, 0, len(stats.TopFeedsByCount))
	for _, fc := range stats.TopFeedsByCount {
		topFeeds = append(topFeeds, gin.H{"name": fc.Name, "count": fc.Count})
	}

	topByScore := make([]gin.H, 0, len(stats.TopFeedsByAvgScore))
	for _, fs := range stats.TopFeedsByAvgScore {
		topByScore = append(topByScore, gin.H{"name": fs.Name, "avg_score": fs.AvgScore})
	}

	c.JSON(http.StatusOK, gin.H{
		"total_feeds":             stats.TotalFeeds,
		"total_entries":           stats.TotalEntries,
		"feeds_with_zero_entries": stats.FeedsWithZeroEntries,
		"state_counts":            stats.StateCounts,
		"entries_today":           stats.EntriesToday,
		"scored_today":            stats.ScoredToday,
		"top_feeds":               topFeeds,
		"top_feeds_by_avg_score":  topByScore,
	})
}

func (h *Handler) ListFeeds(c *gin.Context) {
	feeds, err := h.feedRepo.GetAllFeeds()
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	result := make([]FeedResponse, 0, len(feeds))
	for _, f := range feeds {
		entryCount, err := h.entryRepo.CountByFeed(f.ID)
		if err != nil {
			slog.Warn("Failed to count entries for feed", "feed", f.Name, "error", err)
		}
		result = append(result, feedToResponse(f, entryCount))
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) AddFeed(c *gin.Context) {
	var req FeedCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	name := req.Name
	if name == "" {
		name = req.URL
	}

	f, err := h.feedRepo.AddFeed(req.URL, name)
	if errors.Is(err, database.ErrFeedExists) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Feed already exists"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "add_feed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, feedToResponse(*f, 0))
}

func (h *Handler) DeleteFeed(c *gin.Context) {
	id := c.Param("id")

	deleted, err := h.feedRepo.DeleteFeed(id)
	if err != nil {
		slog.Error("Database error", "operation", "delete_feed", "feed_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
}

// GetExport renders entries inside the requested score band as RSS 2.0.
// Score and state are always consistent at rest, so the filter needs no
// extra checks here.
func (h *Handler) GetExport(c *gin.Context) {
	minScore := parseFloatParam(c, "min_score", cfg.Get().ScoreThreshold)
	maxScore := parseFloatParam(c, "max_score", 0)

	entries, err := h.entryRepo.GetExportable(cfg.Get().ExportState, minScore, maxScore, 100)
	if err != nil {
		slog.Error("Database error", "operation", "get_export", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	feedNames := make(map[string]string)
	if feeds, err := h.feedRepo.GetAllFeeds(); err == nil {
		for _, f := range feeds {
			feedNames[f.ID] = f.Name
		}
	}

	rss, err := h.generator.Run(entries, feedNames)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Export-Items", strconv.Itoa(len(entries)))
	c.String(http.StatusOK, rss)
}

func feedToResponse(f database.Feed, entryCount int) FeedResponse {
	return FeedResponse{
		ID:                   f.ID,
		URL:                  f.URL,
		Name:                 f.Name,
		Enabled:              f.Enabled,
		FetchIntervalSeconds: f.FetchIntervalSeconds,
		LastCheckedAt:        f.LastCheckedAt,
		NextFetchAt:          f.NextFetchAt,
		CreatedAt:            f.CreatedAt,
		EntryCount:           entryCount,
	}
}

func parseFloatParam(c *gin.Context, name string, fallback float64) float64 {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}
