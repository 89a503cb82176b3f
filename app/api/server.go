package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"feedranker/app/cfg"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	setupRoutes(r, handler)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler) {
	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)
	r.GET("/export.rss", handler.GetExport)
	r.GET("/feeds", handler.ListFeeds)

	mutating := r.Group("/")
	if key := cfg.Get().APIAccessKey; key != "" {
		mutating.Use(authMiddleware(key))
		slog.Info("Mutating API endpoints require authentication")
	} else {
		slog.Warn("API_ACCESS_KEY not set, mutating endpoints are open")
	}
	mutating.POST("/feeds", handler.AddFeed)
	mutating.DELETE("/feeds/:id", handler.DeleteFeed)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "FeedRanker",
			"version":     cfg.Get().Version,
			"description": "RSS ingestion pipeline with relevance scoring and selective republishing",
			"endpoints": map[string]string{
				"health": "/health",
				"stats":  "/stats",
				"export": "/export.rss?min_score=<n>&max_score=<n>",
				"feeds":  "/feeds",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// authMiddleware guards mutating endpoints with the configured access key
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-API-Key") != apiAccessKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing API key"})
			return
		}
		c.Next()
	}
}
