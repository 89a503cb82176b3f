package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedranker/app/api"
	"feedranker/app/cfg"
	"feedranker/app/database"
	"feedranker/app/feed"
	"feedranker/app/notify"
	"feedranker/app/scoring"
	"feedranker/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	if appCfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	slog.Info("Starting FeedRanker server", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "migration_version", version, "dirty", dirty)

	feedRepo := database.NewFeedRepository(db)
	entryRepo := database.NewEntryRepository(db)
	checkpointRepo := database.NewCheckpointRepository(db)
	statsRepo := database.NewStatsRepository(db)

	if appCfg.FeedsFile != "" {
		registerSeedFeeds(appCfg.FeedsFile, feedRepo)
	}

	feedParser := feed.NewParser()
	httpClient := &http.Client{Timeout: 60 * time.Second}
	scoringClient := scoring.NewClient(appCfg.ScoringURL, appCfg.UserAgent,
		time.Duration(appCfg.ScoringTimeout)*time.Second, appCfg.ScoringMaxAttempts)

	var notifier notify.Notifier
	if appCfg.DiscordWebhookURL != "" {
		notifier = notify.NewDiscordNotifier(appCfg.DiscordWebhookURL,
			time.Duration(appCfg.DiscordBackoff)*time.Second)
	} else {
		slog.Warn("DISCORD_WEBHOOK_URL not set, publishing is disabled")
	}

	scheduler := tasks.NewScheduler(feedRepo, entryRepo, checkpointRepo,
		httpClient, feedParser, scoringClient, scoringClient, notifier)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Background scheduler started", "workers", appCfg.WorkerCount, "interval_seconds", appCfg.SchedulerInterval)

	handler := api.NewHandler(feedRepo, entryRepo, statsRepo)
	server := api.NewServer(handler)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer: workers finish their current batch
	// and do not start a new one.
	slog.Info("Shutdown complete")
}

// registerSeedFeeds upserts the feeds file into the database at startup.
// A broken seed file is a warning, not a fatal error; feeds can still be
// managed over the API.
func registerSeedFeeds(path string, feedRepo database.FeedRepository) {
	seeds, err := feed.LoadSeedFile(path)
	if err != nil {
		slog.Warn("Failed to load feeds file", "path", path, "error", err)
		return
	}

	registered := 0
	for _, seed := range seeds {
		enabled := seed.Enabled == nil || *seed.Enabled
		if _, err := feedRepo.UpsertFeed(seed.URL, seed.Name, enabled); err != nil {
			slog.Warn("Failed to register feed", "url", seed.URL, "error", err)
			continue
		}
		registered++
	}

	slog.Info("Registered seed feeds", "registered", registered, "total", len(seeds))
}
