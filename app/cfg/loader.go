package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./local/feedranker.db" description:"Path to the SQLite database file"`

	// Application configuration
	FeedsFile         string `long:"feeds-file" env:"FEEDS_FILE" description:"YAML file with feeds to register at startup (optional)"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://news.example.com)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for task processing"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"30" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for mutating endpoints (optional)"`

	// Scoring service configuration
	ScoringURL         string `long:"scoring-url" env:"SCORING_URL" default:"http://localhost:19091" description:"Base URL of the scoring service"`
	ScoringTimeout     int    `long:"scoring-timeout" env:"SCORING_TIMEOUT" default:"120" description:"Scoring request timeout in seconds"`
	ScoringMaxAttempts int    `long:"scoring-max-attempts" env:"SCORING_MAX_ATTEMPTS" default:"4" description:"Maximum attempts per scoring request"`
	ScoringBatchSize   int    `long:"scoring-batch-size" env:"SCORING_BATCH_SIZE" default:"10" description:"Entries claimed per scoring pass"`

	// Publishing configuration
	ScoreThreshold    float64 `long:"score-threshold" env:"SCORE_THRESHOLD" default:"8.0" description:"Minimum score for publishing"`
	PublishBatchSize  int     `long:"publish-batch-size" env:"PUBLISH_BATCH_SIZE" default:"5" description:"Entries published per pass"`
	DiscordWebhookURL string  `long:"discord-webhook-url" env:"DISCORD_WEBHOOK_URL" description:"Discord webhook URL for notifications"`
	DiscordBackoff    int     `long:"discord-backoff" env:"DISCORD_BACKOFF" default:"300" description:"Backoff in seconds after a Discord rate limit"`
	ExportState       string  `long:"export-state" env:"EXPORT_STATE" default:"published" description:"Entry state exposed by the RSS export (published or scored)"`

	// Correction sync and reaper configuration
	SyncInterval int `long:"sync-interval" env:"SYNC_INTERVAL" default:"900" description:"Correction sync interval in seconds"`
	ReapAge      int `long:"reap-age" env:"REAP_AGE" default:"600" description:"Age in seconds after which in-flight entries are reclaimed"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"FeedRanker/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:             raw.DBPath,
		FeedsFile:          raw.FeedsFile,
		Port:               raw.Port,
		BaseUrl:            raw.BaseUrl,
		WorkerCount:        raw.WorkerCount,
		SchedulerInterval:  raw.SchedulerInterval,
		APIAccessKey:       raw.APIAccessKey,
		ScoringURL:         raw.ScoringURL,
		ScoringTimeout:     raw.ScoringTimeout,
		ScoringMaxAttempts: raw.ScoringMaxAttempts,
		ScoringBatchSize:   raw.ScoringBatchSize,
		ScoreThreshold:     raw.ScoreThreshold,
		PublishBatchSize:   raw.PublishBatchSize,
		DiscordWebhookURL:  raw.DiscordWebhookURL,
		DiscordBackoff:     raw.DiscordBackoff,
		ExportState:        raw.ExportState,
		SyncInterval:       raw.SyncInterval,
		ReapAge:            raw.ReapAge,
		UserAgent:          raw.UserAgent,
		Timezone:           raw.Timezone,
		Debug:              raw.Debug,
		Version:            GetVersion(),
	}

	if cfg.ExportState != "published" && cfg.ExportState != "scored" {
		return nil, fmt.Errorf("invalid export state '%s': must be 'published' or 'scored'", cfg.ExportState)
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Set replaces the global configuration. Used by tests.
func Set(cfg *Cfg) {
	globalCfg = cfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
