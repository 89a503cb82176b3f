package cfg

type Cfg struct {
	// Database configuration
	DBPath string

	// Application configuration
	FeedsFile         string
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Scoring service configuration
	ScoringURL         string
	ScoringTimeout     int
	ScoringMaxAttempts int
	ScoringBatchSize   int

	// Publishing configuration
	ScoreThreshold    float64
	PublishBatchSize  int
	DiscordWebhookURL string
	DiscordBackoff    int
	ExportState       string

	// Correction sync and reaper configuration
	SyncInterval int
	ReapAge      int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
