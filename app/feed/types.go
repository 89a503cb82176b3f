package feed

// RawEntry is one parsed article as the source feed delivered it, plus the
// identity derived for deduplication. Source timestamps live inside
// RawContent, which keeps the full parsed record.
type RawEntry struct {
	GUID        string
	Link        string
	Title       string
	Summary     string
	Fingerprint string
	RawContent  string // Full parsed record serialized as JSON
}

// SeedFeed is one feed definition from the startup seed file.
type SeedFeed struct {
	URL     string `yaml:"url"`
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled"`
}

type SeedFile struct {
	Feeds []SeedFeed `yaml:"feeds"`
}
