package feed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSeedFile reads the optional startup feeds file. A feed without an
// explicit enabled flag defaults to enabled, a missing name defaults to the
// URL.
func LoadSeedFile(path string) ([]SeedFeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse feeds file: %w", err)
	}

	for i := range seed.Feeds {
		if seed.Feeds[i].URL == "" {
			return nil, fmt.Errorf("feed %d in %s has no url", i, path)
		}
		if seed.Feeds[i].Name == "" {
			seed.Feeds[i].Name = seed.Feeds[i].URL
		}
	}

	return seed.Feeds, nil
}
