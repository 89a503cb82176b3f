package feed

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "feeds.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write seed file: %v", err)
	}
	return path
}

func TestLoadSeedFile(t *testing.T) {
	path := writeSeedFile(t, `feeds:
  - url: https://example.com/rss
    name: Example
  - url: https://other.example.com/atom.xml
    enabled: false
`)

	feeds, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("LoadSeedFile failed: %v", err)
	}

	if len(feeds) != 2 {
		t.Fatalf("Expected 2 feeds, got %d", len(feeds))
	}

	if feeds[0].Name != "Example" {
		t.Errorf("Unexpected name %q", feeds[0].Name)
	}
	if feeds[0].Enabled != nil {
		t.Error("Feed without enabled flag should leave it unset")
	}

	if feeds[1].Name != "https://other.example.com/atom.xml" {
		t.Errorf("Missing name should default to url, got %q", feeds[1].Name)
	}
	if feeds[1].Enabled == nil || *feeds[1].Enabled {
		t.Error("Explicit enabled: false should be preserved")
	}
}

func TestLoadSeedFile_MissingURL(t *testing.T) {
	path := writeSeedFile(t, `feeds:
  - name: Nameless
`)

	if _, err := LoadSeedFile(path); err == nil {
		t.Error("Expected error for feed without url")
	}
}

func TestLoadSeedFile_MissingFile(t *testing.T) {
	if _, err := LoadSeedFile(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadSeedFile_InvalidYAML(t *testing.T) {
	path := writeSeedFile(t, "feeds: [")

	if _, err := LoadSeedFile(path); err == nil {
		t.Error("Expected error for invalid yaml")
	}
}
