package feed

import (
	"strings"
	"testing"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <link>https://example.com</link>
    <item>
      <title>First article</title>
      <link>https://example.com/first</link>
      <guid isPermaLink="false">tag:example.com,2026:first</guid>
      <description>Summary of the first article</description>
      <pubDate>Mon, 31 Aug 2026 10:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Link only</title>
      <link>https://example.com/second</link>
      <description>No guid on this one</description>
    </item>
    <item>
      <title>Unidentifiable</title>
      <description>Neither guid nor link</description>
    </item>
  </channel>
</rss>`

func TestParserRun(t *testing.T) {
	parser := NewParser()

	entries, err := parser.Run("Example Feed", []byte(sampleRSS))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	first := entries[0]
	if first.GUID != "tag:example.com,2026:first" {
		t.Errorf("Expected guid from feed, got %q", first.GUID)
	}
	if first.Link != "https://example.com/first" {
		t.Errorf("Unexpected link %q", first.Link)
	}
	if first.Summary != "Summary of the first article" {
		t.Errorf("Unexpected summary %q", first.Summary)
	}
	if first.Fingerprint != Fingerprint("Example Feed", first.GUID) {
		t.Error("Fingerprint should derive from feed name and guid")
	}
	if !strings.Contains(first.RawContent, `"guid":"tag:example.com,2026:first"`) {
		t.Errorf("Raw content should retain the parsed record, got %s", first.RawContent)
	}
	if !strings.Contains(first.RawContent, `"published_at"`) {
		t.Error("Raw content should retain the source publication time")
	}

	second := entries[1]
	if second.GUID != "https://example.com/second" {
		t.Errorf("Expected link fallback as guid, got %q", second.GUID)
	}
}

func TestParserRun_InvalidDocument(t *testing.T) {
	parser := NewParser()

	if _, err := parser.Run("Broken", []byte("not a feed")); err == nil {
		t.Error("Expected error for unparseable document")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("Feed A", "guid-1")
	if a != Fingerprint("Feed A", "guid-1") {
		t.Error("Fingerprint should be deterministic")
	}
	if len(a) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(a))
	}
	if a == Fingerprint("Feed B", "guid-1") {
		t.Error("Same guid in different feeds should produce different fingerprints")
	}
	if a == Fingerprint("Feed A", "guid-2") {
		t.Error("Different guids should produce different fingerprints")
	}
}
