package feed

import (
	"bytes"
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses one fetched feed document into raw entries. Entries without
// any usable identifier are skipped; a bad entry never aborts the rest of
// the document.
func (p *Parser) Run(feedName string, data []byte) ([]RawEntry, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	entries := make([]RawEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}

		guid := cmp.Or(item.GUID, item.Link)
		if guid == "" {
			slog.Warn("Skipping entry without guid or link", "feed", feedName, "title", item.Title)
			continue
		}

		raw, err := serializeItem(item)
		if err != nil {
			slog.Warn("Skipping entry that failed to serialize", "feed", feedName, "guid", guid, "error", err)
			continue
		}

		entries = append(entries, RawEntry{
			GUID:        guid,
			Link:        item.Link,
			Title:       item.Title,
			Summary:     item.Description,
			Fingerprint: Fingerprint(feedName, guid),
			RawContent:  raw,
		})
	}

	return entries, nil
}

// Fingerprint derives the dedup key for an entry. Identity is scoped to the
// feed, so the same article syndicated by two feeds stays two entries.
func Fingerprint(feedName, guid string) string {
	hash := sha256.Sum256([]byte(feedName + "|" + guid))
	return hex.EncodeToString(hash[:])
}

type rawPayload struct {
	GUID        string     `json:"guid"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Summary     string     `json:"summary,omitempty"`
	Content     string     `json:"content,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	Authors     []string   `json:"authors,omitempty"`
	Categories  []string   `json:"categories,omitempty"`
}

// serializeItem retains the parsed record verbatim so downstream formatting
// never has to re-fetch the source feed.
func serializeItem(item *gofeed.Item) (string, error) {
	payload := rawPayload{
		GUID:        cmp.Or(item.GUID, item.Link),
		Title:       item.Title,
		Link:        item.Link,
		Summary:     item.Description,
		Content:     item.Content,
		PublishedAt: item.PublishedParsed,
		UpdatedAt:   item.UpdatedParsed,
		Categories:  item.Categories,
	}

	for _, author := range item.Authors {
		if author == nil {
			continue
		}
		if name := cmp.Or(author.Name, author.Email); name != "" {
			payload.Authors = append(payload.Authors, name)
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize entry: %w", err)
	}

	return string(data), nil
}
