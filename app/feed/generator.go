package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"html"
	"strings"
	"time"

	"feedranker/app/cfg"
	"feedranker/app/database"
)

// Generator renders the filtered export feed as RSS 2.0.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Run(entries []database.Entry, feedNames map[string]string) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", "FeedRanker", 4)

	var selfLink string
	if cfg.Get().BaseUrl != "" {
		selfLink = fmt.Sprintf("%s/export.rss", cfg.Get().BaseUrl)
	} else {
		selfLink = fmt.Sprintf("http://localhost:%s/export.rss", cfg.Get().Port)
	}
	g.writeElement(&buf, "link", selfLink, 4)
	g.writeElement(&buf, "description", "Articles that cleared the relevance bar", 4)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := time.Now().In(time.Local)
	if len(entries) > 0 {
		first := entries[0]
		if first.PublishedAt != nil {
			lastBuildDate = *first.PublishedAt
		} else if first.ScoredAt != nil {
			lastBuildDate = *first.ScoredAt
		}
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("FeedRanker/%s", cfg.Get().Version), 4)

	for _, entry := range entries {
		g.writeItem(&buf, entry, feedNames[entry.FeedID])
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, entry database.Entry, feedName string) {
	buf.WriteString("    <item>\n")

	title := cmp.Or(entry.Title, entry.GUID)
	if entry.Score != nil {
		title = fmt.Sprintf("[%.1f] %s", *entry.Score, title)
	}
	g.writeElement(buf, "title", title, 6)

	if entry.Link != "" {
		g.writeElement(buf, "link", entry.Link, 6)
	}

	description := entry.Summary
	if feedName != "" {
		description = strings.TrimSpace(fmt.Sprintf("%s · %s", feedName, entry.Summary))
	}
	if description != "" {
		g.writeElement(buf, "description", description, 6)
	}

	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"false\">%s</guid>\n",
		html.EscapeString(entry.Fingerprint)))

	if entry.PublishedAt != nil {
		g.writeElement(buf, "pubDate", entry.PublishedAt.Format(time.RFC1123Z), 6)
	} else if entry.ScoredAt != nil {
		g.writeElement(buf, "pubDate", entry.ScoredAt.Format(time.RFC1123Z), 6)
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, name, value string, indent int) {
	if value == "" {
		return
	}
	buf.WriteString(strings.Repeat(" ", indent))
	buf.WriteString(fmt.Sprintf("<%s>%s</%s>\n", name, html.EscapeString(value), name))
}
