package activitypub

import (
	"bytes"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/sitepub/sitepub/content"
	"github.com/sitepub/sitepub/internal/config"
)

// OutboxPageSize is the default number of activities per outbox page.
const OutboxPageSize = 20

// A Materializer turns content entries into the Article objects and
// Create activities the outbox serves. Activity identifiers are derived
// from the article URL, so materializing the same entry twice always
// yields the same activity.
type Materializer struct {
	site  *config.Site
	store content.Store
}

func NewMaterializer(site *config.Site, store content.Store) *Materializer {
	return &Materializer{site: site, store: store}
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

func renderMarkdown(src string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return ""
	}
	return buf.String()
}

// ArticleURL returns the canonical public URL of an entry. Entries in a
// collection with an alternate host lose the collection prefix and move
// to that host.
func (m *Materializer) ArticleURL(entry content.Entry) string {
	col, ok := m.site.CollectionFor(entry.Path)
	if ok && col.Host != "" {
		relative := strings.TrimPrefix(entry.Path, col.Prefix)
		if relative == "" {
			relative = "/"
		}
		return "https://" + col.Host + relative
	}
	return m.site.Origin() + entry.Path
}

// legacyArticleURLs returns URLs the entry was previously published
// under. Older releases did not remap collection hosts, and remapped
// without stripping the collection prefix.
func (m *Materializer) legacyArticleURLs(entry content.Entry, canonical string) []string {
	var legacy []string
	if u := m.site.Origin() + entry.Path; u != canonical {
		legacy = append(legacy, u)
	}
	if col, ok := m.site.CollectionFor(entry.Path); ok && col.Host != "" {
		if u := "https://" + col.Host + entry.Path; u != canonical {
			legacy = append(legacy, u)
		}
	}
	return legacy
}

// ActivityID returns the identifier of the Create activity for an
// article URL.
func ActivityID(articleURL string) string {
	return trimSlash(articleURL) + "/activity"
}

func trimSlash(u string) string {
	if len(u) > 1 {
		return strings.TrimRight(u, "/")
	}
	return u
}

// LegacyActivityIDs returns every identifier the entry's Create activity
// may have been recorded under by older releases.
func (m *Materializer) LegacyActivityIDs(entry content.Entry) []string {
	canonical := m.ArticleURL(entry)
	urls := append([]string{canonical}, m.legacyArticleURLs(entry, canonical)...)
	seen := make(map[string]bool)
	var ids []string
	for _, u := range urls {
		base := trimSlash(u)
		for _, suffix := range []string{"#create", "#activity", "/activity"} {
			if id := base + suffix; !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Article materializes an entry as an Article object.
func (m *Materializer) Article(entry content.Entry) map[string]any {
	articleURL := m.ArticleURL(entry)
	contentHTML := renderMarkdown(entry.Body)

	title := entry.Title
	if title == "" {
		title = articleURL
	}
	article := map[string]any{
		"id":           articleURL,
		"type":         "Article",
		"name":         title,
		"attributedTo": m.site.ActorURI(),
		"url":          articleURL,
		"published":    entry.CreatedAt.UTC().Format(time.RFC3339),
		"to":           []string{PublicAudience},
	}
	switch {
	case contentHTML != "":
		article["content"] = contentHTML
		article["mediaType"] = "text/html"
	case entry.Body != "":
		article["content"] = entry.Body
		article["mediaType"] = "text/markdown"
	}
	if entry.Description != "" {
		article["summary"] = entry.Description
	}
	if entry.Body != "" {
		article["source"] = map[string]any{
			"content":   entry.Body,
			"mediaType": "text/markdown",
		}
	}
	return article
}

// Create materializes an entry as the Create activity that wraps its
// Article.
func (m *Materializer) Create(entry content.Entry) map[string]any {
	article := m.Article(entry)
	return map[string]any{
		"@context":  Context,
		"id":        ActivityID(stringFromAny(article["id"])),
		"type":      "Create",
		"actor":     m.site.ActorURI(),
		"object":    article,
		"published": article["published"],
		"to":        []string{PublicAudience},
	}
}

// Collect materializes the Create activities of every collection, newest
// first, returning the page described by limit and offset along with the
// total count. A negative limit returns everything.
func (m *Materializer) Collect(limit, offset int) (total int, items []map[string]any, err error) {
	var entries []content.Entry
	for _, name := range m.site.CollectionNames() {
		collected, err := m.store.Entries(name)
		if err != nil {
			return 0, nil, err
		}
		entries = append(entries, collected...)
	}
	sortEntriesByCreatedDesc(entries)

	total = len(entries)
	if offset < 0 {
		offset = 0
	}
	start := min(offset, total)
	end := total
	if limit >= 0 {
		end = min(total, start+limit)
	}
	items = make([]map[string]any, 0, end-start)
	for _, entry := range entries[start:end] {
		items = append(items, m.Create(entry))
	}
	return total, items, nil
}

// EntriesSince returns the entries of a collection not yet behind the
// watermark, oldest first, the order the broadcast queue offers them.
// Entries sharing the watermark time are included when their path sorts
// after lastPath, which is the tiebreak order they are delivered in.
func (m *Materializer) EntriesSince(collection string, watermark time.Time, lastPath string) ([]content.Entry, error) {
	entries, err := m.store.Entries(collection)
	if err != nil {
		return nil, err
	}
	var fresh []content.Entry
	for _, entry := range entries {
		switch {
		case entry.CreatedAt.After(watermark):
			fresh = append(fresh, entry)
		case entry.CreatedAt.Equal(watermark) && entry.Path > lastPath:
			fresh = append(fresh, entry)
		}
	}
	sortEntriesByCreatedAsc(fresh)
	return fresh, nil
}

func sortEntriesByCreatedDesc(entries []content.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Path < entries[j].Path
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

func sortEntriesByCreatedAsc(entries []content.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Path < entries[j].Path
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
