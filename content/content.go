// Package content reads the markdown entries that the server federates.
// Entries live on disk, grouped into collections; the rest of the server
// only sees them through the Store interface.
package content

import "time"

// An Entry is one piece of published content.
type Entry struct {
	// Path is the entry's site-relative path, eg. "/blog/my-post".
	Path        string
	Title       string
	Description string
	// Body is the entry's markdown source, front matter stripped.
	Body      string
	CreatedAt time.Time
	Draft     bool
}

// A Store provides access to published entries. Drafts are never
// returned.
type Store interface {
	// Entries returns the entries of a collection, newest first.
	Entries(collection string) ([]Entry, error)
	// ByPath returns the entry at a site-relative path.
	ByPath(path string) (*Entry, error)
}
