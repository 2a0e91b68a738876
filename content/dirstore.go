package content

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sitepub/sitepub/internal/config"
)

// A DirStore reads entries from a directory tree, one subdirectory per
// collection, one markdown file per entry. Files are re-read on every
// call; the store holds no state between calls.
type DirStore struct {
	root        string
	collections []config.Collection
}

func NewDirStore(root string, collections []config.Collection) *DirStore {
	return &DirStore{root: root, collections: collections}
}

func (s *DirStore) Entries(collection string) ([]Entry, error) {
	var col config.Collection
	var found bool
	for _, c := range s.collections {
		if c.Name == collection {
			col, found = c, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("content: unknown collection %q", collection)
	}

	dir := filepath.Join(s.root, col.Name)
	var entries []Entry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		entry, err := s.read(path, col)
		if err != nil {
			return err
		}
		if !entry.Draft {
			entries = append(entries, *entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

func (s *DirStore) ByPath(path string) (*Entry, error) {
	for _, col := range s.collections {
		if path != col.Prefix && !strings.HasPrefix(path, col.Prefix+"/") {
			continue
		}
		entries, err := s.Entries(col.Name)
		if err != nil {
			return nil, err
		}
		for i := range entries {
			if entries[i].Path == path {
				return &entries[i], nil
			}
		}
	}
	return nil, fmt.Errorf("content: no entry at %q", path)
}

// frontMatter is the YAML block at the top of an entry file.
type frontMatter struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	CreatedAt   time.Time `yaml:"createdAt"`
	Date        time.Time `yaml:"date"`
	Draft       bool      `yaml:"draft"`
}

var frontMatterDelim = []byte("---")

func (s *DirStore) read(path string, col config.Collection) (*Entry, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fm frontMatter
	body := buf
	if rest, ok := bytes.CutPrefix(buf, frontMatterDelim); ok {
		if head, tail, ok := bytes.Cut(rest, append([]byte("\n"), frontMatterDelim...)); ok {
			if err := yaml.Unmarshal(head, &fm); err != nil {
				return nil, fmt.Errorf("content: %s: %w", path, err)
			}
			body = bytes.TrimPrefix(tail, []byte("\n"))
		}
	}
	createdAt := fm.CreatedAt
	if createdAt.IsZero() {
		createdAt = fm.Date
	}
	if createdAt.IsZero() {
		if info, err := os.Stat(path); err == nil {
			createdAt = info.ModTime()
		}
	}
	return &Entry{
		Path:        sitePath(s.root, path, col),
		Title:       fm.Title,
		Description: fm.Description,
		Body:        string(body),
		CreatedAt:   createdAt,
		Draft:       fm.Draft,
	}, nil
}

// sitePath maps a file under the store root onto the entry's
// site-relative path. content/blog/my-post.md becomes /blog/my-post.
func sitePath(root, path string, col config.Collection) string {
	rel, err := filepath.Rel(filepath.Join(root, col.Name), path)
	if err != nil {
		return col.Prefix
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), ".md")
	rel = strings.TrimSuffix(rel, "/index")
	if rel == "index" || rel == "." {
		return col.Prefix
	}
	return col.Prefix + "/" + rel
}
