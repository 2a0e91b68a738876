package content

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// A ChangeEvent reports that a collection's entries changed on disk.
type ChangeEvent struct {
	Collection string
	At         time.Time
}

// A Watcher polls the content tree and publishes a ChangeEvent for each
// collection that changed since the previous poll. It compares a
// fingerprint of each collection's file names, sizes and modification
// times between polls; the first poll establishes a baseline without
// publishing.
type Watcher struct {
	root        string
	collections []string
	interval    time.Duration
	events      chan ChangeEvent

	fingerprints map[string]string
}

func NewWatcher(root string, collections []string, interval time.Duration) *Watcher {
	return &Watcher{
		root:         root,
		collections:  collections,
		interval:     interval,
		events:       make(chan ChangeEvent, len(collections)),
		fingerprints: make(map[string]string),
	}
}

// Events returns the channel change events are published on. The channel
// is closed when Run returns.
func (w *Watcher) Events() <-chan ChangeEvent {
	return w.events
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	w.Poll(false)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Poll(true)
		}
	}
}

// Poll fingerprints every collection once, publishing changes when
// report is set. Publication never blocks; a change that cannot be
// published keeps its old fingerprint so the next poll retries it.
func (w *Watcher) Poll(report bool) {
	for _, collection := range w.collections {
		fp := w.fingerprint(collection)
		if prev, ok := w.fingerprints[collection]; ok && prev != fp && report {
			select {
			case w.events <- ChangeEvent{Collection: collection, At: time.Now()}:
			default:
				continue
			}
		}
		w.fingerprints[collection] = fp
	}
}

func (w *Watcher) fingerprint(collection string) string {
	h := sha256.New()
	dir := filepath.Join(w.root, collection)
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		if info, err := d.Info(); err == nil {
			fmt.Fprintf(h, "%s %d %d\n", path, info.Size(), info.ModTime().UnixNano())
		}
		return nil
	})
	return fmt.Sprintf("%x", h.Sum(nil))
}
