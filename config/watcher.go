package config

import (
	"os"
	"time"

	"github.com/samber/lo"
)

// Watcher detects configuration file changes by polling the file
// modification time. It is checked once per scheduler round.
type Watcher struct {
	path  string
	mtime time.Time
}

// NewWatcher creates a watcher anchored at the file's current mtime
func NewWatcher(path string) (*Watcher, error) {
	w := &Watcher{path: path}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	w.mtime = info.ModTime()
	return w, nil
}

// Changed reports whether the file was modified since the last check
// and advances the anchor when it was
func (w *Watcher) Changed() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		// A transiently missing file is not a change
		return false
	}
	if info.ModTime().After(w.mtime) {
		w.mtime = info.ModTime()
		return true
	}
	return false
}

// DiffSymbols compares two symbol sets and returns the additions and
// removals going from old to new
func DiffSymbols(old, new []string) (added, removed []string) {
	added = lo.Without(new, old...)
	removed = lo.Without(old, new...)
	return added, removed
}
