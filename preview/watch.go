// Package preview serves a developer-preview HTML bundle of a project's
// JS/JSX/CSS sources: a tiny HTTP server that rewrites module and JSX
// syntax on each request and exposes a long-poll endpoint so a preview
// iframe can reload when the project tree changes.
package preview

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher tracks the most recent moment the project tree changed. It
// prefers real directory-change notifications, falling back to a
// manually-bumped timestamp when fsnotify can't attach (some sandboxed
// or networked filesystems refuse inotify/FSEvents registration).
type Watcher struct {
	log  *slog.Logger
	root string

	mu      sync.Mutex
	lastMod time.Time

	fsw *fsnotify.Watcher
}

// NewWatcher starts watching root for changes. On any error setting up
// the underlying notifier it logs and degrades to manual-touch mode;
// Touch still works so a supervisor can bump the timestamp itself after
// a command that may have mutated files.
func NewWatcher(log *slog.Logger, root string) *Watcher {
	w := &Watcher{log: log, root: root, lastMod: time.Now()}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("preview watcher: fsnotify unavailable, falling back to manual touch", slog.String("error", err.Error()))
		return w
	}
	w.fsw = fsw

	if err := w.addTreeWatches(root); err != nil {
		log.Warn("preview watcher: failed to watch project tree", slog.String("error", err.Error()))
	}
	go w.run()
	return w
}

func (w *Watcher) addTreeWatches(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if name != "." && (strings.HasPrefix(name, ".") || name == "node_modules") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.Touch()
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTreeWatches(ev.Name); err != nil {
						w.log.Debug("preview watcher: failed to watch new directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
					}
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Debug("preview watcher: notify error", slog.String("error", err.Error()))
		}
	}
}

// Touch records that the tree changed right now. The watcher's event
// loop calls it for each filesystem notification; nothing else in this
// module calls it, so completed commands do not update the timestamp,
// and when the notifier failed to start it stays at the watcher's
// creation time.
func (w *Watcher) Touch() {
	w.mu.Lock()
	w.lastMod = time.Now()
	w.mu.Unlock()
}

// LastModified returns the last time a change was observed.
func (w *Watcher) LastModified() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastMod
}

// Close stops the underlying notifier, if one was started.
func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Close()
}

// WaitForChange blocks until the tree has changed since sinceMillis (a
// client-supplied Unix millisecond timestamp), done is closed, or
// maxWait elapses, whichever comes first. It returns whether a change
// was observed and the current last-modified timestamp in millis.
func (w *Watcher) WaitForChange(done <-chan struct{}, sinceMillis int64, maxWait time.Duration) (changed bool, lastModMillis int64) {
	deadline := time.Now().Add(maxWait)
	const pollInterval = 50 * time.Millisecond
	for {
		last := w.LastModified().UnixMilli()
		if last > sinceMillis {
			return true, last
		}
		if time.Now().After(deadline) {
			return false, last
		}
		select {
		case <-done:
			return false, last
		case <-time.After(pollInterval):
		}
	}
}
