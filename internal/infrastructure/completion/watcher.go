package completion

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
)

// WatcherConfig holds configuration for the tasks-file observer.
type WatcherConfig struct {
	DebounceDuration time.Duration
	PollInterval     time.Duration
}

// DefaultWatcherConfig returns the spec's default debounce/poll cadence.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		DebounceDuration: 100 * time.Millisecond,
		PollInterval:     50 * time.Millisecond,
	}
}

// TaskFileWatcher watches a single tasks document and invokes a callback
// with newly-observed-complete task identifiers on each coalesced
// modification. It wraps fsnotify with debouncing, the way the teacher's
// skill-file watcher does, fingerprinting file content with xxhash so a
// write that doesn't change content (an editor touch) doesn't trigger a
// redundant parse.
type TaskFileWatcher struct {
	path   string
	config WatcherConfig

	fsWatcher *fsnotify.Watcher

	mu       sync.Mutex
	seen     map[string]struct{}
	lastHash uint64
}

// NewTaskFileWatcher creates a watcher over path with cfg. Zero-value
// fields in cfg fall back to DefaultWatcherConfig.
func NewTaskFileWatcher(path string, cfg WatcherConfig) (*TaskFileWatcher, error) {
	if cfg.DebounceDuration <= 0 {
		cfg.DebounceDuration = DefaultWatcherConfig().DebounceDuration
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWatcherConfig().PollInterval
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &TaskFileWatcher{
		path:      path,
		config:    cfg,
		fsWatcher: fsWatcher,
		seen:      make(map[string]struct{}),
	}, nil
}

// Watch runs until ctx is cancelled or path disappears, calling callback
// with the set of newly-completed task identifiers on each debounced,
// content-changed revision. A parse failure on a single revision is
// swallowed; it does not terminate the watch. Loss of the file terminates
// the watch cleanly (nil error).
func (w *TaskFileWatcher) Watch(ctx context.Context, callback func(newly []string)) error {
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return err
	}
	defer w.fsWatcher.Close()

	w.processRevision(callback)

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case _, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if _, err := os.Stat(w.path); os.IsNotExist(err) {
				return nil
			}
			if !pending {
				pending = true
				debounce.Reset(w.config.DebounceDuration)
			}

		case <-debounce.C:
			pending = false
			w.processRevision(callback)

		case <-time.After(w.config.PollInterval):
			if _, err := os.Stat(w.path); os.IsNotExist(err) {
				return nil
			}
		}
	}
}

// processRevision parses the current file content, skips the call if
// content hasn't changed since the last revision, and reports newly
// observed-complete identifiers.
func (w *TaskFileWatcher) processRevision(callback func(newly []string)) {
	content, err := os.ReadFile(w.path)
	if err != nil {
		return
	}

	hash := xxhash.Sum64(content)

	w.mu.Lock()
	if hash == w.lastHash {
		w.mu.Unlock()
		return
	}
	w.lastHash = hash
	w.mu.Unlock()

	observed, err := ParseObservedCompletions(w.path)
	if err != nil {
		return
	}

	w.mu.Lock()
	var newly []string
	for id := range observed {
		if _, ok := w.seen[id]; !ok {
			w.seen[id] = struct{}{}
			newly = append(newly, id)
		}
	}
	w.mu.Unlock()

	if len(newly) > 0 {
		callback(newly)
	}
}
