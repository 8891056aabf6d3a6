// Package watch turns file system activity into debounced batches of
// changed and removed source files.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	cerr "cortex/internal/errors"

	"cortex/internal/extract"
	"cortex/internal/logging"
)

const drainInterval = 100 * time.Millisecond

// Handler receives debounced batches. Both slices are sorted; a path
// never appears in both in the same batch.
type Handler func(changed []string, removed []string)

// Watcher watches a directory tree and reports eligible source file
// changes after a per-path quiet window.
type Watcher struct {
	root     string
	debounce time.Duration
	maxSize  int64
	ignore   []string
	langs    *extract.LanguageMap
	logger   *logging.Logger
	handler  Handler

	fw      *fsnotify.Watcher
	changes *DebounceQueue
	removes *DebounceQueue

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher rooted at root. debounceMs controls the
// per-path quiet window; ignore holds glob patterns relative to root.
// Files larger than maxFileSize bytes are logged as skipped instead of
// queued; zero disables the ceiling.
func New(root string, debounceMs int, maxFileSize int64, ignore []string, langs *extract.LanguageMap, logger *logging.Logger, handler Handler) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, cerr.New(cerr.InternalError, "create file watcher", err)
	}

	return &Watcher{
		root:     root,
		debounce: time.Duration(debounceMs) * time.Millisecond,
		maxSize:  maxFileSize,
		ignore:   ignore,
		langs:    langs,
		logger:   logger,
		handler:  handler,
		fw:       fw,
		changes:  NewDebounceQueue(),
		removes:  NewDebounceQueue(),
	}, nil
}

// Start registers the directory tree and begins delivering batches
// until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.drainLoop(ctx)

	w.logger.Info("watching", map[string]interface{}{
		"root":       w.root,
		"debounceMs": int(w.debounce / time.Millisecond),
	})
	return nil
}

// Close stops event delivery and releases the underlying watches.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.fw.Close()
	w.wg.Wait()
	return err
}

// Seed marks every eligible file under root as changed, so the first
// drain re-indexes the whole tree. Used on startup to catch edits made
// while no watcher was running.
func (w *Watcher) Seed(now time.Time) error {
	return filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel := w.rel(path)
		if info.IsDir() {
			if rel != "." && w.Ignored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !w.eligible(rel) {
			return nil
		}
		if w.oversized(rel, info.Size()) {
			return nil
		}
		w.changes.Mark(rel, now.Add(-w.debounce))
		return nil
	})
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		rel := w.rel(path)
		if rel != "." && w.Ignored(rel) {
			return filepath.SkipDir
		}
		// Watch registration failures on single directories are not fatal.
		if err := w.fw.Add(path); err != nil {
			w.logger.Warn("watch add failed", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		}
		return nil
	})
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel := w.rel(event.Name)
	if w.Ignored(rel) {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addRecursive(event.Name)
			return
		}
	}

	now := time.Now()
	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if w.eligible(rel) {
			w.removes.Mark(rel, now)
		}
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		if !w.eligible(rel) {
			return
		}
		if info, err := os.Stat(event.Name); err == nil && w.oversized(rel, info.Size()) {
			return
		}
		w.changes.Mark(rel, now)
	}
}

// oversized reports and logs files over the configured size ceiling.
func (w *Watcher) oversized(rel string, size int64) bool {
	if w.maxSize <= 0 || size <= w.maxSize {
		return false
	}
	w.logger.Info("skipping oversized file", map[string]interface{}{
		"path":    rel,
		"size":    size,
		"maxSize": w.maxSize,
	})
	return true
}

func (w *Watcher) drainLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(time.Now())
		}
	}
}

func (w *Watcher) drain(now time.Time) {
	changed := w.changes.DrainDue(now, w.debounce)
	removed := w.removes.DrainDue(now, w.debounce)
	if len(changed) == 0 && len(removed) == 0 {
		return
	}

	// A remove followed by a re-create within the window is a change,
	// not a removal.
	if len(changed) > 0 && len(removed) > 0 {
		changedSet := make(map[string]bool, len(changed))
		for _, p := range changed {
			changedSet[p] = true
		}
		kept := removed[:0]
		for _, p := range removed {
			if !changedSet[p] {
				kept = append(kept, p)
			}
		}
		removed = kept
	}

	// Files that vanished between the event and the drain count as
	// removals regardless of the last event type.
	keptChanged := changed[:0]
	for _, p := range changed {
		if _, err := os.Stat(filepath.Join(w.root, p)); os.IsNotExist(err) {
			removed = append(removed, p)
			continue
		}
		keptChanged = append(keptChanged, p)
	}
	changed = keptChanged
	sort.Strings(removed)

	if len(changed) == 0 && len(removed) == 0 {
		return
	}
	if w.handler != nil {
		w.handler(changed, removed)
	}
}

// eligible reports whether a path is a source file worth indexing.
func (w *Watcher) eligible(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	_, ok := w.langs.Detect(rel)
	return ok
}

// Ignored reports whether a root-relative path matches an ignore
// pattern.
func (w *Watcher) Ignored(rel string) bool {
	return Ignored(w.ignore, rel)
}

// Ignored reports whether a root-relative path matches one of the
// patterns. Patterns support basename globs and a single "**" segment.
func Ignored(patterns []string, rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, filepath.Base(rel)); matched {
			return true
		}
		if strings.Contains(pattern, "**") {
			parts := strings.SplitN(pattern, "**", 2)
			prefix := strings.TrimSuffix(parts[0], "/")
			suffix := strings.TrimPrefix(parts[1], "/")
			if prefix != "" && rel != prefix && !strings.HasPrefix(rel, prefix+"/") {
				continue
			}
			if suffix == "" || strings.HasSuffix(rel, suffix) {
				return true
			}
		}
	}
	return false
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
