package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches source directories and reports changed and removed files.
// Writes to the same path within the debounce window collapse into one call.
type Watcher struct {
	roots       []string
	discover    DiscoverOptions
	onIndex     func(path string)
	onRemove    func(path string)
	onChange    func(path string)
	debounce    time.Duration
	logger      *zap.Logger
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a changed file is reported
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets a logger for watcher events
func WithWatcherLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithChangeHook registers a function called after a file was re-indexed or removed
func WithChangeHook(fn func(path string)) WatcherOption {
	return func(w *Watcher) { w.onChange = fn }
}

// NewWatcher creates a watcher over roots. Files are filtered with the same
// extension and exclusion rules as Discover.
func NewWatcher(roots []string, opts DiscoverOptions, onIndex, onRemove func(path string), wopts ...WatcherOption) *Watcher {
	clean := make([]string, 0, len(roots))
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			clean = append(clean, abs)
		}
	}

	w := &Watcher{
		roots:       clean,
		discover:    opts,
		onIndex:     onIndex,
		onRemove:    onRemove,
		debounce:    defaultDebounce,
		logger:      zap.NewNop(),
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
	for _, opt := range wopts {
		opt(w)
	}
	return w
}

// Watch starts a watcher over roots that re-indexes changed files and
// removes deleted ones. It runs until ctx is done.
func (idx *Indexer) Watch(ctx context.Context, roots []string, opts ...WatcherOption) (*Watcher, error) {
	onIndex := func(path string) {
		if _, err := idx.IndexFiles(ctx, []string{path}); err != nil && ctx.Err() == nil {
			idx.logger.Warn("watch re-index failed", zap.String("file", path), zap.Error(err))
		}
	}
	onRemove := func(path string) {
		if err := idx.RemoveFile(ctx, path); err != nil && ctx.Err() == nil {
			idx.logger.Warn("watch removal failed", zap.String("file", path), zap.Error(err))
		}
	}

	opts = append([]WatcherOption{WithWatcherLogger(idx.logger)}, opts...)
	w := NewWatcher(roots, idx.discover, onIndex, onRemove, opts...)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// Start registers every directory under the roots and begins delivering
// events. It returns once the watch list is built.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			_ = watcher.Close()
			w.watcher = nil
			return err
		}
	}
	w.started = true
	w.logger.Debug("watcher started", zap.Strings("roots", w.roots))

	go w.run(ctx, watcher)
	return nil
}

// Stop ends event delivery and cancels pending debounced calls
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		for path, t := range w.debounceMap {
			t.Stop()
			delete(w.debounceMap, path)
		}
		if w.watcher != nil {
			_ = w.watcher.Close()
		}
	})
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !underRoots(path, w.roots) || w.skipped(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if MatchExtension(path, w.extensions()) {
			w.debounceIndex(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		if !MatchExtension(path, w.extensions()) {
			return
		}
		if w.onRemove != nil {
			w.onRemove(path)
		}
		if w.onChange != nil {
			w.onChange(path)
		}
	}
}

// handleNewDirectory watches a directory created under a root and reports
// the source files already inside it
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return
	}
	if err := w.addTree(dir); err != nil {
		w.logger.Debug("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	}
	w.mu.Unlock()

	files, err := Discover([]string{dir}, w.discover)
	if err != nil {
		w.logger.Debug("watcher failed to scan directory", zap.String("path", dir), zap.Error(err))
		return
	}
	for _, f := range files {
		w.debounceIndex(f)
	}
}

// addTree adds dir and its non-excluded subdirectories; callers hold w.mu
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.skipped(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// skipped reports whether a path component is hidden or excluded
func (w *Watcher) skipped(path string) bool {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || !underRoots(path, []string{root}) {
			continue
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		for i, part := range parts {
			if len(part) > 1 && part[0] == '.' {
				return true
			}
			if excluded(part, strings.Join(parts[:i+1], "/"), w.discover.Exclude) {
				return true
			}
		}
		return false
	}
	return false
}

func (w *Watcher) extensions() []string {
	if len(w.discover.Extensions) == 0 {
		return DefaultExtensions
	}
	return w.discover.Extensions
}

func (w *Watcher) debounceIndex(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}
		w.logger.Debug("watcher indexing file", zap.String("path", path))
		if w.onIndex != nil {
			w.onIndex(path)
		}
		if w.onChange != nil {
			w.onChange(path)
		}
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

func (w *Watcher) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.debounceMap)
}
