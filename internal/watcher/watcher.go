package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

const (
	// DefaultDebounce is the quiet period before a path's change is emitted
	DefaultDebounce = 300 * time.Millisecond

	defaultBufferSize = 1000
)

// Option configures a Watcher
type Option func(*Watcher)

// WithLogger sets the watcher logger
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// WithDebounce sets the per-path quiet period
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithIgnore adds ignore entries. An entry without a slash matches any path
// segment exactly; an entry with a slash matches a path prefix relative to the root.
func WithIgnore(entries ...string) Option {
	return func(w *Watcher) {
		for _, e := range entries {
			if e = strings.TrimSpace(e); e != "" {
				w.ignore = append(w.ignore, e)
			}
		}
	}
}

// WithClock overrides the epoch-millisecond clock stamped on events
func WithClock(now func() int64) Option {
	return func(w *Watcher) { w.now = now }
}

// Watcher recursively watches a directory tree and emits debounced file events
// with paths relative to the root.
type Watcher struct {
	root   string
	ignore []string
	delay  time.Duration

	fsw       *fsnotify.Watcher
	debouncer *debouncer
	events    chan domain.FileEvent
	errors    chan error

	mu          sync.RWMutex
	watchedDirs map[string]bool
	running     bool

	sendMu sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	logger zerolog.Logger
	now    func() int64
}

// New creates a watcher for root. Call Start to begin watching.
func New(root string, opts ...Option) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", absRoot)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		root:        absRoot,
		delay:       DefaultDebounce,
		fsw:         fsw,
		events:      make(chan domain.FileEvent, defaultBufferSize),
		errors:      make(chan error, 100),
		watchedDirs: make(map[string]bool),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		logger:      zerolog.Nop(),
		now:         domain.NowMillis,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debouncer = newDebouncer(w.delay, w.emit)
	return w, nil
}

// Root returns the absolute watched directory
func (w *Watcher) Root() string {
	return w.root
}

// Start adds watches for the whole tree and starts processing notifications
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := w.addTree(ctx, w.root, false); err != nil {
		return err
	}

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	go w.run()

	w.logger.Info().
		Str("root", w.root).
		Int("directories", len(w.WatchedDirs())).
		Dur("debounce", w.delay).
		Msg("Watching for file changes")
	return nil
}

// Events returns the debounced event stream. It is closed by Close.
func (w *Watcher) Events() <-chan domain.FileEvent {
	return w.events
}

// Errors returns watcher errors. Errors are dropped when nobody reads them.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops watching, discards pending changes and closes the event stream
func (w *Watcher) Close() error {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	w.cancel()
	w.debouncer.stop()
	err := w.fsw.Close()
	if wasRunning {
		<-w.done
	}

	w.sendMu.Lock()
	if !w.closed {
		w.closed = true
		close(w.events)
	}
	w.sendMu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to close fsnotify watcher: %w", err)
	}
	return nil
}

// IsWatching reports whether the watcher has been started and not closed
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// WatchedDirs returns the watched directories relative to the root, which is "."
func (w *Watcher) WatchedDirs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	dirs := make([]string, 0, len(w.watchedDirs))
	for dir := range w.watchedDirs {
		rel := w.relative(dir)
		if rel == "" {
			rel = "."
		}
		dirs = append(dirs, rel)
	}
	return dirs
}

// HealthCheck reports whether the watcher is running
func (w *Watcher) HealthCheck(ctx context.Context) domain.HealthStatus {
	w.mu.RLock()
	running := w.running
	dirs := len(w.watchedDirs)
	w.mu.RUnlock()

	status := domain.HealthStatusHealthy
	message := "Watcher is operating normally"
	if !running {
		status = domain.HealthStatusUnhealthy
		message = "Watcher is not running"
	}

	return domain.HealthStatus{
		Status:  status,
		Message: message,
		Details: map[string]any{
			"root":            w.root,
			"watched_dirs":    dirs,
			"pending_changes": w.debouncer.size(),
			"queued_events":   len(w.events),
		},
		Timestamp: time.Now(),
	}
}

func (w *Watcher) run() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// handle maps one fsnotify notification onto the debouncer
func (w *Watcher) handle(event fsnotify.Event) {
	rel := w.relative(event.Name)
	if rel == "" || w.ignored(rel) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Lstat(event.Name)
		if err == nil && info.IsDir() {
			if err := w.addTree(w.ctx, event.Name, true); err != nil {
				w.logger.Warn().Err(err).Str("path", rel).Msg("Failed to watch new directory")
			}
			return
		}
		w.debouncer.submit(rel, domain.EventCreated)

	case event.Has(fsnotify.Write):
		w.debouncer.submit(rel, domain.EventModified)

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if w.forgetDir(event.Name) {
			return
		}
		w.debouncer.submit(rel, domain.EventDeleted)
	}
}

// addTree watches dir and every non-ignored directory below it. When
// announce is set, files already present are reported as created; they may
// have landed before the watch was in place.
func (w *Watcher) addTree(ctx context.Context, dir string, announce bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel := w.relative(path)
		if rel != "" && w.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.IsDir() {
			if announce {
				w.debouncer.submit(rel, domain.EventCreated)
			}
			return nil
		}

		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		w.mu.Lock()
		w.watchedDirs[path] = true
		w.mu.Unlock()
		return nil
	})
}

// forgetDir drops a removed directory and everything below it from the
// watched set. It reports whether path was a watched directory.
func (w *Watcher) forgetDir(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.watchedDirs[path] {
		return false
	}
	prefix := path + string(filepath.Separator)
	for dir := range w.watchedDirs {
		if dir == path || strings.HasPrefix(dir, prefix) {
			delete(w.watchedDirs, dir)
		}
	}
	return true
}

func (w *Watcher) emit(path string, eventType domain.EventType) {
	w.sendMu.RLock()
	defer w.sendMu.RUnlock()
	if w.closed {
		return
	}

	event := domain.FileEvent{Type: eventType, Path: path, Timestamp: w.now()}
	select {
	case w.events <- event:
	case <-w.ctx.Done():
	}
}

// relative converts an absolute path below the root into its forward-slash
// relative form. The root itself and paths outside it yield "".
func (w *Watcher) relative(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return domain.NormalizePath(filepath.ToSlash(rel))
}

func (w *Watcher) ignored(rel string) bool {
	segments := strings.Split(rel, "/")
	for _, entry := range w.ignore {
		if strings.Contains(entry, "/") {
			prefix := strings.TrimSuffix(domain.NormalizePath(entry), "/")
			if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
				return true
			}
			continue
		}
		for _, seg := range segments {
			if seg == entry {
				return true
			}
		}
	}
	return false
}
