package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileWatcher polls files for changes and dispatches debounced events.
type FileWatcher struct {
	mu sync.RWMutex

	paths         []string
	pollInterval  time.Duration
	debounceDelay time.Duration

	running   bool
	stopChan  chan struct{}
	eventChan chan FileEvent

	callbacks []func(event FileEvent)
	logger    *zap.Logger

	lastModTimes map[string]time.Time
}

// FileEvent is one observed change.
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileOp is the kind of change.
type FileOp int

const (
	FileOpCreate FileOp = iota
	FileOpWrite
	FileOpRemove
)

func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// WatcherOption configures a FileWatcher.
type WatcherOption func(*FileWatcher)

// WithDebounceDelay coalesces events arriving within d.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.debounceDelay = d }
}

// WithPollInterval sets how often files are stat'ed.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.pollInterval = d }
}

func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) { w.logger = logger }
}

// NewFileWatcher creates a watcher. Missing files are watched for creation.
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		paths:         append([]string(nil), paths...),
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		stopChan:      make(chan struct{}),
		eventChan:     make(chan FileEvent, 100),
		lastModTimes:  make(map[string]time.Time),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"))

	for _, path := range w.paths {
		if _, err := os.Stat(path); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
			}
			w.logger.Warn("config file does not exist, will watch for creation", zap.String("path", path))
		}
	}
	return w, nil
}

// OnChange registers a callback. Callbacks run on the dispatch goroutine.
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins polling until ctx is done or Stop is called.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.running = true
	for _, path := range w.paths {
		if info, err := os.Stat(path); err == nil {
			w.lastModTimes[path] = info.ModTime()
		}
	}
	w.mu.Unlock()

	go w.pollLoop(ctx)
	go w.dispatchLoop(ctx)

	w.logger.Info("file watcher started",
		zap.Strings("paths", w.paths),
		zap.Duration("poll_interval", w.pollInterval))
	return nil
}

// Stop ends the watcher. It is safe to call more than once.
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	close(w.stopChan)
	w.running = false
	w.logger.Info("file watcher stopped")
	return nil
}

// IsRunning reports whether Start was called without a matching Stop.
func (w *FileWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Paths returns the watched paths.
func (w *FileWatcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.paths...)
}

func (w *FileWatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			for _, ev := range w.checkFiles() {
				select {
				case w.eventChan <- ev:
				default:
					w.logger.Warn("dropping file event, dispatch is behind", zap.String("path", ev.Path))
				}
			}
		}
	}
}

func (w *FileWatcher) checkFiles() []FileEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	var events []FileEvent
	now := time.Now()
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			if _, existed := w.lastModTimes[path]; existed && os.IsNotExist(err) {
				delete(w.lastModTimes, path)
				events = append(events, FileEvent{Path: path, Op: FileOpRemove, Timestamp: now})
			}
			continue
		}

		lastMod, existed := w.lastModTimes[path]
		switch {
		case !existed:
			w.lastModTimes[path] = info.ModTime()
			events = append(events, FileEvent{Path: path, Op: FileOpCreate, Timestamp: now})
		case info.ModTime().After(lastMod):
			w.lastModTimes[path] = info.ModTime()
			events = append(events, FileEvent{Path: path, Op: FileOpWrite, Timestamp: now})
		}
	}
	return events
}

// dispatchLoop keeps the latest event per path and flushes them once no
// new event arrived for debounceDelay.
func (w *FileWatcher) dispatchLoop(ctx context.Context) {
	pending := make(map[string]FileEvent)
	timer := time.NewTimer(w.debounceDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case ev := <-w.eventChan:
			pending[ev.Path] = ev
			timer.Reset(w.debounceDelay)
		case <-timer.C:
			w.mu.RLock()
			callbacks := append(([]func(FileEvent))(nil), w.callbacks...)
			w.mu.RUnlock()

			for _, ev := range pending {
				w.logger.Debug("dispatching file event",
					zap.String("path", ev.Path),
					zap.String("op", ev.Op.String()))
				for _, cb := range callbacks {
					cb(ev)
				}
			}
			pending = make(map[string]FileEvent)
		}
	}
}

// Reloader reloads the configuration when its file changes. Only configs
// that pass Validate are published to the callbacks.
type Reloader struct {
	loader  *Loader
	watcher *FileWatcher
	logger  *zap.Logger

	mu        sync.RWMutex
	current   *Config
	callbacks []func(prev, next *Config)
}

// NewReloader watches loader's file. initial is the config already in use.
func NewReloader(loader *Loader, initial *Config, logger *zap.Logger, opts ...WatcherOption) (*Reloader, error) {
	if loader.Path() == "" {
		return nil, errors.New("reloader requires a config file path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := NewFileWatcher([]string{loader.Path()}, append([]WatcherOption{WithWatcherLogger(logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	r := &Reloader{
		loader:  loader,
		watcher: watcher,
		logger:  logger.With(zap.String("component", "config_reloader")),
		current: initial,
	}
	watcher.OnChange(func(ev FileEvent) {
		if ev.Op == FileOpRemove {
			return
		}
		if err := r.Reload(); err != nil {
			r.logger.Warn("config reload rejected", zap.Error(err))
		}
	})
	return r, nil
}

// OnReload registers a callback receiving the previous and new config.
func (r *Reloader) OnReload(fn func(prev, next *Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// Current returns the last accepted config.
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Reload loads and validates the file now.
func (r *Reloader) Reload() error {
	next, err := r.loader.Load()
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	prev := r.current
	r.current = next
	callbacks := append(([]func(prev, next *Config))(nil), r.callbacks...)
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(prev, next)
	}
	r.logger.Info("config reloaded", zap.String("path", r.loader.Path()))
	return nil
}

func (r *Reloader) Start(ctx context.Context) error { return r.watcher.Start(ctx) }

func (r *Reloader) Stop() error { return r.watcher.Stop() }
