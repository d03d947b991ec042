package definition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 250 * time.Millisecond

// ErrWatcherClosed is returned when closing a watcher twice.
var ErrWatcherClosed = errors.New("watcher closed")

// ReloadFunc receives the grids of a changed definition file.
type ReloadFunc func(ctx context.Context, grids []Grid) error

// WatcherOptions tunes a Watcher.
type WatcherOptions struct {
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher reloads a definition file when it changes. The parent directory
// is watched so that saves by rename are seen.
type Watcher struct {
	path     string
	onReload ReloadFunc
	debounce time.Duration
	logger   *slog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher starts watching path. Invalid files are logged and skipped;
// the grids keep their last good definitions.
func NewWatcher(path string, onReload ReloadFunc, opts WatcherOptions) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     abs,
		onReload: onReload,
		debounce: opts.Debounce,
		logger:   opts.Logger.With("component", "definitions", "path", abs),
		fsw:      fsw,
		closeCh:  make(chan struct{}),
	}

	w.wg.Add(1)
	go w.processLoop()
	return w, nil
}

func (w *Watcher) processLoop() {
	defer w.wg.Done()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("definition watcher error", "error", err)

		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) reload() {
	grids, err := LoadFile(w.path)
	if err != nil {
		w.logger.Error("grid definitions not reloaded", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-w.closeCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := w.onReload(ctx, grids); err != nil {
		w.logger.Error("grid definitions applied with errors", "error", err)
		return
	}
	w.logger.Info("grid definitions reloaded", "grids", len(grids))
}

// Close stops the watcher and waits for a running reload to finish.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
