// Package watcher reloads the committed filters when the settings file
// changes on disk.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/logfilters/internal/domain"
)

// DefaultDebounce is how long the file must stay quiet before a reload
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc is called once per burst of changes
type ReloadFunc func(ctx context.Context) error

// Watcher monitors a single settings file. The parent directory is watched
// so that atomic replacements are seen.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration
	reload    ReloadFunc
	logger    zerolog.Logger

	mu         sync.RWMutex
	reloads    int64
	failures   int64
	lastReload time.Time
	lastErr    error
	lastChange domain.FileChangeEvent
	running    bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher for path. A zero debounce uses DefaultDebounce.
func New(path string, debounce time.Duration, reload ReloadFunc) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		path:      absPath,
		debounce:  debounce,
		reload:    reload,
		logger:    log.With().Str("component", "watcher").Logger(),
		done:      make(chan struct{}),
	}, nil
}

// Path returns the watched settings file
func (w *Watcher) Path() string {
	return w.path
}

// Start begins watching. The settings directory must exist.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.eventLoop()

	w.logger.Info().Str("file", w.path).Dur("debounce", w.debounce).Msg("Watching settings file")
	return nil
}

// Stop shuts the watcher down and waits for a pending reload to finish
func (w *Watcher) Stop() error {
	select {
	case <-w.done:
		return nil
	default:
	}

	close(w.done)
	w.wg.Wait()

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	return w.fsWatcher.Close()
}

// eventLoop collects events for the settings file and fires the reload once
// they stop arriving
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	var pending domain.FileChangeEvent

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			changeType, ok := changeTypeOf(event.Op)
			if !ok {
				continue
			}
			pending = domain.FileChangeEvent{Type: changeType, FilePath: event.Name}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.runReload(pending)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Str("file", w.path).Msg("File watch error")
		}
	}
}

// changeTypeOf maps the operations that can change the settings content
func changeTypeOf(op fsnotify.Op) (domain.ChangeType, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return domain.ChangeCreated, true
	case op.Has(fsnotify.Write):
		return domain.ChangeModified, true
	case op.Has(fsnotify.Remove):
		return domain.ChangeDeleted, true
	default:
		return "", false
	}
}

func (w *Watcher) runReload(change domain.FileChangeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := w.reload(ctx)

	w.mu.Lock()
	w.lastReload = time.Now()
	w.lastErr = err
	w.lastChange = change
	if err != nil {
		w.failures++
	} else {
		w.reloads++
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error().Err(err).Str("file", w.path).Str("change", string(change.Type)).Msg("Failed to reload filters after settings change")
		return
	}
	w.logger.Info().Str("file", w.path).Str("change", string(change.Type)).Msg("Filters reloaded after settings change")
}

// HealthCheck reports whether the watcher runs and the last reload succeeded
func (w *Watcher) HealthCheck(ctx context.Context) domain.HealthStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := domain.HealthStatusHealthy
	message := "Watching settings file"
	details := map[string]any{
		"file":     w.path,
		"reloads":  w.reloads,
		"failures": w.failures,
	}
	if !w.lastReload.IsZero() {
		details["last_reload"] = w.lastReload
		details["last_change"] = w.lastChange
	}

	switch {
	case !w.running:
		status = domain.HealthStatusDegraded
		message = "Watcher is not running"
	case w.lastErr != nil:
		status = domain.HealthStatusDegraded
		message = "Last reload failed"
		details["error"] = w.lastErr.Error()
	}

	return domain.HealthStatus{
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}
