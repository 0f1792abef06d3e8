// FILE: lixenwraith/iniconf/watch.go
package iniconf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const DefaultMaxWatchers = 100 // Prevent resource exhaustion

// Notifications sent to subscribers besides changed directive names.
const (
	EventFileDeleted        = "file_deleted"
	EventPermissionsChanged = "permissions_changed"
	EventReloadTimeout      = "reload_timeout"
	EventReloadErrorPrefix  = "reload_error:"
)

// WatchOptions configures static file watching behavior
type WatchOptions struct {
	// PollInterval for file stat checks (minimum 100ms)
	PollInterval time.Duration

	// Debounce duration to avoid rapid reloads
	Debounce time.Duration

	// MaxWatchers limits concurrent subscriber channels
	MaxWatchers int

	// ReloadTimeout bounds one reload and reconciliation
	ReloadTimeout time.Duration

	// VerifyPermissions refuses reloads after group/world permission changes
	VerifyPermissions bool

	// DisableEvents turns off fsnotify and relies on polling alone
	DisableEvents bool
}

// DefaultWatchOptions returns sensible defaults for file watching
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		PollInterval:      DefaultPollInterval,
		Debounce:          DefaultDebounce,
		MaxWatchers:       DefaultMaxWatchers,
		ReloadTimeout:     DefaultReloadTimeout,
		VerifyPermissions: true,
	}
}

// StaticWatcher reloads a host's static configuration file when it changes,
// reconciles the manager and notifies subscribers of changed directive names.
type StaticWatcher struct {
	mu               sync.RWMutex
	ctx              context.Context
	cancel           context.CancelFunc
	opts             WatchOptions
	logger           zerolog.Logger
	host             *MemoryHost
	manager          *Manager
	filePath         string
	events           *fsnotify.Watcher
	lastModTime      time.Time
	lastSize         int64
	lastMode         os.FileMode
	watching         atomic.Bool
	reloadInProgress atomic.Bool
	subscribers      map[int64]chan string
	subscriberID     atomic.Int64
	debounceTimer    *time.Timer
}

// WatchStatic loads path into host, reconciles and starts watching the file.
func (m *Manager) WatchStatic(host *MemoryHost, path string, opts WatchOptions) (*StaticWatcher, error) {
	if opts.PollInterval < MinPollInterval {
		opts.PollInterval = MinPollInterval
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MaxWatchers <= 0 {
		opts.MaxWatchers = DefaultMaxWatchers
	}
	if opts.ReloadTimeout <= 0 {
		opts.ReloadTimeout = DefaultReloadTimeout
	}

	if _, err := host.LoadStaticFile(path); err != nil {
		return nil, fmt.Errorf("failed to load static file for watching: %w", err)
	}
	if err := m.Reconcile(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &StaticWatcher{
		ctx:         ctx,
		cancel:      cancel,
		opts:        opts,
		logger:      m.logger.With().Str("static", path).Logger(),
		host:        host,
		manager:     m,
		filePath:    path,
		subscribers: make(map[int64]chan string),
	}
	if info, err := os.Stat(path); err == nil {
		w.lastModTime = info.ModTime()
		w.lastSize = info.Size()
		w.lastMode = info.Mode()
	}

	if !opts.DisableEvents {
		if events, err := fsnotify.NewWatcher(); err != nil {
			w.logger.Debug().Err(err).Msg("File events unavailable, polling only")
		} else if err := events.Add(filepath.Dir(path)); err != nil {
			_ = events.Close()
			w.logger.Debug().Err(err).Msg("Cannot watch static file directory, polling only")
		} else {
			w.events = events
		}
	}

	w.watching.Store(true)
	go w.watchLoop()
	return w, nil
}

// Path returns the watched file.
func (w *StaticWatcher) Path() string { return w.filePath }

// IsWatching reports whether the watch loop is running.
func (w *StaticWatcher) IsWatching() bool { return w.watching.Load() }

// SubscriberCount returns the number of active subscriber channels
func (w *StaticWatcher) SubscriberCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.subscribers)
}

// watchLoop is the main file watching loop
func (w *StaticWatcher) watchLoop() {
	defer w.watching.Store(false)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if w.events != nil {
		events = w.events.Events
		errs = w.events.Errors
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.checkAndReload()
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(evt.Name) == filepath.Clean(w.filePath) &&
				evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Chmod) != 0 {
				w.checkAndReload()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Debug().Err(err).Msg("Static file watcher error")
		}
	}
}

// checkAndReload checks if file changed and schedules a reload
func (w *StaticWatcher) checkAndReload() {
	info, err := os.Stat(w.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			w.notify(EventFileDeleted)
		}
		return
	}

	changed := !info.ModTime().Equal(w.lastModTime) || info.Size() != w.lastSize

	if w.opts.VerifyPermissions && w.lastMode != 0 && info.Mode() != w.lastMode {
		if (info.Mode() & 0077) != (w.lastMode & 0077) {
			w.notify(EventPermissionsChanged)
		}
		w.lastMode = info.Mode()
	}

	if !changed {
		return
	}
	w.lastModTime = info.ModTime()
	w.lastSize = info.Size()
	w.lastMode = info.Mode()

	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.opts.Debounce, w.performReload)
	w.mu.Unlock()
}

// performReload reloads the static file, reconciles and notifies changed names
func (w *StaticWatcher) performReload() {
	if !w.reloadInProgress.CompareAndSwap(false, true) {
		return
	}
	defer w.reloadInProgress.Store(false)

	ctx, cancel := context.WithTimeout(w.ctx, w.opts.ReloadTimeout)
	defer cancel()

	type result struct {
		changed []string
		err     error
	}
	done := make(chan result, 1)
	go func() {
		changed, err := w.host.LoadStaticFile(w.filePath)
		if err == nil && len(changed) > 0 {
			err = w.manager.Reconcile()
		}
		done <- result{changed: changed, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			w.logger.Warn().Err(res.err).Msg("Static file reload failed")
			w.notify(EventReloadErrorPrefix + res.err.Error())
			return
		}
		if len(res.changed) > 0 {
			w.logger.Debug().Strs("directives", res.changed).Msg("Static file reloaded")
		}
		for _, name := range res.changed {
			w.notify(name)
		}
	case <-ctx.Done():
		w.notify(EventReloadTimeout)
	}
}

// Subscribe returns a channel receiving changed directive names and events.
// It is closed when the watcher stops.
func (w *StaticWatcher) Subscribe() <-chan string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.subscribers) >= w.opts.MaxWatchers || w.ctx.Err() != nil {
		ch := make(chan string)
		close(ch)
		return ch
	}

	// Buffered channel to prevent blocking
	ch := make(chan string, 10)
	id := w.subscriberID.Add(1)
	w.subscribers[id] = ch

	go func() {
		<-w.ctx.Done()
		w.mu.Lock()
		delete(w.subscribers, id)
		close(ch)
		w.mu.Unlock()
	}()

	return ch
}

// notify sends a notification to all subscribers, dropping it for full channels
func (w *StaticWatcher) notify(msg string) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.ctx.Err() != nil {
		return
	}
	for _, ch := range w.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Stop terminates the watcher
func (w *StaticWatcher) Stop() {
	w.cancel()

	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.mu.Unlock()

	if w.events != nil {
		_ = w.events.Close()
	}

	// Wait for watch loop to exit with timeout
	for i := 0; i < int(shutdownPollCycles) && w.watching.Load(); i++ {
		time.Sleep(SpinWaitInterval)
	}
}
