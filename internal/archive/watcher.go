// internal/archive/watcher.go
package archive

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SessionEventType classifies an archive change
type SessionEventType string

const (
	SessionCreated SessionEventType = "created"
	SessionUpdated SessionEventType = "updated"
	SessionRemoved SessionEventType = "removed"
)

// SessionEvent reports a change to one session file in the archive
type SessionEvent struct {
	Type        SessionEventType
	SessionID   string
	ProjectPath string
	FilePath    string
}

// Watcher watches the archive root and its project directories for session
// file changes, debouncing rapid write bursts (agents append JSONL lines
// continuously while a session is live).
type Watcher struct {
	archive  *Archive
	debounce time.Duration
	callback func(SessionEvent)
	watcher  *fsnotify.Watcher
	done     chan struct{}
	started  bool
	closed   bool
	mu       sync.Mutex

	debouncer  map[string]*time.Timer
	debounceMu sync.Mutex
}

// NewWatcher creates a Watcher over the archive. Every existing project
// directory is registered up front; directories created later are picked up
// from create events on the root.
func NewWatcher(a *Archive, debounce time.Duration, callback func(SessionEvent)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := fsw.Add(a.Root()); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch archive root %s: %w", a.Root(), err)
	}

	entries, err := os.ReadDir(a.Root())
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				fsw.Add(filepath.Join(a.Root(), entry.Name()))
			}
		}
	}

	return &Watcher{
		archive:   a,
		debounce:  debounce,
		callback:  callback,
		watcher:   fsw,
		done:      make(chan struct{}),
		debouncer: make(map[string]*time.Timer),
	}, nil
}

// Start begins delivering session events
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watcher is closed")
	}
	if w.started {
		return fmt.Errorf("watcher already started")
	}
	w.started = true

	go w.watch()
	return nil
}

// Close stops watching and cancels pending debounce timers
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.started {
		close(w.done)
	}

	w.debounceMu.Lock()
	for _, timer := range w.debouncer {
		timer.Stop()
	}
	w.debouncer = make(map[string]*time.Timer)
	w.debounceMu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) watch() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[ArchiveWatcher] error: %v", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New project directory: start watching inside it
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.watcher.Add(event.Name)
			return
		}
	}

	if !isSessionFile(event.Name) {
		return
	}

	var eventType SessionEventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = SessionCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = SessionUpdated
	case event.Op&fsnotify.Remove == fsnotify.Remove, event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = SessionRemoved
	default:
		return
	}

	w.debounceEvent(SessionEvent{
		Type:        eventType,
		SessionID:   fileStem(event.Name),
		ProjectPath: filepath.Base(filepath.Dir(event.Name)),
		FilePath:    event.Name,
	})
}

// debounceEvent coalesces bursts of events for the same session file
func (w *Watcher) debounceEvent(e SessionEvent) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.debouncer[e.FilePath]; exists {
		timer.Stop()
	}

	w.debouncer[e.FilePath] = time.AfterFunc(w.debounce, func() {
		w.debounceMu.Lock()
		delete(w.debouncer, e.FilePath)
		w.debounceMu.Unlock()

		w.callback(e)
	})
}
