// internal/archive/watcher_test.go
package archive

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func startWatcher(t *testing.T, a *Archive) (*Watcher, func() []SessionEvent) {
	t.Helper()

	var mu sync.Mutex
	var events []SessionEvent

	w, err := NewWatcher(a, 50*time.Millisecond, func(e SessionEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Give the watcher time to start
	time.Sleep(100 * time.Millisecond)

	return w, func() []SessionEvent {
		mu.Lock()
		defer mu.Unlock()
		out := make([]SessionEvent, len(events))
		copy(out, events)
		return out
	}
}

func TestWatcherMissingRootFails(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "nope"))
	if _, err := NewWatcher(a, 50*time.Millisecond, func(SessionEvent) {}); err == nil {
		t.Fatal("expected error for missing archive root")
	}
}

func TestWatcherSessionCreated(t *testing.T) {
	root, a := seedArchive(t)
	_, getEvents := startWatcher(t, a)

	path := filepath.Join(root, "project-alpha", "sess-new.jsonl")
	if err := os.WriteFile(path, []byte(`{"type":"user","message":{"role":"user","content":"hi"}}`+"\n"), 0644); err != nil {
		t.Fatalf("failed to create session file: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	found := false
	for _, e := range getEvents() {
		if e.SessionID == "sess-new" && e.ProjectPath == "project-alpha" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected event for sess-new, got %+v", getEvents())
	}
}

func TestWatcherIgnoresNonSessionFiles(t *testing.T) {
	root, a := seedArchive(t)
	_, getEvents := startWatcher(t, a)

	path := filepath.Join(root, "project-alpha", "notes.txt")
	if err := os.WriteFile(path, []byte("scratch"), 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	for _, e := range getEvents() {
		if e.FilePath == path {
			t.Errorf("non-session file produced an event: %+v", e)
		}
	}
}

func TestWatcherDebouncesWriteBursts(t *testing.T) {
	root, a := seedArchive(t)
	_, getEvents := startWatcher(t, a)

	path := filepath.Join(root, "project-alpha", "sess-1.jsonl")
	for i := 0; i < 10; i++ {
		if err := os.WriteFile(path, []byte(`{"type":"user","message":{"role":"user","content":"x"}}`+"\n"), 0644); err != nil {
			t.Fatalf("failed to write: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)

	count := 0
	for _, e := range getEvents() {
		if e.FilePath == path {
			count++
		}
	}
	if count >= 10 {
		t.Errorf("expected debouncing to coalesce events, got %d", count)
	}
}

func TestWatcherPicksUpNewProjectDirs(t *testing.T) {
	root, a := seedArchive(t)
	_, getEvents := startWatcher(t, a)

	newDir := filepath.Join(root, "project-gamma")
	if err := os.MkdirAll(newDir, 0755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}

	// Let the watcher register the new directory
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(newDir, "sess-gamma.jsonl")
	if err := os.WriteFile(path, []byte(`{"type":"user","message":{"role":"user","content":"hi"}}`+"\n"), 0644); err != nil {
		t.Fatalf("failed to create session file: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	found := false
	for _, e := range getEvents() {
		if e.SessionID == "sess-gamma" && e.ProjectPath == "project-gamma" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected event from new project dir, got %+v", getEvents())
	}
}

func TestWatcherCloseIdempotent(t *testing.T) {
	_, a := seedArchive(t)

	w, err := NewWatcher(a, 50*time.Millisecond, func(SessionEvent) {})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := w.Start(); err == nil {
		t.Error("Start after Close should fail")
	}
}
