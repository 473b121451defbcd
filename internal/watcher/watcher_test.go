package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExistingFiltersByPattern(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"event3", "event10", "mouse0", "js0"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "by-id"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	w, err := New(dir, "event*", 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.fsWatcher.Close()

	got, err := w.Existing()
	if err != nil {
		t.Fatalf("Existing: %v", err)
	}
	want := []string{filepath.Join(dir, "event10"), filepath.Join(dir, "event3")}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Existing = %v, want %v", got, want)
	}
}

func TestBadPattern(t *testing.T) {
	if _, err := New(t.TempDir(), "[", 0); err == nil {
		t.Error("expected error for malformed pattern")
	}
}

func TestSettledSkipsYoungAndVanished(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, "event*", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.fsWatcher.Close()

	old := filepath.Join(dir, "event1")
	gone := filepath.Join(dir, "event2")
	young := filepath.Join(dir, "event3")
	if err := os.WriteFile(old, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(young, nil, 0600); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	w.pending[old] = now.Add(-time.Second)
	w.pending[gone] = now.Add(-time.Second)
	w.pending[young] = now

	ready := w.settled(now)
	if len(ready) != 1 || ready[0] != old {
		t.Errorf("settled = %v, want [%s]", ready, old)
	}
	if w.Pending() != 1 {
		t.Errorf("pending = %d, want 1", w.Pending())
	}
}

func TestWatcherReportsAddAndRemove(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, "event*", 40*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	node := filepath.Join(dir, "event7")
	if err := os.WriteFile(node, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "mice"), nil, 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		if ev.Path != node || ev.Op != Added {
			t.Fatalf("got %v %s, want added %s", ev.Op, ev.Path, node)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for add")
	}

	if err := os.Remove(node); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-w.Events():
		if ev.Path != node || ev.Op != Removed {
			t.Fatalf("got %v %s, want removed %s", ev.Op, ev.Path, node)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for remove")
	}
}
