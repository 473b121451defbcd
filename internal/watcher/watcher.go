// Package watcher reports input device nodes appearing in and disappearing
// from a directory, normally /dev/input.
package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a new node must exist before it is reported.
// udev changes node permissions shortly after creating it.
const DefaultSettle = 250 * time.Millisecond

// Op is what happened to a node.
type Op uint8

const (
	Added Op = iota + 1
	Removed
)

func (o Op) String() string {
	switch o {
	case Added:
		return "added"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Event is a device node change.
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// Watcher monitors a directory for nodes matching a glob pattern.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dir       string
	pattern   string
	settle    time.Duration

	// path -> time the node was last created
	pending   map[string]time.Time
	pendingMu sync.Mutex

	events chan Event
	errors chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher for nodes in dir whose base name matches pattern
// ("event*" for evdev nodes).
func New(dir, pattern string, settle time.Duration) (*Watcher, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, err
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if settle <= 0 {
		settle = DefaultSettle
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		dir:       dir,
		pattern:   pattern,
		settle:    settle,
		pending:   make(map[string]time.Time),
		events:    make(chan Event, 32),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}, nil
}

// Events returns the channel of node events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start begins watching. Nodes present before Start are not reported; use
// Existing for those.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(w.dir); err != nil {
		return err
	}
	w.wg.Add(2)
	go w.eventLoop()
	go w.settleLoop()
	return nil
}

// Stop shuts the watcher down and closes its channels.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsWatcher.Close()
}

// Existing lists the matching nodes currently in the directory, sorted.
func (w *Watcher) Existing() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !w.matches(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(w.dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func (w *Watcher) matches(name string) bool {
	ok, _ := filepath.Match(w.pattern, filepath.Base(name))
	return ok
}

func (w *Watcher) send(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}

			switch {
			case event.Op&fsnotify.Create != 0:
				w.pendingMu.Lock()
				w.pending[event.Name] = time.Now()
				w.pendingMu.Unlock()

			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.pendingMu.Lock()
				_, wasPending := w.pending[event.Name]
				delete(w.pending, event.Name)
				w.pendingMu.Unlock()
				if !wasPending {
					w.send(Event{Path: event.Name, Op: Removed, Timestamp: time.Now()})
				}
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) settleLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			for _, path := range w.settled(now) {
				w.send(Event{Path: path, Op: Added, Timestamp: now})
			}
		}
	}
}

// settled removes and returns the pending nodes created at least settle
// ago that still exist.
func (w *Watcher) settled(now time.Time) []string {
	threshold := now.Add(-w.settle)

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	var ready []string
	for path, created := range w.pending {
		if created.After(threshold) {
			continue
		}
		delete(w.pending, path)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		ready = append(ready, path)
	}
	sort.Strings(ready)
	return ready
}

// Pending returns the number of nodes waiting to settle.
func (w *Watcher) Pending() int {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	return len(w.pending)
}
