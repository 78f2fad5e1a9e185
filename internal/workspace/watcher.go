// Package workspace watches the project directory and publishes change
// notifications on the event bus.
package workspace

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/appforge-ai/appforge/internal/event"
)

// DefaultDebounce batches rapid change bursts into one notification.
const DefaultDebounce = 200 * time.Millisecond

// ignoredDirs are never watched; they churn constantly and carry nothing a
// client needs to see.
var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
	".next":        true,
}

// Watcher watches a workspace tree recursively and publishes debounced
// FileChanged events with workspace-relative paths.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	bus      *event.Bus
	debounce time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher rooted at root. Directories are registered
// up front; directories created later are picked up from create events.
func NewWatcher(root string, bus *event.Bus, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fsw,
		root:     root,
		bus:      bus,
		debounce: DefaultDebounce,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if ignoredDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Start begins watching. Calling Start twice is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	pending := make(map[string]bool)
	var timer *time.Timer
	var fire <-chan time.Time

	flush := func() {
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		pending = make(map[string]bool)
		fire = nil

		w.log.Debug().Strs("paths", paths).Msg("workspace changed")
		w.bus.Publish(event.Event{Type: event.FileChanged, Data: event.FileChangedData{Paths: paths}})
	}

	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, err := filepath.Rel(w.root, ev.Name)
			if err != nil || isIgnored(rel) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.addTree(ev.Name)
					continue
				}
			}
			pending[filepath.ToSlash(rel)] = true
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
			flush()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("workspace watcher error")
		}
	}
}

func isIgnored(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if ignoredDirs[part] {
			return true
		}
	}
	return false
}

// Stop stops the watcher and waits for its loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}
