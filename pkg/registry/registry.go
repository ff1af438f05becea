// Package registry implements the generic hot-reload registry: an
// in-memory map mirrored from a directory tree, reloadable without
// restart via debounced filesystem notifications and an atomic pointer
// swap. In-flight readers never observe a partially-built map.
package registry

import (
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LoadFunc builds the full candidate set for a reload. It must not mutate
// any previously returned map.
type LoadFunc[T any] func() (map[string]T, error)

// Registry mirrors a directory tree into an atomically-swapped map.
type Registry[T any] struct {
	root     string
	debounce time.Duration
	load     LoadFunc[T]
	onError  func(id string, err error)

	current    atomic.Pointer[map[string]T]
	generation atomic.Uint64

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// New scans root once to populate the initial set, then starts a watcher
// goroutine that coalesces filesystem events within debounce before
// triggering a reload. onError, if non-nil, is called when a reload fails
// (the previous generation is retained).
func New[T any](root string, debounce time.Duration, load LoadFunc[T], onError func(id string, err error)) (*Registry[T], error) {
	r := &Registry[T]{
		root:     root,
		debounce: debounce,
		load:     load,
		onError:  onError,
		done:     make(chan struct{}),
	}

	initial, err := load()
	if err != nil {
		return nil, fmt.Errorf("initial scan of %s: %w", root, err)
	}
	r.current.Store(&initial)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	r.watcher = w
	if err := addRecursive(w, root); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}

	r.wg.Add(1)
	go r.watchLoop()
	return r, nil
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if filepath.Clean(path) == filepath.Clean(root) {
				return nil // root may not exist yet; watcher reload tolerates that
			}
			return nil
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

// watchLoop coalesces fsnotify events into a single debounced Reload call.
func (r *Registry[T]) watchLoop() {
	defer r.wg.Done()
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-r.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case _, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
				timerC = timer.C
			} else {
				timer.Reset(r.debounce)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			if r.onError != nil {
				r.onError("watcher", err)
			}
		case <-timerC:
			r.Reload()
			timerC = nil
		}
	}
}

// Reload rebuilds the full candidate set off to the side and, on success,
// atomically replaces the active pointer and bumps the generation counter.
// A failed reload retains the previous generation and reports the error;
// it never invalidates the currently-served set.
func (r *Registry[T]) Reload() {
	next, err := r.load()
	if err != nil {
		if r.onError != nil {
			r.onError(r.root, err)
		} else {
			log.Printf("registry: reload of %s failed, keeping previous generation: %v", r.root, err)
		}
		return
	}
	r.current.Store(&next)
	r.generation.Add(1)
}

// Get returns the resource for id as of the moment of the call.
func (r *Registry[T]) Get(id string) (T, bool) {
	m := *r.current.Load()
	v, ok := m[id]
	return v, ok
}

// Snapshot returns the full set as of the moment of the call. The caller
// must treat it as immutable.
func (r *Registry[T]) Snapshot() map[string]T {
	return *r.current.Load()
}

// Generation returns the monotonic reload counter.
func (r *Registry[T]) Generation() uint64 {
	return r.generation.Load()
}

// Close stops the watcher goroutine.
func (r *Registry[T]) Close() error {
	close(r.done)
	err := r.watcher.Close()
	r.wg.Wait()
	return err
}
