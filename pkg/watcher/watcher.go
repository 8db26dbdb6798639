// Package watcher follows a set of files and delivers debounced batches of
// the paths that changed. It uses fsnotify on the parent directories and
// falls back to polling file stats when notifications are unavailable.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the stat interval in polling mode.
const DefaultPollInterval = 2 * time.Second

// ForcePollEnv, when truthy, makes every watcher poll.
const ForcePollEnv = "GRIDROWS_FORCE_POLL"

var (
	ErrFileRemoved    = errors.New("watched file was removed")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
	ErrNoPaths        = errors.New("no paths to watch")
)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a batch is delivered.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithPollInterval sets the stat interval used in polling mode.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithOnError receives removal, permission and notification errors.
func WithOnError(fn func(error)) Option {
	return func(w *Watcher) {
		if fn != nil {
			w.onError = fn
		}
	}
}

// WithForcePoll skips fsnotify.
func WithForcePoll(force bool) Option {
	return func(w *Watcher) { w.forcePoll = force }
}

type fileState struct {
	exists bool
	mtime  time.Time
	size   int64
}

// Watcher follows a fixed set of files.
type Watcher struct {
	paths        []string
	debounce     time.Duration
	pollInterval time.Duration
	onError      func(error)
	forcePoll    bool

	debouncer *Debouncer
	changes   chan []string

	mu      sync.Mutex
	started bool
	polling bool
	cancel  context.CancelFunc
	fsw     *fsnotify.Watcher
	state   map[string]fileState
	pending map[string]bool

	sendMu sync.Mutex
}

// New returns a watcher for paths. Paths are made absolute and duplicates
// dropped; batches list paths in this order.
func New(paths []string, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		debounce:     DefaultDebounceDuration,
		pollInterval: DefaultPollInterval,
		onError:      func(error) {},
		changes:      make(chan []string, 1),
		state:        make(map[string]fileState),
		pending:      make(map[string]bool),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(w.paths, abs) {
			w.paths = append(w.paths, abs)
		}
	}
	if len(w.paths) == 0 {
		return nil, ErrNoPaths
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debouncer = NewDebouncer(w.debounce)
	return w, nil
}

// Start snapshots every file and begins watching. Missing files are fine;
// their creation counts as a change.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}

	for _, p := range w.paths {
		st, err := stat(p)
		if err != nil {
			return err
		}
		w.state[p] = st
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.polling = w.forcePoll || envBool(ForcePollEnv)
	if !w.polling {
		fsw, err := w.watchDirs()
		if err != nil {
			w.polling = true
		} else {
			w.fsw = fsw
			go w.runFsnotify(ctx, fsw)
		}
	}
	if w.polling {
		go w.runPolling(ctx)
	}
	w.started = true
	return nil
}

func (w *Watcher) watchDirs() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	var added []string
	for _, p := range w.paths {
		// Directories survive the rename-over-target that editors use to save.
		dir := filepath.Dir(p)
		if slices.Contains(added, dir) {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, err
		}
		added = append(added, dir)
	}
	return fsw, nil
}

// Stop ends watching and drops any pending batch. Changes stays open.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.cancel()
	if w.fsw != nil {
		w.fsw.Close()
		w.fsw = nil
	}
	w.debouncer.Cancel()
	clear(w.pending)
	w.started = false
}

// Changes delivers batches of changed paths. An unread batch is merged with
// the next one rather than dropped.
func (w *Watcher) Changes() <-chan []string { return w.changes }

// Paths returns the absolute watched paths.
func (w *Watcher) Paths() []string { return slices.Clone(w.paths) }

// Polling reports whether the watcher fell back to (or was forced into)
// polling.
func (w *Watcher) Polling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.polling
}

// Started reports whether Start succeeded and Stop has not been called.
func (w *Watcher) Started() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// PollInterval returns the stat interval used in polling mode.
func (w *Watcher) PollInterval() time.Duration { return w.pollInterval }

func (w *Watcher) runFsnotify(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			path := filepath.Clean(ev.Name)
			if !slices.Contains(w.paths, path) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Remove):
				w.onError(fmt.Errorf("%w: %s", ErrFileRemoved, path))
			case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create), ev.Has(fsnotify.Rename):
				w.mark(path)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range w.paths {
				w.poll(p)
			}
		}
	}
}

func (w *Watcher) poll(path string) {
	cur, err := stat(path)
	if err != nil {
		w.onError(err)
		return
	}
	w.mu.Lock()
	prev := w.state[path]
	w.state[path] = cur
	w.mu.Unlock()

	switch {
	case prev.exists && !cur.exists:
		w.onError(fmt.Errorf("%w: %s", ErrFileRemoved, path))
	case cur.exists && (!prev.exists || cur.mtime.After(prev.mtime) || cur.size != prev.size):
		w.mark(path)
	}
}

func stat(path string) (fileState, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return fileState{exists: true, mtime: info.ModTime(), size: info.Size()}, nil
	case os.IsNotExist(err):
		return fileState{}, nil
	case os.IsPermission(err):
		return fileState{}, fmt.Errorf("%w: %s", ErrPermission, path)
	default:
		return fileState{}, err
	}
}

func (w *Watcher) mark(path string) {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.pending[path] = true
	w.mu.Unlock()
	w.debouncer.Trigger(w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	var batch []string
	for _, p := range w.paths {
		if w.pending[p] {
			batch = append(batch, p)
		}
	}
	clear(w.pending)
	w.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	select {
	case unread := <-w.changes:
		batch = w.merge(unread, batch)
	default:
	}
	w.changes <- batch
}

// merge returns the union of a and b in watch order.
func (w *Watcher) merge(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	for _, p := range w.paths {
		if slices.Contains(a, p) || slices.Contains(b, p) {
			out = append(out, p)
		}
	}
	return out
}

func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
