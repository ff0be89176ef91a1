// Package watch delivers debounced file change notifications for the
// directories that hold task and launch files.
//
// One fsnotify backend feeds a per-path debounce map: rapid operations
// on the same path within the debounce window are coalesced into a
// single event carrying the combined op mask. Consumers read a
// buffered channel; when it is full, events are dropped and counted
// rather than blocking the watcher. If the backend dies the watcher
// marks itself dead and the app falls back to TTL-based refreshes.
package watch

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher errors.
var (
	ErrClosed       = errors.New("watch: watcher closed")
	ErrPathNotExist = errors.New("watch: path does not exist")
	ErrNotWatching  = errors.New("watch: path not watched")
	ErrWatchLimit   = errors.New("watch: watch limit reached")
)

// Op is a bitmask of file system operations.
type Op uint32

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed.
	OpRename
	// OpChmod indicates permissions changed.
	OpChmod
)

// Has reports whether the mask includes o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// String returns the mask as "CREATE|WRITE" style text.
func (op Op) String() string {
	if op == 0 {
		return "NONE"
	}
	var parts []string
	for _, entry := range []struct {
		op   Op
		name string
	}{
		{OpCreate, "CREATE"},
		{OpWrite, "WRITE"},
		{OpRemove, "REMOVE"},
		{OpRename, "RENAME"},
		{OpChmod, "CHMOD"},
	} {
		if op.Has(entry.op) {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(parts, "|")
}

// Event is one coalesced file change.
type Event struct {
	// Path is the absolute path of the changed file or directory.
	Path string

	// Op is the combined mask of operations seen within the debounce
	// window.
	Op Op

	// Time is when the last coalesced operation arrived.
	Time time.Time
}

// Stats is a snapshot of watcher counters.
type Stats struct {
	WatchedDirs int
	Pending     int
	Delivered   uint64
	Dropped     uint64
	Errors      uint64
	Dead        bool
}

// Watcher monitors directories and delivers debounced events.
type Watcher struct {
	debounce   time.Duration
	bufSize    int
	ignore     []string
	maxWatches int
	logger     *zap.Logger

	fs     *fsnotify.Watcher
	events chan Event

	mu      sync.Mutex
	dirs    map[string]bool
	pending map[string]*pendingEvent
	closed  bool

	closeCh chan struct{}
	wg      sync.WaitGroup

	delivered atomic.Uint64
	dropped   atomic.Uint64
	errCount  atomic.Uint64
	dead      atomic.Bool
}

type pendingEvent struct {
	ops   Op
	at    time.Time
	timer *time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithBufferSize sets the event channel capacity.
func WithBufferSize(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.bufSize = n
		}
	}
}

// WithIgnore sets name patterns to skip. Patterns match the base name
// of changed paths and of directories during recursive adds, so
// ".git" or "*.log" apply anywhere.
func WithIgnore(patterns []string) Option {
	return func(w *Watcher) {
		w.ignore = append([]string(nil), patterns...)
	}
}

// WithMaxWatches caps how many directories can be watched.
func WithMaxWatches(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.maxWatches = n
		}
	}
}

// WithLogger sets the logger for backend errors.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a watcher and starts its processing loop.
func New(opts ...Option) (*Watcher, error) {
	w := &Watcher{
		debounce:   100 * time.Millisecond,
		bufSize:    64,
		maxWatches: 1024,
		logger:     zap.NewNop(),
		dirs:       make(map[string]bool),
		pending:    make(map[string]*pendingEvent),
		closeCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w.fs = fs
	w.events = make(chan Event, w.bufSize)

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Events returns the event channel. It is closed by Close.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Add watches one directory. Adding a watched directory is a no-op.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return ErrPathNotExist
		}
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.dirs[abs] {
		return nil
	}
	if w.maxWatches > 0 && len(w.dirs) >= w.maxWatches {
		return ErrWatchLimit
	}
	if err := w.fs.Add(abs); err != nil {
		return err
	}
	w.dirs[abs] = true
	return nil
}

// AddRecursive watches a directory tree, skipping ignored directory
// names.
func (w *Watcher) AddRecursive(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrPathNotExist
		}
		return err
	}
	if !info.IsDir() {
		return w.Add(abs)
	}

	return filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != abs && w.ignored(p) {
			return filepath.SkipDir
		}
		if err := w.Add(p); err != nil {
			if errors.Is(err, ErrWatchLimit) || errors.Is(err, ErrClosed) {
				return err
			}
		}
		return nil
	})
}

// Remove stops watching a directory.
func (w *Watcher) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if !w.dirs[abs] {
		return ErrNotWatching
	}
	if err := w.fs.Remove(abs); err != nil {
		return err
	}
	delete(w.dirs, abs)
	return nil
}

// Watched returns the watched directories, sorted.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.dirs))
	for dir := range w.dirs {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

// IsWatching reports whether the directory is watched.
func (w *Watcher) IsWatching(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dirs[abs]
}

// Dead reports whether the backend stopped unexpectedly. A dead
// watcher delivers no further events; callers should rely on
// TTL-based refreshes instead.
func (w *Watcher) Dead() bool {
	return w.dead.Load()
}

// Stats returns a snapshot of watcher counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	watched := len(w.dirs)
	pending := len(w.pending)
	w.mu.Unlock()
	return Stats{
		WatchedDirs: watched,
		Pending:     pending,
		Delivered:   w.delivered.Load(),
		Dropped:     w.dropped.Load(),
		Errors:      w.errCount.Load(),
		Dead:        w.dead.Load(),
	}
}

// Close stops the watcher and closes the event channel. Close is
// idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	close(w.closeCh)
	w.mu.Unlock()

	w.wg.Wait()
	err := w.fs.Close()
	close(w.events)
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case fsEvent, ok := <-w.fs.Events:
			if !ok {
				w.markDead()
				return
			}
			w.handle(fsEvent)

		case err, ok := <-w.fs.Errors:
			if !ok {
				w.markDead()
				return
			}
			w.errCount.Add(1)
			w.logger.Debug("watcher backend error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(fsEvent fsnotify.Event) {
	op := convertOp(fsEvent.Op)
	if op == 0 {
		return
	}
	if w.ignored(fsEvent.Name) {
		return
	}

	// Watch directories as they appear so task files created inside a
	// brand-new .runbar/ are still seen.
	if op.Has(OpCreate) {
		if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
			if err := w.Add(fsEvent.Name); err != nil && !errors.Is(err, ErrClosed) {
				w.logger.Debug("auto-watching new directory failed",
					zap.String("path", fsEvent.Name),
					zap.Error(err))
			}
		}
	}

	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if p, ok := w.pending[fsEvent.Name]; ok {
		p.ops |= op
		p.at = now
		p.timer.Reset(w.debounce)
		return
	}

	path := fsEvent.Name
	p := &pendingEvent{ops: op, at: now}
	p.timer = time.AfterFunc(w.debounce, func() { w.fire(path) })
	w.pending[path] = p
}

// fire delivers one coalesced event. The send happens under the mutex
// and never blocks, so Close cannot race the channel closure and a
// slow consumer costs a counted drop instead of a stall.
func (w *Watcher) fire(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	p, ok := w.pending[path]
	if !ok {
		return
	}
	delete(w.pending, path)

	select {
	case w.events <- Event{Path: path, Op: p.ops, Time: p.at}:
		w.delivered.Add(1)
	default:
		w.dropped.Add(1)
	}
}

func (w *Watcher) markDead() {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}
	if w.dead.CompareAndSwap(false, true) {
		w.logger.Warn("file watcher stopped unexpectedly, falling back to periodic refresh")
	}
}

// ignored matches the path's base name against the ignore patterns.
func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.ignore {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	if fsOp.Has(fsnotify.Chmod) {
		op |= OpChmod
	}
	return op
}
