package task

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dshills/runbar/internal/workspace"
)

// maxConcurrentDiscover limits the number of concurrent file reads
// during a refresh.
var maxConcurrentDiscover = runtime.GOMAXPROCS(0) * 2

// Scope declares where a source's patterns are anchored.
type Scope int

const (
	// ScopeFolder anchors patterns to each workspace folder.
	ScopeFolder Scope = iota
	// ScopeUser marks patterns as absolute paths outside the
	// workspace (user-level task files).
	ScopeUser
)

// Source enumerates tasks from definition files.
type Source interface {
	// Name returns the source name (e.g., "runbar", "editor").
	Name() string

	// Patterns returns the paths of files this source reads. For
	// ScopeFolder sources the paths are folder-relative; for ScopeUser
	// sources they are absolute.
	Patterns() []string

	// Priority orders tasks from different sources (higher first).
	Priority() int

	// Scope declares how Patterns are anchored.
	Scope() Scope

	// Discover enumerates tasks from the given file. A missing file
	// returns nil, nil.
	Discover(ctx context.Context, path string) ([]*Task, error)
}

// DiscoverError represents an error while reading one definition file.
type DiscoverError struct {
	Source string
	File   string
	Err    error
}

func (e DiscoverError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.File, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e DiscoverError) Unwrap() error { return e.Err }

// RefreshResult describes the outcome of a registry refresh.
type RefreshResult struct {
	// Tasks is the new snapshot in display order.
	Tasks []*Task

	// ByFolder groups tasks by folder name.
	ByFolder map[string][]*Task

	// ByGroup groups tasks by task group.
	ByGroup map[Group][]*Task

	// Errors contains per-file enumeration errors.
	Errors []DiscoverError

	// Added, Removed, and Changed list task IDs that differ from the
	// previous snapshot.
	Added   []string
	Removed []string
	Changed []string

	// Duration is how long the refresh took.
	Duration time.Duration

	// Timestamp is when the refresh completed.
	Timestamp time.Time
}

// Registry mirrors the workspace's tasks. It never executes anything;
// it exists so the status bar can offer candidates and validate a
// persisted selection.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source

	ws  *workspace.Workspace
	ttl time.Duration

	// refreshMu serializes refreshes; snapshot reads stay cheap.
	refreshMu sync.Mutex

	tasks       []*Task
	byID        map[string]*Task
	errs        []DiscoverError
	refreshedAt time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTL sets how long a snapshot stays fresh without a refresh.
func WithTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// New creates a task registry for the given workspace.
func New(ws *workspace.Workspace, opts ...Option) *Registry {
	r := &Registry{
		sources: make(map[string]Source),
		ws:      ws,
		ttl:     5 * time.Minute,
		byID:    make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterSource registers a task source.
func (r *Registry) RegisterSource(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.Name()] = source
}

// UnregisterSource removes a task source.
func (r *Registry) UnregisterSource(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sources, name)
}

// Sources returns the registered source names, sorted.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the current task list in display order. The
// returned slice is a copy; the tasks are shared and must not be
// mutated.
func (r *Registry) Snapshot() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

// Get returns the task with the given ID from the current snapshot.
func (r *Registry) Get(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// Exists reports whether a task ID is present in the current snapshot.
func (r *Registry) Exists(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// InGroup returns the tasks in a group, in display order.
func (r *Registry) InGroup(g Group) []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Task
	for _, t := range r.tasks {
		if t.Group == g {
			out = append(out, t)
		}
	}
	return out
}

// Errors returns the per-file errors from the last refresh.
func (r *Registry) Errors() []DiscoverError {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DiscoverError, len(r.errs))
	copy(out, r.errs)
	return out
}

// Fresh reports whether the snapshot is within its TTL.
func (r *Registry) Fresh() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.refreshedAt.IsZero() && time.Since(r.refreshedAt) <= r.ttl
}

// RefreshedAt returns when the snapshot was last rebuilt.
func (r *Registry) RefreshedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshedAt
}

// Invalidate expires the snapshot so the next EnsureFresh refreshes.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshedAt = time.Time{}
}

// EnsureFresh refreshes the snapshot if it has expired. It returns the
// refresh result when a refresh ran, or nil when the snapshot was
// already fresh.
func (r *Registry) EnsureFresh(ctx context.Context) (*RefreshResult, error) {
	if r.Fresh() {
		return nil, nil
	}
	return r.Refresh(ctx)
}

// Refresh re-enumerates every source and swaps in the new snapshot.
// Per-file errors do not abort the refresh; they are collected in the
// result so one broken file cannot hide the others' tasks.
func (r *Registry) Refresh(ctx context.Context) (*RefreshResult, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	start := time.Now()
	folders := r.ws.Folders()
	sources := r.sortedSources()

	type target struct {
		src         Source
		path        string
		folder      string
		folderName  string
		folderIndex int
	}

	var targets []target
	for i, folder := range folders {
		for _, src := range sources {
			if src.Scope() != ScopeFolder {
				continue
			}
			for _, rel := range src.Patterns() {
				targets = append(targets, target{
					src:         src,
					path:        filepath.Join(folder.Path, filepath.FromSlash(rel)),
					folder:      folder.Path,
					folderName:  folder.Name,
					folderIndex: i,
				})
			}
		}
	}
	for _, src := range sources {
		if src.Scope() != ScopeUser {
			continue
		}
		for _, path := range src.Patterns() {
			targets = append(targets, target{
				src:         src,
				path:        path,
				folderName:  "user",
				folderIndex: len(folders),
			})
		}
	}

	type keyed struct {
		task        *Task
		folderIndex int
		priority    int
	}

	var (
		wg       sync.WaitGroup
		resultMu sync.Mutex
		found    []keyed
		errs     []DiscoverError
	)
	sem := make(chan struct{}, maxConcurrentDiscover)

	for _, tgt := range targets {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		wg.Add(1)
		go func(tgt target) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			tasks, err := tgt.src.Discover(ctx, tgt.path)
			resultMu.Lock()
			defer resultMu.Unlock()

			if err != nil {
				errs = append(errs, DiscoverError{Source: tgt.src.Name(), File: tgt.path, Err: err})
				return
			}
			for _, t := range tasks {
				t.Source = tgt.src.Name()
				if t.SourceFile == "" {
					t.SourceFile = tgt.path
				}
				t.Folder = tgt.folder
				t.FolderName = tgt.folderName
				if t.ID == "" {
					t.ID = GenerateID(tgt.folder, tgt.src.Name(), tgt.path, t.Label)
				}
				if t.Group == "" {
					t.Group = InferGroup(t.Label)
				}
				if t.Cwd == "" && tgt.folder != "" {
					t.Cwd = tgt.folder
				}
				found = append(found, keyed{task: t, folderIndex: tgt.folderIndex, priority: tgt.src.Priority()})
			}
		}(tgt)
	}
	wg.Wait()

	// Display order: folder, then source priority, default tasks
	// first, then label.
	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.folderIndex != b.folderIndex {
			return a.folderIndex < b.folderIndex
		}
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if a.task.IsDefault != b.task.IsDefault {
			return a.task.IsDefault
		}
		return a.task.Label < b.task.Label
	})

	next := make([]*Task, 0, len(found))
	nextByID := make(map[string]*Task, len(found))
	for _, k := range found {
		if _, dup := nextByID[k.task.ID]; dup {
			// Same file declaring the same label twice; first wins.
			continue
		}
		next = append(next, k.task)
		nextByID[k.task.ID] = k.task
	}

	result := &RefreshResult{
		Tasks:     next,
		ByFolder:  make(map[string][]*Task),
		ByGroup:   make(map[Group][]*Task),
		Errors:    errs,
		Timestamp: time.Now(),
	}
	for _, t := range next {
		result.ByFolder[t.FolderName] = append(result.ByFolder[t.FolderName], t)
		result.ByGroup[t.Group] = append(result.ByGroup[t.Group], t)
	}

	r.mu.Lock()
	result.Added, result.Removed, result.Changed = diffTasks(r.byID, nextByID)
	r.tasks = next
	r.byID = nextByID
	r.errs = errs
	r.refreshedAt = result.Timestamp
	r.mu.Unlock()

	result.Duration = time.Since(start)
	return result, nil
}

// sortedSources returns registered sources ordered by descending
// priority.
func (r *Registry) sortedSources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() > out[j].Priority()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// diffTasks compares two snapshots by ID.
func diffTasks(old, next map[string]*Task) (added, removed, changed []string) {
	for id, t := range next {
		prev, ok := old[id]
		if !ok {
			added = append(added, id)
			continue
		}
		if !tasksEqual(prev, t) {
			changed = append(changed, id)
		}
	}
	for id := range old {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changed)
	return added, removed, changed
}

// tasksEqual compares the definition-derived fields of two tasks.
func tasksEqual(a, b *Task) bool {
	return a.Label == b.Label &&
		a.Detail == b.Detail &&
		a.Type == b.Type &&
		a.Group == b.Group &&
		a.Command == b.Command &&
		slices.Equal(a.Args, b.Args) &&
		a.Cwd == b.Cwd &&
		maps.Equal(a.Env, b.Env) &&
		slices.Equal(a.DependsOn, b.DependsOn) &&
		a.ProblemMatcher == b.ProblemMatcher &&
		a.IsBackground == b.IsBackground &&
		a.IsDefault == b.IsDefault
}
