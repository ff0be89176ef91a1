package launch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dshills/runbar/internal/registry/jsonc"
	"github.com/dshills/runbar/internal/workspace"
)

// launchFiles are the folder-relative files read per folder, in
// priority order: runbar's own file wins key collisions.
var launchFiles = []string{
	".runbar/launch.json",
	".vscode/launch.json",
}

// GlobalFn supplies settings-level launch entries: decoded
// configuration and compound maps from the user configuration's launch
// table.
type GlobalFn func() (configurations, compounds []map[string]any)

// ReadError represents an error while reading one launch file. The
// file's entries are dropped; other files are unaffected.
type ReadError struct {
	File string
	Err  error
}

func (e ReadError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e ReadError) Unwrap() error { return e.Err }

// RefreshResult describes the outcome of a registry refresh.
type RefreshResult struct {
	// Configs is the new snapshot in display order.
	Configs []*Config

	// Errors contains per-file read errors.
	Errors []ReadError

	// Added, Removed, and Changed list keys that differ from the
	// previous snapshot.
	Added   []string
	Removed []string
	Changed []string

	// Duration is how long the refresh took.
	Duration time.Duration

	// Timestamp is when the refresh completed.
	Timestamp time.Time
}

// Registry mirrors the workspace's launch configurations. It never
// starts a debug session.
type Registry struct {
	mu sync.RWMutex

	ws     *workspace.Workspace
	global GlobalFn
	logger *zap.Logger
	ttl    time.Duration

	refreshMu sync.Mutex

	configs     []*Config
	byKey       map[string]*Config
	errs        []ReadError
	refreshedAt time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithGlobal wires the settings-level launch table source.
func WithGlobal(fn GlobalFn) Option {
	return func(r *Registry) {
		r.global = fn
	}
}

// WithLogger sets the logger used for skip and collision warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTTL sets how long a snapshot stays fresh without a refresh.
func WithTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// New creates a launch registry for the given workspace.
func New(ws *workspace.Workspace, opts ...Option) *Registry {
	r := &Registry{
		ws:     ws,
		logger: zap.NewNop(),
		ttl:    5 * time.Minute,
		byKey:  make(map[string]*Config),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Configs returns the current snapshot in display order. The returned
// slice is a copy; the configs are shared and must not be mutated.
func (r *Registry) Configs() []*Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Config, len(r.configs))
	copy(out, r.configs)
	return out
}

// Config returns the configuration with the given key.
func (r *Registry) Config(key string) (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKey[key]
	return c, ok
}

// Exists reports whether a key is present in the current snapshot.
func (r *Registry) Exists(key string) bool {
	_, ok := r.Config(key)
	return ok
}

// Errors returns the per-file errors from the last refresh.
func (r *Registry) Errors() []ReadError {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ReadError, len(r.errs))
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

// EnsureFresh refreshes the snapshot if it has expired.
func (r *Registry) EnsureFresh(ctx context.Context) (*RefreshResult, error) {
	if r.Fresh() {
		return nil, nil
	}
	return r.Refresh(ctx)
}

// Refresh re-reads every source and swaps in the new snapshot. A
// malformed file is logged and skipped; its entries drop out of the
// snapshot while other files' entries stay.
func (r *Registry) Refresh(ctx context.Context) (*RefreshResult, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	start := time.Now()
	folders := r.ws.Folders()

	var (
		next []*Config
		errs []ReadError
	)

	for _, folder := range folders {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		entries, fileErrs := r.readFolder(folder)
		next = append(next, entries...)
		errs = append(errs, fileErrs...)
	}

	if r.global != nil {
		next = append(next, r.readGlobal()...)
	}

	// Display order: folder (global last), plain configurations before
	// compounds, then name. Folder iteration above already yields
	// folder order, but global entries and stable naming need the full
	// sort.
	folderRank := make(map[string]int, len(folders))
	for i, f := range folders {
		folderRank[f.Name] = i
	}
	rank := func(c *Config) int {
		if c.FolderName == "" {
			return len(folders)
		}
		return folderRank[c.FolderName]
	}
	sort.SliceStable(next, func(i, j int) bool {
		a, b := next[i], next[j]
		if rank(a) != rank(b) {
			return rank(a) < rank(b)
		}
		if a.Compound != b.Compound {
			return !a.Compound
		}
		return a.Name < b.Name
	})

	nextByKey := make(map[string]*Config, len(next))
	deduped := next[:0]
	for _, c := range next {
		if _, dup := nextByKey[c.Key]; dup {
			r.logger.Warn("duplicate launch name, keeping first",
				zap.String("key", c.Key),
				zap.String("file", c.SourceFile))
			continue
		}
		nextByKey[c.Key] = c
		deduped = append(deduped, c)
	}
	next = deduped

	result := &RefreshResult{
		Configs:   next,
		Errors:    errs,
		Timestamp: time.Now(),
	}

	r.mu.Lock()
	result.Added, result.Removed, result.Changed = diffConfigs(r.byKey, nextByKey)
	r.configs = next
	r.byKey = nextByKey
	r.errs = errs
	r.refreshedAt = result.Timestamp
	r.mu.Unlock()

	result.Duration = time.Since(start)
	return result, nil
}

// readFolder reads the launch files of one folder. The runbar file is
// read first; within one file a repeated name keeps the last entry,
// matching how editors resolve duplicates.
func (r *Registry) readFolder(folder workspace.Folder) ([]*Config, []ReadError) {
	var (
		out  []*Config
		errs []ReadError
	)

	// Names defined by plain configurations in this folder, for
	// compound member validation.
	have := make(map[string]bool)
	var compounds []*Config

	for _, rel := range launchFiles {
		path := filepath.Join(folder.Path, filepath.FromSlash(rel))
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, ReadError{File: path, Err: err})
			}
			continue
		}

		clean := jsonc.Strip(data)
		if !gjson.ValidBytes(clean) {
			err := fmt.Errorf("invalid JSON after comment stripping")
			r.logger.Warn("skipping malformed launch file", zap.String("file", path))
			errs = append(errs, ReadError{File: path, Err: err})
			continue
		}

		configs, fileCompounds, skipped := parseLaunchDoc(gjson.ParseBytes(clean))
		if skipped > 0 {
			r.logger.Warn("skipped unnamed launch entries",
				zap.String("file", path),
				zap.Int("count", skipped))
		}

		// Within one file, the last entry with a repeated name wins.
		byName := make(map[string]int)
		for _, c := range configs {
			c.Key = MakeKey(folder.Name, c.Name)
			c.Folder = folder.Path
			c.FolderName = folder.Name
			c.SourceFile = path
			if i, dup := byName[c.Name]; dup {
				r.logger.Warn("duplicate launch name in file, keeping last",
					zap.String("file", path),
					zap.String("name", c.Name))
				out[i] = c
				continue
			}
			out = append(out, c)
			byName[c.Name] = len(out) - 1
			have[c.Name] = true
		}

		for _, c := range fileCompounds {
			c.Key = MakeKey(folder.Name, c.Name)
			c.Folder = folder.Path
			c.FolderName = folder.Name
			c.SourceFile = path
			compounds = append(compounds, c)
		}
	}

	flagMissingMembers(compounds, have)
	return append(out, compounds...), errs
}

// readGlobal converts the settings-level launch table.
func (r *Registry) readGlobal() []*Config {
	configMaps, compoundMaps := r.global()

	var out []*Config
	have := make(map[string]bool)
	var compounds []*Config

	for _, m := range configMaps {
		c, err := convertGlobal(m, false)
		if err != nil {
			r.logger.Warn("skipping bad global launch entry", zap.Error(err))
			continue
		}
		if c == nil {
			r.logger.Warn("skipping unnamed global launch entry")
			continue
		}
		c.Key = MakeKey("", c.Name)
		out = append(out, c)
		have[c.Name] = true
	}

	for _, m := range compoundMaps {
		c, err := convertGlobal(m, true)
		if err != nil {
			r.logger.Warn("skipping bad global launch compound", zap.Error(err))
			continue
		}
		if c == nil {
			continue
		}
		c.Key = MakeKey("", c.Name)
		compounds = append(compounds, c)
	}

	flagMissingMembers(compounds, have)
	return append(out, compounds...)
}

// diffConfigs compares two snapshots by key.
func diffConfigs(old, next map[string]*Config) (added, removed, changed []string) {
	for key, c := range next {
		prev, ok := old[key]
		if !ok {
			added = append(added, key)
			continue
		}
		if !bytes.Equal(prev.Raw, c.Raw) || prev.Detail != c.Detail {
			changed = append(changed, key)
		}
	}
	for key := range old {
		if _, ok := next[key]; !ok {
			removed = append(removed, key)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changed)
	return added, removed, changed
}
