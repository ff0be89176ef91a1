package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dshills/runbar/internal/config/layer"
	"github.com/dshills/runbar/internal/config/loader"
	"github.com/dshills/runbar/internal/config/notify"
	"github.com/dshills/runbar/internal/config/watcher"
)

// Layer names used by the facade.
const (
	layerDefaults  = "defaults"
	layerUser      = "user"
	layerWorkspace = "workspace"
	layerEnv       = "environment"
)

// configBase is the base name of runbar config files. The loader tries
// .toml, .yaml, .yml, and .json in that order.
const configBase = "config"

// Config provides unified access to the runbar configuration system.
// It manages layered loading, live reload of config files, and change
// notification.
type Config struct {
	mu sync.RWMutex

	// Layer manager for merged configuration
	layers *layer.Manager

	// File watcher for live reload
	watcher *watcher.Watcher

	// Change notifier
	notifier *notify.Notifier

	// Configuration paths
	userConfigDir    string
	workspaceConfDir string

	// Options
	enableWatcher bool

	// configErrors stores errors encountered during configuration
	// access. This allows detection of type mismatches and other config
	// problems without breaking callers.
	configErrors map[string]error
}

// Option configures a Config instance.
type Option func(*Config)

// WithUserConfigDir sets the user configuration directory.
func WithUserConfigDir(dir string) Option {
	return func(c *Config) {
		c.userConfigDir = dir
	}
}

// WithWorkspaceConfigDir sets the workspace configuration directory
// (normally <primary folder>/.runbar).
func WithWorkspaceConfigDir(dir string) Option {
	return func(c *Config) {
		c.workspaceConfDir = dir
	}
}

// WithWatcher enables file watching for live reload.
func WithWatcher(enable bool) Option {
	return func(c *Config) {
		c.enableWatcher = enable
	}
}

// New creates a new Config instance with the given options.
func New(opts ...Option) *Config {
	c := &Config{
		layers:        layer.NewManager(),
		notifier:      notify.New(),
		enableWatcher: true,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.userConfigDir == "" {
		c.userConfigDir = DefaultUserConfigDir()
	}

	if c.enableWatcher {
		c.watcher = watcher.New()
		c.watcher.OnChange(c.handleFileChange)
	}

	return c
}

// Load loads configuration from all sources: builtin defaults, the
// user config file, the workspace config file, and RUNBAR_ environment
// variables.
func (c *Config) Load(_ context.Context) error {
	c.mu.Lock()

	c.loadDefaults()

	if err := c.loadUserConfig(); err != nil {
		c.mu.Unlock()
		return err
	}

	if c.workspaceConfDir != "" {
		if err := c.loadWorkspaceConfig(); err != nil {
			c.mu.Unlock()
			return err
		}
	}

	if err := c.loadEnvironment(); err != nil {
		c.mu.Unlock()
		return err
	}

	// Release lock before starting the watcher. Watcher callbacks
	// acquire the same lock.
	w := c.watcher
	c.mu.Unlock()

	if w != nil {
		w.Start()
	}

	return nil
}

// Close shuts down the configuration system.
func (c *Config) Close() {
	if c.watcher != nil {
		c.watcher.Stop()
	}
	if c.notifier != nil {
		c.notifier.Close()
	}
}

// Get returns the value at the given path from the merged configuration.
func (c *Config) Get(path string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	merged := c.layers.Merge()
	return layer.GetByPath(merged, path)
}

// GetString returns a string value at the given path.
func (c *Config) GetString(path string) (string, error) {
	v, ok := c.Get(path)
	if !ok {
		return "", ErrSettingNotFound
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeError{Path: path, Expected: "string", Actual: typeName(v)}
	}
	return s, nil
}

// GetInt returns an integer value at the given path.
func (c *Config) GetInt(path string) (int, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	default:
		return 0, &TypeError{Path: path, Expected: "int", Actual: typeName(v)}
	}
}

// GetBool returns a boolean value at the given path.
func (c *Config) GetBool(path string) (bool, error) {
	v, ok := c.Get(path)
	if !ok {
		return false, ErrSettingNotFound
	}
	b, ok := v.(bool)
	if !ok {
		return false, &TypeError{Path: path, Expected: "bool", Actual: typeName(v)}
	}
	return b, nil
}

// GetDuration returns a duration value at the given path. Durations
// are stored as strings in time.ParseDuration form ("100ms", "5m").
func (c *Config) GetDuration(path string) (time.Duration, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	switch val := v.(type) {
	case time.Duration:
		return val, nil
	case string:
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, &TypeError{Path: path, Expected: "duration", Actual: fmt.Sprintf("string %q", val)}
		}
		return d, nil
	default:
		return 0, &TypeError{Path: path, Expected: "duration", Actual: typeName(v)}
	}
}

// GetStringSlice returns a string slice at the given path.
func (c *Config) GetStringSlice(path string) ([]string, error) {
	v, ok := c.Get(path)
	if !ok {
		return nil, ErrSettingNotFound
	}

	switch val := v.(type) {
	case []string:
		return val, nil
	case []any:
		result := make([]string, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, &TypeError{Path: path, Expected: "[]string", Actual: typeName(v)}
			}
			result[i] = s
		}
		return result, nil
	default:
		return nil, &TypeError{Path: path, Expected: "[]string", Actual: typeName(v)}
	}
}

// Set sets a value at the given path in the user layer. The change is
// in-memory only; it is not written back to the config file.
func (c *Config) Set(path string, value any) error {
	c.mu.Lock()

	oldMerged := c.layers.Merge()
	oldValue, _ := layer.GetByPath(oldMerged, path)

	l, ok := c.layers.Get(layerUser)
	if !ok {
		l = layer.New(layerUser, layer.SourceUser, layer.PriorityUser)
		c.layers.Set(l)
	}
	if l.Data == nil {
		l.Data = make(map[string]any)
	}
	layer.SetByPath(l.Data, path, value)

	newMerged := c.layers.Merge()
	newValue, _ := layer.GetByPath(newMerged, path)

	c.mu.Unlock()

	// Notify with effective merged values, outside the lock so
	// observers can read back through the facade.
	c.notifier.NotifySet(path, oldValue, newValue, layerUser)

	return nil
}

// Subscribe registers an observer for all configuration changes.
func (c *Config) Subscribe(observer notify.Observer) *notify.Subscription {
	return c.notifier.Subscribe(observer)
}

// SubscribePath registers an observer for changes to a specific path.
func (c *Config) SubscribePath(path string, observer notify.Observer) *notify.Subscription {
	return c.notifier.SubscribePath(path, observer)
}

// Merged returns the fully merged configuration.
func (c *Config) Merged() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.layers.Merge()
}

// UserConfigDir returns the user configuration directory in use.
func (c *Config) UserConfigDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userConfigDir
}

// loadDefaults loads the builtin defaults layer. Callers hold c.mu.
func (c *Config) loadDefaults() {
	l := layer.NewWithData(layerDefaults, layer.SourceBuiltin, layer.PriorityBuiltin, Defaults())
	c.layers.Set(l)
}

// loadUserConfig loads the user config file when present. The file
// path is watched either way so a created file is picked up live.
// Callers hold c.mu.
func (c *Config) loadUserConfig() error {
	return c.loadFileLayer(layerUser, layer.SourceUser, layer.PriorityUser, c.userConfigDir)
}

// loadWorkspaceConfig loads the workspace config file when present.
// Callers hold c.mu.
func (c *Config) loadWorkspaceConfig() error {
	return c.loadFileLayer(layerWorkspace, layer.SourceWorkspace, layer.PriorityWorkspace, c.workspaceConfDir)
}

func (c *Config) loadFileLayer(name string, source layer.Source, priority int, dir string) error {
	path := loader.FindConfigFile(loader.DefaultFS(), dir, configBase)
	if path == "" {
		// Nothing to load yet. Watch the default-format candidate so
		// a newly created file triggers a reload.
		if c.watcher != nil {
			_ = c.watcher.Watch(filepath.Join(dir, configBase+".toml"))
		}
		return nil
	}

	data, err := loader.NewFileLoader(path).Load()
	if err != nil {
		return fmt.Errorf("loading %s config: %w", name, err)
	}
	if data != nil {
		l := layer.NewWithData(name, source, priority, data)
		l.Path = path
		c.layers.Set(l)
	}

	if c.watcher != nil {
		_ = c.watcher.Watch(path)
	}
	return nil
}

// loadEnvironment loads configuration from RUNBAR_ environment
// variables. Callers hold c.mu.
func (c *Config) loadEnvironment() error {
	data, err := loader.NewEnvLoader().Load()
	if err != nil {
		return err
	}
	if len(data) > 0 {
		l := layer.NewWithData(layerEnv, layer.SourceEnv, layer.PriorityEnv, data)
		c.layers.Set(l)
	}
	return nil
}

// handleFileChange handles file change events from the watcher. The
// affected layer is replaced (or removed), then observers are notified
// with per-path diffs of the effective merged configuration.
func (c *Config) handleFileChange(event watcher.Event) {
	c.mu.Lock()

	name, source, priority := c.layerFor(event.Path)
	if name == "" {
		c.mu.Unlock()
		return
	}

	oldMerged := c.layers.Merge()

	if event.Op == watcher.OpRemove {
		c.layers.Remove(name)
	} else {
		data, err := loader.NewFileLoader(event.Path).Load()
		if err != nil || data == nil {
			c.mu.Unlock()
			return
		}
		l := layer.NewWithData(name, source, priority, data)
		l.Path = event.Path
		c.layers.Set(l)
	}

	newMerged := c.layers.Merge()
	c.mu.Unlock()

	c.notifyDiff(oldMerged, newMerged, name)
	c.notifier.NotifyReload(event.Path)
}

// layerFor maps a config file path to its layer identity. Callers
// hold c.mu.
func (c *Config) layerFor(path string) (name string, source layer.Source, priority int) {
	dir := filepath.Clean(filepath.Dir(path))
	switch dir {
	case filepath.Clean(c.userConfigDir):
		return layerUser, layer.SourceUser, layer.PriorityUser
	case filepath.Clean(c.workspaceConfDir):
		return layerWorkspace, layer.SourceWorkspace, layer.PriorityWorkspace
	default:
		return "", 0, 0
	}
}

// notifyDiff emits one change per effective setting that differs
// between the old and new merged views.
func (c *Config) notifyDiff(oldMerged, newMerged map[string]any, source string) {
	added, modified, removed := layer.DiffMaps(oldMerged, newMerged)
	if len(added)+len(modified)+len(removed) == 0 {
		return
	}

	batch := c.notifier.NewBatch()
	for _, path := range added {
		newValue, _ := layer.GetByPath(newMerged, path)
		batch.Set(path, nil, newValue, source)
	}
	for _, path := range modified {
		oldValue, _ := layer.GetByPath(oldMerged, path)
		newValue, _ := layer.GetByPath(newMerged, path)
		batch.Set(path, oldValue, newValue, source)
	}
	for _, path := range removed {
		oldValue, _ := layer.GetByPath(oldMerged, path)
		batch.Delete(path, oldValue, source)
	}
	batch.Commit()
}

// DefaultUserConfigDir returns the default user configuration
// directory.
func DefaultUserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "runbar")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "runbar")
}
