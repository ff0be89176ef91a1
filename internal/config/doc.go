// Package config provides the configuration system for runbar.
//
// The config package manages loading, merging, and providing access to
// all runbar settings: host delegation, registry behavior, file
// watching, status bar appearance, logging, and hooks.
//
// # Architecture
//
// Configuration is organized in layers with higher layers overriding
// lower:
//
//	┌─────────────────────────────┐
//	│  4. Environment Variables   │  ← RUNBAR_* (highest priority)
//	├─────────────────────────────┤
//	│  3. Workspace Config        │  ← <folder>/.runbar/config.toml
//	├─────────────────────────────┤
//	│  2. User Config             │  ← ~/.config/runbar/config.toml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// Config files may also be written as YAML or JSON; the loader selects
// the parser by extension.
//
// # Sub-packages
//
//   - layer: layer management and deep merging
//   - loader: config file parsing (TOML, YAML, JSON) and env overlay
//   - notify: change notification and observer pattern
//   - watcher: polling file watcher for live reload of config files
//     (task and launch definition files are watched separately by
//     internal/watch)
//
// # Basic Usage
//
//	cfg := config.New(config.WithWorkspaceConfigDir(dir))
//	if err := cfg.Load(ctx); err != nil {
//	    return err
//	}
//	defer cfg.Close()
//
//	host := cfg.Host()
//	fmt.Println(host.Command)
//
// Typed section accessors (Host, Tasks, Launch, Watch, Bar, Log,
// Hooks) return snapshots and never fail; bad values are recorded and
// fall back to defaults. The generic getters (GetString, GetBool,
// GetDuration, ...) return ErrSettingNotFound or a *TypeError instead.
package config
