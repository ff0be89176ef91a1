package loader

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is the prefix for all runbar environment variables.
const EnvPrefix = "RUNBAR_"

// envOverlay mirrors the settings reachable from the environment.
// Pointer fields stay nil when the variable is unset so only present
// variables enter the overlay layer.
type envOverlay struct {
	HostCommand *string        `env:"HOST_COMMAND"`
	HostTimeout *time.Duration `env:"HOST_TIMEOUT"`

	TasksIncludeUser *bool          `env:"TASKS_INCLUDE_USER"`
	TasksCacheTTL    *time.Duration `env:"TASKS_CACHE_TTL"`

	LaunchIncludeGlobal *bool `env:"LAUNCH_INCLUDE_GLOBAL"`

	WatchDebounce *time.Duration `env:"WATCH_DEBOUNCE"`
	WatchIgnore   []string       `env:"WATCH_IGNORE" envSeparator:","`

	BarIcons *string `env:"BAR_ICONS"`

	LogLevel *string `env:"LOG_LEVEL"`
	LogFile  *string `env:"LOG_FILE"`

	HooksEnabled *bool   `env:"HOOKS_ENABLED"`
	HooksPath    *string `env:"HOOKS_PATH"`
}

// EnvLoader builds the environment overlay layer.
type EnvLoader struct{}

// NewEnvLoader creates an environment loader.
func NewEnvLoader() *EnvLoader {
	return &EnvLoader{}
}

// Load parses RUNBAR_-prefixed environment variables into a
// configuration map containing only the variables that are set.
func (l *EnvLoader) Load() (map[string]any, error) {
	var raw envOverlay
	if err := env.ParseWithOptions(&raw, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	config := make(map[string]any)
	put := func(section, key string, v any) {
		m, ok := config[section].(map[string]any)
		if !ok {
			m = make(map[string]any)
			config[section] = m
		}
		m[key] = v
	}

	if raw.HostCommand != nil {
		put("host", "command", *raw.HostCommand)
	}
	if raw.HostTimeout != nil {
		put("host", "timeout", raw.HostTimeout.String())
	}
	if raw.TasksIncludeUser != nil {
		put("tasks", "include_user", *raw.TasksIncludeUser)
	}
	if raw.TasksCacheTTL != nil {
		put("tasks", "cache_ttl", raw.TasksCacheTTL.String())
	}
	if raw.LaunchIncludeGlobal != nil {
		put("launch", "include_global", *raw.LaunchIncludeGlobal)
	}
	if raw.WatchDebounce != nil {
		put("watch", "debounce", raw.WatchDebounce.String())
	}
	if raw.WatchIgnore != nil {
		ignore := make([]any, len(raw.WatchIgnore))
		for i, v := range raw.WatchIgnore {
			ignore[i] = v
		}
		put("watch", "ignore", ignore)
	}
	if raw.BarIcons != nil {
		put("bar", "icons", *raw.BarIcons)
	}
	if raw.LogLevel != nil {
		put("log", "level", *raw.LogLevel)
	}
	if raw.LogFile != nil {
		put("log", "file", *raw.LogFile)
	}
	if raw.HooksEnabled != nil {
		put("hooks", "enabled", *raw.HooksEnabled)
	}
	if raw.HooksPath != nil {
		put("hooks", "path", *raw.HooksPath)
	}
	return config, nil
}
