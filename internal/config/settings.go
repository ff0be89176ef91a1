package config

import (
	"errors"
	"time"
)

// Section accessor methods return snapshot structs. Mutating the
// returned struct does not modify the underlying configuration. Use
// Config.Set() to update configuration values.

// HostSettings provides type-safe access to host delegation settings.
type HostSettings struct {
	// Command is the host editor executable invoked for dispatch.
	Command string

	// TaskArgs is the argument template for running a task. Templates
	// may contain ${...} variables resolved at dispatch time.
	TaskArgs []string

	// DebugArgs is the argument template for starting a debug session.
	DebugArgs []string

	// Timeout bounds how long a dispatch invocation may run.
	Timeout time.Duration
}

// TaskSettings provides type-safe access to task registry settings.
type TaskSettings struct {
	// IncludeUser also enumerates tasks from the user config dir.
	IncludeUser bool

	// CacheTTL is how long an enumeration stays fresh without a file
	// event forcing a refresh.
	CacheTTL time.Duration
}

// LaunchSettings provides type-safe access to launch registry settings.
type LaunchSettings struct {
	// IncludeGlobal also enumerates launch configurations defined in
	// the user config file's launch table.
	IncludeGlobal bool
}

// WatchSettings provides type-safe access to file watch settings.
type WatchSettings struct {
	// Debounce is the quiet period before coalesced events fire.
	Debounce time.Duration

	// Ignore lists directory names excluded from watching.
	Ignore []string
}

// BarSettings provides type-safe access to status bar settings.
type BarSettings struct {
	// Icons selects the icon set ("unicode", "ascii").
	Icons string

	// MessageTTL is how long transient bar messages stay visible.
	MessageTTL time.Duration
}

// LogSettings provides type-safe access to logging settings.
type LogSettings struct {
	// Level is the logging verbosity ("debug", "info", "warn", "error").
	Level string

	// File is the log file path (empty logs to stderr).
	File string
}

// HookSettings provides type-safe access to hook settings.
type HookSettings struct {
	// Enabled enables Lua hook execution.
	Enabled bool

	// Path overrides the default hooks file location.
	Path string
}

// Host returns type-safe access to host delegation settings.
func (c *Config) Host() HostSettings {
	return HostSettings{
		Command:   c.getStringOr("host.command", "code"),
		TaskArgs:  c.getStringSliceOr("host.task_args", nil),
		DebugArgs: c.getStringSliceOr("host.debug_args", nil),
		Timeout:   c.getDurationOr("host.timeout", 10*time.Second),
	}
}

// Tasks returns type-safe access to task registry settings.
func (c *Config) Tasks() TaskSettings {
	return TaskSettings{
		IncludeUser: c.getBoolOr("tasks.include_user", false),
		CacheTTL:    c.getDurationOr("tasks.cache_ttl", 5*time.Minute),
	}
}

// Launch returns type-safe access to launch registry settings.
func (c *Config) Launch() LaunchSettings {
	return LaunchSettings{
		IncludeGlobal: c.getBoolOr("launch.include_global", true),
	}
}

// Watch returns type-safe access to file watch settings.
func (c *Config) Watch() WatchSettings {
	return WatchSettings{
		Debounce: c.getDurationOr("watch.debounce", 100*time.Millisecond),
		Ignore:   c.getStringSliceOr("watch.ignore", nil),
	}
}

// Bar returns type-safe access to status bar settings.
func (c *Config) Bar() BarSettings {
	return BarSettings{
		Icons:      c.getStringOr("bar.icons", "unicode"),
		MessageTTL: c.getDurationOr("bar.message_ttl", 4*time.Second),
	}
}

// Log returns type-safe access to logging settings.
func (c *Config) Log() LogSettings {
	return LogSettings{
		Level: c.getStringOr("log.level", "info"),
		File:  c.getStringOr("log.file", ""),
	}
}

// Hooks returns type-safe access to hook settings.
func (c *Config) Hooks() HookSettings {
	return HookSettings{
		Enabled: c.getBoolOr("hooks.enabled", true),
		Path:    c.getStringOr("hooks.path", ""),
	}
}

// These helpers only return the default for ErrSettingNotFound. Type
// errors are recorded and return the default to avoid breaking
// callers, but indicate a configuration problem that should be fixed.

func (c *Config) getStringOr(path string, defaultValue string) string {
	v, err := c.GetString(path)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

func (c *Config) getBoolOr(path string, defaultValue bool) bool {
	v, err := c.GetBool(path)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

func (c *Config) getDurationOr(path string, defaultValue time.Duration) time.Duration {
	v, err := c.GetDuration(path)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

func (c *Config) getStringSliceOr(path string, defaultValue []string) []string {
	v, err := c.GetStringSlice(path)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			c.recordConfigError(path, err)
		}
		result := make([]string, len(defaultValue))
		copy(result, defaultValue)
		return result
	}
	// Copy to enforce the snapshot guarantee.
	result := make([]string, len(v))
	copy(result, v)
	return result
}

// recordConfigError stores configuration errors for later retrieval.
// Only the first error for each path is kept to preserve the original
// cause.
func (c *Config) recordConfigError(path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.configErrors == nil {
		c.configErrors = make(map[string]error)
	}
	if _, exists := c.configErrors[path]; !exists {
		c.configErrors[path] = err
	}
}

// ConfigErrors returns any configuration errors encountered during
// access. This allows callers to surface misconfigurations after
// loading.
func (c *Config) ConfigErrors() map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.configErrors == nil {
		return nil
	}
	result := make(map[string]error, len(c.configErrors))
	for k, v := range c.configErrors {
		result[k] = v
	}
	return result
}
