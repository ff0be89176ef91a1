package config

// Defaults returns the builtin default configuration values. These
// form the lowest priority layer; every recognized setting has a
// default here so typed getters always resolve.
func Defaults() map[string]any {
	return map[string]any{
		"host": map[string]any{
			"command":    "code",
			"task_args":  []any{"--open-url", "vscode://dshills.runbar/run-task?key=${q:taskKey}"},
			"debug_args": []any{"--open-url", "vscode://dshills.runbar/launch?folder=${q:configFolder}&name=${q:configName}"},
			"timeout":    "10s",
		},
		"tasks": map[string]any{
			"include_user": false,
			"cache_ttl":    "5m",
		},
		"launch": map[string]any{
			"include_global": true,
		},
		"watch": map[string]any{
			"debounce": "100ms",
			"ignore":   []any{".git", "node_modules", "target", "dist", "build"},
		},
		"bar": map[string]any{
			"icons":       "unicode",
			"message_ttl": "4s",
		},
		"log": map[string]any{
			"level": "info",
			"file":  "",
		},
		"hooks": map[string]any{
			"enabled": true,
			"path":    "",
		},
	}
}
