package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileLoader loads configuration from a single file, selecting the
// parser by extension: .toml, .yaml, .yml, or .json.
type FileLoader struct {
	fs   FileSystem
	path string
}

// NewFileLoader creates a loader for the given path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{fs: DefaultFS(), path: path}
}

// NewFileLoaderWithFS creates a loader with a custom file system.
func NewFileLoaderWithFS(fs FileSystem, path string) *FileLoader {
	return &FileLoader{fs: fs, path: path}
}

// Path returns the file path this loader reads.
func (l *FileLoader) Path() string { return l.path }

// Load reads and parses the configured path. A missing file returns
// nil, nil.
func (l *FileLoader) Load() (map[string]any, error) {
	return l.LoadFrom(l.path)
}

// LoadFrom reads and parses a specific path.
func (l *FileLoader) LoadFrom(path string) (map[string]any, error) {
	data, err := l.fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse parses config data, selecting the format from the path's
// extension. Unknown extensions fall back to TOML.
func Parse(path string, data []byte) (map[string]any, error) {
	var config map[string]any
	format := formatFor(path)

	var err error
	switch format {
	case "yaml":
		err = yaml.Unmarshal(data, &config)
	case "json":
		err = json.Unmarshal(data, &config)
	default:
		err = toml.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, &ParseError{Path: path, Format: format, Message: err.Error(), Err: err}
	}
	return normalize(config), nil
}

func formatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return "toml"
	}
}

// FindConfigFile returns the first existing config file in dir among
// the supported extensions, or empty when none exists.
func FindConfigFile(fs FileSystem, dir, base string) string {
	for _, ext := range []string{".toml", ".yaml", ".yml", ".json"} {
		path := filepath.Join(dir, base+ext)
		if _, err := fs.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// normalize rewrites parser-specific container types into the
// map[string]any / []any shape the layer package merges.
func normalize(v map[string]any) map[string]any {
	if v == nil {
		return nil
	}
	out := make(map[string]any, len(v))
	for key, val := range v {
		out[key] = normalizeValue(val)
	}
	return out
}

func normalizeValue(val any) any {
	switch t := val.(type) {
	case map[string]any:
		return normalize(t)
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[fmt.Sprint(k)] = normalizeValue(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = normalizeValue(v)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = v
		}
		return out
	default:
		return val
	}
}
