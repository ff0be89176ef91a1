// Package layer provides configuration layer management for runbar.
//
// The layer package handles multiple configuration sources with
// priority-based merging. Higher priority layers override values from
// lower priority layers.
package layer

import (
	"sort"
	"sync"
	"time"
)

// Layer represents a single configuration layer.
type Layer struct {
	// Name identifies the layer (e.g., "user", "workspace").
	Name string

	// Priority determines merge order (higher overrides lower).
	Priority int

	// Source indicates where this layer was loaded from.
	Source Source

	// Path is the file path (if loaded from file).
	Path string

	// Data holds the configuration values as a nested map.
	Data map[string]any

	// ModTime is when the source was last modified.
	ModTime time.Time
}

// New creates a configuration layer.
func New(name string, source Source, priority int) *Layer {
	return &Layer{
		Name:     name,
		Source:   source,
		Priority: priority,
		Data:     make(map[string]any),
		ModTime:  time.Now(),
	}
}

// NewWithData creates a layer with initial data.
func NewWithData(name string, source Source, priority int, data map[string]any) *Layer {
	return &Layer{
		Name:     name,
		Source:   source,
		Priority: priority,
		Data:     data,
		ModTime:  time.Now(),
	}
}

// Clone creates a deep copy of the layer.
func (l *Layer) Clone() *Layer {
	return &Layer{
		Name:     l.Name,
		Priority: l.Priority,
		Source:   l.Source,
		Path:     l.Path,
		Data:     cloneMap(l.Data),
		ModTime:  l.ModTime,
	}
}

// Source indicates where a configuration layer came from.
type Source uint8

const (
	// SourceBuiltin represents built-in default configuration.
	SourceBuiltin Source = iota
	// SourceUser represents user global config (~/.config/runbar/).
	SourceUser
	// SourceWorkspace represents workspace config (.runbar/).
	SourceWorkspace
	// SourceEnv represents environment variables.
	SourceEnv
)

// String returns a human-readable name for the source.
func (s Source) String() string {
	switch s {
	case SourceBuiltin:
		return "builtin"
	case SourceUser:
		return "user"
	case SourceWorkspace:
		return "workspace"
	case SourceEnv:
		return "environment"
	default:
		return "unknown"
	}
}

// Standard layer priorities, ascending.
const (
	PriorityBuiltin   = 0
	PriorityUser      = 10
	PriorityWorkspace = 20
	PriorityEnv       = 30
)

// Manager holds the layer stack and produces the merged view.
type Manager struct {
	mu     sync.RWMutex
	layers map[string]*Layer
}

// NewManager creates an empty layer manager.
func NewManager() *Manager {
	return &Manager{layers: make(map[string]*Layer)}
}

// Set inserts or replaces a layer by name.
func (m *Manager) Set(l *Layer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layers[l.Name] = l
}

// Get returns the layer with the given name.
func (m *Manager) Get(name string) (*Layer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.layers[name]
	return l, ok
}

// Remove deletes the layer with the given name.
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.layers[name]; !ok {
		return false
	}
	delete(m.layers, name)
	return true
}

// Layers returns the layers sorted by ascending priority.
func (m *Manager) Layers() []*Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Layer, 0, len(m.layers))
	for _, l := range m.layers {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Merge produces the merged configuration, lowest priority first.
func (m *Manager) Merge() map[string]any {
	merged := make(map[string]any)
	for _, l := range m.Layers() {
		merged = DeepMerge(merged, l.Data)
	}
	return merged
}

// cloneMap creates a deep copy of a map.
func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}

	dst := make(map[string]any, len(src))
	for key, val := range src {
		switch v := val.(type) {
		case map[string]any:
			dst[key] = cloneMap(v)
		case []any:
			dst[key] = cloneSlice(v)
		default:
			dst[key] = val
		}
	}
	return dst
}

// cloneSlice creates a deep copy of a slice.
func cloneSlice(src []any) []any {
	if src == nil {
		return nil
	}

	dst := make([]any, len(src))
	for i, val := range src {
		switch v := val.(type) {
		case map[string]any:
			dst[i] = cloneMap(v)
		case []any:
			dst[i] = cloneSlice(v)
		default:
			dst[i] = val
		}
	}
	return dst
}
