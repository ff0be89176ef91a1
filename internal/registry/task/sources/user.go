package sources

import (
	"context"
	"path/filepath"

	"github.com/dshills/runbar/internal/registry/task"
)

// UserSource enumerates tasks from the user config directory's
// tasks.json. These are workspace-independent tasks the user wants
// everywhere; the registry lists them after all folder tasks. Only
// registered when tasks.include_user is set.
type UserSource struct {
	dir string
}

// NewUserSource creates a user-level task source reading from dir.
func NewUserSource(dir string) *UserSource {
	return &UserSource{dir: dir}
}

// Name returns the source name.
func (s *UserSource) Name() string { return "user" }

// Patterns returns the absolute path of the user task file.
func (s *UserSource) Patterns() []string {
	return []string{filepath.Join(s.dir, "tasks.json")}
}

// Priority returns the source priority (below both folder sources).
func (s *UserSource) Priority() int { return 80 }

// Scope marks the patterns as absolute paths.
func (s *UserSource) Scope() task.Scope { return task.ScopeUser }

// Discover enumerates tasks from the user task file, which uses the
// runbar format. A missing file returns nil, nil.
func (s *UserSource) Discover(_ context.Context, path string) ([]*task.Task, error) {
	return parseTasksFile(path)
}
