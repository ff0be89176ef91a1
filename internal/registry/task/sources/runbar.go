// Package sources provides the task sources runbar enumerates from:
// runbar's own task files, the editor's JSONC task files, and optional
// user-level task files.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/runbar/internal/registry/task"
)

// RunbarSource enumerates tasks from .runbar/tasks.json files.
type RunbarSource struct{}

// NewRunbarSource creates the runbar task file source.
func NewRunbarSource() *RunbarSource {
	return &RunbarSource{}
}

// Name returns the source name.
func (s *RunbarSource) Name() string { return "runbar" }

// Patterns returns the folder-relative file this source reads.
func (s *RunbarSource) Patterns() []string {
	return []string{".runbar/tasks.json"}
}

// Priority returns the source priority (highest; runbar's own file
// wins over the editor's).
func (s *RunbarSource) Priority() int { return 100 }

// Scope anchors patterns to each workspace folder.
func (s *RunbarSource) Scope() task.Scope { return task.ScopeFolder }

// Discover enumerates tasks from a tasks.json file. A missing file
// returns nil, nil.
func (s *RunbarSource) Discover(_ context.Context, path string) ([]*task.Task, error) {
	return parseTasksFile(path)
}

// TasksFile is the structure of a runbar tasks.json file.
type TasksFile struct {
	Version string     `json:"version"`
	Tasks   []TaskDef  `json:"tasks"`
	Inputs  []InputDef `json:"inputs,omitempty"`
}

// TaskDef is a single task definition.
type TaskDef struct {
	Label          string      `json:"label"`
	Type           string      `json:"type,omitempty"`
	Command        string      `json:"command"`
	Args           []string    `json:"args,omitempty"`
	Options        OptionsDef  `json:"options,omitempty"`
	Group          GroupRef    `json:"group,omitempty"`
	ProblemMatcher MatcherRef  `json:"problemMatcher,omitempty"`
	DependsOn      DependsList `json:"dependsOn,omitempty"`
	Detail         string      `json:"detail,omitempty"`
	IsBackground   bool        `json:"isBackground,omitempty"`
}

// OptionsDef carries execution options.
type OptionsDef struct {
	Cwd string            `json:"cwd,omitempty"`
	Env map[string]string `json:"env,omitempty"`
}

// GroupRef accepts both the short form ("build") and the object form
// ({"kind": "build", "isDefault": true}).
type GroupRef struct {
	Kind      string `json:"kind,omitempty"`
	IsDefault bool   `json:"isDefault,omitempty"`
}

// UnmarshalJSON implements the string-or-object forms.
func (g *GroupRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &g.Kind)
	}
	type plain GroupRef
	return json.Unmarshal(data, (*plain)(g))
}

// MatcherRef accepts a problem matcher name or a list of names; only
// the first name is kept.
type MatcherRef string

// UnmarshalJSON implements the string-or-array forms.
func (m *MatcherRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		if len(list) > 0 {
			*m = MatcherRef(list[0])
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*m = MatcherRef(s)
	return nil
}

// DependsList accepts a single label or a list of labels.
type DependsList []string

// UnmarshalJSON implements the string-or-array forms.
func (d *DependsList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = DependsList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*d = DependsList(list)
	return nil
}

// InputDef declares an input variable referenced by tasks.
type InputDef struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Default     string   `json:"default,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// parseTasksFile reads and converts a runbar-format tasks file.
func parseTasksFile(path string) ([]*task.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tf TasksFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var tasks []*task.Task
	for _, def := range tf.Tasks {
		if def.Label == "" {
			continue
		}
		tasks = append(tasks, &task.Task{
			Label:          def.Label,
			Detail:         def.Detail,
			Type:           def.Type,
			Group:          task.ParseGroup(def.Group.Kind, def.Label),
			Command:        def.Command,
			Args:           def.Args,
			Cwd:            def.Options.Cwd,
			Env:            def.Options.Env,
			DependsOn:      []string(def.DependsOn),
			ProblemMatcher: string(def.ProblemMatcher),
			IsBackground:   def.IsBackground,
			IsDefault:      def.Group.IsDefault,
		})
	}
	return tasks, nil
}

// CreateSampleTasksFile scaffolds .runbar/tasks.json with starter
// tasks. Used by the init command; refuses to overwrite.
func CreateSampleTasksFile(dir string) (string, error) {
	tasksDir := filepath.Join(dir, ".runbar")
	if err := os.MkdirAll(tasksDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(tasksDir, "tasks.json")
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("%s already exists", path)
	}

	tf := TasksFile{
		Version: "1.0",
		Tasks: []TaskDef{
			{
				Label:   "build",
				Type:    "shell",
				Command: "go",
				Args:    []string{"build", "./..."},
				Group:   GroupRef{Kind: "build", IsDefault: true},
			},
			{
				Label:   "test",
				Type:    "shell",
				Command: "go",
				Args:    []string{"test", "./..."},
				Group:   GroupRef{Kind: "test"},
			},
		},
	}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0o644)
}
