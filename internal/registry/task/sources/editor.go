package sources

import (
	"context"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/dshills/runbar/internal/registry/jsonc"
	"github.com/dshills/runbar/internal/registry/task"
)

// EditorSource enumerates tasks from the editor's .vscode/tasks.json
// files. Editor task files are JSONC with polymorphic fields (group is
// a string or an object, dependsOn a string or an array), so parsing
// goes through gjson after comment stripping instead of rigid struct
// decoding.
type EditorSource struct{}

// NewEditorSource creates the editor task file source.
func NewEditorSource() *EditorSource {
	return &EditorSource{}
}

// Name returns the source name.
func (s *EditorSource) Name() string { return "editor" }

// Patterns returns the folder-relative file this source reads.
func (s *EditorSource) Patterns() []string {
	return []string{".vscode/tasks.json"}
}

// Priority returns the source priority (below runbar's own file).
func (s *EditorSource) Priority() int { return 90 }

// Scope anchors patterns to each workspace folder.
func (s *EditorSource) Scope() task.Scope { return task.ScopeFolder }

// Discover enumerates tasks from a tasks.json file. A missing file
// returns nil, nil.
func (s *EditorSource) Discover(ctx context.Context, path string) ([]*task.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	clean := jsonc.Strip(data)
	if !gjson.ValidBytes(clean) {
		return nil, fmt.Errorf("parse %s: invalid JSON after comment stripping", path)
	}
	doc := gjson.ParseBytes(clean)

	var tasks []*task.Task
	for _, entry := range doc.Get("tasks").Array() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		t := s.convertTask(entry)
		if t != nil {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// convertTask maps one tasks.json entry to a Task. Entries without a
// label are skipped.
func (s *EditorSource) convertTask(entry gjson.Result) *task.Task {
	label := entry.Get("label").String()
	if label == "" {
		// Legacy task files use taskName.
		label = entry.Get("taskName").String()
	}
	if label == "" {
		return nil
	}

	t := &task.Task{
		Label:        label,
		Detail:       entry.Get("detail").String(),
		Type:         entry.Get("type").String(),
		Command:      entry.Get("command").String(),
		Cwd:          entry.Get("options.cwd").String(),
		IsBackground: entry.Get("isBackground").Bool(),
	}

	if args := entry.Get("args"); args.IsArray() {
		for _, a := range args.Array() {
			t.Args = append(t.Args, a.String())
		}
	}

	if env := entry.Get("options.env"); env.IsObject() {
		t.Env = make(map[string]string)
		for key, val := range env.Map() {
			t.Env[key] = val.String()
		}
	}

	// group: "build" or {"kind": "build", "isDefault": true}
	switch group := entry.Get("group"); group.Type {
	case gjson.String:
		t.Group = task.ParseGroup(group.String(), label)
	case gjson.JSON:
		t.Group = task.ParseGroup(group.Get("kind").String(), label)
		t.IsDefault = group.Get("isDefault").Bool()
	default:
		t.Group = task.InferGroup(label)
	}

	// dependsOn: "other" or ["a", "b"]
	switch dep := entry.Get("dependsOn"); dep.Type {
	case gjson.String:
		t.DependsOn = []string{dep.String()}
	case gjson.JSON:
		if dep.IsArray() {
			for _, d := range dep.Array() {
				t.DependsOn = append(t.DependsOn, d.String())
			}
		}
	}

	// problemMatcher: "$go" or ["$go", "$tsc"]
	switch pm := entry.Get("problemMatcher"); pm.Type {
	case gjson.String:
		t.ProblemMatcher = pm.String()
	case gjson.JSON:
		if pm.IsArray() {
			if arr := pm.Array(); len(arr) > 0 {
				t.ProblemMatcher = arr[0].String()
			}
		}
	}

	return t
}
