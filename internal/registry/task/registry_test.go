package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dshills/runbar/internal/workspace"
)

// mockSource returns predefined tasks for every pattern it declares.
type mockSource struct {
	name     string
	patterns []string
	priority int
	scope    Scope
	tasks    map[string][]*Task // keyed by pattern base, nil key serves all
	err      error
}

func (s *mockSource) Name() string       { return s.name }
func (s *mockSource) Patterns() []string { return s.patterns }
func (s *mockSource) Priority() int      { return s.priority }
func (s *mockSource) Scope() Scope       { return s.scope }
func (s *mockSource) Discover(_ context.Context, path string) ([]*Task, error) {
	if s.err != nil {
		return nil, s.err
	}
	if tasks, ok := s.tasks[path]; ok {
		return cloneTasks(tasks), nil
	}
	return cloneTasks(s.tasks[""]), nil
}

func cloneTasks(in []*Task) []*Task {
	out := make([]*Task, len(in))
	for i, t := range in {
		c := *t
		out[i] = &c
	}
	return out
}

func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New() error = %v", err)
	}
	return ws
}

func TestRegistry_RegisterSource(t *testing.T) {
	r := New(newTestWorkspace(t))

	r.RegisterSource(&mockSource{name: "beta"})
	r.RegisterSource(&mockSource{name: "alpha"})

	names := r.Sources()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("Sources() = %v, want [alpha beta]", names)
	}

	r.UnregisterSource("alpha")
	if names := r.Sources(); len(names) != 1 || names[0] != "beta" {
		t.Errorf("Sources() after unregister = %v, want [beta]", names)
	}
}

func TestRegistry_Refresh(t *testing.T) {
	ws := newTestWorkspace(t)
	r := New(ws)

	r.RegisterSource(&mockSource{
		name:     "runbar",
		patterns: []string{".runbar/tasks.json"},
		priority: 100,
		tasks: map[string][]*Task{
			"": {
				{Label: "test", Group: GroupTest},
				{Label: "build", Group: GroupBuild, IsDefault: true},
			},
		},
	})

	result, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if len(result.Tasks) != 2 {
		t.Fatalf("Refresh() found %d tasks, want 2", len(result.Tasks))
	}

	// Default task sorts before the rest.
	if result.Tasks[0].Label != "build" {
		t.Errorf("Tasks[0].Label = %q, want %q (default first)", result.Tasks[0].Label, "build")
	}

	// IDs are derived and folder fields filled in.
	wantID := "runbar:.runbar/tasks.json:build"
	if result.Tasks[0].ID != wantID {
		t.Errorf("Tasks[0].ID = %q, want %q", result.Tasks[0].ID, wantID)
	}
	if result.Tasks[0].Folder != ws.Primary().Path {
		t.Errorf("Tasks[0].Folder = %q, want %q", result.Tasks[0].Folder, ws.Primary().Path)
	}

	if len(result.Added) != 2 {
		t.Errorf("Added = %v, want 2 IDs on first refresh", result.Added)
	}

	if !r.Exists(wantID) {
		t.Errorf("Exists(%q) = false after refresh", wantID)
	}

	if got := r.InGroup(GroupBuild); len(got) != 1 || got[0].Label != "build" {
		t.Errorf("InGroup(build) = %v, want the one build task", got)
	}
	if got := r.InGroup(GroupClean); len(got) != 0 {
		t.Errorf("InGroup(clean) = %v, want none", got)
	}
}

func TestRegistry_Refresh_SourcePriorityOrder(t *testing.T) {
	r := New(newTestWorkspace(t))

	r.RegisterSource(&mockSource{
		name:     "editor",
		patterns: []string{".vscode/tasks.json"},
		priority: 90,
		tasks:    map[string][]*Task{"": {{Label: "aaa-editor"}}},
	})
	r.RegisterSource(&mockSource{
		name:     "runbar",
		patterns: []string{".runbar/tasks.json"},
		priority: 100,
		tasks:    map[string][]*Task{"": {{Label: "zzz-runbar"}}},
	})

	result, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(result.Tasks) != 2 {
		t.Fatalf("found %d tasks, want 2", len(result.Tasks))
	}

	// Higher priority source lists first despite later label.
	if result.Tasks[0].Source != "runbar" {
		t.Errorf("Tasks[0].Source = %q, want runbar before editor", result.Tasks[0].Source)
	}
}

func TestRegistry_Refresh_Diff(t *testing.T) {
	r := New(newTestWorkspace(t))

	src := &mockSource{
		name:     "runbar",
		patterns: []string{".runbar/tasks.json"},
		priority: 100,
		tasks: map[string][]*Task{
			"": {
				{Label: "build", Command: "make"},
				{Label: "test", Command: "make"},
			},
		},
	}
	r.RegisterSource(src)

	if _, err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	// Change build's command, drop test, add lint.
	src.tasks[""] = []*Task{
		{Label: "build", Command: "go build"},
		{Label: "lint", Command: "golangci-lint"},
	}

	result, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if len(result.Added) != 1 || result.Added[0] != "runbar:.runbar/tasks.json:lint" {
		t.Errorf("Added = %v, want [runbar:.runbar/tasks.json:lint]", result.Added)
	}
	if len(result.Removed) != 1 || result.Removed[0] != "runbar:.runbar/tasks.json:test" {
		t.Errorf("Removed = %v, want [runbar:.runbar/tasks.json:test]", result.Removed)
	}
	if len(result.Changed) != 1 || result.Changed[0] != "runbar:.runbar/tasks.json:build" {
		t.Errorf("Changed = %v, want [runbar:.runbar/tasks.json:build]", result.Changed)
	}
}

func TestRegistry_Refresh_CollectsErrors(t *testing.T) {
	r := New(newTestWorkspace(t))

	r.RegisterSource(&mockSource{
		name:     "broken",
		patterns: []string{"broken.json"},
		priority: 50,
		err:      errors.New("bad file"),
	})
	r.RegisterSource(&mockSource{
		name:     "good",
		patterns: []string{"good.json"},
		priority: 100,
		tasks:    map[string][]*Task{"": {{Label: "ok"}}},
	})

	result, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if len(result.Tasks) != 1 {
		t.Errorf("found %d tasks, want 1 (broken source must not hide good one)", len(result.Tasks))
	}
	if len(result.Errors) != 1 || result.Errors[0].Source != "broken" {
		t.Errorf("Errors = %v, want one error from broken source", result.Errors)
	}
	if got := r.Errors(); len(got) != 1 {
		t.Errorf("Errors() = %v, want retained error", got)
	}
}

func TestRegistry_UserScopeSortsLast(t *testing.T) {
	r := New(newTestWorkspace(t))

	r.RegisterSource(&mockSource{
		name:     "user",
		patterns: []string{"/home/u/.config/runbar/tasks.json"},
		priority: 80,
		scope:    ScopeUser,
		tasks:    map[string][]*Task{"": {{Label: "aaa-user"}}},
	})
	r.RegisterSource(&mockSource{
		name:     "runbar",
		patterns: []string{".runbar/tasks.json"},
		priority: 100,
		tasks:    map[string][]*Task{"": {{Label: "build"}}},
	})

	result, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(result.Tasks) != 2 {
		t.Fatalf("found %d tasks, want 2", len(result.Tasks))
	}

	last := result.Tasks[1]
	if last.Source != "user" {
		t.Errorf("last task source = %q, want user tasks after folder tasks", last.Source)
	}
	if last.FolderName != "user" {
		t.Errorf("user task FolderName = %q, want %q", last.FolderName, "user")
	}
	if last.Folder != "" {
		t.Errorf("user task Folder = %q, want empty", last.Folder)
	}
}

func TestRegistry_FreshAndInvalidate(t *testing.T) {
	r := New(newTestWorkspace(t), WithTTL(time.Hour))
	r.RegisterSource(&mockSource{
		name:     "runbar",
		patterns: []string{".runbar/tasks.json"},
		priority: 100,
		tasks:    map[string][]*Task{"": {{Label: "build"}}},
	})

	if r.Fresh() {
		t.Error("Fresh() = true before first refresh")
	}

	if _, err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !r.Fresh() {
		t.Error("Fresh() = false after refresh within TTL")
	}

	// Fresh snapshot short-circuits EnsureFresh.
	res, err := r.EnsureFresh(context.Background())
	if err != nil {
		t.Fatalf("EnsureFresh() error = %v", err)
	}
	if res != nil {
		t.Error("EnsureFresh() refreshed despite fresh snapshot")
	}

	r.Invalidate()
	if r.Fresh() {
		t.Error("Fresh() = true after Invalidate")
	}

	res, err = r.EnsureFresh(context.Background())
	if err != nil {
		t.Fatalf("EnsureFresh() error = %v", err)
	}
	if res == nil {
		t.Error("EnsureFresh() did not refresh after Invalidate")
	}
}

func TestRegistry_Snapshot_IsCopy(t *testing.T) {
	r := New(newTestWorkspace(t))
	r.RegisterSource(&mockSource{
		name:     "runbar",
		patterns: []string{".runbar/tasks.json"},
		priority: 100,
		tasks:    map[string][]*Task{"": {{Label: "build"}}},
	})

	if _, err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot() len = %d, want 1", len(snap))
	}
	snap[0] = nil

	again := r.Snapshot()
	if again[0] == nil {
		t.Error("mutating a snapshot slice affected the registry")
	}
}

func TestDiscoverError_Error(t *testing.T) {
	withFile := DiscoverError{Source: "editor", File: "/p/.vscode/tasks.json", Err: context.DeadlineExceeded}
	want := "editor: /p/.vscode/tasks.json: context deadline exceeded"
	if got := withFile.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	withoutFile := DiscoverError{Source: "runbar", Err: context.Canceled}
	if got := withoutFile.Error(); got != "runbar: context canceled" {
		t.Errorf("Error() = %q, want %q", got, "runbar: context canceled")
	}

	if !errors.Is(withFile, context.DeadlineExceeded) {
		t.Error("errors.Is() failed to unwrap DiscoverError")
	}
}
