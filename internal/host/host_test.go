package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/runbar/internal/registry/launch"
	"github.com/dshills/runbar/internal/registry/task"
	"github.com/dshills/runbar/internal/workspace"
)

func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New() error = %v", err)
	}
	return ws
}

// writeFakeHost writes a shell script standing in for the editor CLI.
func writeFakeHost(t *testing.T, behavior string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakehost")
	script := "#!/bin/sh\n" + behavior + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestCommandHost_RunTask(t *testing.T) {
	ws := newTestWorkspace(t)
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	hostBin := writeFakeHost(t, fmt.Sprintf(`printf '%%s\n' "$@" > %q`, argsFile))

	h := NewCommandHost(ws, CommandConfig{
		Command:  hostBin,
		TaskArgs: []string{"--open-url", "editor://runbar/run-task?key=${q:taskKey}"},
	})

	tsk := &task.Task{
		ID:         "runbar:.runbar/tasks.json:build & test",
		Label:      "build & test",
		Folder:     ws.Primary().Path,
		FolderName: ws.Primary().Name,
	}
	receipt, err := h.RunTask(context.Background(), tsk)
	if err != nil {
		t.Fatalf("RunTask() error = %v", err)
	}
	if receipt.DispatchID == "" {
		t.Error("DispatchID empty")
	}
	if receipt.HandedOffAt.IsZero() {
		t.Error("HandedOffAt not set")
	}
	if receipt.Host != hostBin {
		t.Errorf("Host = %q, want %q", receipt.Host, hostBin)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("reading captured args: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || lines[0] != "--open-url" {
		t.Fatalf("captured args = %v, want two template args", lines)
	}
	want := "editor://runbar/run-task?key=runbar%3A.runbar%2Ftasks.json%3Abuild+%26+test"
	if lines[1] != want {
		t.Errorf("resolved URL = %q, want %q", lines[1], want)
	}
}

func TestCommandHost_LaunchConfig(t *testing.T) {
	ws := newTestWorkspace(t)
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	hostBin := writeFakeHost(t, fmt.Sprintf(`printf '%%s\n' "$@" > %q`, argsFile))

	h := NewCommandHost(ws, CommandConfig{
		Command:   hostBin,
		DebugArgs: []string{"--open-url", "editor://runbar/launch?folder=${q:configFolder}&name=${q:configName}"},
	})

	cfg := &launch.Config{
		Key:        launch.MakeKey("my app", "Run Server (dev)"),
		Name:       "Run Server (dev)",
		Folder:     ws.Primary().Path,
		FolderName: "my app",
	}
	if _, err := h.LaunchConfig(context.Background(), cfg); err != nil {
		t.Fatalf("LaunchConfig() error = %v", err)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("reading captured args: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := "editor://runbar/launch?folder=my+app&name=Run+Server+%28dev%29"
	if len(lines) != 2 || lines[1] != want {
		t.Errorf("resolved URL = %q, want %q", lines[len(lines)-1], want)
	}
}

func TestCommandHost_NonZeroExit(t *testing.T) {
	ws := newTestWorkspace(t)
	hostBin := writeFakeHost(t, `echo "boom: extension missing" >&2; exit 3`)

	h := NewCommandHost(ws, CommandConfig{Command: hostBin, TaskArgs: []string{"run"}})
	receipt, err := h.RunTask(context.Background(), &task.Task{ID: "k", Label: "build"})
	if err == nil {
		t.Fatal("RunTask() error = nil, want dispatch failure")
	}

	var dispErr *DispatchError
	if !errors.As(err, &dispErr) {
		t.Fatalf("error type = %T, want *DispatchError", err)
	}
	if dispErr.Detail != "boom: extension missing" {
		t.Errorf("Detail = %q, want first stderr line", dispErr.Detail)
	}
	if receipt.DispatchID == "" {
		t.Error("DispatchID empty on failure, want one for the dispatch record")
	}
}

func TestCommandHost_SpawnFailure(t *testing.T) {
	ws := newTestWorkspace(t)
	h := NewCommandHost(ws, CommandConfig{
		Command:  filepath.Join(t.TempDir(), "missing-host"),
		TaskArgs: []string{"run"},
	})

	_, err := h.RunTask(context.Background(), &task.Task{ID: "k", Label: "build"})
	var dispErr *DispatchError
	if !errors.As(err, &dispErr) {
		t.Fatalf("error = %v, want *DispatchError", err)
	}
	if dispErr.Detail == "" {
		t.Error("Detail empty, want the spawn error text")
	}
}

func TestCommandHost_Timeout(t *testing.T) {
	ws := newTestWorkspace(t)
	h := NewCommandHost(ws, CommandConfig{
		Command:  "sleep",
		TaskArgs: []string{"10"},
		Timeout:  50 * time.Millisecond,
	})

	start := time.Now()
	_, err := h.RunTask(context.Background(), &task.Task{ID: "k", Label: "build"})
	if err == nil {
		t.Fatal("RunTask() error = nil, want timeout")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("RunTask() took %v, want the timeout to cut it short", elapsed)
	}
}

func TestCommandHost_RunsFromItemFolder(t *testing.T) {
	ws := newTestWorkspace(t)
	pwdFile := filepath.Join(t.TempDir(), "pwd.txt")
	hostBin := writeFakeHost(t, fmt.Sprintf(`pwd > %q`, pwdFile))

	h := NewCommandHost(ws, CommandConfig{Command: hostBin, TaskArgs: []string{"run"}})

	// A user task carries no folder; the dispatch runs from the
	// primary folder.
	if _, err := h.RunTask(context.Background(), &task.Task{ID: "k", Label: "build", FolderName: "user"}); err != nil {
		t.Fatalf("RunTask() error = %v", err)
	}

	data, err := os.ReadFile(pwdFile)
	if err != nil {
		t.Fatalf("reading pwd capture: %v", err)
	}
	got := strings.TrimSpace(string(data))
	want, err := filepath.EvalSymlinks(ws.Primary().Path)
	if err != nil {
		t.Fatalf("EvalSymlinks() error = %v", err)
	}
	resolved, err := filepath.EvalSymlinks(got)
	if err != nil {
		t.Fatalf("EvalSymlinks(%q) error = %v", got, err)
	}
	if resolved != want {
		t.Errorf("working dir = %q, want primary folder %q", resolved, want)
	}
}

func TestNullHost(t *testing.T) {
	n := NewNullHost()

	r1, err := n.RunTask(context.Background(), &task.Task{ID: "k1", Label: "build"})
	if err != nil {
		t.Fatalf("RunTask() error = %v", err)
	}
	r2, err := n.LaunchConfig(context.Background(), &launch.Config{Key: "app|Run", Name: "Run"})
	if err != nil {
		t.Fatalf("LaunchConfig() error = %v", err)
	}
	if r1.DispatchID == "" || r2.DispatchID == "" || r1.DispatchID == r2.DispatchID {
		t.Error("dispatch IDs missing or not unique")
	}

	invs := n.Invocations()
	if len(invs) != 2 {
		t.Fatalf("Invocations() len = %d, want 2", len(invs))
	}
	if invs[0].Kind != "task" || invs[0].Key != "k1" {
		t.Errorf("Invocations[0] = %+v, want recorded task", invs[0])
	}
	if invs[1].Kind != "launch" || invs[1].Label != "Run" {
		t.Errorf("Invocations[1] = %+v, want recorded launch", invs[1])
	}

	invs[0].Key = "mutated"
	if n.Invocations()[0].Key != "k1" {
		t.Error("mutating the returned slice affected the host")
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single line", "boom", "boom"},
		{"multi line", "first\nsecond\nthird", "first"},
		{"crlf", "first\r\nsecond", "first"},
		{"leading whitespace", "\n\n  real error\n", "real error"},
		{"empty", "", ""},
		{"long line capped", strings.Repeat("x", 500), strings.Repeat("x", maxDetailLen)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstLine(tt.input); got != tt.want {
				t.Errorf("firstLine(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
