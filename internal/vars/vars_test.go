package vars

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolver_ContextValues(t *testing.T) {
	r := NewResolver()
	ctx := &Context{
		Values: map[string]string{
			"taskKey": "runbar:.runbar/tasks.json:build",
		},
	}

	got := r.Resolve("key=${taskKey}", ctx)
	want := "key=runbar:.runbar/tasks.json:build"
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestResolver_QueryEscape(t *testing.T) {
	r := NewResolver()
	ctx := &Context{
		Values: map[string]string{
			"taskKey":    "editor:.vscode/tasks.json:build & test",
			"configName": "Launch Server (dev)",
		},
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"key with specials",
			"vscode://dshills.runbar/run-task?key=${q:taskKey}",
			"vscode://dshills.runbar/run-task?key=editor%3A.vscode%2Ftasks.json%3Abuild+%26+test",
		},
		{
			"name with spaces",
			"name=${q:configName}",
			"name=Launch+Server+%28dev%29",
		},
		{
			"unresolved stays verbatim",
			"key=${q:missing}",
			"key=${q:missing}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.input, ctx); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolver_EnvNamespace(t *testing.T) {
	t.Setenv("RUNBAR_TEST_VAR", "hello")

	r := NewResolver()

	if got := r.Resolve("${env:RUNBAR_TEST_VAR}", nil); got != "hello" {
		t.Errorf("Resolve(env set) = %q, want %q", got, "hello")
	}
	if got := r.Resolve("${env:RUNBAR_TEST_UNSET:fallback}", nil); got != "fallback" {
		t.Errorf("Resolve(env default) = %q, want %q", got, "fallback")
	}
	if got := r.Resolve("${env:RUNBAR_TEST_UNSET}", nil); got != "" {
		t.Errorf("Resolve(env unset, no default) = %q, want empty", got)
	}
}

func TestResolver_Defaults(t *testing.T) {
	r := NewResolver()

	if got := r.Resolve("${missing:123}", nil); got != "123" {
		t.Errorf("Resolve(default) = %q, want %q", got, "123")
	}
	if got := r.Resolve("${missing}", nil); got != "${missing}" {
		t.Errorf("Resolve(unresolved) = %q, want verbatim", got)
	}
}

func TestResolver_CustomOverridesContext(t *testing.T) {
	r := NewResolver()
	r.Set("taskKey", "custom-key")

	ctx := &Context{Values: map[string]string{"taskKey": "ctx-key"}}
	if got := r.Resolve("${taskKey}", ctx); got != "custom-key" {
		t.Errorf("Resolve() = %q, want custom value", got)
	}

	r.Delete("taskKey")
	if got := r.Resolve("${taskKey}", ctx); got != "ctx-key" {
		t.Errorf("Resolve() after Delete = %q, want context value", got)
	}
}

func TestResolver_BuiltinProviders(t *testing.T) {
	r := NewResolver()
	ctx := &Context{
		Folder:     "/work/project",
		FolderName: "project",
	}

	if got := r.Resolve("${workspaceFolder}", ctx); got != "/work/project" {
		t.Errorf("workspaceFolder = %q, want %q", got, "/work/project")
	}
	if got := r.Resolve("${workspaceFolderBasename}", ctx); got != "project" {
		t.Errorf("workspaceFolderBasename = %q, want %q", got, "project")
	}
	if got := r.Resolve("${pathSeparator}", ctx); got != string(filepath.Separator) {
		t.Errorf("pathSeparator = %q, want %q", got, string(filepath.Separator))
	}

	// Empty context falls back to the process cwd.
	cwd, _ := os.Getwd()
	if got := r.Resolve("${workspaceFolder}", nil); got != cwd {
		t.Errorf("workspaceFolder(nil ctx) = %q, want cwd %q", got, cwd)
	}
}

func TestResolver_BareDollarSyntax(t *testing.T) {
	r := NewResolver()
	ctx := &Context{Values: map[string]string{"target": "all"}}

	if got := r.Resolve("make $target", ctx); got != "make all" {
		t.Errorf("Resolve() = %q, want %q", got, "make all")
	}
}

func TestResolver_ResolveArgs(t *testing.T) {
	r := NewResolver()
	ctx := &Context{
		Values: map[string]string{"taskKey": "a b"},
	}

	got := r.ResolveArgs([]string{"--open-url", "x://y?key=${q:taskKey}"}, ctx)
	if len(got) != 2 {
		t.Fatalf("ResolveArgs() len = %d, want 2", len(got))
	}
	if got[0] != "--open-url" {
		t.Errorf("arg[0] = %q, want untouched literal", got[0])
	}
	if got[1] != "x://y?key=a+b" {
		t.Errorf("arg[1] = %q, want %q", got[1], "x://y?key=a+b")
	}

	if out := r.ResolveArgs(nil, ctx); out != nil {
		t.Errorf("ResolveArgs(nil) = %v, want nil", out)
	}
}

func TestRegisterProvider(t *testing.T) {
	r := NewResolver()
	r.RegisterProvider("answer", func(_ *Context) string { return "42" })

	if got := r.Resolve("${answer}", nil); got != "42" {
		t.Errorf("Resolve() = %q, want %q", got, "42")
	}
}
