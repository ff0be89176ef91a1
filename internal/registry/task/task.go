package task

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// Group categorizes tasks.
type Group string

const (
	// GroupBuild contains build-related tasks.
	GroupBuild Group = "build"
	// GroupTest contains test-related tasks.
	GroupTest Group = "test"
	// GroupRun contains run/start tasks.
	GroupRun Group = "run"
	// GroupClean contains cleanup tasks.
	GroupClean Group = "clean"
	// GroupLint contains linting tasks.
	GroupLint Group = "lint"
	// GroupOther contains uncategorized tasks.
	GroupOther Group = "other"
)

// Task represents a task enumerated from a definition file. runbar
// never executes tasks itself; dispatch hands the task's ID to the
// host editor.
type Task struct {
	// ID is the stable derived identifier for the task.
	ID string `json:"id"`

	// Label is the display name of the task.
	Label string `json:"label"`

	// Detail is a human-readable description.
	Detail string `json:"detail,omitempty"`

	// Source identifies the source that enumerated this task.
	Source string `json:"source"`

	// SourceFile is the absolute path of the defining file.
	SourceFile string `json:"sourceFile,omitempty"`

	// Folder is the workspace folder path the task belongs to. Empty
	// for user-level tasks.
	Folder string `json:"folder,omitempty"`

	// FolderName is the folder's display name ("user" for user-level
	// tasks).
	FolderName string `json:"folderName,omitempty"`

	// Type is the task type as declared ("shell", "process", "npm", ...).
	Type string `json:"type,omitempty"`

	// Group is the task category.
	Group Group `json:"group"`

	// Command is the declared command line or executable.
	Command string `json:"command,omitempty"`

	// Args are the declared command arguments.
	Args []string `json:"args,omitempty"`

	// Cwd is the declared working directory.
	Cwd string `json:"cwd,omitempty"`

	// Env are the declared environment variables.
	Env map[string]string `json:"env,omitempty"`

	// DependsOn lists labels of tasks this task depends on.
	DependsOn []string `json:"dependsOn,omitempty"`

	// ProblemMatcher is the declared problem matcher name.
	ProblemMatcher string `json:"problemMatcher,omitempty"`

	// IsBackground marks long-running tasks.
	IsBackground bool `json:"isBackground,omitempty"`

	// IsDefault marks the default task of its group.
	IsDefault bool `json:"isDefault,omitempty"`
}

// DisplayLabel returns the label prefixed with the folder name when
// the workspace has more than one folder.
func (t *Task) DisplayLabel(multiRoot bool) string {
	if multiRoot && t.FolderName != "" {
		return t.FolderName + ": " + t.Label
	}
	return t.Label
}

// GenerateID derives a task ID from its source, defining file, and
// label. The file is made relative to the folder so the ID survives
// the workspace being opened from a different absolute location.
func GenerateID(folder, source, file, label string) string {
	relPath := file
	if folder != "" {
		if rel, err := filepath.Rel(folder, file); err == nil && !strings.HasPrefix(rel, "..") {
			relPath = rel
		}
	}
	if relPath == file && filepath.IsAbs(file) {
		// Outside the folder (user-level files): keep the base name and
		// an abbreviated content hash of the directory for uniqueness.
		h := sha256.Sum256([]byte(filepath.Dir(file)))
		relPath = hex.EncodeToString(h[:4]) + "/" + filepath.Base(file)
	}
	return fmt.Sprintf("%s:%s:%s", source, filepath.ToSlash(relPath), label)
}

// InferGroup infers the task group from its label.
func InferGroup(label string) Group {
	buildPatterns := []string{"build", "compile", "package", "bundle", "webpack", "rollup", "esbuild"}
	testPatterns := []string{"test", "spec", "check", "verify", "coverage"}
	runPatterns := []string{"run", "start", "serve", "dev", "watch", "develop"}
	cleanPatterns := []string{"clean", "clear", "purge", "reset"}
	lintPatterns := []string{"lint", "format", "fmt", "prettier", "eslint", "golangci"}

	lower := strings.ToLower(label)

	for _, p := range buildPatterns {
		if strings.Contains(lower, p) {
			return GroupBuild
		}
	}
	for _, p := range testPatterns {
		if strings.Contains(lower, p) {
			return GroupTest
		}
	}
	for _, p := range runPatterns {
		if strings.Contains(lower, p) {
			return GroupRun
		}
	}
	for _, p := range cleanPatterns {
		if strings.Contains(lower, p) {
			return GroupClean
		}
	}
	for _, p := range lintPatterns {
		if strings.Contains(lower, p) {
			return GroupLint
		}
	}
	return GroupOther
}

// ParseGroup maps a declared group kind to a Group, falling back to
// inference from the label when the kind is absent or unknown.
func ParseGroup(kind, label string) Group {
	switch kind {
	case "build":
		return GroupBuild
	case "test":
		return GroupTest
	case "run":
		return GroupRun
	case "clean":
		return GroupClean
	case "lint":
		return GroupLint
	case "none":
		return GroupOther
	default:
		return InferGroup(label)
	}
}
