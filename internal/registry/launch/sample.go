package launch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// CreateSampleLaunchFile scaffolds .runbar/launch.json with a starter
// configuration. Used by the init command; refuses to overwrite.
func CreateSampleLaunchFile(dir string) (string, error) {
	launchDir := filepath.Join(dir, ".runbar")
	if err := os.MkdirAll(launchDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(launchDir, "launch.json")
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("%s already exists", path)
	}

	doc := "{}"
	for _, field := range []struct {
		path  string
		value any
	}{
		{"version", "0.2.0"},
		{"configurations.0.name", "Launch Program"},
		{"configurations.0.type", "go"},
		{"configurations.0.request", "launch"},
		{"configurations.0.program", "${workspaceFolder}"},
	} {
		var err error
		doc, err = sjson.Set(doc, field.path, field.value)
		if err != nil {
			return "", fmt.Errorf("building sample: %w", err)
		}
	}
	doc = gjson.Get(doc, "@pretty").Raw

	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
