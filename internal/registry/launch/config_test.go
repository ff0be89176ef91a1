package launch

import "testing"

func TestMakeKey(t *testing.T) {
	tests := []struct {
		folderName string
		name       string
		want       string
	}{
		{"app", "Run Server", "app|Run Server"},
		{"", "Global Debug", "|Global Debug"},
	}
	for _, tt := range tests {
		if got := MakeKey(tt.folderName, tt.name); got != tt.want {
			t.Errorf("MakeKey(%q, %q) = %q, want %q", tt.folderName, tt.name, got, tt.want)
		}
	}
}

func TestSplitKey(t *testing.T) {
	tests := []struct {
		key        string
		wantFolder string
		wantName   string
	}{
		{"app|Run Server", "app", "Run Server"},
		{"|Global Debug", "", "Global Debug"},
		{"app|a|b", "app", "a|b"},
	}
	for _, tt := range tests {
		folder, name := SplitKey(tt.key)
		if folder != tt.wantFolder || name != tt.wantName {
			t.Errorf("SplitKey(%q) = %q, %q, want %q, %q",
				tt.key, folder, name, tt.wantFolder, tt.wantName)
		}
	}
}

func TestConfig_DisplayLabel(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		multiRoot bool
		want      string
	}{
		{
			name:   "single root",
			config: Config{Name: "Run", FolderName: "app"},
			want:   "Run",
		},
		{
			name:      "multi root prefixes folder",
			config:    Config{Name: "Run", FolderName: "app"},
			multiRoot: true,
			want:      "app: Run",
		},
		{
			name:   "compound suffix",
			config: Config{Name: "Full Stack", FolderName: "app", Compound: true},
			want:   "Full Stack (compound)",
		},
		{
			name:      "global entry has no folder prefix",
			config:    Config{Name: "Global Debug"},
			multiRoot: true,
			want:      "Global Debug",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.DisplayLabel(tt.multiRoot); got != tt.want {
				t.Errorf("DisplayLabel(%v) = %q, want %q", tt.multiRoot, got, tt.want)
			}
		})
	}
}

func TestConvertGlobal(t *testing.T) {
	c, err := convertGlobal(map[string]any{
		"name":    "Remote",
		"type":    "go",
		"request": "attach",
		"port":    2345,
	}, false)
	if err != nil {
		t.Fatalf("convertGlobal() error = %v", err)
	}
	if c.Name != "Remote" || c.Request != "attach" || c.Port != 2345 {
		t.Errorf("convertGlobal() = %+v, want name/request/port decoded", c)
	}
	if len(c.Raw) == 0 {
		t.Error("Raw = empty, want marshalled entry retained")
	}

	// Unnamed entries are skipped, not errors.
	c, err = convertGlobal(map[string]any{"type": "go"}, false)
	if err != nil {
		t.Fatalf("convertGlobal() error = %v", err)
	}
	if c != nil {
		t.Errorf("convertGlobal() = %+v, want nil for unnamed entry", c)
	}
}
