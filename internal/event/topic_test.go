package event

import (
	"testing"
)

func TestTopic_Matches(t *testing.T) {
	tests := []struct {
		name    string
		topic   Topic
		pattern Topic
		want    bool
	}{
		{"exact", "registry.task.refreshed", "registry.task.refreshed", true},
		{"exact mismatch", "registry.task.refreshed", "registry.launch.refreshed", false},
		{"single wildcard", "registry.task.refreshed", "registry.*.refreshed", true},
		{"single wildcard wrong depth", "registry.task.refreshed", "registry.*", false},
		{"multi wildcard tail", "registry.task.refreshed", "registry.**", true},
		{"multi wildcard zero segments", "selection", "selection.**", true},
		{"multi wildcard all", "dispatch.failed", "**", true},
		{"multi wildcard middle", "workspace.folder.added", "workspace.**.added", true},
		{"prefix without wildcard", "selection.changed", "selection", false},
		{"longer pattern", "selection", "selection.changed", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.topic.Matches(tt.pattern); got != tt.want {
				t.Errorf("Topic(%q).Matches(%q) = %v, want %v", tt.topic, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestTopic_IsValid(t *testing.T) {
	tests := []struct {
		topic Topic
		want  bool
	}{
		{"registry.task.refreshed", true},
		{"selection", true},
		{"", false},
		{".selection", false},
		{"selection.", false},
		{"selection..changed", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic.String(), func(t *testing.T) {
			if got := tt.topic.IsValid(); got != tt.want {
				t.Errorf("Topic(%q).IsValid() = %v, want %v", tt.topic, got, tt.want)
			}
		})
	}
}

func TestTopic_Segments(t *testing.T) {
	tests := []struct {
		topic Topic
		want  []string
	}{
		{"registry.task.refreshed", []string{"registry", "task", "refreshed"}},
		{"selection", []string{"selection"}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.topic.String(), func(t *testing.T) {
			got := tt.topic.Segments()
			if len(got) != len(tt.want) {
				t.Fatalf("Topic.Segments() = %v, want %v", got, tt.want)
			}
			for i, seg := range got {
				if seg != tt.want[i] {
					t.Errorf("Topic.Segments()[%d] = %v, want %v", i, seg, tt.want[i])
				}
			}
		})
	}
}
