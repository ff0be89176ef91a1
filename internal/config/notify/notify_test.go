package notify

import (
	"testing"
)

func TestNotifier_GlobalAndPathObservers(t *testing.T) {
	n := New()
	defer n.Close()

	var global, hostScoped, taskScoped []Change
	n.Subscribe(func(c Change) { global = append(global, c) })
	n.SubscribePath("host", func(c Change) { hostScoped = append(hostScoped, c) })
	n.SubscribePath("tasks.cache_ttl", func(c Change) { taskScoped = append(taskScoped, c) })

	n.NotifySet("host.command", "code", "codium", "user")

	if len(global) != 1 {
		t.Errorf("global observer got %d changes, want 1", len(global))
	}
	if len(hostScoped) != 1 {
		t.Fatalf("host observer got %d changes, want 1", len(hostScoped))
	}
	if hostScoped[0].NewValue != "codium" {
		t.Errorf("host observer NewValue = %v, want codium", hostScoped[0].NewValue)
	}
	if len(taskScoped) != 0 {
		t.Errorf("tasks.cache_ttl observer got %d changes, want 0", len(taskScoped))
	}
}

func TestNotifier_ExactPathMatch(t *testing.T) {
	n := New()
	defer n.Close()

	var got []Change
	n.SubscribePath("tasks.cache_ttl", func(c Change) { got = append(got, c) })

	n.NotifySet("tasks.cache_ttl", "5m", "10m", "workspace")
	if len(got) != 1 {
		t.Errorf("exact path observer got %d changes, want 1", len(got))
	}
}

func TestNotifier_ReloadReachesPathObservers(t *testing.T) {
	n := New()
	defer n.Close()

	var got []Change
	n.SubscribePath("launch", func(c Change) { got = append(got, c) })

	n.NotifyReload("watcher")
	if len(got) != 1 {
		t.Fatalf("path observer got %d changes on reload, want 1", len(got))
	}
	if got[0].Type != ChangeReload {
		t.Errorf("change type = %v, want ChangeReload", got[0].Type)
	}
}

func TestNotifier_Unsubscribe(t *testing.T) {
	n := New()
	defer n.Close()

	count := 0
	sub := n.Subscribe(func(Change) { count++ })

	n.NotifySet("bar.icons", nil, "ascii", "user")
	sub.Unsubscribe()
	n.NotifySet("bar.icons", "ascii", "unicode", "user")

	if count != 1 {
		t.Errorf("observer called %d times, want 1", count)
	}
}

func TestNotifier_ClosedDropsChanges(t *testing.T) {
	n := New()
	count := 0
	n.Subscribe(func(Change) { count++ })

	n.Close()
	n.NotifySet("log.level", "info", "debug", "env")

	if count != 0 {
		t.Errorf("observer called %d times after Close, want 0", count)
	}
}

func TestBatch_Commit(t *testing.T) {
	n := New()
	defer n.Close()

	var got []Change
	n.Subscribe(func(c Change) { got = append(got, c) })

	b := n.NewBatch()
	b.Set("host.command", "code", "codium", "user")
	b.Delete("log.file", "/tmp/runbar.log", "user")
	if b.Len() != 2 {
		t.Fatalf("Batch.Len() = %d, want 2", b.Len())
	}

	if len(got) != 0 {
		t.Fatalf("changes delivered before Commit: %d", len(got))
	}
	b.Commit()
	if len(got) != 2 {
		t.Fatalf("got %d changes after Commit, want 2", len(got))
	}
	if got[1].Type != ChangeDelete {
		t.Errorf("second change type = %v, want ChangeDelete", got[1].Type)
	}
	if b.Len() != 0 {
		t.Errorf("Batch.Len() after Commit = %d, want 0", b.Len())
	}
}

func TestIsParentPath(t *testing.T) {
	tests := []struct {
		parent, child string
		want          bool
	}{
		{"host", "host.command", true},
		{"host", "hostile.command", false},
		{"host.command", "host", false},
		{"", "host", true},
		{"host", "host", false},
	}

	for _, tt := range tests {
		if got := isParentPath(tt.parent, tt.child); got != tt.want {
			t.Errorf("isParentPath(%q, %q) = %v, want %v", tt.parent, tt.child, got, tt.want)
		}
	}
}
