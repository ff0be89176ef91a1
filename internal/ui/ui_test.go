package ui

import (
	"context"
	"testing"
	"time"

	"github.com/dshills/runbar/internal/selection"
	"github.com/dshills/runbar/internal/statusbar"
)

func startTestUI(t *testing.T) (*UI, *NullBackend, *statusbar.Model, <-chan error) {
	t.Helper()
	backend := NewNullBackend(80, 24)
	bar := statusbar.New()
	u := New(backend, bar)

	done := make(chan error, 1)
	go func() { done <- u.Run(context.Background()); close(done) }()
	t.Cleanup(func() {
		u.Stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("UI loop did not stop")
		}
	})
	return u, backend, bar, done
}

func postRune(b *NullBackend, r rune) {
	b.PostEvent(Event{Type: EventKey, Key: KeyRune, Rune: r})
}

func waitAction(t *testing.T, u *UI) Action {
	t.Helper()
	select {
	case action := <-u.Actions():
		return action
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for action")
		return Action{}
	}
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return")
	}
}

func TestUI_KeyActions(t *testing.T) {
	u, backend, _, _ := startTestUI(t)

	tests := []struct {
		key  rune
		want Action
	}{
		{'t', Action{Type: ActionPick, Kind: selection.KindTask}},
		{'r', Action{Type: ActionRun, Kind: selection.KindTask}},
		{'l', Action{Type: ActionPick, Kind: selection.KindLaunch}},
		{'d', Action{Type: ActionRun, Kind: selection.KindLaunch}},
		{'g', Action{Type: ActionRefresh}},
	}

	for _, tt := range tests {
		postRune(backend, tt.key)
		got := waitAction(t, u)
		if got.Type != tt.want.Type || got.Kind != tt.want.Kind {
			t.Errorf("key %q: action = %+v, want %+v", tt.key, got, tt.want)
		}
	}
}

func TestUI_QuitKey(t *testing.T) {
	u, backend, _, done := startTestUI(t)

	postRune(backend, 'q')
	if got := waitAction(t, u); got.Type != ActionQuit {
		t.Errorf("action = %+v, want quit", got)
	}
	waitDone(t, done)
}

func TestUI_CtrlCQuits(t *testing.T) {
	u, backend, _, done := startTestUI(t)

	backend.PostEvent(Event{Type: EventKey, Key: KeyCtrlC})
	if got := waitAction(t, u); got.Type != ActionQuit {
		t.Errorf("action = %+v, want quit", got)
	}
	waitDone(t, done)
}

func TestUI_StopMakesRunReturn(t *testing.T) {
	u, _, _, done := startTestUI(t)

	u.Stop()
	waitDone(t, done)
}

func TestUI_PickerFlow(t *testing.T) {
	u, backend, _, _ := startTestUI(t)

	items := []PickerItem{
		{Key: "runbar:.runbar/tasks.json:build", Label: "build"},
		{Key: "runbar:.runbar/tasks.json:test", Label: "test"},
	}
	u.OpenPicker(selection.KindTask, "Pick a task", items, false)

	postRune(backend, 'b')
	backend.PostEvent(Event{Type: EventKey, Key: KeyEnter})

	got := waitAction(t, u)
	if got.Type != ActionChoose {
		t.Fatalf("action = %+v, want choose", got)
	}
	if got.Kind != selection.KindTask {
		t.Errorf("Kind = %q, want task", got.Kind)
	}
	if got.Key != "runbar:.runbar/tasks.json:build" {
		t.Errorf("Key = %q, want the build task", got.Key)
	}
	if got.RunAfter {
		t.Error("RunAfter = true, want false")
	}
}

func TestUI_PickerRunAfter(t *testing.T) {
	u, backend, _, _ := startTestUI(t)

	items := []PickerItem{{Key: "app|Run Server", Label: "Run Server"}}
	u.OpenPicker(selection.KindLaunch, "Pick a launch configuration", items, true)

	backend.PostEvent(Event{Type: EventKey, Key: KeyEnter})

	got := waitAction(t, u)
	if got.Type != ActionChoose || !got.RunAfter {
		t.Errorf("action = %+v, want choose with RunAfter", got)
	}
	if got.Kind != selection.KindLaunch {
		t.Errorf("Kind = %q, want launch", got.Kind)
	}
}

func TestUI_PickerEscapeEmitsNothing(t *testing.T) {
	u, backend, _, _ := startTestUI(t)

	u.OpenPicker(selection.KindTask, "Pick a task", []PickerItem{{Key: "k", Label: "build"}}, false)
	backend.PostEvent(Event{Type: EventKey, Key: KeyEscape})

	// The next action should come from the bar, not the dismissed
	// picker.
	postRune(backend, 'g')
	if got := waitAction(t, u); got.Type != ActionRefresh {
		t.Errorf("action = %+v, want refresh after cancel", got)
	}
}

func TestUI_MouseOnBar(t *testing.T) {
	u, backend, bar, _ := startTestUI(t)

	bar.SetCandidates(selection.KindTask, 2)
	bar.SetSelection(selection.KindTask, "build")

	width, height := backend.Size()
	placements := bar.Layout(width)

	var selX, runX int = -1, -1
	for _, p := range placements {
		switch p.Segment.ID {
		case statusbar.IDTaskSelect:
			selX = p.X
		case statusbar.IDTaskRun:
			runX = p.X
		}
	}
	if selX < 0 || runX < 0 {
		t.Fatalf("bar layout missing task segments: %+v", placements)
	}

	backend.PostEvent(Event{Type: EventMouse, Button: MouseLeft, MouseX: selX, MouseY: height - 1})
	if got := waitAction(t, u); got.Type != ActionPick || got.Kind != selection.KindTask {
		t.Errorf("selector click action = %+v, want pick task", got)
	}

	backend.PostEvent(Event{Type: EventMouse, Button: MouseLeft, MouseX: runX, MouseY: height - 1})
	if got := waitAction(t, u); got.Type != ActionRun || got.Kind != selection.KindTask {
		t.Errorf("run trigger click action = %+v, want run task", got)
	}
}

func TestUI_MouseRunTriggerWithoutSelectionPicks(t *testing.T) {
	u, backend, bar, _ := startTestUI(t)

	bar.SetCandidates(selection.KindTask, 2)

	width, height := backend.Size()
	placements := bar.Layout(width)
	runX := -1
	for _, p := range placements {
		if p.Segment.ID == statusbar.IDTaskRun {
			runX = p.X
		}
	}
	if runX < 0 {
		t.Fatal("run trigger missing from layout")
	}

	backend.PostEvent(Event{Type: EventMouse, Button: MouseLeft, MouseX: runX, MouseY: height - 1})
	if got := waitAction(t, u); got.Type != ActionPick || got.Kind != selection.KindTask {
		t.Errorf("action = %+v, want pick fallback", got)
	}
}
