package ui

import (
	"strings"
	"testing"

	"github.com/dshills/runbar/internal/selection"
	"github.com/dshills/runbar/internal/statusbar"
)

func TestRenderBar_BottomRow(t *testing.T) {
	backend := NewNullBackend(80, 24)
	if err := backend.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	bar := statusbar.New()
	bar.SetCandidates(selection.KindTask, 3)
	bar.SetCandidates(selection.KindLaunch, 1)
	bar.SetSelection(selection.KindTask, "build")

	RenderBar(backend, bar, DefaultTheme())

	row := backend.RowText(23)
	if !strings.Contains(row, "⚙ build") {
		t.Errorf("bar row = %q, want task selector with label", row)
	}
	if !strings.Contains(row, "3 tasks, 1 launches") {
		t.Errorf("bar row = %q, want status summary", row)
	}

	for y := 0; y < 23; y++ {
		if text := backend.RowText(y); text != "" {
			t.Errorf("row %d = %q, want bar drawing confined to the bottom row", y, text)
		}
	}
}

func TestRenderBar_DisabledSegmentsDimmed(t *testing.T) {
	backend := NewNullBackend(80, 24)
	if err := backend.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	bar := statusbar.New()
	bar.SetCandidates(selection.KindTask, 2)

	RenderBar(backend, bar, DefaultTheme())

	placements := bar.Layout(80)
	for _, p := range placements {
		if p.Segment.ID != statusbar.IDTaskRun {
			continue
		}
		cell := backend.Cell(p.X, 23)
		if !cell.Style.Attrs.Has(AttrDim) {
			t.Error("run trigger without selection not dimmed")
		}
		return
	}
	t.Fatal("run trigger missing from layout")
}
