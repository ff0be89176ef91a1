package ui

import (
	"github.com/dshills/runbar/internal/statusbar"
)

// RenderBar draws the bar model's placements on the bottom row.
func RenderBar(b Backend, model *statusbar.Model, theme Theme) {
	width, height := b.Size()
	if width <= 0 || height <= 0 {
		return
	}
	row := height - 1

	for x := 0; x < width; x++ {
		b.SetCell(x, row, Cell{Rune: ' ', Width: 1, Style: theme.BarStatus})
	}

	for _, p := range model.Layout(width) {
		style := theme.Bar
		switch {
		case p.Segment.ID == statusbar.IDStatus:
			style = theme.BarStatus
		case !p.Segment.Enabled:
			style = theme.BarDisabled
		}
		drawText(b, p.X, row, p.Width, p.Segment.Text, style)
	}
}
