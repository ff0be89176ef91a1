package ui

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mattn/go-runewidth"
)

// PickerItem is one candidate row in the picker.
type PickerItem struct {
	// Key is handed back to the application when the item is chosen.
	Key string

	// Label is the display text and the fuzzy filter target.
	Label string

	// Detail is secondary text shown dimmed after the label.
	Detail string
}

// PickerResult is the outcome of an input event routed to the picker.
type PickerResult struct {
	// Closed reports that the picker is done and should be dismissed.
	Closed bool

	// Chosen is the selected item, nil when the picker was canceled.
	Chosen *PickerItem
}

// Picker is a centered overlay that fuzzy-filters candidates. It is
// not safe for concurrent use; the UI loop owns it.
type Picker struct {
	title    string
	items    []PickerItem
	query    []rune
	filtered []fuzzyResult
	cursor   int
	offset   int

	// Geometry from the last render, for mouse handling.
	boxX, boxY, boxW, boxH int
	listTop, listH         int
}

// NewPicker creates a picker over the given items with an empty
// query.
func NewPicker(title string, items []PickerItem) *Picker {
	p := &Picker{title: title, items: items}
	p.refilter()
	return p
}

// Query returns the current filter text.
func (p *Picker) Query() string {
	return string(p.query)
}

// Current returns the item under the cursor, or nil with no matches.
func (p *Picker) Current() *PickerItem {
	if p.cursor < 0 || p.cursor >= len(p.filtered) {
		return nil
	}
	item := p.items[p.filtered[p.cursor].Index]
	return &item
}

// HandleKey processes one key event.
func (p *Picker) HandleKey(ev Event) PickerResult {
	switch ev.Key {
	case KeyEscape, KeyCtrlC:
		return PickerResult{Closed: true}

	case KeyEnter:
		if chosen := p.Current(); chosen != nil {
			return PickerResult{Closed: true, Chosen: chosen}
		}
		return PickerResult{}

	case KeyUp, KeyCtrlP:
		p.moveCursor(-1)
	case KeyDown, KeyCtrlN:
		p.moveCursor(1)
	case KeyPageUp:
		p.moveCursor(-p.pageSize())
	case KeyPageDown:
		p.moveCursor(p.pageSize())
	case KeyHome:
		p.moveCursor(-len(p.filtered))
	case KeyEnd:
		p.moveCursor(len(p.filtered))

	case KeyBackspace:
		if len(p.query) > 0 {
			p.query = p.query[:len(p.query)-1]
			p.refilter()
		}
	case KeyCtrlU:
		if len(p.query) > 0 {
			p.query = nil
			p.refilter()
		}
	case KeyCtrlW:
		p.deleteWord()

	case KeyRune:
		if unicode.IsPrint(ev.Rune) {
			p.query = append(p.query, ev.Rune)
			p.refilter()
		}
	}
	return PickerResult{}
}

// HandleMouse processes one mouse event. A click on a row chooses
// it; a click outside the box cancels.
func (p *Picker) HandleMouse(ev Event) PickerResult {
	switch ev.Button {
	case MouseWheelUp:
		p.moveCursor(-1)
		return PickerResult{}
	case MouseWheelDown:
		p.moveCursor(1)
		return PickerResult{}
	case MouseLeft:
	default:
		return PickerResult{}
	}

	inBox := ev.MouseX >= p.boxX && ev.MouseX < p.boxX+p.boxW &&
		ev.MouseY >= p.boxY && ev.MouseY < p.boxY+p.boxH
	if !inBox {
		return PickerResult{Closed: true}
	}

	row := ev.MouseY - p.listTop
	if row < 0 || row >= p.listH {
		return PickerResult{}
	}
	idx := p.offset + row
	if idx >= len(p.filtered) {
		return PickerResult{}
	}
	p.cursor = idx
	return PickerResult{Closed: true, Chosen: p.Current()}
}

// Render draws the picker centered on the backend and records its
// geometry for mouse handling.
func (p *Picker) Render(b Backend, theme Theme) {
	width, height := b.Size()
	if width < 8 || height < 5 {
		return
	}

	boxW := width - 4
	if boxW > 64 {
		boxW = 64
	}

	listH := len(p.filtered)
	if listH < 1 {
		listH = 1
	}
	if maxList := height - 5; listH > maxList {
		listH = maxList
	}
	if listH > 10 {
		listH = 10
	}
	boxH := listH + 2

	x := (width - boxW) / 2
	y := (height - boxH) / 3
	if y < 0 {
		y = 0
	}

	p.boxX, p.boxY, p.boxW, p.boxH = x, y, boxW, boxH
	p.listTop, p.listH = y+2, listH
	p.clampOffset()

	for row := y; row < y+boxH; row++ {
		for col := x; col < x+boxW; col++ {
			b.SetCell(col, row, Cell{Rune: ' ', Width: 1, Style: theme.PickerBox})
		}
	}

	inner := boxW - 2
	counter := fmt.Sprintf("%d/%d", len(p.filtered), len(p.items))
	titleW := inner - runewidth.StringWidth(counter) - 1
	drawText(b, x+1, y, titleW, p.title, theme.PickerTitle)
	drawText(b, x+boxW-1-runewidth.StringWidth(counter), y, runewidth.StringWidth(counter), counter, theme.PickerDetail)

	prompt := "> "
	drawText(b, x+1, y+1, inner, prompt+string(p.query), theme.PickerQuery)
	b.ShowCursor(x+1+runewidth.StringWidth(prompt+string(p.query)), y+1)

	if len(p.filtered) == 0 {
		drawText(b, x+1, p.listTop, inner, "no matches", theme.PickerDetail)
		return
	}

	for row := 0; row < listH; row++ {
		idx := p.offset + row
		if idx >= len(p.filtered) {
			break
		}
		p.renderRow(b, theme, x+1, p.listTop+row, inner, p.filtered[idx], idx == p.cursor)
	}
}

func (p *Picker) renderRow(b Backend, theme Theme, x, y, maxw int, res fuzzyResult, selected bool) {
	item := p.items[res.Index]
	base := theme.PickerItem
	detail := theme.PickerDetail
	if selected {
		base = theme.PickerSel
		detail = theme.PickerSel
		for col := x; col < x+maxw; col++ {
			b.SetCell(col, y, Cell{Rune: ' ', Width: 1, Style: base})
		}
	}

	matched := make(map[int]bool, len(res.Matches))
	for _, idx := range res.Matches {
		matched[idx] = true
	}

	col := x
	limit := x + maxw
	for runeIdx, r := range []rune(item.Label) {
		w := runewidth.RuneWidth(r)
		if col+w > limit {
			return
		}
		style := base
		if matched[runeIdx] {
			style.Attrs |= theme.PickerMatch
		}
		b.SetCell(col, y, Cell{Rune: r, Width: w, Style: style})
		if w == 2 {
			b.SetCell(col+1, y, Cell{Style: style})
		}
		col += w
	}

	if item.Detail != "" && col+4 < limit {
		drawText(b, col+2, y, limit-col-2, item.Detail, detail)
	}
}

func (p *Picker) refilter() {
	labels := make([]string, len(p.items))
	for i, item := range p.items {
		labels[i] = item.Label
	}
	p.filtered = fuzzyFilter(string(p.query), labels)
	p.cursor = 0
	p.offset = 0
}

func (p *Picker) moveCursor(delta int) {
	if len(p.filtered) == 0 {
		p.cursor = 0
		return
	}
	p.cursor += delta
	if p.cursor < 0 {
		p.cursor = 0
	}
	if p.cursor >= len(p.filtered) {
		p.cursor = len(p.filtered) - 1
	}
	p.clampOffset()
}

func (p *Picker) clampOffset() {
	if p.listH <= 0 {
		return
	}
	if p.cursor < p.offset {
		p.offset = p.cursor
	}
	if p.cursor >= p.offset+p.listH {
		p.offset = p.cursor - p.listH + 1
	}
}

func (p *Picker) pageSize() int {
	if p.listH > 0 {
		return p.listH
	}
	return 5
}

func (p *Picker) deleteWord() {
	if len(p.query) == 0 {
		return
	}
	s := strings.TrimRight(string(p.query), " ")
	if idx := strings.LastIndex(s, " "); idx >= 0 {
		p.query = []rune(s[:idx+1])
	} else {
		p.query = nil
	}
	p.refilter()
}

// drawText draws text at x,y clipped to maxw columns and returns the
// columns used.
func drawText(b Backend, x, y, maxw int, text string, style Style) int {
	col := 0
	for _, r := range text {
		w := runewidth.RuneWidth(r)
		if col+w > maxw {
			break
		}
		b.SetCell(x+col, y, Cell{Rune: r, Width: w, Style: style})
		if w == 2 {
			b.SetCell(x+col+1, y, Cell{Style: style})
		}
		col += w
	}
	return col
}
