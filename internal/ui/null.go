package ui

import "strings"

// NullBackend is an in-memory backend for tests. It records cells and
// cursor state and serves events from a queue.
type NullBackend struct {
	width, height int
	cells         [][]Cell
	cursorX       int
	cursorY       int
	cursorVisible bool
	events        chan Event
}

var _ Backend = (*NullBackend)(nil)

// NewNullBackend creates a null backend with the given dimensions.
func NewNullBackend(width, height int) *NullBackend {
	return &NullBackend{
		width:  width,
		height: height,
		events: make(chan Event, 100),
	}
}

func (b *NullBackend) Init() error {
	b.cells = makeCells(b.width, b.height)
	return nil
}

func (b *NullBackend) Shutdown() {}

func (b *NullBackend) Size() (int, int) {
	return b.width, b.height
}

func (b *NullBackend) SetCell(x, y int, cell Cell) {
	if x >= 0 && x < b.width && y >= 0 && y < b.height {
		b.cells[y][x] = cell
	}
}

func (b *NullBackend) Clear() {
	b.cells = makeCells(b.width, b.height)
}

func (b *NullBackend) Show() {}

func (b *NullBackend) ShowCursor(x, y int) {
	b.cursorX = x
	b.cursorY = y
	b.cursorVisible = true
}

func (b *NullBackend) HideCursor() {
	b.cursorVisible = false
}

func (b *NullBackend) PollEvent() Event {
	return <-b.events
}

func (b *NullBackend) PostEvent(event Event) {
	select {
	case b.events <- event:
	default:
		// Dropped when the queue is full; tests never need backpressure.
	}
}

func (b *NullBackend) EnableMouse() {}

// Cell returns the cell at a position, or an empty cell out of range.
func (b *NullBackend) Cell(x, y int) Cell {
	if x >= 0 && x < b.width && y >= 0 && y < b.height {
		return b.cells[y][x]
	}
	return EmptyCell()
}

// RowText returns the text content of a row with trailing blanks
// trimmed. Continuation cells of wide runes are skipped.
func (b *NullBackend) RowText(y int) string {
	if y < 0 || y >= b.height {
		return ""
	}
	var sb strings.Builder
	for _, cell := range b.cells[y] {
		if cell.Width == 0 && cell.Rune == 0 {
			continue
		}
		if cell.Rune == 0 {
			sb.WriteRune(' ')
			continue
		}
		sb.WriteRune(cell.Rune)
	}
	return strings.TrimRight(sb.String(), " ")
}

// CursorPosition returns the cursor state for tests.
func (b *NullBackend) CursorPosition() (x, y int, visible bool) {
	return b.cursorX, b.cursorY, b.cursorVisible
}

// Resize changes the dimensions and clears the screen.
func (b *NullBackend) Resize(width, height int) {
	b.width = width
	b.height = height
	b.cells = makeCells(width, height)
}

func makeCells(width, height int) [][]Cell {
	cells := make([][]Cell, height)
	for y := range cells {
		cells[y] = make([]Cell, width)
		for x := range cells[y] {
			cells[y][x] = EmptyCell()
		}
	}
	return cells
}
