// Package ui renders the status bar and the picker overlay on a
// terminal.
//
// The Backend interface isolates the tcell screen so rendering logic
// can be tested against an in-memory implementation. The UI event
// loop translates raw key and mouse events into semantic actions
// (pick, run, refresh, quit) consumed by the application.
package ui

import "github.com/mattn/go-runewidth"

// Color is a terminal palette color. ColorDefault keeps the
// terminal's own color; values 0-255 index the standard palette.
type Color int

const ColorDefault Color = -1

const (
	ColorBlack Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
)

// AttrMask is a bitmask of text attributes.
type AttrMask uint8

const (
	AttrBold AttrMask = 1 << iota
	AttrDim
	AttrUnderline
	AttrReverse
)

// Has reports whether the mask contains attr.
func (a AttrMask) Has(attr AttrMask) bool {
	return a&attr != 0
}

// Style describes how a cell is drawn.
type Style struct {
	FG    Color
	BG    Color
	Attrs AttrMask
}

// DefaultStyle returns the terminal default style.
func DefaultStyle() Style {
	return Style{FG: ColorDefault, BG: ColorDefault}
}

// WithFG returns the style with a new foreground.
func (s Style) WithFG(c Color) Style {
	s.FG = c
	return s
}

// WithBG returns the style with a new background.
func (s Style) WithBG(c Color) Style {
	s.BG = c
	return s
}

// Bold returns the style with bold set.
func (s Style) Bold() Style {
	s.Attrs |= AttrBold
	return s
}

// Dim returns the style with dim set.
func (s Style) Dim() Style {
	s.Attrs |= AttrDim
	return s
}

// Underline returns the style with underline set.
func (s Style) Underline() Style {
	s.Attrs |= AttrUnderline
	return s
}

// Reverse returns the style with reverse video set.
func (s Style) Reverse() Style {
	s.Attrs |= AttrReverse
	return s
}

// Cell is one terminal cell. Width is 0 for the continuation cell of
// a wide character.
type Cell struct {
	Rune  rune
	Width int
	Style Style
}

// NewCell creates a cell for r with its display width.
func NewCell(r rune, style Style) Cell {
	return Cell{Rune: r, Width: runewidth.RuneWidth(r), Style: style}
}

// EmptyCell returns a blank default-styled cell.
func EmptyCell() Cell {
	return Cell{Rune: ' ', Width: 1, Style: DefaultStyle()}
}

// EventType identifies a terminal event.
type EventType int

const (
	EventNone EventType = iota
	EventKey
	EventMouse
	EventResize

	// EventWake is a synthetic event posted to break PollEvent out of
	// its wait, typically after state changed on another goroutine.
	EventWake
)

// Key identifies a non-rune key.
type Key int

const (
	KeyNone Key = iota
	KeyRune
	KeyEscape
	KeyEnter
	KeyTab
	KeyBackspace
	KeyDelete
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyCtrlC
	KeyCtrlN
	KeyCtrlP
	KeyCtrlU
	KeyCtrlW
)

// MouseButton identifies a mouse button or wheel direction.
type MouseButton int

const (
	MouseNone MouseButton = iota
	MouseLeft
	MouseRight
	MouseWheelUp
	MouseWheelDown
)

// Event is one terminal event.
type Event struct {
	Type EventType

	// Key event fields. Key is KeyRune for plain characters, with the
	// character in Rune.
	Key  Key
	Rune rune

	// Mouse event fields.
	MouseX, MouseY int
	Button         MouseButton

	// Resize event fields.
	Width, Height int
}

// Backend is the drawing and input surface the UI runs on.
type Backend interface {
	// Init prepares the backend. Must be called before any other
	// method.
	Init() error

	// Shutdown restores the terminal state.
	Shutdown()

	// Size returns the current dimensions.
	Size() (width, height int)

	// SetCell sets one cell. Out-of-range positions are ignored.
	SetCell(x, y int, cell Cell)

	// Clear blanks the screen.
	Clear()

	// Show flushes pending changes to the display.
	Show()

	// ShowCursor places and shows the text cursor.
	ShowCursor(x, y int)

	// HideCursor hides the text cursor.
	HideCursor()

	// PollEvent blocks until the next event.
	PollEvent() Event

	// PostEvent queues a synthetic event. Only EventWake and EventKey
	// are supported; other types are dropped.
	PostEvent(event Event)

	// EnableMouse turns on mouse reporting.
	EnableMouse()
}
