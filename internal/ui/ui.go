package ui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/runbar/internal/selection"
	"github.com/dshills/runbar/internal/statusbar"
)

// ActionType classifies a semantic action emitted by the UI loop.
type ActionType int

const (
	ActionNone ActionType = iota

	// ActionPick asks the application to open the picker for a kind.
	ActionPick

	// ActionRun asks the application to dispatch the current
	// selection for a kind, or open the picker when nothing is
	// selected.
	ActionRun

	// ActionChoose reports that the user chose an item in the picker.
	ActionChoose

	// ActionRefresh asks for a manual re-enumeration.
	ActionRefresh

	// ActionQuit reports that the user asked to exit.
	ActionQuit
)

// Action is one semantic action for the application to handle.
type Action struct {
	Type ActionType
	Kind selection.Kind

	// Key is the chosen registry key, set for ActionChoose.
	Key string

	// RunAfter marks a choice that should dispatch immediately, used
	// when the picker was opened from a run trigger.
	RunAfter bool
}

const keyHint = "t task  r run  l launch  d debug  g refresh  q quit"

// UI owns the terminal event loop. It renders the bar, the body, and
// the picker overlay, and emits Actions for the application to
// execute. Rendering state may be updated from other goroutines; the
// loop is woken with a synthetic event.
type UI struct {
	backend  Backend
	bar      *statusbar.Model
	theme    Theme
	logger   *zap.Logger
	flashTTL time.Duration

	actions chan Action

	mu             sync.Mutex
	title          string
	body           []string
	picker         *Picker
	pickerKind     selection.Kind
	pickerRunAfter bool
	quit           bool
}

// Option configures the UI.
type Option func(*UI)

// WithTheme sets the color scheme.
func WithTheme(theme Theme) Option {
	return func(u *UI) { u.theme = theme }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(u *UI) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// WithFlashTTL aligns the redraw timer with the bar's transient
// message lifetime.
func WithFlashTTL(ttl time.Duration) Option {
	return func(u *UI) {
		if ttl > 0 {
			u.flashTTL = ttl
		}
	}
}

// New creates a UI over a backend and a bar model.
func New(backend Backend, bar *statusbar.Model, opts ...Option) *UI {
	u := &UI{
		backend:  backend,
		bar:      bar,
		theme:    DefaultTheme(),
		logger:   zap.NewNop(),
		flashTTL: 4 * time.Second,
		actions:  make(chan Action, 16),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Actions returns the channel of semantic actions.
func (u *UI) Actions() <-chan Action {
	return u.actions
}

// Run initializes the backend and processes events until the user
// quits, Stop is called, or the context is canceled.
func (u *UI) Run(ctx context.Context) error {
	if err := u.backend.Init(); err != nil {
		return fmt.Errorf("initializing terminal: %w", err)
	}
	defer u.backend.Shutdown()
	u.backend.EnableMouse()
	u.redraw()

	for {
		ev := u.backend.PollEvent()
		if u.stopped() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch ev.Type {
		case EventKey:
			if u.handleKey(ev) {
				return nil
			}
		case EventMouse:
			u.handleMouse(ev)
		}
		u.redraw()
	}
}

// Stop makes Run return. Safe to call from any goroutine.
func (u *UI) Stop() {
	u.mu.Lock()
	u.quit = true
	u.mu.Unlock()
	u.backend.PostEvent(Event{Type: EventWake})
}

// Redraw schedules a repaint.
func (u *UI) Redraw() {
	u.backend.PostEvent(Event{Type: EventWake})
}

// SetTitle sets the top row text.
func (u *UI) SetTitle(title string) {
	u.mu.Lock()
	u.title = title
	u.mu.Unlock()
	u.Redraw()
}

// SetBody replaces the informational lines between title and bar.
func (u *UI) SetBody(lines []string) {
	u.mu.Lock()
	u.body = append([]string(nil), lines...)
	u.mu.Unlock()
	u.Redraw()
}

// Flash shows a transient message in the bar's status segment and
// schedules the repaint that reverts it.
func (u *UI) Flash(msg string) {
	u.bar.Flash(msg)
	u.Redraw()
	time.AfterFunc(u.flashTTL+100*time.Millisecond, func() {
		if !u.stopped() {
			u.Redraw()
		}
	})
}

// OpenPicker replaces any open picker with a new one over the given
// items. RunAfter marks that the eventual choice should dispatch
// immediately.
func (u *UI) OpenPicker(kind selection.Kind, title string, items []PickerItem, runAfter bool) {
	u.mu.Lock()
	u.picker = NewPicker(title, items)
	u.pickerKind = kind
	u.pickerRunAfter = runAfter
	u.mu.Unlock()
	u.Redraw()
}

// ClosePicker dismisses the picker without a choice.
func (u *UI) ClosePicker() {
	u.mu.Lock()
	u.picker = nil
	u.mu.Unlock()
	u.Redraw()
}

func (u *UI) stopped() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.quit
}

// handleKey routes a key event. Returns true when the loop should
// exit.
func (u *UI) handleKey(ev Event) bool {
	u.mu.Lock()
	picker := u.picker
	kind := u.pickerKind
	runAfter := u.pickerRunAfter
	u.mu.Unlock()

	if picker != nil {
		result := picker.HandleKey(ev)
		u.finishPicker(picker, result, kind, runAfter)
		return false
	}

	switch {
	case ev.Key == KeyCtrlC:
		u.emit(Action{Type: ActionQuit})
		return true

	case ev.Key == KeyRune:
		switch ev.Rune {
		case 't':
			u.emit(Action{Type: ActionPick, Kind: selection.KindTask})
		case 'r':
			u.emit(Action{Type: ActionRun, Kind: selection.KindTask})
		case 'l':
			u.emit(Action{Type: ActionPick, Kind: selection.KindLaunch})
		case 'd':
			u.emit(Action{Type: ActionRun, Kind: selection.KindLaunch})
		case 'g':
			u.emit(Action{Type: ActionRefresh})
		case 'q':
			u.emit(Action{Type: ActionQuit})
			return true
		}
	}
	return false
}

func (u *UI) handleMouse(ev Event) {
	u.mu.Lock()
	picker := u.picker
	kind := u.pickerKind
	runAfter := u.pickerRunAfter
	u.mu.Unlock()

	if picker != nil {
		result := picker.HandleMouse(ev)
		u.finishPicker(picker, result, kind, runAfter)
		return
	}

	if ev.Button != MouseLeft {
		return
	}
	width, height := u.backend.Size()
	if ev.MouseY != height-1 {
		return
	}
	seg, ok := u.bar.HitTest(ev.MouseX, width)
	if !ok {
		return
	}

	switch seg.Action {
	case statusbar.ActionPickTask:
		u.emit(Action{Type: ActionPick, Kind: selection.KindTask})
	case statusbar.ActionRunTask:
		u.emit(Action{Type: ActionRun, Kind: selection.KindTask})
	case statusbar.ActionPickLaunch:
		u.emit(Action{Type: ActionPick, Kind: selection.KindLaunch})
	case statusbar.ActionRunLaunch:
		u.emit(Action{Type: ActionRun, Kind: selection.KindLaunch})
	}
}

// finishPicker applies a picker result: closing, and emitting the
// choice if one was made. The picker stays open for inert events.
func (u *UI) finishPicker(picker *Picker, result PickerResult, kind selection.Kind, runAfter bool) {
	if !result.Closed {
		return
	}
	u.mu.Lock()
	if u.picker == picker {
		u.picker = nil
	}
	u.mu.Unlock()

	if result.Chosen != nil {
		u.emit(Action{Type: ActionChoose, Kind: kind, Key: result.Chosen.Key, RunAfter: runAfter})
	}
}

func (u *UI) emit(action Action) {
	select {
	case u.actions <- action:
	default:
		u.logger.Debug("dropping action, consumer is behind", zap.Int("type", int(action.Type)))
	}
}

func (u *UI) redraw() {
	u.mu.Lock()
	title := u.title
	body := u.body
	picker := u.picker
	u.mu.Unlock()

	b := u.backend
	width, height := b.Size()
	b.Clear()

	if height > 2 && title != "" {
		for x := 0; x < width; x++ {
			b.SetCell(x, 0, Cell{Rune: ' ', Width: 1, Style: u.theme.Title})
		}
		drawText(b, 1, 0, width-2, title, u.theme.Title)
	}

	// Rows 0 and 1 are title and spacing; the two bottom rows hold
	// the key hint and the bar.
	maxBody := height - 4
	for i, line := range body {
		if i >= maxBody {
			break
		}
		drawText(b, 1, 2+i, width-2, line, u.theme.Body)
	}

	if picker == nil && height > 3 {
		drawText(b, 1, height-2, width-2, keyHint, u.theme.Body.Dim())
	}

	RenderBar(b, u.bar, u.theme)

	b.HideCursor()
	if picker != nil {
		picker.Render(b, u.theme)
	}
	b.Show()
}
