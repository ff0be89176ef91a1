// Package statusbar builds the presentation model for the bottom bar.
//
// The model is renderer-agnostic: it turns registry counts, current
// selections, and transient status text into an ordered segment list
// with computed column placements. The terminal front end draws the
// placements verbatim, so rendering and mouse hit testing always
// agree on where a segment sits.
package statusbar

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/dshills/runbar/internal/selection"
)

// ID identifies a bar segment.
type ID string

// Segment IDs in display order.
const (
	IDTaskSelect   ID = "task.select"
	IDTaskRun      ID = "task.run"
	IDLaunchSelect ID = "launch.select"
	IDLaunchRun    ID = "launch.run"
	IDStatus       ID = "status"
)

// Action is what a click on a segment should do. ActionNone means the
// click is inert.
type Action string

const (
	ActionNone       Action = ""
	ActionPickTask   Action = "pick-task"
	ActionRunTask    Action = "run-task"
	ActionPickLaunch Action = "pick-launch"
	ActionRunLaunch  Action = "run-launch"
)

// Segment is one bar control.
type Segment struct {
	ID      ID
	Text    string
	Tooltip string

	// Action is what activating the segment does right now. A run
	// trigger with no selection falls back to the pick action.
	Action Action

	// Enabled controls dimming only; the action already accounts for
	// the current state.
	Enabled bool
}

// Placement is a segment with its computed column span.
type Placement struct {
	Segment Segment
	X       int
	Width   int
}

// Icons holds the glyphs used by the bar.
type Icons struct {
	TaskSelect   string
	TaskRun      string
	LaunchSelect string
	LaunchRun    string
	Ellipsis     string
}

// Icon sets selectable through the bar.icons setting. The ASCII set
// doubles as a hotkey reminder.
var (
	UnicodeIcons = Icons{TaskSelect: "⚙", TaskRun: "▶", LaunchSelect: "🐞", LaunchRun: "▷", Ellipsis: "…"}
	ASCIIIcons   = Icons{TaskSelect: "[t]", TaskRun: "[r]", LaunchSelect: "[l]", LaunchRun: "[d]", Ellipsis: ".."}
)

// IconsNamed maps a bar.icons setting value to an icon set.
func IconsNamed(name string) Icons {
	if name == "ascii" {
		return ASCIIIcons
	}
	return UnicodeIcons
}

// Model holds the bar state and builds segments from it. All methods
// are safe for concurrent use.
type Model struct {
	mu         sync.RWMutex
	icons      Icons
	messageTTL time.Duration
	now        func() time.Time

	taskCount   int
	launchCount int
	taskLabel   string
	launchLabel string

	refreshedAt  time.Time
	message      string
	messageUntil time.Time
}

// Option configures a Model.
type Option func(*Model)

// WithIcons sets the icon set.
func WithIcons(icons Icons) Option {
	return func(m *Model) { m.icons = icons }
}

// WithMessageTTL sets how long transient messages stay visible.
func WithMessageTTL(ttl time.Duration) Option {
	return func(m *Model) {
		if ttl > 0 {
			m.messageTTL = ttl
		}
	}
}

// New creates a bar model.
func New(opts ...Option) *Model {
	m := &Model{
		icons:      UnicodeIcons,
		messageTTL: 4 * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetCandidates records how many candidates a kind currently has.
func (m *Model) SetCandidates(kind selection.Kind, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case selection.KindTask:
		m.taskCount = count
	case selection.KindLaunch:
		m.launchCount = count
	}
}

// SetSelection records the display label of the current selection for
// a kind. An empty label means no selection.
func (m *Model) SetSelection(kind selection.Kind, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case selection.KindTask:
		m.taskLabel = label
	case selection.KindLaunch:
		m.launchLabel = label
	}
}

// SetRefreshed records when the registries last refreshed.
func (m *Model) SetRefreshed(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshedAt = at
}

// Flash shows a transient message in the status segment. It reverts
// to the summary after the message TTL.
func (m *Model) Flash(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.message = msg
	m.messageUntil = m.now().Add(m.messageTTL)
}

// Segments builds the current segment list: the two task controls,
// the two launch controls, and the trailing status segment.
func (m *Model) Segments() []Segment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	segs := make([]Segment, 0, 5)
	segs = append(segs, m.selectorSegment(IDTaskSelect, m.taskLabel, m.taskCount,
		m.icons.TaskSelect, "select task", ActionPickTask, "Select the task to run (t)"))
	segs = append(segs, m.runSegment(IDTaskRun, m.taskLabel, m.taskCount,
		m.icons.TaskRun, ActionRunTask, ActionPickTask, "Run the selected task (r)"))
	segs = append(segs, m.selectorSegment(IDLaunchSelect, m.launchLabel, m.launchCount,
		m.icons.LaunchSelect, "select launch", ActionPickLaunch, "Select the debug configuration (l)"))
	segs = append(segs, m.runSegment(IDLaunchRun, m.launchLabel, m.launchCount,
		m.icons.LaunchRun, ActionRunLaunch, ActionPickLaunch, "Launch the selected configuration (d)"))
	segs = append(segs, Segment{
		ID:      IDStatus,
		Text:    m.statusText(),
		Tooltip: "Press g to refresh",
		Action:  ActionNone,
		Enabled: true,
	})
	return segs
}

func (m *Model) selectorSegment(id ID, label string, count int, icon, placeholder string, pick Action, tooltip string) Segment {
	text := icon + " " + placeholder + m.icons.Ellipsis
	if label != "" {
		text = icon + " " + label
	}
	action := pick
	if count == 0 {
		action = ActionNone
	}
	return Segment{
		ID:      id,
		Text:    text,
		Tooltip: tooltip,
		Action:  action,
		Enabled: count > 0,
	}
}

func (m *Model) runSegment(id ID, label string, count int, icon string, run, pick Action, tooltip string) Segment {
	action := ActionNone
	enabled := false
	switch {
	case label != "":
		action = run
		enabled = true
	case count > 0:
		// No selection yet; activating the trigger opens the picker.
		action = pick
	}
	return Segment{
		ID:      id,
		Text:    icon,
		Tooltip: tooltip,
		Action:  action,
		Enabled: enabled,
	}
}

func (m *Model) statusText() string {
	if m.message != "" && m.now().Before(m.messageUntil) {
		return m.message
	}
	text := fmt.Sprintf("%d tasks, %d launches", m.taskCount, m.launchCount)
	if !m.refreshedAt.IsZero() {
		text += " @ " + m.refreshedAt.Format("15:04:05")
	}
	return text
}

// Layout computes column placements for the given bar width. The two
// run triggers always survive narrowing: selector texts shrink with
// an ellipsis first, then the status segment is dropped, then
// whatever no longer fits is omitted from the right.
func (m *Model) Layout(width int) []Placement {
	segs := m.Segments()
	if width <= 0 {
		return nil
	}

	sel1, run1, sel2, run2, status := segs[0], segs[1], segs[2], segs[3], segs[4]

	const sep = 1    // gap between interactive segments
	const minGap = 2 // minimum gap before the status segment

	fixed := runewidth.StringWidth(run1.Text) + runewidth.StringWidth(run2.Text) + 3*sep
	w1 := runewidth.StringWidth(sel1.Text)
	w2 := runewidth.StringWidth(sel2.Text)
	statusW := runewidth.StringWidth(status.Text)

	showStatus := fixed+w1+w2+minGap+statusW <= width
	budget := width - fixed
	if showStatus {
		budget -= minGap + statusW
	}

	if w1+w2 > budget {
		half := budget / 2
		switch {
		case w1 <= half:
			sel2.Text = m.truncate(sel2.Text, budget-w1)
		case w2 <= half:
			sel1.Text = m.truncate(sel1.Text, budget-w2)
		default:
			sel1.Text = m.truncate(sel1.Text, half)
			sel2.Text = m.truncate(sel2.Text, budget-half)
		}
	}

	placements := make([]Placement, 0, 5)
	x := 0
	for _, seg := range []Segment{sel1, run1, sel2, run2} {
		w := runewidth.StringWidth(seg.Text)
		if w == 0 || x+w > width {
			continue
		}
		placements = append(placements, Placement{Segment: seg, X: x, Width: w})
		x += w + sep
	}

	if showStatus && statusW > 0 && width-statusW >= x+minGap-sep {
		placements = append(placements, Placement{
			Segment: status,
			X:       width - statusW,
			Width:   statusW,
		})
	}
	return placements
}

// HitTest maps a column to the segment rendered there at the given
// bar width.
func (m *Model) HitTest(x, width int) (Segment, bool) {
	for _, p := range m.Layout(width) {
		if x >= p.X && x < p.X+p.Width {
			return p.Segment, true
		}
	}
	return Segment{}, false
}

// truncate shortens text to at most maxw columns, ending with the
// configured ellipsis.
func (m *Model) truncate(text string, maxw int) string {
	if runewidth.StringWidth(text) <= maxw {
		return text
	}
	ellW := runewidth.StringWidth(m.icons.Ellipsis)
	if maxw <= ellW {
		return ""
	}
	var b strings.Builder
	w := 0
	for _, r := range text {
		rw := runewidth.RuneWidth(r)
		if w+rw > maxw-ellW {
			break
		}
		b.WriteRune(r)
		w += rw
	}
	return b.String() + m.icons.Ellipsis
}
