// Package selection tracks the picked task and launch configuration
// for one workspace.
//
// The manager keeps an in-memory selection per kind, mirrors it to the
// persistent store keyed by the workspace's stable ID, and drops it
// when revalidation finds no matching candidate after a registry
// refresh. Store failures degrade to "no selection": they are logged
// at warn and never propagate to callers.
package selection

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/runbar/internal/event"
	"github.com/dshills/runbar/internal/state"
)

// Kind names a selectable candidate list.
type Kind string

const (
	// KindTask selects from the task registry.
	KindTask Kind = "task"

	// KindLaunch selects from the launch registry.
	KindLaunch Kind = "launch"
)

// Kinds lists every selection kind.
func Kinds() []Kind {
	return []Kind{KindTask, KindLaunch}
}

// Clear reasons carried on selection.cleared events.
const (
	ReasonInvalidated = "invalidated"
	ReasonExplicit    = "explicit"
	ReasonStoreError  = "store-error"
)

// Selection is the current pick for one kind.
type Selection struct {
	Kind     Kind
	Key      string
	Label    string
	PickedAt time.Time
}

// Manager holds the current selections for one workspace.
type Manager struct {
	workspaceID string
	store       state.Store
	bus         event.Bus
	logger      *zap.Logger

	mu      sync.RWMutex
	current map[Kind]*Selection
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus publishes selection events onto the bus.
func WithBus(bus event.Bus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithLogger sets the logger for store failures and clears.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a manager for the workspace identified by workspaceID.
func New(workspaceID string, store state.Store, opts ...Option) *Manager {
	m := &Manager{
		workspaceID: workspaceID,
		store:       store,
		logger:      zap.NewNop(),
		current:     make(map[Kind]*Selection),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load populates selections from the store. Missing rows mean no
// selection; a store error leaves the kind unselected.
func (m *Manager) Load(ctx context.Context) {
	for _, kind := range Kinds() {
		row, err := m.store.LoadSelection(ctx, m.workspaceID, string(kind))
		if errors.Is(err, state.ErrNotFound) {
			continue
		}
		if err != nil {
			m.logger.Warn("loading selection failed, treating as unselected",
				zap.String("kind", string(kind)),
				zap.Error(err))
			m.publish(ctx, event.TopicSelectionCleared, event.SelectionCleared{
				Kind:   string(kind),
				Reason: ReasonStoreError,
			})
			continue
		}

		m.mu.Lock()
		m.current[kind] = &Selection{
			Kind:     kind,
			Key:      row.Key,
			Label:    row.Label,
			PickedAt: row.PickedAt,
		}
		m.mu.Unlock()
	}
}

// Select records a new pick, persists it, and announces it. A persist
// failure keeps the in-memory pick; the next successful Select
// repopulates the store.
func (m *Manager) Select(ctx context.Context, kind Kind, key, label string) {
	sel := &Selection{Kind: kind, Key: key, Label: label, PickedAt: time.Now()}

	m.mu.Lock()
	m.current[kind] = sel
	m.mu.Unlock()

	if err := m.store.SaveSelection(ctx, state.Selection{
		WorkspaceID: m.workspaceID,
		Kind:        string(kind),
		Key:         key,
		Label:       label,
		PickedAt:    sel.PickedAt,
	}); err != nil {
		m.logger.Warn("persisting selection failed",
			zap.String("kind", string(kind)),
			zap.String("key", key),
			zap.Error(err))
	}

	m.publish(ctx, event.TopicSelectionChanged, event.SelectionChanged{
		Kind:  string(kind),
		Key:   key,
		Label: label,
	})
}

// Current returns a copy of the selection for kind, or nil.
func (m *Manager) Current(kind Kind) *Selection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sel := m.current[kind]
	if sel == nil {
		return nil
	}
	out := *sel
	return &out
}

// Revalidate drops the selection for kind when its key no longer
// matches any candidate. Called after every registry refresh. The
// selection is removed from memory and from the store so a later
// candidate reusing the key cannot resurrect a stale pick elsewhere.
func (m *Manager) Revalidate(ctx context.Context, kind Kind, exists func(key string) bool) (cleared bool) {
	m.mu.RLock()
	sel := m.current[kind]
	m.mu.RUnlock()
	if sel == nil || exists(sel.Key) {
		return false
	}

	m.mu.Lock()
	cur := m.current[kind]
	if cur == nil || cur.Key != sel.Key {
		// The pick changed while we were checking; the next refresh
		// will revalidate it.
		m.mu.Unlock()
		return false
	}
	delete(m.current, kind)
	m.mu.Unlock()

	if err := m.store.ClearSelection(ctx, m.workspaceID, string(kind)); err != nil {
		m.logger.Warn("clearing stale selection from store failed",
			zap.String("kind", string(kind)),
			zap.String("key", sel.Key),
			zap.Error(err))
	}

	m.logger.Info("selection no longer matches a candidate, cleared",
		zap.String("kind", string(kind)),
		zap.String("key", sel.Key))
	m.publish(ctx, event.TopicSelectionCleared, event.SelectionCleared{
		Kind:   string(kind),
		Key:    sel.Key,
		Reason: ReasonInvalidated,
	})
	return true
}

// Clear removes the selection for kind at the user's request. The
// store row is removed even when memory holds no selection, covering
// picks that failed to load.
func (m *Manager) Clear(ctx context.Context, kind Kind) {
	m.mu.Lock()
	sel := m.current[kind]
	delete(m.current, kind)
	m.mu.Unlock()

	if err := m.store.ClearSelection(ctx, m.workspaceID, string(kind)); err != nil {
		m.logger.Warn("clearing selection from store failed",
			zap.String("kind", string(kind)),
			zap.Error(err))
	}

	if sel == nil {
		return
	}
	m.publish(ctx, event.TopicSelectionCleared, event.SelectionCleared{
		Kind:   string(kind),
		Key:    sel.Key,
		Reason: ReasonExplicit,
	})
}

func (m *Manager) publish(ctx context.Context, topic event.Topic, payload any) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, event.New(topic, "selection", payload)); err != nil {
		m.logger.Debug("publishing selection event failed",
			zap.String("topic", string(topic)),
			zap.Error(err))
	}
}
