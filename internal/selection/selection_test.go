package selection

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dshills/runbar/internal/event"
	"github.com/dshills/runbar/internal/state"
)

// recordingBus captures published envelopes without a worker pool.
type recordingBus struct {
	mu   sync.Mutex
	envs []event.Envelope
}

func (b *recordingBus) Publish(_ context.Context, env event.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envs = append(b.envs, env)
	return nil
}

func (b *recordingBus) PublishSync(ctx context.Context, env event.Envelope) error {
	return b.Publish(ctx, env)
}

func (b *recordingBus) Subscribe(event.Topic, event.DeliveryMode, event.Handler) (*event.Subscription, error) {
	return nil, nil
}
func (b *recordingBus) Unsubscribe(*event.Subscription) {}
func (b *recordingBus) Start() error                    { return nil }
func (b *recordingBus) Stop(context.Context) error      { return nil }
func (b *recordingBus) Stats() event.Stats              { return event.Stats{} }

func (b *recordingBus) byTopic(topic event.Topic) []event.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []event.Envelope
	for _, env := range b.envs {
		if env.Topic == topic {
			out = append(out, env)
		}
	}
	return out
}

// failingStore wraps a memory store and fails selected operations.
type failingStore struct {
	*state.MemoryStore
	failLoad  bool
	failSave  bool
	failClear bool
}

var errStore = errors.New("disk on fire")

func (s *failingStore) LoadSelection(ctx context.Context, workspaceID, kind string) (*state.Selection, error) {
	if s.failLoad {
		return nil, errStore
	}
	return s.MemoryStore.LoadSelection(ctx, workspaceID, kind)
}

func (s *failingStore) SaveSelection(ctx context.Context, sel state.Selection) error {
	if s.failSave {
		return errStore
	}
	return s.MemoryStore.SaveSelection(ctx, sel)
}

func (s *failingStore) ClearSelection(ctx context.Context, workspaceID, kind string) error {
	if s.failClear {
		return errStore
	}
	return s.MemoryStore.ClearSelection(ctx, workspaceID, kind)
}

func TestManager_SelectAndCurrent(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	bus := &recordingBus{}
	m := New("ws1", store, WithBus(bus))

	m.Select(ctx, KindTask, "runbar:.runbar/tasks.json:build", "build")

	cur := m.Current(KindTask)
	if cur == nil {
		t.Fatal("Current() = nil after Select")
	}
	if cur.Key != "runbar:.runbar/tasks.json:build" || cur.Label != "build" {
		t.Errorf("Current() = %+v, want selected key and label", cur)
	}
	if cur.PickedAt.IsZero() {
		t.Error("PickedAt not set")
	}

	// Persisted under the workspace ID.
	row, err := store.LoadSelection(ctx, "ws1", "task")
	if err != nil {
		t.Fatalf("LoadSelection() error = %v", err)
	}
	if row.Key != cur.Key {
		t.Errorf("stored key = %q, want %q", row.Key, cur.Key)
	}

	changed := bus.byTopic(event.TopicSelectionChanged)
	if len(changed) != 1 {
		t.Fatalf("selection.changed events = %d, want 1", len(changed))
	}
	payload, ok := changed[0].Payload.(event.SelectionChanged)
	if !ok {
		t.Fatalf("payload type = %T, want SelectionChanged", changed[0].Payload)
	}
	if payload.Kind != "task" || payload.Label != "build" {
		t.Errorf("payload = %+v, want kind task, label build", payload)
	}
}

func TestManager_CurrentNilWithoutSelection(t *testing.T) {
	m := New("ws1", state.NewMemoryStore())
	if cur := m.Current(KindLaunch); cur != nil {
		t.Errorf("Current() = %+v, want nil", cur)
	}
}

func TestManager_Load(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	m := New("ws1", store)
	m.Select(ctx, KindTask, "k1", "build")
	m.Select(ctx, KindLaunch, "app|Run", "Run")

	// A fresh manager for the same workspace sees both picks.
	again := New("ws1", store)
	again.Load(ctx)

	if cur := again.Current(KindTask); cur == nil || cur.Key != "k1" {
		t.Errorf("task selection after Load = %+v, want k1", cur)
	}
	if cur := again.Current(KindLaunch); cur == nil || cur.Key != "app|Run" {
		t.Errorf("launch selection after Load = %+v, want app|Run", cur)
	}
}

func TestManager_Revalidate_KeepsValidSelection(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	m := New("ws1", state.NewMemoryStore(), WithBus(bus))
	m.Select(ctx, KindTask, "k1", "build")

	cleared := m.Revalidate(ctx, KindTask, func(key string) bool { return key == "k1" })
	if cleared {
		t.Error("Revalidate() cleared a selection that still matches")
	}
	if cur := m.Current(KindTask); cur == nil {
		t.Error("Current() = nil after revalidating a valid selection")
	}
	if events := bus.byTopic(event.TopicSelectionCleared); len(events) != 0 {
		t.Errorf("selection.cleared events = %d, want 0", len(events))
	}
}

func TestManager_Revalidate_ClearsStaleSelection(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	bus := &recordingBus{}
	m := New("ws1", store, WithBus(bus))
	m.Select(ctx, KindTask, "gone", "old build")

	cleared := m.Revalidate(ctx, KindTask, func(string) bool { return false })
	if !cleared {
		t.Fatal("Revalidate() did not clear a stale selection")
	}
	if cur := m.Current(KindTask); cur != nil {
		t.Errorf("Current() = %+v, want nil after clearing", cur)
	}

	// The store row is gone too, not merely hidden.
	if _, err := store.LoadSelection(ctx, "ws1", "task"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("LoadSelection() error = %v, want ErrNotFound", err)
	}

	events := bus.byTopic(event.TopicSelectionCleared)
	if len(events) != 1 {
		t.Fatalf("selection.cleared events = %d, want 1", len(events))
	}
	payload := events[0].Payload.(event.SelectionCleared)
	if payload.Key != "gone" || payload.Reason != ReasonInvalidated {
		t.Errorf("payload = %+v, want key gone, reason invalidated", payload)
	}
}

func TestManager_Revalidate_NoSelection(t *testing.T) {
	m := New("ws1", state.NewMemoryStore())
	if m.Revalidate(context.Background(), KindTask, func(string) bool { return true }) {
		t.Error("Revalidate() cleared with nothing selected")
	}
}

func TestManager_Clear(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	bus := &recordingBus{}
	m := New("ws1", store, WithBus(bus))
	m.Select(ctx, KindLaunch, "app|Run", "Run")

	m.Clear(ctx, KindLaunch)

	if cur := m.Current(KindLaunch); cur != nil {
		t.Errorf("Current() = %+v, want nil after Clear", cur)
	}
	if _, err := store.LoadSelection(ctx, "ws1", "launch"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("LoadSelection() error = %v, want ErrNotFound", err)
	}

	events := bus.byTopic(event.TopicSelectionCleared)
	if len(events) != 1 {
		t.Fatalf("selection.cleared events = %d, want 1", len(events))
	}
	if payload := events[0].Payload.(event.SelectionCleared); payload.Reason != ReasonExplicit {
		t.Errorf("Reason = %q, want %q", payload.Reason, ReasonExplicit)
	}
}

func TestManager_LoadStoreError(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: state.NewMemoryStore(), failLoad: true}
	bus := &recordingBus{}
	m := New("ws1", store, WithBus(bus))

	m.Load(ctx)

	if cur := m.Current(KindTask); cur != nil {
		t.Errorf("Current() = %+v, want nil when the store cannot be read", cur)
	}
	events := bus.byTopic(event.TopicSelectionCleared)
	if len(events) != len(Kinds()) {
		t.Fatalf("selection.cleared events = %d, want one per kind", len(events))
	}
	if payload := events[0].Payload.(event.SelectionCleared); payload.Reason != ReasonStoreError {
		t.Errorf("Reason = %q, want %q", payload.Reason, ReasonStoreError)
	}
}

func TestManager_SelectSurvivesStoreError(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: state.NewMemoryStore(), failSave: true}
	bus := &recordingBus{}
	m := New("ws1", store, WithBus(bus))

	m.Select(ctx, KindTask, "k1", "build")

	// The pick stays visible even though persisting failed.
	if cur := m.Current(KindTask); cur == nil || cur.Key != "k1" {
		t.Errorf("Current() = %+v, want the in-memory pick kept", cur)
	}
	if events := bus.byTopic(event.TopicSelectionChanged); len(events) != 1 {
		t.Errorf("selection.changed events = %d, want 1", len(events))
	}

	// A later successful Select repopulates the store.
	store.failSave = false
	m.Select(ctx, KindTask, "k2", "test")
	row, err := store.LoadSelection(ctx, "ws1", "task")
	if err != nil {
		t.Fatalf("LoadSelection() error = %v", err)
	}
	if row.Key != "k2" {
		t.Errorf("stored key = %q, want k2", row.Key)
	}
}

func TestManager_RevalidateSurvivesClearError(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: state.NewMemoryStore()}
	m := New("ws1", store)
	m.Select(ctx, KindTask, "gone", "old")

	store.failClear = true
	cleared := m.Revalidate(ctx, KindTask, func(string) bool { return false })
	if !cleared {
		t.Fatal("Revalidate() did not clear despite store error")
	}
	if cur := m.Current(KindTask); cur != nil {
		t.Errorf("Current() = %+v, want in-memory selection cleared", cur)
	}
}

func TestManager_WorkspaceIsolation(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	a := New("ws-a", store)
	b := New("ws-b", store)

	a.Select(ctx, KindTask, "ka", "build a")
	b.Select(ctx, KindTask, "kb", "build b")

	fresh := New("ws-a", store)
	fresh.Load(ctx)
	if cur := fresh.Current(KindTask); cur == nil || cur.Key != "ka" {
		t.Errorf("ws-a selection = %+v, want ka untouched by ws-b", cur)
	}
}

func TestManager_CurrentIsCopy(t *testing.T) {
	ctx := context.Background()
	m := New("ws1", state.NewMemoryStore())
	m.Select(ctx, KindTask, "k1", "build")

	cur := m.Current(KindTask)
	cur.Key = "mutated"

	if again := m.Current(KindTask); again.Key != "k1" {
		t.Error("mutating the returned selection changed the manager's state")
	}
}
