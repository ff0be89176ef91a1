package event

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newStartedBus(t *testing.T, opts ...Option) Bus {
	t.Helper()
	b := NewBus(opts...)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = b.Stop(ctx)
	})
	return b
}

func TestBus_PublishSync(t *testing.T) {
	b := newStartedBus(t)

	var got []Envelope
	_, err := b.Subscribe("selection.changed", DeliverySync, func(_ context.Context, env Envelope) {
		got = append(got, env)
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	env := New(TopicSelectionChanged, "test", SelectionChanged{Kind: "task", Key: "k"})
	if err := b.PublishSync(context.Background(), env); err != nil {
		t.Fatalf("PublishSync() error = %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("got %d deliveries, want 1", len(got))
	}
	if got[0].Topic != TopicSelectionChanged {
		t.Errorf("delivered topic = %q, want %q", got[0].Topic, TopicSelectionChanged)
	}
	payload, ok := got[0].Payload.(SelectionChanged)
	if !ok {
		t.Fatalf("payload type = %T, want SelectionChanged", got[0].Payload)
	}
	if payload.Key != "k" {
		t.Errorf("payload key = %q, want %q", payload.Key, "k")
	}
}

func TestBus_PublishAsync(t *testing.T) {
	b := newStartedBus(t)

	var count atomic.Int32
	done := make(chan struct{})
	_, err := b.Subscribe("registry.**", DeliveryAsync, func(_ context.Context, _ Envelope) {
		if count.Add(1) == 2 {
			close(done)
		}
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ctx := context.Background()
	if err := b.Publish(ctx, New(TopicTaskRefreshed, "test", RegistryRefreshed{Kind: "task"})); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := b.Publish(ctx, New(TopicLaunchRefreshed, "test", RegistryRefreshed{Kind: "launch"})); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("async deliveries = %d, want 2", count.Load())
	}
}

func TestBus_WildcardRouting(t *testing.T) {
	b := newStartedBus(t)

	var mu sync.Mutex
	hits := map[string]int{}
	subscribe := func(name string, pattern Topic) {
		t.Helper()
		_, err := b.Subscribe(pattern, DeliverySync, func(_ context.Context, _ Envelope) {
			mu.Lock()
			hits[name]++
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("Subscribe(%q) error = %v", pattern, err)
		}
	}

	subscribe("exact", "selection.changed")
	subscribe("kindWild", "selection.*")
	subscribe("all", "**")
	subscribe("other", "dispatch.*")

	env := New(TopicSelectionChanged, "test", nil)
	if err := b.PublishSync(context.Background(), env); err != nil {
		t.Fatalf("PublishSync() error = %v", err)
	}

	want := map[string]int{"exact": 1, "kindWild": 1, "all": 1}
	for name, n := range want {
		if hits[name] != n {
			t.Errorf("subscriber %q hits = %d, want %d", name, hits[name], n)
		}
	}
	if hits["other"] != 0 {
		t.Errorf("subscriber %q hits = %d, want 0", "other", hits["other"])
	}
}

func TestBus_HandlerPanicRecovered(t *testing.T) {
	b := newStartedBus(t)

	_, err := b.Subscribe("bar.message", DeliverySync, func(_ context.Context, _ Envelope) {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	env := New(TopicBarMessage, "test", BarMessage{Text: "hi"})
	if err := b.PublishSync(context.Background(), env); err != nil {
		t.Fatalf("PublishSync() error = %v", err)
	}

	stats := b.Stats()
	if stats.HandlerPanics != 1 {
		t.Errorf("Stats().HandlerPanics = %d, want 1", stats.HandlerPanics)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := newStartedBus(t)

	var count int
	sub, err := b.Subscribe("config.changed", DeliverySync, func(_ context.Context, _ Envelope) {
		count++
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ctx := context.Background()
	env := New(TopicConfigChanged, "test", ConfigChanged{Key: "host.command"})
	if err := b.PublishSync(ctx, env); err != nil {
		t.Fatalf("PublishSync() error = %v", err)
	}

	b.Unsubscribe(sub)

	if err := b.PublishSync(ctx, env); err != nil {
		t.Fatalf("PublishSync() error = %v", err)
	}

	if count != 1 {
		t.Errorf("deliveries after unsubscribe = %d, want 1", count)
	}
	if got := b.Stats().Subscriptions; got != 0 {
		t.Errorf("Stats().Subscriptions = %d, want 0", got)
	}
}

func TestBus_NotRunning(t *testing.T) {
	b := NewBus()
	env := New(TopicBarMessage, "test", nil)

	if err := b.Publish(context.Background(), env); err != ErrBusNotRunning {
		t.Errorf("Publish() on stopped bus error = %v, want ErrBusNotRunning", err)
	}
	if err := b.PublishSync(context.Background(), env); err != ErrBusNotRunning {
		t.Errorf("PublishSync() on stopped bus error = %v, want ErrBusNotRunning", err)
	}
}

func TestBus_SubscribeValidation(t *testing.T) {
	b := newStartedBus(t)

	if _, err := b.Subscribe("selection.changed", DeliverySync, nil); err != ErrNilHandler {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrNilHandler", err)
	}
	if _, err := b.Subscribe("", DeliverySync, func(context.Context, Envelope) {}); err != ErrInvalidTopic {
		t.Errorf("Subscribe(empty pattern) error = %v, want ErrInvalidTopic", err)
	}
}

func TestBus_StartStop(t *testing.T) {
	b := NewBus()
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := b.Start(); err != ErrBusAlreadyRunning {
		t.Errorf("second Start() error = %v, want ErrBusAlreadyRunning", err)
	}

	ctx := context.Background()
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := b.Stop(ctx); err != ErrBusNotRunning {
		t.Errorf("second Stop() error = %v, want ErrBusNotRunning", err)
	}
}
