package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Bus errors.
var (
	ErrBusNotRunning     = errors.New("event: bus not running")
	ErrBusAlreadyRunning = errors.New("event: bus already running")
	ErrInvalidTopic      = errors.New("event: invalid topic")
	ErrNilHandler        = errors.New("event: nil handler")
)

// Handler processes a delivered envelope.
type Handler func(ctx context.Context, env Envelope)

// DeliveryMode selects how a subscription receives events.
type DeliveryMode int

const (
	// DeliveryAsync delivers through the worker queue (default).
	DeliveryAsync DeliveryMode = iota

	// DeliverySync delivers on the publisher's goroutine.
	DeliverySync
)

// Subscription identifies an active subscription on the bus.
type Subscription struct {
	id      string
	pattern Topic
	mode    DeliveryMode
	handler Handler
	active  atomic.Bool
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Pattern returns the topic pattern the subscription matches.
func (s *Subscription) Pattern() Topic { return s.pattern }

// Stats is a snapshot of bus counters.
type Stats struct {
	Published     uint64
	Delivered     uint64
	Dropped       uint64
	HandlerPanics uint64
	Subscriptions int
	QueueDepth    int
}

// Bus is the notification bus connecting runbar's components.
type Bus interface {
	// Publish queues an event for asynchronous delivery.
	Publish(ctx context.Context, env Envelope) error

	// PublishSync delivers to matching sync subscribers before returning.
	PublishSync(ctx context.Context, env Envelope) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(pattern Topic, mode DeliveryMode, h Handler) (*Subscription, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(sub *Subscription)

	// Start begins async delivery. Stop drains the queue or gives up
	// when the context is done.
	Start() error
	Stop(ctx context.Context) error

	// Stats returns a snapshot of the bus counters.
	Stats() Stats
}

// Option configures a bus.
type Option func(*bus)

// WithQueueSize sets the async queue capacity.
func WithQueueSize(n int) Option {
	return func(b *bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithWorkers sets the async worker count.
func WithWorkers(n int) Option {
	return func(b *bus) {
		if n > 0 {
			b.workers = n
		}
	}
}

type delivery struct {
	env Envelope
	sub *Subscription
}

type bus struct {
	mu   sync.RWMutex
	subs []*Subscription

	queueSize int
	workers   int
	queue     chan delivery
	wg        sync.WaitGroup

	running atomic.Bool

	published uint64
	delivered uint64
	dropped   uint64
	panics    uint64
}

// NewBus creates a bus with the given options.
func NewBus(opts ...Option) Bus {
	b := &bus{
		queueSize: 256,
		workers:   2,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start begins async delivery.
func (b *bus) Start() error {
	if b.running.Swap(true) {
		return ErrBusAlreadyRunning
	}
	b.queue = make(chan delivery, b.queueSize)
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return nil
}

// Stop drains pending deliveries, or abandons them when ctx is done.
func (b *bus) Stop(ctx context.Context) error {
	if !b.running.Swap(false) {
		return ErrBusNotRunning
	}
	close(b.queue)

	finished := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *bus) worker() {
	defer b.wg.Done()
	for d := range b.queue {
		b.invoke(context.Background(), d.env, d.sub)
	}
}

// invoke runs a handler with panic recovery.
func (b *bus) invoke(ctx context.Context, env Envelope, sub *Subscription) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&b.panics, 1)
		}
	}()
	if !sub.active.Load() {
		return
	}
	sub.handler(ctx, env)
	atomic.AddUint64(&b.delivered, 1)
}

// Publish queues the envelope for every matching async subscriber.
// A full queue drops the delivery and bumps the drop counter.
func (b *bus) Publish(_ context.Context, env Envelope) error {
	if !b.running.Load() {
		return ErrBusNotRunning
	}
	if !env.Topic.IsValid() {
		return ErrInvalidTopic
	}
	atomic.AddUint64(&b.published, 1)

	for _, sub := range b.match(env.Topic, DeliveryAsync) {
		select {
		case b.queue <- delivery{env: env, sub: sub}:
		default:
			atomic.AddUint64(&b.dropped, 1)
		}
	}
	return nil
}

// PublishSync delivers the envelope to every matching sync subscriber
// on the caller's goroutine.
func (b *bus) PublishSync(ctx context.Context, env Envelope) error {
	if !b.running.Load() {
		return ErrBusNotRunning
	}
	if !env.Topic.IsValid() {
		return ErrInvalidTopic
	}
	atomic.AddUint64(&b.published, 1)

	for _, sub := range b.match(env.Topic, DeliverySync) {
		b.invoke(ctx, env, sub)
	}
	return nil
}

// match returns active subscriptions whose pattern matches the topic.
// Subscriptions are copied under the read lock and invoked outside it.
func (b *bus) match(t Topic, mode DeliveryMode) []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Subscription
	for _, sub := range b.subs {
		if sub.mode != mode || !sub.active.Load() {
			continue
		}
		if t.Matches(sub.pattern) {
			out = append(out, sub)
		}
	}
	return out
}

// Subscribe registers a handler for the topic pattern.
func (b *bus) Subscribe(pattern Topic, mode DeliveryMode, h Handler) (*Subscription, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	if pattern == "" {
		return nil, ErrInvalidTopic
	}

	sub := &Subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		mode:    mode,
		handler: h,
	}
	sub.active.Store(true)

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return sub, nil
}

// Unsubscribe deactivates and removes the subscription.
func (b *bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.active.Store(false)

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == sub.id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Stats returns a snapshot of the bus counters.
func (b *bus) Stats() Stats {
	b.mu.RLock()
	subs := len(b.subs)
	b.mu.RUnlock()

	depth := 0
	if b.running.Load() {
		depth = len(b.queue)
	}

	return Stats{
		Published:     atomic.LoadUint64(&b.published),
		Delivered:     atomic.LoadUint64(&b.delivered),
		Dropped:       atomic.LoadUint64(&b.dropped),
		HandlerPanics: atomic.LoadUint64(&b.panics),
		Subscriptions: subs,
		QueueDepth:    depth,
	}
}
