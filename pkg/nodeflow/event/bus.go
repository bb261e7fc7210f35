package event

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// Bus distributes events to subscribers.
type Bus interface {
	// Publish delivers evt to every matching subscription.
	Publish(ctx context.Context, evt Event) error

	// Subscribe registers handler for the given event types.
	Subscribe(types []string, handler Handler) Subscription

	// SubscribeAll registers handler for every event type.
	SubscribeAll(handler Handler) Subscription

	// Close stops delivery and all subscriptions.
	Close() error
}

// Subscription is an active registration on a Bus.
type Subscription interface {
	Unsubscribe()
	Pause()
	Resume()
	IsPaused() bool
}

// BusConfig configures a LocalBus.
type BusConfig struct {
	// BufferSize is the queue length per subscription. Default: 256.
	BufferSize int

	// NonBlocking drops events for subscriptions whose queue is full instead
	// of waiting. The execution model publishes from its coordinating
	// goroutine, so buses handed to it should set this.
	NonBlocking bool

	// OnDrop is called for every dropped event in non-blocking mode.
	OnDrop func(evt Event, subscriberID string)

	// OnError is called when a handler returns an error.
	OnError func(evt Event, subscriberID string, err error)
}

const defaultBufferSize = 256

// LocalBus is an in-process Bus. Each subscription has its own goroutine,
// so events reach one handler in publish order.
type LocalBus struct {
	config BusConfig

	mu     sync.RWMutex
	subs   map[string]*subscription
	nextID atomic.Int64

	closed  atomic.Bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewBus creates a LocalBus.
func NewBus(config BusConfig) *LocalBus {
	if config.BufferSize <= 0 {
		config.BufferSize = defaultBufferSize
	}
	return &LocalBus{
		config:  config,
		subs:    make(map[string]*subscription),
		closeCh: make(chan struct{}),
	}
}

type subscription struct {
	id      string
	types   map[string]bool // nil matches every type
	handler Handler
	events  chan Event
	paused  atomic.Bool
	done    chan struct{}
	once    sync.Once
	bus     *LocalBus
}

func (s *subscription) matches(eventType string) bool {
	return s.types == nil || s.types[eventType]
}

// Publish implements Bus.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return &EventError{Event: evt, Message: "publish", Err: ErrBusClosed}
	}

	b.mu.RLock()
	var targets []*subscription
	for _, s := range b.subs {
		if s.matches(evt.Type()) && !s.paused.Load() {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if b.config.NonBlocking {
			select {
			case s.events <- evt:
			default:
				if b.config.OnDrop != nil {
					b.config.OnDrop(evt, s.id)
				}
			}
			continue
		}
		select {
		case s.events <- evt:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closeCh:
			return &EventError{Event: evt, Message: "publish", Err: ErrBusClosed}
		}
	}
	return nil
}

// Subscribe implements Bus. Returns nil after Close.
func (b *LocalBus) Subscribe(types []string, handler Handler) Subscription {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return b.subscribe(set, handler)
}

// SubscribeAll implements Bus. Returns nil after Close.
func (b *LocalBus) SubscribeAll(handler Handler) Subscription {
	return b.subscribe(nil, handler)
}

func (b *LocalBus) subscribe(types map[string]bool, handler Handler) Subscription {
	if b.closed.Load() {
		return nil
	}
	s := &subscription{
		id:      strconv.FormatInt(b.nextID.Add(1), 10),
		types:   types,
		handler: handler,
		events:  make(chan Event, b.config.BufferSize),
		done:    make(chan struct{}),
		bus:     b,
	}

	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()

	b.wg.Add(1)
	go s.process()
	return s
}

// Close implements Bus. It waits for handlers that are running to return;
// queued events that were not yet handled are discarded.
func (b *LocalBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.closeCh)

	b.mu.Lock()
	for _, s := range b.subs {
		s.stop()
	}
	b.subs = make(map[string]*subscription)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (s *subscription) process() {
	defer s.bus.wg.Done()
	for {
		select {
		case evt := <-s.events:
			if s.paused.Load() {
				continue
			}
			if err := s.handler.Handle(context.Background(), evt); err != nil && s.bus.config.OnError != nil {
				s.bus.config.OnError(evt, s.id, err)
			}
		case <-s.done:
			return
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Unsubscribe implements Subscription. Extra calls are ignored.
func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.stop()
}

func (s *subscription) Pause()         { s.paused.Store(true) }
func (s *subscription) Resume()        { s.paused.Store(false) }
func (s *subscription) IsPaused() bool { return s.paused.Load() }
