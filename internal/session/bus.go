package session

import (
	"context"
	"fmt"
	"sync"
)

// Handler processes one bus event on the coordinator goroutine.
type Handler func(ctx context.Context, ev Event)

type envelope struct {
	ev   Event
	done chan struct{}
}

type subscription struct {
	id int
	fn Handler
}

// Bus is a per-context event queue drained by a single coordinator.
// Publish never blocks; handlers for one kind run in registration order and
// never concurrently with each other.
type Bus struct {
	mu       sync.Mutex
	queue    []envelope
	handlers map[EventKind][]subscription
	nextID   int
	running  bool
	stopped  bool

	notify chan struct{}
	quit   chan struct{}
	exited chan struct{}
}

// NewBus returns a bus that is not yet running.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventKind][]subscription),
		notify:   make(chan struct{}, 1),
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Subscribe registers h for kind and returns a function that removes it.
func (b *Bus) Subscribe(kind EventKind, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[kind] = append(b.handlers[kind], subscription{id: id, fn: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[kind]
		for i, s := range subs {
			if s.id == id {
				b.handlers[kind] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish enqueues ev. The returned channel closes once every handler for
// ev has run, or immediately if the bus is stopped.
func (b *Bus) Publish(ev Event) <-chan struct{} {
	done := make(chan struct{})
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		close(done)
		return done
	}
	b.queue = append(b.queue, envelope{ev: ev, done: done})
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return done
}

// Start runs the coordinator in a new goroutine. Calling Start more than
// once has no effect.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.running || b.stopped {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()
	go b.run(ctx)
}

func (b *Bus) run(ctx context.Context) {
	defer close(b.exited)
	for {
		for {
			env, ok := b.next()
			if !ok {
				break
			}
			b.dispatch(ctx, env)
		}
		select {
		case <-b.notify:
		case <-b.quit:
			return
		case <-ctx.Done():
			b.Stop()
			return
		}
	}
}

func (b *Bus) next() (envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || len(b.queue) == 0 {
		return envelope{}, false
	}
	env := b.queue[0]
	b.queue[0] = envelope{}
	b.queue = b.queue[1:]
	return env, true
}

func (b *Bus) dispatch(ctx context.Context, env envelope) {
	defer close(env.done)
	b.mu.Lock()
	subs := append([]subscription(nil), b.handlers[env.ev.Kind]...)
	b.mu.Unlock()
	for _, s := range subs {
		b.invoke(ctx, s.fn, env.ev)
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log().Error("event handler panicked", "event", ev.Kind.String(), "panic", fmt.Sprint(r))
		}
	}()
	h(ctx, ev)
}

// Stop halts the coordinator after the handler in progress returns.
// Queued events are dropped and their waiters released.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	pending := b.queue
	b.queue = nil
	running := b.running
	b.mu.Unlock()

	for _, env := range pending {
		close(env.done)
	}
	close(b.quit)
	if !running {
		close(b.exited)
	}
}

// Done is closed once the coordinator has exited.
func (b *Bus) Done() <-chan struct{} { return b.exited }
