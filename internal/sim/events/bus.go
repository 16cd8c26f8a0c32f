// Package events is the ordered, synchronous event bus queues report through.
package events

import (
	"sync"

	"github.com/kamstrup/intmap"
)

type Type string

type Event struct {
	Type    Type
	Payload any
}

type Listener func(Event)

// Handle identifies a subscription. The zero Handle is never issued.
type Handle uint64

type subscription struct {
	handle Handle
	typ    Type
	all    bool
	fn     Listener
}

// Bus delivers events to listeners in subscription order. The listener set is
// copied before each dispatch, so listeners may subscribe or unsubscribe while
// handling an event; such changes take effect from the next Publish.
type Bus struct {
	mu    sync.Mutex
	subs  *intmap.Map[Handle, subscription]
	order []Handle
	next  Handle
}

func NewBus() *Bus {
	return &Bus{subs: intmap.New[Handle, subscription](16)}
}

// Subscribe registers fn for events of type t.
func (b *Bus) Subscribe(t Type, fn Listener) Handle {
	return b.add(subscription{typ: t, fn: fn})
}

// SubscribeAll registers fn for every event.
func (b *Bus) SubscribeAll(fn Listener) Handle {
	return b.add(subscription{all: true, fn: fn})
}

func (b *Bus) add(s subscription) Handle {
	if b == nil || s.fn == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	s.handle = b.next
	b.subs.Put(s.handle, s)
	b.order = append(b.order, s.handle)
	return s.handle
}

// Unsubscribe removes the subscription. It reports whether h was registered.
func (b *Bus) Unsubscribe(h Handle) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.subs.Del(h) {
		return false
	}
	for i, oh := range b.order {
		if oh == h {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			break
		}
	}
	return true
}

func (b *Bus) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs.Len()
}

// Publish delivers e synchronously to the listeners registered when the call
// started.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	targets := make([]Listener, 0, len(b.order))
	for _, h := range b.order {
		s, ok := b.subs.Get(h)
		if !ok {
			continue
		}
		if s.all || s.typ == e.Type {
			targets = append(targets, s.fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range targets {
		fn(e)
	}
}

// Emit is shorthand for Publish(Event{Type: t, Payload: payload}).
func (b *Bus) Emit(t Type, payload any) {
	b.Publish(Event{Type: t, Payload: payload})
}
