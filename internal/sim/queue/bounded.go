package queue

import (
	"math"
	"time"
)

// Unbounded is the capacity used for lists that must never refuse a push.
const Unbounded = math.MaxInt

// Slot wraps every queued item with its creation time.
type Slot[T any] struct {
	Time time.Time
	Item T
}

// Bounded is a fixed-capacity, insertion-ordered queue.
// It is not safe for concurrent use; owners mutate it from a single tick loop.
type Bounded[T any] struct {
	size  int
	slots []Slot[T]

	now func() time.Time
}

func NewBounded[T any](size int) *Bounded[T] {
	if size < 1 {
		size = 1
	}
	return &Bounded[T]{size: size, now: time.Now}
}

func (q *Bounded[T]) Cap() int      { return q.size }
func (q *Bounded[T]) Len() int      { return len(q.slots) }
func (q *Bounded[T]) IsEmpty() bool { return len(q.slots) == 0 }
func (q *Bounded[T]) IsFull() bool  { return len(q.slots) >= q.size }

func (q *Bounded[T]) slot(item T) Slot[T] {
	return Slot[T]{Time: q.now(), Item: item}
}

// EnqueueLast appends item. It returns false when the queue is full.
func (q *Bounded[T]) EnqueueLast(item T) bool {
	if q.IsFull() {
		return false
	}
	q.slots = append(q.slots, q.slot(item))
	return true
}

// EnqueueFirst prepends item. It returns false when the queue is full.
func (q *Bounded[T]) EnqueueFirst(item T) bool {
	if q.IsFull() {
		return false
	}
	q.slots = append(q.slots, Slot[T]{})
	copy(q.slots[1:], q.slots)
	q.slots[0] = q.slot(item)
	return true
}

// EnqueueBefore inserts item ahead of the first queued item matching before,
// or at the back when none matches. It returns false when the queue is full.
func (q *Bounded[T]) EnqueueBefore(item T, before func(T) bool) bool {
	if q.IsFull() {
		return false
	}
	at := len(q.slots)
	for i, s := range q.slots {
		if before(s.Item) {
			at = i
			break
		}
	}
	q.slots = append(q.slots, Slot[T]{})
	copy(q.slots[at+1:], q.slots[at:])
	q.slots[at] = q.slot(item)
	return true
}

// Next pops the front item.
func (q *Bounded[T]) Next() (T, bool) {
	var zero T
	if len(q.slots) == 0 {
		return zero, false
	}
	s := q.slots[0]
	q.slots[0] = Slot[T]{}
	q.slots = q.slots[1:]
	if len(q.slots) == 0 {
		q.slots = nil
	}
	return s.Item, true
}

func (q *Bounded[T]) Peek() (T, bool) {
	var zero T
	if len(q.slots) == 0 {
		return zero, false
	}
	return q.slots[0].Item, true
}

func (q *Bounded[T]) Clear() {
	q.slots = nil
}

// FilterUntilFirstHit removes items from the front, applying hit to each,
// and stops after the first item for which hit returns true. Every visited
// item is removed whether it matched or not; with no match the queue is
// drained. The matching item is returned.
func (q *Bounded[T]) FilterUntilFirstHit(hit func(T) bool) (T, bool) {
	var zero T
	for len(q.slots) > 0 {
		item, _ := q.Next()
		if hit(item) {
			return item, true
		}
	}
	return zero, false
}

// Items returns the queued items front to back.
func (q *Bounded[T]) Items() []T {
	out := make([]T, 0, len(q.slots))
	for _, s := range q.slots {
		out = append(out, s.Item)
	}
	return out
}

// Slots returns a copy of the queued slots front to back.
func (q *Bounded[T]) Slots() []Slot[T] {
	return append([]Slot[T](nil), q.slots...)
}
