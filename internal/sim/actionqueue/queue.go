// Package actionqueue runs validated actions on a single machine, one at a
// time, driven by a per-tick Update call.
package actionqueue

import (
	"fmt"
	"io"
	"log"

	"actionforge.ai/internal/sim/action"
	"actionforge.ai/internal/sim/events"
	"actionforge.ai/internal/sim/queue"
)

const (
	EventExecutionDefer   events.Type = "EXECUTION_DEFER"
	EventExecutionError   events.Type = "EXECUTION_ERROR"
	EventExecutionRunning events.Type = "EXECUTION_RUNNING"
	EventExecutionEnd     events.Type = "EXECUTION_END"
	EventQueueError       events.Type = "QUEUE_ERROR"
)

const (
	DefaultImmediateSize     = 100
	DefaultExecutionSize     = 100
	DefaultMaxInstantActions = 100
)

type State int

const (
	// StateActive is idle: the next update starts the head item.
	StateActive State = iota
	// StateProcessing polls the current item every update.
	StateProcessing
	// StateFlush runs one item start-to-end per update.
	StateFlush
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateProcessing:
		return "PROCESSING"
	case StateFlush:
		return "FLUSH"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Mode decides what happens to a freshly validated item.
type Mode int

const (
	// ModeDirect enqueues locally.
	ModeDirect Mode = iota
	// ModeDeferred announces kinds marked message.send instead of running them.
	ModeDeferred
	// ModeTell enqueues locally and also announces kinds marked message.send.
	ModeTell
)

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "DIRECT"
	case ModeDeferred:
		return "DEFERRED"
	case ModeTell:
		return "TELL"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Pending is an immediate request waiting for validation. It is the payload of
// EXECUTION_ERROR, and of QUEUE_ERROR when the immediate bucket overflows.
type Pending struct {
	Request   action.Request     `json:"request"`
	Messenger action.MessengerID `json:"messenger_id,omitempty"`
}

// Ended is the EXECUTION_END payload.
type Ended[C any] struct {
	Item    *action.Item[C]
	Skipped bool
}

type Options struct {
	ImmediateSize     int
	ExecutionSize     int
	MaxInstantActions int

	Bus    *events.Bus
	Logger *log.Logger
}

func (o *Options) applyDefaults() {
	if o.ImmediateSize <= 0 {
		o.ImmediateSize = DefaultImmediateSize
	}
	if o.ExecutionSize <= 0 {
		o.ExecutionSize = DefaultExecutionSize
	}
	if o.MaxInstantActions <= 0 {
		o.MaxInstantActions = DefaultMaxInstantActions
	}
	if o.Bus == nil {
		o.Bus = events.NewBus()
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard, "", 0)
	}
}

// ActionQueue executes at most one action at a time against ctx.
// All methods must be called from the goroutine that drives Update.
type ActionQueue[C any] struct {
	ctx      C
	registry *action.Registry[C]

	immediate *queue.Bounded[Pending]
	execution *queue.Bounded[*action.Item[C]]

	current  *action.Item[C]
	running  bool
	skipping bool
	state    State
	mode     Mode

	maxInstant int

	bus *events.Bus
	log *log.Logger
}

func New[C any](ctx C, opts Options) *ActionQueue[C] {
	opts.applyDefaults()
	return &ActionQueue[C]{
		ctx:        ctx,
		registry:   action.NewRegistry[C](opts.Logger),
		immediate:  queue.NewBounded[Pending](opts.ImmediateSize),
		execution:  queue.NewBounded[*action.Item[C]](opts.ExecutionSize),
		maxInstant: opts.MaxInstantActions,
		bus:        opts.Bus,
		log:        opts.Logger,
	}
}

func (q *ActionQueue[C]) Context() C                    { return q.ctx }
func (q *ActionQueue[C]) Bus() *events.Bus              { return q.bus }
func (q *ActionQueue[C]) Registry() *action.Registry[C] { return q.registry }
func (q *ActionQueue[C]) Current() *action.Item[C]      { return q.current }
func (q *ActionQueue[C]) State() State                  { return q.state }
func (q *ActionQueue[C]) Mode() Mode                    { return q.mode }
func (q *ActionQueue[C]) Size() int                     { return q.execution.Len() }
func (q *ActionQueue[C]) ImmediateSize() int            { return q.immediate.Len() }
func (q *ActionQueue[C]) Items() []*action.Item[C]      { return q.execution.Items() }
func (q *ActionQueue[C]) IsSkipping() bool              { return q.skipping }

func (q *ActionQueue[C]) RegisterAction(id action.TypeID, h action.Handler[C]) bool {
	return q.registry.Register(id, h)
}

// Load installs the action type table. See action.Registry.Load.
func (q *ActionQueue[C]) Load(table []action.TypeConfig) bool {
	return q.registry.Load(table)
}

func (q *ActionQueue[C]) CreateRequest(id action.TypeID, args ...any) (action.Request, bool) {
	return q.registry.CreateRequest(id, args...)
}

// AddImmediateRequest builds a request of kind id and queues it for
// validation on the next Update.
func (q *ActionQueue[C]) AddImmediateRequest(id action.TypeID, m action.MessengerID, args ...any) bool {
	req, ok := q.registry.CreateRequest(id, args...)
	if !ok {
		return false
	}
	return q.SubmitImmediate(m, req)
}

// SubmitImmediate queues an already built request for validation.
func (q *ActionQueue[C]) SubmitImmediate(m action.MessengerID, req action.Request) bool {
	if _, _, ok := q.registry.Lookup(req.Type); !ok {
		q.log.Printf("submit immediate: unknown action type %q", req.Type)
		return false
	}
	p := Pending{Request: req, Messenger: m}
	if !q.immediate.EnqueueLast(p) {
		q.bus.Emit(EventQueueError, p)
		return false
	}
	return true
}

// Enqueue places a validated item in the execution queue: HIGH ahead of every
// LOW item, each class FIFO. A full queue rejects the item with QUEUE_ERROR.
func (q *ActionQueue[C]) Enqueue(item *action.Item[C]) bool {
	if item == nil {
		return false
	}
	if !item.Validated() {
		q.log.Printf("enqueue: %q was not produced by validation", item.Type())
		return false
	}
	if _, _, ok := q.registry.Lookup(item.Type()); !ok {
		q.log.Printf("enqueue: unknown action type %q", item.Type())
		return false
	}
	var ok bool
	if item.Priority == action.PriorityHigh {
		ok = q.execution.EnqueueBefore(item, isLow[C])
	} else {
		ok = q.execution.EnqueueLast(item)
	}
	if !ok {
		q.bus.Emit(EventQueueError, item)
	}
	return ok
}

func isLow[C any](it *action.Item[C]) bool { return it.Priority == action.PriorityLow }

// Next pops the head of the execution queue, or nil.
func (q *ActionQueue[C]) Next() *action.Item[C] {
	it, _ := q.execution.Next()
	return it
}

func (q *ActionQueue[C]) ToDirect()   { q.mode = ModeDirect }
func (q *ActionQueue[C]) ToDeferred() { q.mode = ModeDeferred }
func (q *ActionQueue[C]) ToTell()     { q.mode = ModeTell }

// ToFlush switches to run-to-completion mode. A running item is ended on the
// next Update.
func (q *ActionQueue[C]) ToFlush() { q.state = StateFlush }

// ToActive leaves flush mode.
func (q *ActionQueue[C]) ToActive() {
	if q.state != StateFlush {
		return
	}
	if q.running {
		q.state = StateProcessing
		return
	}
	q.state = StateActive
}

// Skip ends the running item on the next Update regardless of IsFinished.
// It reports whether there was a running item to skip.
func (q *ActionQueue[C]) Skip() bool {
	if q.current == nil || !q.running {
		return false
	}
	q.skipping = true
	return true
}

// Update advances the queue by one tick. Promotion from the immediate bucket
// runs last, so a request added before this call becomes Current on the next.
func (q *ActionQueue[C]) Update() {
	if q.current == nil {
		q.current = q.Next()
	}
	if !q.updateInstant() {
		return
	}
	switch q.state {
	case StateActive:
		if q.current != nil {
			q.startExecution()
		}
	case StateProcessing:
		q.process()
	case StateFlush:
		if q.current != nil {
			q.flush(q.current)
			q.current = nil
		}
	}
	q.drainImmediate()
}

// updateInstant runs consecutive instant items back to back. It returns false
// when the per-tick cap stopped it; the rest of the tick is skipped.
func (q *ActionQueue[C]) updateInstant() bool {
	n := 0
	for q.current != nil && q.current.Instant && !q.running {
		if n >= q.maxInstant {
			return false
		}
		q.flush(q.current)
		q.current = q.Next()
		n++
	}
	return true
}

func (q *ActionQueue[C]) flush(it *action.Item[C]) {
	if !q.running {
		it.Start(q.ctx)
		q.bus.Emit(EventExecutionRunning, it)
	}
	skipped := q.skipping
	if skipped {
		it.Clear(q.ctx)
	}
	it.End(q.ctx)
	q.running = false
	q.skipping = false
	q.bus.Emit(EventExecutionEnd, Ended[C]{Item: it, Skipped: skipped})
}

func (q *ActionQueue[C]) startExecution() {
	q.current.Start(q.ctx)
	q.running = true
	q.state = StateProcessing
	q.bus.Emit(EventExecutionRunning, q.current)
}

func (q *ActionQueue[C]) process() {
	if q.current == nil {
		q.state = StateActive
		return
	}
	if !q.skipping {
		q.current.Update(q.ctx)
		if !q.current.Finished(q.ctx) {
			return
		}
	}
	q.endExecution()
}

func (q *ActionQueue[C]) endExecution() {
	it := q.current
	skipped := q.skipping
	if skipped {
		it.Clear(q.ctx)
	}
	it.End(q.ctx)
	q.current = nil
	q.running = false
	q.skipping = false
	q.state = StateActive
	q.bus.Emit(EventExecutionEnd, Ended[C]{Item: it, Skipped: skipped})
}

// drainImmediate promotes at most one immediate request per tick. Requests
// that fail validation ahead of it are dropped with EXECUTION_ERROR.
func (q *ActionQueue[C]) drainImmediate() {
	q.immediate.FilterUntilFirstHit(func(p Pending) bool {
		it, ok := q.registry.Validate(q.ctx, p.Request, p.Messenger)
		if !ok {
			q.bus.Emit(EventExecutionError, p)
			return false
		}
		q.dispatch(it)
		return true
	})
}

func (q *ActionQueue[C]) dispatch(it *action.Item[C]) {
	switch q.mode {
	case ModeDeferred:
		if it.Send {
			q.bus.Emit(EventExecutionDefer, it)
			return
		}
		q.Enqueue(it)
	case ModeTell:
		q.Enqueue(it)
		if it.Send {
			q.bus.Emit(EventExecutionDefer, it)
		}
	default:
		q.Enqueue(it)
	}
}

// Reset drops every queued request and item and returns to ACTIVE/DIRECT.
// A running item is cleared and ended first.
func (q *ActionQueue[C]) Reset() {
	if q.current != nil && q.running {
		q.skipping = true
		q.endExecution()
	}
	q.immediate.Clear()
	q.execution.Clear()
	q.current = nil
	q.running = false
	q.skipping = false
	q.state = StateActive
	q.mode = ModeDirect
}
