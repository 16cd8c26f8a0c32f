// Package requests holds the networked request queues: a two-priority base
// shared by the prediction peer (ClientQueue) and the authority
// (ServerQueue).
package requests

import (
	"fmt"
	"io"
	"log"

	"actionforge.ai/internal/sim/action"
	"actionforge.ai/internal/sim/events"
	"actionforge.ai/internal/sim/queue"
)

const (
	EventRequestValid   events.Type = "REQUEST_VALID"
	EventRequestInvalid events.Type = "REQUEST_INVALID"
	EventRequestRun     events.Type = "REQUEST_RUN"
)

const DefaultMaxRequests = 100

// Priority is the request class. SUPER requests pre-empt NORMAL ones and are
// never dropped for capacity.
type Priority int

const (
	PriorityNormal Priority = iota
	PrioritySuper
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "NORMAL"
	case PrioritySuper:
		return "SUPER"
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

type State int

const (
	StateActive State = iota
	StateProcessing
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

// Pending is a request waiting for validation. It is the REQUEST_INVALID
// payload.
type Pending struct {
	Request   action.Request     `json:"request"`
	Messenger action.MessengerID `json:"messenger_id,omitempty"`
	Priority  Priority           `json:"priority"`
}

type Options struct {
	// MaxRequests caps the NORMAL list. SUPER is uncapped.
	MaxRequests int

	Bus    *events.Bus
	Logger *log.Logger
}

func (o *Options) applyDefaults() {
	if o.MaxRequests <= 0 {
		o.MaxRequests = DefaultMaxRequests
	}
	if o.Bus == nil {
		o.Bus = events.NewBus()
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard, "", 0)
	}
}

// RequestQueue keeps the NORMAL and SUPER pending lists and the single
// in-flight item. It is not safe for concurrent use.
type RequestQueue[C any] struct {
	ctx      C
	registry *action.Registry[C]

	normal *queue.Bounded[Pending]
	super  *queue.Bounded[Pending]

	current      *action.Item[C]
	currentClass Priority
	state        State
	active       bool

	bus *events.Bus
	log *log.Logger
}

func NewRequestQueue[C any](ctx C, opts Options) *RequestQueue[C] {
	opts.applyDefaults()
	return &RequestQueue[C]{
		ctx:      ctx,
		registry: action.NewRegistry[C](opts.Logger),
		normal:   queue.NewBounded[Pending](opts.MaxRequests),
		super:    queue.NewBounded[Pending](queue.Unbounded),
		bus:      opts.Bus,
		log:      opts.Logger,
	}
}

func (q *RequestQueue[C]) Context() C                    { return q.ctx }
func (q *RequestQueue[C]) Bus() *events.Bus              { return q.bus }
func (q *RequestQueue[C]) Registry() *action.Registry[C] { return q.registry }
func (q *RequestQueue[C]) Current() *action.Item[C]      { return q.current }
func (q *RequestQueue[C]) State() State                  { return q.state }
func (q *RequestQueue[C]) IsActive() bool                { return q.active }

func (q *RequestQueue[C]) RegisterHandler(id action.TypeID, h action.Handler[C]) bool {
	return q.registry.Register(id, h)
}

func (q *RequestQueue[C]) Load(table []action.TypeConfig) bool {
	return q.registry.Load(table)
}

func (q *RequestQueue[C]) CreateRequest(id action.TypeID, args ...any) (action.Request, bool) {
	return q.registry.CreateRequest(id, args...)
}

// AddRequest queues a NORMAL request. It fails when the kind is unknown, the
// queue is not started, or the NORMAL list is full.
func (q *RequestQueue[C]) AddRequest(id action.TypeID, m action.MessengerID, args ...any) bool {
	req, ok := q.registry.CreateRequest(id, args...)
	if !ok {
		return false
	}
	return q.Submit(m, req, PriorityNormal)
}

// AddPriorityRequest queues a SUPER request.
func (q *RequestQueue[C]) AddPriorityRequest(id action.TypeID, m action.MessengerID, args ...any) bool {
	req, ok := q.registry.CreateRequest(id, args...)
	if !ok {
		return false
	}
	return q.Submit(m, req, PrioritySuper)
}

// Submit queues a request built elsewhere, typically decoded from the wire.
func (q *RequestQueue[C]) Submit(m action.MessengerID, req action.Request, p Priority) bool {
	if !q.active {
		return false
	}
	if _, _, ok := q.registry.Lookup(req.Type); !ok {
		q.log.Printf("submit request: unknown action type %q", req.Type)
		return false
	}
	pending := Pending{Request: req, Messenger: m, Priority: p}
	if p == PrioritySuper {
		return q.super.EnqueueLast(pending)
	}
	return q.normal.EnqueueLast(pending)
}

// ValidateRequest runs the kind's validator and reports the result on the
// bus: REQUEST_VALID with the item, REQUEST_INVALID with the pending request.
func (q *RequestQueue[C]) ValidateRequest(p Pending) (*action.Item[C], bool) {
	it, ok := q.registry.Validate(q.ctx, p.Request, p.Messenger)
	if !ok {
		q.bus.Emit(EventRequestInvalid, p)
		return nil, false
	}
	q.bus.Emit(EventRequestValid, it)
	return it, true
}

// Pending returns a snapshot of the list for p.
func (q *RequestQueue[C]) Pending(p Priority) []Pending {
	return q.list(p).Items()
}

func (q *RequestQueue[C]) Len(p Priority) int { return q.list(p).Len() }

func (q *RequestQueue[C]) list(p Priority) *queue.Bounded[Pending] {
	if p == PrioritySuper {
		return q.super
	}
	return q.normal
}

// Start makes the queue accept requests.
func (q *RequestQueue[C]) Start() {
	q.active = true
	q.state = StateActive
}

// End stops the queue. The in-flight item is cleared and ended, and both
// pending lists are dropped.
func (q *RequestQueue[C]) End() {
	if q.current != nil {
		q.retire(true)
	}
	q.normal.Clear()
	q.super.Clear()
	q.active = false
	q.state = StateActive
}

func (q *RequestQueue[C]) begin(it *action.Item[C], class Priority) {
	q.current = it
	q.currentClass = class
	it.Start(q.ctx)
	q.bus.Emit(EventRequestRun, it)
}

func (q *RequestQueue[C]) retire(clear bool) {
	it := q.current
	if clear {
		it.Clear(q.ctx)
	}
	it.End(q.ctx)
	q.current = nil
}
