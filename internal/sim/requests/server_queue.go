package requests

import (
	"actionforge.ai/internal/sim/action"
	"actionforge.ai/internal/sim/queue"
)

// ServerQueue is the authority. Every accepted request is applied before the
// call that submitted it returns.
type ServerQueue[C any] struct {
	*RequestQueue[C]
}

// NewServerQueue returns a started queue fixed in FLUSH.
func NewServerQueue[C any](ctx C, opts Options) *ServerQueue[C] {
	q := &ServerQueue[C]{RequestQueue: NewRequestQueue(ctx, opts)}
	q.Start()
	return q
}

func (q *ServerQueue[C]) Start() {
	q.RequestQueue.Start()
	q.state = StateFlush
}

// ProcessUserRequest validates req as a NORMAL request from m and, when it
// passes, runs it start to end. The returned item is nil when the request was
// rejected or the queue has ended.
func (q *ServerQueue[C]) ProcessUserRequest(m action.MessengerID, req action.Request) (*action.Item[C], bool) {
	if !q.active {
		return nil, false
	}
	return q.flush(Pending{Request: req, Messenger: m, Priority: PriorityNormal})
}

// Update flushes every pending request, SUPER first.
func (q *ServerQueue[C]) Update() int {
	if !q.active {
		return 0
	}
	n := 0
	for _, list := range []*queue.Bounded[Pending]{q.super, q.normal} {
		for {
			p, ok := list.Next()
			if !ok {
				break
			}
			if _, ok := q.flush(p); ok {
				n++
			}
		}
	}
	return n
}

func (q *ServerQueue[C]) flush(p Pending) (*action.Item[C], bool) {
	it, ok := q.ValidateRequest(p)
	if !ok {
		return nil, false
	}
	q.begin(it, p.Priority)
	q.retire(false)
	return it, true
}

func (q *ServerQueue[C]) End() {
	q.RequestQueue.End()
	q.state = StateFlush
}
