package requests

import "actionforge.ai/internal/sim/action"

// ClientQueue arbitrates pending requests once per tick and drives a single
// in-flight request through ACTIVE and PROCESSING.
type ClientQueue[C any] struct {
	*RequestQueue[C]
	skipping bool
}

// NewClientQueue returns a started queue.
func NewClientQueue[C any](ctx C, opts Options) *ClientQueue[C] {
	q := &ClientQueue[C]{RequestQueue: NewRequestQueue(ctx, opts)}
	q.Start()
	return q
}

// FilterRequests validates the list for p from the front and returns the
// first request that passes. Every request it looks at leaves the list.
func (q *ClientQueue[C]) FilterRequests(p Priority) (*action.Item[C], bool) {
	var hit *action.Item[C]
	q.list(p).FilterUntilFirstHit(func(pending Pending) bool {
		it, ok := q.ValidateRequest(pending)
		if ok {
			hit = it
		}
		return ok
	})
	return hit, hit != nil
}

// Skip abandons the in-flight request on the next Update.
func (q *ClientQueue[C]) Skip() bool {
	if q.current == nil {
		return false
	}
	q.skipping = true
	return true
}

func (q *ClientQueue[C]) IsSkipping() bool { return q.skipping }

// Update runs one tick. A SUPER request is picked whenever no SUPER request is
// in flight, pre-empting a running NORMAL one. NORMAL requests are picked
// only when nothing is in flight and no SUPER request is waiting.
func (q *ClientQueue[C]) Update() {
	if !q.active {
		return
	}
	if q.skipping {
		q.skipping = false
		if q.current != nil {
			q.retire(true)
			q.state = StateActive
			return
		}
	}

	if (q.current == nil || q.currentClass != PrioritySuper) && !q.super.IsEmpty() {
		if it, ok := q.FilterRequests(PrioritySuper); ok {
			if q.current != nil {
				q.retire(true)
			}
			q.current = it
			q.currentClass = PrioritySuper
			q.state = StateActive
		}
	}
	if q.current == nil && q.super.IsEmpty() && !q.normal.IsEmpty() {
		if it, ok := q.FilterRequests(PriorityNormal); ok {
			q.current = it
			q.currentClass = PriorityNormal
			q.state = StateActive
		}
	}

	switch q.state {
	case StateActive:
		if q.current != nil {
			q.begin(q.current, q.currentClass)
			q.state = StateProcessing
		}
	case StateProcessing:
		if q.current == nil {
			q.state = StateActive
			return
		}
		q.current.Update(q.ctx)
		if q.current.Finished(q.ctx) {
			q.retire(false)
			q.state = StateActive
		}
	}
}
