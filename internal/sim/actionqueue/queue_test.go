package actionqueue_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"actionforge.ai/internal/sim/action"
	"actionforge.ai/internal/sim/actionqueue"
	"actionforge.ai/internal/sim/events"
)

// recorder is the game context used by these tests.
type recorder struct {
	calls   []string
	updates map[string]int
	reject  map[string]bool
	active  int
	maxSeen int
}

func newRecorder() *recorder {
	return &recorder{updates: map[string]int{}, reject: map[string]bool{}}
}

type fakeArgs struct {
	ID string `json:"id"`
	X  int    `json:"x,omitempty"`
	Y  int    `json:"y,omitempty"`
}

// fake finishes after ticks OnUpdate calls; ticks < 0 never finishes.
type fake struct {
	ticks int
}

func (fake) Template(args ...any) json.RawMessage {
	a := fakeArgs{}
	if len(args) > 0 {
		a.ID, _ = args[0].(string)
	}
	if len(args) > 1 {
		if pos, ok := args[1].(map[string]int); ok {
			a.X, a.Y = pos["x"], pos["y"]
		}
	}
	return action.Encode(a)
}

func (fake) Validate(r *recorder, data json.RawMessage, _ action.MessengerID) (any, bool) {
	a, ok := action.Decode[fakeArgs](data)
	if !ok || a.ID == "" || r.reject[a.ID] {
		return nil, false
	}
	return a, true
}

func (fake) OnStart(r *recorder, data any, _ action.MessengerID) {
	id := data.(fakeArgs).ID
	r.calls = append(r.calls, "start:"+id)
	r.active++
	if r.active > r.maxSeen {
		r.maxSeen = r.active
	}
}

func (fake) OnUpdate(r *recorder, data any, _ action.MessengerID) {
	r.updates[data.(fakeArgs).ID]++
}

func (p fake) IsFinished(r *recorder, data any, _ action.MessengerID) bool {
	return p.ticks >= 0 && r.updates[data.(fakeArgs).ID] >= p.ticks
}

func (fake) OnEnd(r *recorder, data any, _ action.MessengerID) {
	r.calls = append(r.calls, "end:"+data.(fakeArgs).ID)
	r.active--
}

func (fake) OnClear(r *recorder, data any, _ action.MessengerID) {
	r.calls = append(r.calls, "clear:"+data.(fakeArgs).ID)
}

type captured struct {
	byType map[events.Type][]any
}

func capture(bus *events.Bus) *captured {
	c := &captured{byType: map[events.Type][]any{}}
	bus.SubscribeAll(func(e events.Event) {
		c.byType[e.Type] = append(c.byType[e.Type], e.Payload)
	})
	return c
}

func newQueue(t *testing.T, opts actionqueue.Options) (*actionqueue.ActionQueue[*recorder], *recorder, *captured) {
	t.Helper()
	r := newRecorder()
	q := actionqueue.New(r, opts)
	c := capture(q.Bus())
	require.True(t, q.RegisterAction("MOVE", fake{ticks: 2}))
	require.True(t, q.RegisterAction("HOLD", fake{ticks: -1}))
	require.True(t, q.RegisterAction("A", fake{ticks: 1}))
	require.True(t, q.RegisterAction("B", fake{ticks: 1}))
	require.True(t, q.RegisterAction("ZAP", fake{}))
	require.True(t, q.RegisterAction("SHOUT", fake{}))
	require.True(t, q.Load([]action.TypeConfig{
		{ID: "MOVE", Priority: action.PriorityHigh},
		{ID: "HOLD", Priority: action.PriorityLow},
		{ID: "A", Priority: action.PriorityHigh},
		{ID: "B", Priority: action.PriorityLow},
		{ID: "ZAP", Priority: action.PriorityLow, Instant: true},
		{ID: "SHOUT", Priority: action.PriorityLow, Message: action.Message{Send: true}},
	}))
	return q, r, c
}

func item(t *testing.T, q *actionqueue.ActionQueue[*recorder], kind action.TypeID, id string) *action.Item[*recorder] {
	t.Helper()
	req, ok := q.CreateRequest(kind, id)
	require.True(t, ok)
	it, ok := q.Registry().Validate(q.Context(), req, "tester")
	require.True(t, ok)
	return it
}

func TestActionQueue_ImmediateRequestBecomesCurrent(t *testing.T) {
	q, r, _ := newQueue(t, actionqueue.Options{})
	require.True(t, q.AddImmediateRequest("MOVE", "player1", "m1", map[string]int{"x": 1, "y": 1}))
	require.Equal(t, 1, q.ImmediateSize())

	q.Update() // promotes into the execution queue
	require.Nil(t, q.Current())
	require.Equal(t, 1, q.Size())
	require.Equal(t, actionqueue.StateActive, q.State())

	q.Update() // starts it
	cur := q.Current()
	require.NotNil(t, cur)
	require.Equal(t, action.TypeID("MOVE"), cur.Type())
	require.False(t, cur.Instant)
	require.Equal(t, action.MessengerID("player1"), cur.Messenger)
	require.Equal(t, fakeArgs{ID: "m1", X: 1, Y: 1}, cur.Data)
	require.Equal(t, actionqueue.StateProcessing, q.State())
	require.Equal(t, []string{"start:m1"}, r.calls)

	q.Update()
	require.NotNil(t, q.Current())
	q.Update()
	require.Nil(t, q.Current())
	require.Equal(t, actionqueue.StateActive, q.State())
	require.Equal(t, []string{"start:m1", "end:m1"}, r.calls)
}

func TestActionQueue_ExecutionQueueOverflowEmitsQueueError(t *testing.T) {
	q, _, c := newQueue(t, actionqueue.Options{})
	for i := 0; i < actionqueue.DefaultExecutionSize; i++ {
		require.True(t, q.Enqueue(item(t, q, "B", fmt.Sprintf("b%d", i))))
	}
	extra := item(t, q, "B", "overflow")
	require.False(t, q.Enqueue(extra))
	require.Equal(t, actionqueue.DefaultExecutionSize, q.Size())
	require.Len(t, c.byType[actionqueue.EventQueueError], 1)
	require.Same(t, extra, c.byType[actionqueue.EventQueueError][0])

	require.False(t, q.Enqueue(item(t, q, "A", "high-overflow")))
	require.Len(t, c.byType[actionqueue.EventQueueError], 2)
	require.Equal(t, actionqueue.DefaultExecutionSize, q.Size())
}

func TestActionQueue_ImmediateOverflowEmitsQueueError(t *testing.T) {
	q, _, c := newQueue(t, actionqueue.Options{ImmediateSize: 2})
	require.True(t, q.AddImmediateRequest("B", "p", "1"))
	require.True(t, q.AddImmediateRequest("B", "p", "2"))
	require.False(t, q.AddImmediateRequest("B", "p", "3"))
	require.Equal(t, 2, q.ImmediateSize())
	require.Len(t, c.byType[actionqueue.EventQueueError], 1)
	p := c.byType[actionqueue.EventQueueError][0].(actionqueue.Pending)
	require.Equal(t, action.TypeID("B"), p.Request.Type)
}

func TestActionQueue_HighPromotedLaterStillDequeuesFirst(t *testing.T) {
	q, _, _ := newQueue(t, actionqueue.Options{})
	// Keep a long action running so Update does not pull from the queue.
	require.True(t, q.Enqueue(item(t, q, "HOLD", "h")))
	q.Update()
	require.NotNil(t, q.Current())

	require.True(t, q.AddImmediateRequest("B", "p", "b"))
	require.True(t, q.AddImmediateRequest("A", "p", "a"))
	q.Update()
	q.Update()
	require.Equal(t, 2, q.Size())

	first := q.Next()
	second := q.Next()
	require.Equal(t, action.TypeID("A"), first.Type())
	require.Equal(t, action.TypeID("B"), second.Type())
}

func TestActionQueue_PriorityOrderingIsFIFOWithinClass(t *testing.T) {
	q, _, _ := newQueue(t, actionqueue.Options{})
	order := []struct {
		kind action.TypeID
		id   string
	}{{"B", "l1"}, {"A", "h1"}, {"B", "l2"}, {"A", "h2"}, {"A", "h3"}, {"B", "l3"}}
	for _, o := range order {
		require.True(t, q.Enqueue(item(t, q, o.kind, o.id)))
	}
	var got []string
	for it := q.Next(); it != nil; it = q.Next() {
		got = append(got, it.Data.(fakeArgs).ID)
	}
	require.Equal(t, []string{"h1", "h2", "h3", "l1", "l2", "l3"}, got)
}

func TestActionQueue_DeferredModeAnnouncesWithoutRunning(t *testing.T) {
	q, r, c := newQueue(t, actionqueue.Options{})
	q.ToDeferred()
	require.Equal(t, actionqueue.ModeDeferred, q.Mode())
	require.True(t, q.AddImmediateRequest("SHOUT", "p1", "s1"))

	q.Update()
	require.Len(t, c.byType[actionqueue.EventExecutionDefer], 1)
	deferred := c.byType[actionqueue.EventExecutionDefer][0].(*action.Item[*recorder])
	require.Equal(t, action.TypeID("SHOUT"), deferred.Type())
	require.Zero(t, q.Size())

	q.Update()
	require.Nil(t, q.Current())
	require.Empty(t, r.calls)
}

func TestActionQueue_DeferredModeRunsLocalOnlyKinds(t *testing.T) {
	q, _, c := newQueue(t, actionqueue.Options{})
	q.ToDeferred()
	require.True(t, q.AddImmediateRequest("B", "p1", "b"))
	q.Update()
	require.Empty(t, c.byType[actionqueue.EventExecutionDefer])
	require.Equal(t, 1, q.Size())
}

func TestActionQueue_TellModeRunsAndAnnounces(t *testing.T) {
	q, r, c := newQueue(t, actionqueue.Options{})
	q.ToTell()
	require.True(t, q.AddImmediateRequest("SHOUT", "p1", "s1"))
	q.Update()
	require.Len(t, c.byType[actionqueue.EventExecutionDefer], 1)
	require.Equal(t, 1, q.Size())
	q.Update()
	require.Contains(t, r.calls, "start:s1")

	q.ToDirect()
	require.Equal(t, actionqueue.ModeDirect, q.Mode())
}

func TestActionQueue_SkipEndsOnNextUpdate(t *testing.T) {
	q, r, c := newQueue(t, actionqueue.Options{})
	require.False(t, q.Skip(), "nothing to skip yet")
	require.True(t, q.Enqueue(item(t, q, "HOLD", "h")))

	q.Update() // start
	for i := 0; i < 3; i++ {
		q.Update()
		require.NotNil(t, q.Current())
	}
	require.Equal(t, 3, r.updates["h"])

	require.True(t, q.Skip())
	require.True(t, q.IsSkipping())
	q.Update()

	require.Nil(t, q.Current())
	require.Equal(t, actionqueue.StateActive, q.State())
	require.Equal(t, 3, r.updates["h"], "a skipped action is not updated again")
	require.Equal(t, []string{"start:h", "clear:h", "end:h"}, r.calls)
	ended := c.byType[actionqueue.EventExecutionEnd]
	require.Len(t, ended, 1)
	require.True(t, ended[0].(actionqueue.Ended[*recorder]).Skipped)
}

func TestActionQueue_ValidationGate(t *testing.T) {
	q, r, c := newQueue(t, actionqueue.Options{})
	r.reject["bad"] = true
	require.True(t, q.AddImmediateRequest("B", "p", "bad"))
	require.True(t, q.AddImmediateRequest("B", "p", "good1"))
	require.True(t, q.AddImmediateRequest("B", "p", "good2"))

	q.Update()
	require.Len(t, c.byType[actionqueue.EventExecutionError], 1)
	rejected := c.byType[actionqueue.EventExecutionError][0].(actionqueue.Pending)
	require.JSONEq(t, `{"id":"bad"}`, string(rejected.Request.Data))
	require.Equal(t, 1, q.Size(), "only one promotion per tick")
	require.Equal(t, 1, q.ImmediateSize())

	for i := 0; i < 6; i++ {
		q.Update()
	}
	require.NotContains(t, r.calls, "start:bad")
	require.Contains(t, r.calls, "start:good1")
	require.Contains(t, r.calls, "start:good2")
}

func TestActionQueue_EnqueueRejectsUnvalidatedItems(t *testing.T) {
	var buf bytes.Buffer
	q, r, _ := newQueue(t, actionqueue.Options{Logger: log.New(&buf, "", 0)})
	r.reject["x"] = true
	req, ok := q.CreateRequest("A", "x")
	require.True(t, ok)
	_, ok = q.Registry().Validate(q.Context(), req, "p")
	require.False(t, ok)

	forged := &action.Item[*recorder]{Request: req, Data: fakeArgs{ID: "x"}, Messenger: "p"}
	require.False(t, q.Enqueue(forged))
	require.False(t, q.Enqueue(nil))
	require.Zero(t, q.Size())
	q.Update()
	q.Update()
	require.Empty(t, r.calls)
	require.Contains(t, buf.String(), "not produced by validation")
}

func TestActionQueue_UnknownTypeIsConfigurationError(t *testing.T) {
	var buf bytes.Buffer
	q, _, _ := newQueue(t, actionqueue.Options{Logger: log.New(&buf, "", 0)})
	require.False(t, q.AddImmediateRequest("NOPE", "p"))
	require.False(t, q.SubmitImmediate("p", action.Request{Type: "NOPE"}))
	require.False(t, q.RegisterAction("MOVE", fake{}))
	require.False(t, q.Load([]action.TypeConfig{{ID: ""}}))
	require.Zero(t, q.ImmediateSize())
	require.Contains(t, buf.String(), "NOPE")
}

func TestActionQueue_InstantBurstIsCappedPerTick(t *testing.T) {
	q, r, _ := newQueue(t, actionqueue.Options{MaxInstantActions: 3})
	for i := 1; i <= 5; i++ {
		require.True(t, q.Enqueue(item(t, q, "ZAP", fmt.Sprintf("z%d", i))))
	}
	require.True(t, q.Enqueue(item(t, q, "HOLD", "h")))
	require.True(t, q.AddImmediateRequest("B", "p", "b"))

	q.Update()
	require.Equal(t, []string{"start:z1", "end:z1", "start:z2", "end:z2", "start:z3", "end:z3"}, r.calls)
	require.Equal(t, 1, q.ImmediateSize(), "capped tick returns before draining immediates")

	r.calls = nil
	q.Update()
	require.Equal(t, []string{"start:z4", "end:z4", "start:z5", "end:z5", "start:h"}, r.calls)
	require.Equal(t, actionqueue.StateProcessing, q.State())
	require.Zero(t, q.ImmediateSize())
}

func TestActionQueue_FlushRunsOneItemPerUpdate(t *testing.T) {
	q, r, _ := newQueue(t, actionqueue.Options{})
	q.ToFlush()
	require.Equal(t, actionqueue.StateFlush, q.State())
	require.True(t, q.Enqueue(item(t, q, "HOLD", "h1")))
	require.True(t, q.Enqueue(item(t, q, "HOLD", "h2")))

	q.Update()
	require.Equal(t, []string{"start:h1", "end:h1"}, r.calls)
	require.Nil(t, q.Current())
	q.Update()
	require.Equal(t, []string{"start:h1", "end:h1", "start:h2", "end:h2"}, r.calls)
	require.Zero(t, r.updates["h1"])

	q.ToActive()
	require.Equal(t, actionqueue.StateActive, q.State())
}

func TestActionQueue_FlushEndsRunningItemWithoutRestart(t *testing.T) {
	q, r, _ := newQueue(t, actionqueue.Options{})
	require.True(t, q.Enqueue(item(t, q, "HOLD", "h")))
	q.Update()
	q.ToFlush()
	q.Update()
	require.Equal(t, []string{"start:h", "end:h"}, r.calls)
	require.Nil(t, q.Current())
}

func TestActionQueue_ResetClearsEverything(t *testing.T) {
	q, r, _ := newQueue(t, actionqueue.Options{})
	require.True(t, q.Enqueue(item(t, q, "HOLD", "h")))
	require.True(t, q.Enqueue(item(t, q, "B", "b")))
	q.Update()
	require.True(t, q.AddImmediateRequest("B", "p", "x"))
	q.ToTell()

	q.Reset()
	require.Nil(t, q.Current())
	require.Zero(t, q.Size())
	require.Zero(t, q.ImmediateSize())
	require.Equal(t, actionqueue.StateActive, q.State())
	require.Equal(t, actionqueue.ModeDirect, q.Mode())
	require.Equal(t, []string{"start:h", "clear:h", "end:h"}, r.calls)
	require.Zero(t, r.active)
}

func TestActionQueue_AtMostOneCurrent(t *testing.T) {
	q, r, _ := newQueue(t, actionqueue.Options{MaxInstantActions: 4})
	kinds := []action.TypeID{"MOVE", "A", "B", "ZAP", "HOLD", "SHOUT"}
	rng := rand.New(rand.NewSource(7))
	for step := 0; step < 2000; step++ {
		switch rng.Intn(5) {
		case 0, 1:
			q.AddImmediateRequest(kinds[rng.Intn(len(kinds))], "p", fmt.Sprintf("r%d", step))
		case 2:
			q.Enqueue(item(t, q, kinds[rng.Intn(len(kinds))], fmt.Sprintf("e%d", step)))
		case 3:
			q.Skip()
		}
		q.Update()
		require.LessOrEqual(t, r.active, 1)
		require.LessOrEqual(t, q.Size(), actionqueue.DefaultExecutionSize)
	}
	require.LessOrEqual(t, r.maxSeen, 1)
}
