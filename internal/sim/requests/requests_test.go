package requests_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"actionforge.ai/internal/sim/action"
	"actionforge.ai/internal/sim/events"
	"actionforge.ai/internal/sim/requests"
)

type ledger struct {
	calls   []string
	updates map[string]int
	reject  map[string]bool
}

func newLedger() *ledger {
	return &ledger{updates: map[string]int{}, reject: map[string]bool{}}
}

type step struct {
	ID string `json:"id"`
}

// task finishes after ticks updates; negative ticks never finish.
type task struct{ ticks int }

func (task) Template(args ...any) json.RawMessage {
	s := step{}
	if len(args) > 0 {
		s.ID, _ = args[0].(string)
	}
	return action.Encode(s)
}

func (task) Validate(l *ledger, data json.RawMessage, _ action.MessengerID) (any, bool) {
	s, ok := action.Decode[step](data)
	if !ok || s.ID == "" || l.reject[s.ID] {
		return nil, false
	}
	return s, true
}

func (task) OnStart(l *ledger, data any, _ action.MessengerID) {
	l.calls = append(l.calls, "start:"+data.(step).ID)
}

func (task) OnUpdate(l *ledger, data any, _ action.MessengerID) {
	l.updates[data.(step).ID]++
}

func (t task) IsFinished(l *ledger, data any, _ action.MessengerID) bool {
	return t.ticks >= 0 && l.updates[data.(step).ID] >= t.ticks
}

func (task) OnEnd(l *ledger, data any, _ action.MessengerID) {
	l.calls = append(l.calls, "end:"+data.(step).ID)
}

func (task) OnClear(l *ledger, data any, _ action.MessengerID) {
	l.calls = append(l.calls, "clear:"+data.(step).ID)
}

type setup interface {
	RegisterHandler(action.TypeID, action.Handler[*ledger]) bool
	Load([]action.TypeConfig) bool
	Bus() *events.Bus
}

func install(t *testing.T, q setup) map[events.Type][]any {
	t.Helper()
	require.True(t, q.RegisterHandler("WALK", task{ticks: 2}))
	require.True(t, q.RegisterHandler("STALL", task{ticks: -1}))
	require.True(t, q.RegisterHandler("SYNC", task{ticks: 1}))
	require.True(t, q.Load([]action.TypeConfig{
		{ID: "WALK", Priority: action.PriorityHigh},
		{ID: "STALL", Priority: action.PriorityLow},
		{ID: "SYNC", Priority: action.PriorityHigh},
	}))
	seen := map[events.Type][]any{}
	q.Bus().SubscribeAll(func(e events.Event) { seen[e.Type] = append(seen[e.Type], e.Payload) })
	return seen
}

func TestRequestQueue_NormalIsCappedSuperIsNot(t *testing.T) {
	q := requests.NewClientQueue(newLedger(), requests.Options{MaxRequests: 3})
	install(t, q)
	for i := 0; i < 3; i++ {
		require.True(t, q.AddRequest("WALK", "p", fmt.Sprint(i)))
	}
	require.False(t, q.AddRequest("WALK", "p", "overflow"))
	require.Equal(t, 3, q.Len(requests.PriorityNormal))

	for i := 0; i < 500; i++ {
		require.True(t, q.AddPriorityRequest("SYNC", "server", fmt.Sprint(i)))
	}
	require.Equal(t, 500, q.Len(requests.PrioritySuper))
}

func TestRequestQueue_RejectsUnknownTypeAndIdleQueue(t *testing.T) {
	q := requests.NewRequestQueue(newLedger(), requests.Options{})
	install(t, q)
	require.False(t, q.IsActive())
	require.False(t, q.AddRequest("WALK", "p", "a"), "not started")

	q.Start()
	require.False(t, q.AddRequest("FLY", "p", "a"))
	require.False(t, q.Submit("p", action.Request{Type: "FLY"}, requests.PriorityNormal))
	require.True(t, q.AddRequest("WALK", "p", "a"))
	require.Equal(t, []requests.Pending{{
		Request:   action.Request{Type: "WALK", Data: json.RawMessage(`{"id":"a"}`)},
		Messenger: "p",
		Priority:  requests.PriorityNormal,
	}}, q.Pending(requests.PriorityNormal))
}

func TestRequestQueue_ValidateRequestReportsOnBus(t *testing.T) {
	l := newLedger()
	l.reject["bad"] = true
	q := requests.NewRequestQueue(l, requests.Options{})
	seen := install(t, q)

	good, _ := q.CreateRequest("WALK", "ok")
	bad, _ := q.CreateRequest("WALK", "bad")
	it, ok := q.ValidateRequest(requests.Pending{Request: good, Messenger: "p"})
	require.True(t, ok)
	require.Equal(t, step{ID: "ok"}, it.Data)
	_, ok = q.ValidateRequest(requests.Pending{Request: bad, Messenger: "p"})
	require.False(t, ok)

	require.Len(t, seen[requests.EventRequestValid], 1)
	require.Len(t, seen[requests.EventRequestInvalid], 1)
	require.Equal(t, bad, seen[requests.EventRequestInvalid][0].(requests.Pending).Request)
	require.Empty(t, l.calls, "validation never starts an action")
}

func TestClientQueue_FilterDropsEverythingScanned(t *testing.T) {
	l := newLedger()
	l.reject["x"] = true
	q := requests.NewClientQueue(l, requests.Options{})
	install(t, q)
	for _, id := range []string{"x", "a", "b"} {
		require.True(t, q.AddRequest("WALK", "p", id))
	}
	it, ok := q.FilterRequests(requests.PriorityNormal)
	require.True(t, ok)
	require.Equal(t, step{ID: "a"}, it.Data)
	require.Equal(t, 1, q.Len(requests.PriorityNormal))

	l.reject["b"] = true
	_, ok = q.FilterRequests(requests.PriorityNormal)
	require.False(t, ok)
	require.Zero(t, q.Len(requests.PriorityNormal), "a miss drains the list")
}

func TestClientQueue_RunsOneRequestThroughItsCycle(t *testing.T) {
	l := newLedger()
	q := requests.NewClientQueue(l, requests.Options{})
	seen := install(t, q)
	require.True(t, q.AddRequest("WALK", "p", "w"))
	require.True(t, q.AddRequest("WALK", "p", "v"))

	q.Update()
	require.Equal(t, requests.StateProcessing, q.State())
	require.Equal(t, step{ID: "w"}, q.Current().Data)
	require.Len(t, seen[requests.EventRequestRun], 1)

	q.Update()
	require.NotNil(t, q.Current())
	q.Update()
	require.Nil(t, q.Current())
	require.Equal(t, requests.StateActive, q.State())
	require.Equal(t, []string{"start:w", "end:w"}, l.calls)

	q.Update()
	require.Equal(t, step{ID: "v"}, q.Current().Data)
}

func TestClientQueue_SuperPreemptsNormal(t *testing.T) {
	l := newLedger()
	q := requests.NewClientQueue(l, requests.Options{})
	install(t, q)
	require.True(t, q.AddRequest("STALL", "p", "n1"))
	q.Update()
	require.Equal(t, step{ID: "n1"}, q.Current().Data)

	require.True(t, q.AddPriorityRequest("SYNC", "server", "s1"))
	require.True(t, q.AddRequest("WALK", "p", "n2"))
	q.Update()
	require.Equal(t, step{ID: "s1"}, q.Current().Data)
	require.Equal(t, []string{"start:n1", "clear:n1", "end:n1", "start:s1"}, l.calls)

	// A SUPER in flight is never displaced and NORMAL waits behind it.
	require.True(t, q.AddPriorityRequest("SYNC", "server", "s2"))
	q.Update()
	require.Nil(t, q.Current())
	require.Equal(t, 1, q.Len(requests.PrioritySuper))
	require.Equal(t, 1, q.Len(requests.PriorityNormal))

	q.Update()
	require.Equal(t, step{ID: "s2"}, q.Current().Data)
	q.Update()
	require.Nil(t, q.Current())
	q.Update()
	require.Equal(t, step{ID: "n2"}, q.Current().Data)
}

func TestClientQueue_SkipEndsOnNextUpdate(t *testing.T) {
	l := newLedger()
	q := requests.NewClientQueue(l, requests.Options{})
	install(t, q)
	require.False(t, q.Skip())
	require.True(t, q.AddRequest("STALL", "p", "s"))
	for i := 0; i < 4; i++ {
		q.Update()
	}
	require.True(t, q.Skip())
	require.True(t, q.IsSkipping())
	q.Update()
	require.Nil(t, q.Current())
	require.False(t, q.IsSkipping())
	require.Equal(t, requests.StateActive, q.State())
	require.Equal(t, []string{"start:s", "clear:s", "end:s"}, l.calls)
}

func TestClientQueue_EndClearsEverything(t *testing.T) {
	l := newLedger()
	q := requests.NewClientQueue(l, requests.Options{})
	install(t, q)
	require.True(t, q.AddRequest("STALL", "p", "s"))
	q.Update()
	require.True(t, q.AddRequest("WALK", "p", "w"))
	require.True(t, q.AddPriorityRequest("SYNC", "server", "y"))

	q.End()
	require.False(t, q.IsActive())
	require.Nil(t, q.Current())
	require.Zero(t, q.Len(requests.PriorityNormal))
	require.Zero(t, q.Len(requests.PrioritySuper))
	require.Equal(t, []string{"start:s", "clear:s", "end:s"}, l.calls)

	q.Update()
	require.Len(t, l.calls, 3, "an ended queue does nothing")
	require.False(t, q.AddRequest("WALK", "p", "again"))

	q.Start()
	require.True(t, q.AddRequest("WALK", "p", "again"))
}

func TestServerQueue_ProcessesSynchronously(t *testing.T) {
	l := newLedger()
	l.reject["cheat"] = true
	q := requests.NewServerQueue(l, requests.Options{})
	seen := install(t, q)
	require.Equal(t, requests.StateFlush, q.State())

	req, _ := q.CreateRequest("STALL", "s")
	it, ok := q.ProcessUserRequest("p1", req)
	require.True(t, ok)
	require.Equal(t, action.MessengerID("p1"), it.Messenger)
	require.Equal(t, []string{"start:s", "end:s"}, l.calls, "ran to completion regardless of IsFinished")
	require.Nil(t, q.Current())
	require.Len(t, seen[requests.EventRequestValid], 1)
	require.Len(t, seen[requests.EventRequestRun], 1)

	bad, _ := q.CreateRequest("WALK", "cheat")
	_, ok = q.ProcessUserRequest("p1", bad)
	require.False(t, ok)
	require.Len(t, seen[requests.EventRequestInvalid], 1)
	require.Len(t, l.calls, 2)

	_, ok = q.ProcessUserRequest("p1", action.Request{Type: "TELEPORT"})
	require.False(t, ok)
}

func TestServerQueue_UpdateFlushesSuperFirst(t *testing.T) {
	l := newLedger()
	q := requests.NewServerQueue(l, requests.Options{})
	install(t, q)
	require.True(t, q.AddRequest("WALK", "p", "n1"))
	require.True(t, q.AddRequest("WALK", "p", "n2"))
	require.True(t, q.AddPriorityRequest("SYNC", "admin", "s1"))

	require.Equal(t, 3, q.Update())
	require.Equal(t, []string{"start:s1", "end:s1", "start:n1", "end:n1", "start:n2", "end:n2"}, l.calls)
	require.Zero(t, q.Update())

	q.End()
	require.Equal(t, requests.StateFlush, q.State())
	req, _ := q.CreateRequest("WALK", "late")
	_, ok := q.ProcessUserRequest("p", req)
	require.False(t, ok)
}
