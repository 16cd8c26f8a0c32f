package action_test

import (
	"bytes"
	"encoding/json"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"actionforge.ai/internal/sim/action"
)

type world struct {
	limit   int
	started []int
	cleared int
}

type bumpArgs struct {
	N    int    `json:"n"`
	Note string `json:"note,omitempty"`
}

type bump struct {
	action.Noop[*world]
}

func (bump) Template(args ...any) json.RawMessage {
	a := bumpArgs{}
	if len(args) > 0 {
		a.N, _ = args[0].(int)
	}
	if len(args) > 1 {
		a.Note, _ = args[1].(string)
	}
	return action.Encode(a)
}

func (bump) Validate(w *world, data json.RawMessage, _ action.MessengerID) (any, bool) {
	a, ok := action.Decode[bumpArgs](data)
	if !ok || a.N <= 0 || a.N > w.limit {
		return nil, false
	}
	return a, true
}

func (bump) OnStart(w *world, data any, _ action.MessengerID) {
	w.started = append(w.started, data.(bumpArgs).N)
}

func (bump) OnClear(w *world, _ any, _ action.MessengerID) { w.cleared++ }

func newRegistry(t *testing.T, buf *bytes.Buffer) *action.Registry[*world] {
	t.Helper()
	r := action.NewRegistry[*world](log.New(buf, "", 0))
	require.True(t, r.Register("BUMP", bump{}))
	require.True(t, r.Load([]action.TypeConfig{{ID: "BUMP", Priority: action.PriorityHigh, Instant: true}}))
	return r
}

func TestRegistry_RejectsDuplicateAndEmptyRegistration(t *testing.T) {
	var buf bytes.Buffer
	r := newRegistry(t, &buf)
	require.False(t, r.Register("BUMP", bump{}))
	require.False(t, r.Register("", bump{}))
	require.False(t, r.Register("NIL", nil))
	require.Contains(t, buf.String(), "duplicate handler for BUMP")
	require.Equal(t, []action.TypeID{"BUMP"}, r.Kinds())
}

func TestRegistry_LoadRejectsMalformedTableWholesale(t *testing.T) {
	var buf bytes.Buffer
	r := newRegistry(t, &buf)

	require.False(t, r.Load(nil))
	require.False(t, r.Load([]action.TypeConfig{{ID: "X"}, {ID: ""}}))
	require.False(t, r.Load([]action.TypeConfig{{ID: "X"}, {ID: "X"}}))
	require.False(t, r.Load([]action.TypeConfig{{ID: "X", Priority: action.Priority(7)}}))

	_, ok := r.Config("X")
	require.False(t, ok, "partial table must not be installed")
	tc, ok := r.Config("BUMP")
	require.True(t, ok)
	require.Equal(t, action.PriorityHigh, tc.Priority)
}

func TestRegistry_CreateRequestNeedsHandlerAndConfig(t *testing.T) {
	var buf bytes.Buffer
	r := newRegistry(t, &buf)

	req, ok := r.CreateRequest("BUMP", 2, "hi")
	require.True(t, ok)
	require.Equal(t, action.TypeID("BUMP"), req.Type)
	require.JSONEq(t, `{"n":2,"note":"hi"}`, string(req.Data))

	_, ok = r.CreateRequest("NOPE")
	require.False(t, ok)

	require.True(t, r.Register("UNCONFIGURED", bump{}))
	_, ok = r.CreateRequest("UNCONFIGURED", 1)
	require.False(t, ok)
	require.Contains(t, buf.String(), `unknown action type "NOPE"`)
}

func TestRegistry_TemplateIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	r := newRegistry(t, &buf)
	a, _ := r.CreateRequest("BUMP", 3, "x")
	b, _ := r.CreateRequest("BUMP", 3, "x")
	require.Equal(t, a, b)
}

func TestRegistry_ValidateGatesStart(t *testing.T) {
	var buf bytes.Buffer
	r := newRegistry(t, &buf)
	w := &world{limit: 5}

	bad, _ := r.CreateRequest("BUMP", 9)
	_, ok := r.Validate(w, bad, "p1")
	require.False(t, ok)

	_, ok = r.Validate(w, action.Request{Type: "BUMP", Data: json.RawMessage(`{"n":1,"extra":true}`)}, "p1")
	require.False(t, ok, "unknown fields are rejected")

	good, _ := r.CreateRequest("BUMP", 4)
	it, ok := r.Validate(w, good, "p1")
	require.True(t, ok)
	require.Equal(t, action.PriorityHigh, it.Priority)
	require.True(t, it.Instant)
	require.Equal(t, action.MessengerID("p1"), it.Messenger)
	require.Empty(t, w.started)

	it.Start(w)
	require.True(t, it.Finished(w))
	it.Clear(w)
	it.End(w)
	require.Equal(t, []int{4}, w.started)
	require.Equal(t, 1, w.cleared)
	require.True(t, it.Validated())

	require.False(t, (&action.Item[*world]{Request: good}).Validated())
	require.False(t, (*action.Item[*world])(nil).Validated())
}

func TestRegistry_CheckComplete(t *testing.T) {
	var buf bytes.Buffer
	r := newRegistry(t, &buf)
	require.NoError(t, r.CheckComplete([]action.TypeID{"BUMP"}))
	require.ErrorContains(t, r.CheckComplete([]action.TypeID{"BUMP", "MOVE"}), `missing key "MOVE"`)
	require.ErrorContains(t, r.CheckComplete(nil), `unsupported key "BUMP"`)
	require.ErrorContains(t, r.CheckComplete([]action.TypeID{"BUMP", "BUMP"}), "duplicate supported key")
}

func TestPriority_TextRoundTrip(t *testing.T) {
	var tc action.TypeConfig
	require.NoError(t, json.Unmarshal([]byte(`{"id":"A","priority":"high","instant":true,"message":{"send":true}}`), &tc))
	require.Equal(t, action.PriorityHigh, tc.Priority)
	require.True(t, tc.Message.Send)

	b, err := json.Marshal(tc)
	require.NoError(t, err)
	require.Contains(t, string(b), `"priority":"HIGH"`)

	require.Error(t, json.Unmarshal([]byte(`{"priority":"urgent"}`), &tc))
}
