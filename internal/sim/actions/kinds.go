package actions

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"actionforge.ai/internal/sim/action"
	"actionforge.ai/internal/sim/state"
)

type MoveArgs struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Move walks the actor one cell per tick toward a target, sidestepping on the
// other axis when the direct cell is taken. A fully blocked actor waits.
type Move struct{}

// Template accepts (x, y int), MoveArgs, state.Vec2 or a map with "x" and
// "y". Anything else yields a nil payload, which Validate rejects.
func (Move) Template(args ...any) json.RawMessage {
	a, ok := moveTarget(args)
	if !ok {
		return nil
	}
	return action.Encode(a)
}

func moveTarget(args []any) (MoveArgs, bool) {
	switch len(args) {
	case 1:
		switch v := args[0].(type) {
		case MoveArgs:
			return v, true
		case *MoveArgs:
			if v != nil {
				return *v, true
			}
		case state.Vec2:
			return MoveArgs{X: v.X, Y: v.Y}, true
		case map[string]int:
			x, okX := v["x"]
			y, okY := v["y"]
			return MoveArgs{X: x, Y: y}, okX && okY
		case map[string]any:
			x, okX := intArg(v["x"])
			y, okY := intArg(v["y"])
			return MoveArgs{X: x, Y: y}, okX && okY
		}
	case 2:
		x, okX := args[0].(int)
		y, okY := args[1].(int)
		return MoveArgs{X: x, Y: y}, okX && okY
	}
	return MoveArgs{}, false
}

// intArg reads an integer from a decoded value; float64 is what
// encoding/json produces for numbers.
func intArg(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

func (Move) Validate(s *state.State, data json.RawMessage, m action.MessengerID) (any, bool) {
	a, ok := action.Decode[MoveArgs](data)
	if !ok {
		return nil, false
	}
	if _, ok := actor(s, m); !ok {
		return nil, false
	}
	if !s.InBounds(state.Vec2{X: a.X, Y: a.Y}) {
		return nil, false
	}
	return a, true
}

func (Move) OnStart(s *state.State, data any, m action.MessengerID) {
	a, ok := s.Agent(m)
	if !ok {
		return
	}
	t := data.(MoveArgs)
	a.Dest = &state.Vec2{X: t.X, Y: t.Y}
}

func (Move) OnUpdate(s *state.State, data any, m action.MessengerID) {
	a, ok := actor(s, m)
	if !ok || a.Dest == nil {
		return
	}
	for _, next := range a.Pos.StepsToward(*a.Dest) {
		if s.AgentAt(next) == nil {
			a.Pos = next
			s.AddCounter(CounterMoves, 1)
			return
		}
	}
}

func (Move) IsFinished(s *state.State, data any, m action.MessengerID) bool {
	a, ok := actor(s, m)
	if !ok {
		return true
	}
	t := data.(MoveArgs)
	return a.Pos == state.Vec2{X: t.X, Y: t.Y}
}

// OnEnd completes the move when the target is free. When an authority runs a
// move start to end in one call, this is where the actor arrives.
func (Move) OnEnd(s *state.State, _ any, m action.MessengerID) {
	a, ok := s.Agent(m)
	if !ok {
		return
	}
	if a.Alive() && a.Dest != nil {
		if other := s.AgentAt(*a.Dest); other == nil || other == a {
			a.Pos = *a.Dest
		}
	}
	a.Dest = nil
}

// OnClear abandons the move where the actor stands.
func (Move) OnClear(s *state.State, _ any, m action.MessengerID) {
	if a, ok := s.Agent(m); ok {
		a.Dest = nil
	}
}

type SayArgs struct {
	Text string `json:"text"`
}

// Say appends a chat line.
type Say struct {
	action.Noop[*state.State]
}

func (Say) Template(args ...any) json.RawMessage {
	a := SayArgs{}
	if len(args) > 0 {
		a.Text, _ = args[0].(string)
	}
	return action.Encode(a)
}

func (Say) Validate(s *state.State, data json.RawMessage, m action.MessengerID) (any, bool) {
	a, ok := action.Decode[SayArgs](data)
	if !ok {
		return nil, false
	}
	a.Text = strings.TrimSpace(a.Text)
	if a.Text == "" || utf8.RuneCountInString(a.Text) > MaxSayLen {
		return nil, false
	}
	if _, ok := actor(s, m); !ok {
		return nil, false
	}
	return a, true
}

func (Say) OnStart(s *state.State, data any, m action.MessengerID) {
	s.AddChat(m, data.(SayArgs).Text)
	s.AddCounter(CounterSays, 1)
}

type AttackArgs struct {
	Target action.MessengerID `json:"target"`
}

// Attack hits an adjacent living agent.
type Attack struct {
	action.Noop[*state.State]
}

func (Attack) Template(args ...any) json.RawMessage {
	a := AttackArgs{}
	if len(args) > 0 {
		switch v := args[0].(type) {
		case string:
			a.Target = action.MessengerID(v)
		case action.MessengerID:
			a.Target = v
		}
	}
	return action.Encode(a)
}

func (Attack) Validate(s *state.State, data json.RawMessage, m action.MessengerID) (any, bool) {
	a, ok := action.Decode[AttackArgs](data)
	if !ok || a.Target == "" || a.Target == m {
		return nil, false
	}
	self, ok := actor(s, m)
	if !ok {
		return nil, false
	}
	target, ok := actor(s, a.Target)
	if !ok || self.Pos.Manhattan(target.Pos) != 1 {
		return nil, false
	}
	return a, true
}

func (Attack) OnStart(s *state.State, data any, _ action.MessengerID) {
	target, ok := s.Agent(data.(AttackArgs).Target)
	if !ok || !target.Alive() {
		return
	}
	target.HP -= AttackDamage
	s.AddCounter(CounterAttacks, 1)
	if target.HP <= 0 {
		target.HP = 0
		target.Dest = nil
		s.AddCounter(CounterKills, 1)
	}
}

type WaitArgs struct {
	Ticks int `json:"ticks"`
}

type waitData struct {
	left int
}

// Wait occupies the actor's queue for a number of ticks.
type Wait struct{}

func (Wait) Template(args ...any) json.RawMessage {
	a := WaitArgs{Ticks: 1}
	if len(args) > 0 {
		if n, ok := args[0].(int); ok {
			a.Ticks = n
		}
	}
	return action.Encode(a)
}

func (Wait) Validate(s *state.State, data json.RawMessage, m action.MessengerID) (any, bool) {
	a, ok := action.Decode[WaitArgs](data)
	if !ok || a.Ticks < 1 || a.Ticks > MaxWaitTicks {
		return nil, false
	}
	if _, ok := actor(s, m); !ok {
		return nil, false
	}
	return &waitData{left: a.Ticks}, true
}

func (Wait) OnStart(*state.State, any, action.MessengerID) {}

func (Wait) OnUpdate(_ *state.State, data any, _ action.MessengerID) {
	data.(*waitData).left--
}

func (Wait) IsFinished(_ *state.State, data any, _ action.MessengerID) bool {
	return data.(*waitData).left <= 0
}

func (Wait) OnEnd(*state.State, any, action.MessengerID) {}

// Sync replaces the predicted state with an authoritative snapshot.
type Sync struct {
	action.Noop[*state.State]
}

func (Sync) Template(args ...any) json.RawMessage {
	if len(args) == 0 {
		return nil
	}
	switch v := args[0].(type) {
	case *state.State:
		return action.Encode(v)
	case json.RawMessage:
		return v
	}
	return nil
}

func (Sync) Validate(s *state.State, data json.RawMessage, _ action.MessengerID) (any, bool) {
	var snap state.State
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false
	}
	if snap.Width <= 0 || snap.Height <= 0 || snap.Tick < s.Tick {
		return nil, false
	}
	return &snap, true
}

func (Sync) OnStart(s *state.State, data any, _ action.MessengerID) {
	s.Replace(data.(*state.State))
}
