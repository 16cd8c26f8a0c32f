// Package actions implements the built-in action kinds over state.State.
package actions

import (
	"fmt"

	"actionforge.ai/internal/sim/action"
	"actionforge.ai/internal/sim/state"
)

const (
	KindMove   action.TypeID = "MOVE"
	KindSay    action.TypeID = "SAY"
	KindAttack action.TypeID = "ATTACK"
	KindWait   action.TypeID = "WAIT"
	KindSync   action.TypeID = "SYNC"
)

const (
	MaxSayLen    = 200
	MaxWaitTicks = 100
	AttackDamage = 10
)

// Counter names maintained by the built-in kinds.
const (
	CounterMoves   = "moves"
	CounterSays    = "says"
	CounterAttacks = "attacks"
	CounterKills   = "kills"
)

type Handler = action.Handler[*state.State]

// Kinds lists the kinds every authority supports.
func Kinds() []action.TypeID {
	return []action.TypeID{KindMove, KindSay, KindAttack, KindWait}
}

// ClientKinds adds the correction kind only a prediction peer runs.
func ClientKinds() []action.TypeID {
	return append(Kinds(), KindSync)
}

func handlerFor(id action.TypeID) (Handler, bool) {
	switch id {
	case KindMove:
		return Move{}, true
	case KindSay:
		return Say{}, true
	case KindAttack:
		return Attack{}, true
	case KindWait:
		return Wait{}, true
	case KindSync:
		return Sync{}, true
	}
	return nil, false
}

// Register installs the handlers for kinds into r.
func Register(r *action.Registry[*state.State], kinds ...action.TypeID) error {
	for _, id := range kinds {
		h, ok := handlerFor(id)
		if !ok {
			return fmt.Errorf("no built-in handler for %s", id)
		}
		if !r.Register(id, h) {
			return fmt.Errorf("register %s", id)
		}
	}
	return nil
}

// DefaultTable is the metadata used when no action table is configured.
func DefaultTable(withSync bool) []action.TypeConfig {
	t := []action.TypeConfig{
		{ID: KindMove, Priority: action.PriorityHigh, Message: action.Message{Send: true}},
		{ID: KindSay, Priority: action.PriorityLow, Instant: true, Message: action.Message{Send: true}},
		{ID: KindAttack, Priority: action.PriorityHigh, Instant: true, Message: action.Message{Send: true}},
		{ID: KindWait, Priority: action.PriorityLow},
	}
	if withSync {
		t = append(t, action.TypeConfig{ID: KindSync, Priority: action.PriorityHigh, Instant: true})
	}
	return t
}

// DefaultConfig returns the default metadata for one built-in kind.
func DefaultConfig(id action.TypeID) (action.TypeConfig, bool) {
	for _, tc := range DefaultTable(true) {
		if tc.ID == id {
			return tc, true
		}
	}
	return action.TypeConfig{}, false
}

func actor(s *state.State, m action.MessengerID) (*state.Agent, bool) {
	a, ok := s.Agent(m)
	if !ok || !a.Alive() {
		return nil, false
	}
	return a, true
}
