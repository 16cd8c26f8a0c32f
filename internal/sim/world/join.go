package world

import (
	"fmt"

	"actionforge.ai/internal/protocol"
	"actionforge.ai/internal/sim/action"
)

// joinAgent attaches a session. A known, non-NPC Resume id reattaches to the
// existing agent and changes no state; anything else spawns a new agent and
// returns the join input to record.
func (w *World) joinAgent(req JoinRequest) (JoinResponse, Input, bool) {
	if req.Resume != "" {
		if a, ok := w.state.Agent(req.Resume); ok && !a.NPC {
			w.attach(a.ID, req.Out)
			return w.joinResponse(a.ID, true), Input{}, false
		}
	}
	id := w.newAgentID()
	w.applyJoin(id, req.Name)
	w.attach(id, req.Out)
	return w.joinResponse(id, false), Input{Kind: InputJoin, Messenger: id, Name: req.Name}, true
}

func (w *World) applyJoin(id action.MessengerID, name string) {
	if name == "" {
		name = string(id)
	}
	w.state.Join(id, name, false)
}

func (w *World) attach(id action.MessengerID, out chan []byte) {
	if out == nil {
		return
	}
	w.clients[id] = &clientState{Out: out}
}

func (w *World) handleLeave(req LeaveRequest) {
	cl := w.clients[req.Messenger]
	if cl == nil || (req.Out != nil && cl.Out != req.Out) {
		return
	}
	delete(w.clients, req.Messenger)
}

// newAgentID skips ids already taken, which only happens after a replay.
func (w *World) newAgentID() action.MessengerID {
	for {
		w.nextAgentNum++
		id := action.MessengerID(fmt.Sprintf("A%d", w.nextAgentNum))
		if _, taken := w.state.Agent(id); !taken {
			return id
		}
	}
}

func (w *World) joinResponse(id action.MessengerID, resumed bool) JoinResponse {
	return JoinResponse{
		MessengerID: id,
		Resumed:     resumed,
		Welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			MessengerID:     string(id),
			World:           w.worldParams(),
			Actions:         w.Actions(),
		},
	}
}

func sortedClientIDs(m map[action.MessengerID]*clientState) []action.MessengerID {
	ids := make([]action.MessengerID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}
