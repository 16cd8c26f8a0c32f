package world

import (
	"encoding/json"

	"actionforge.ai/internal/protocol"
)

func (w *World) step(joins []JoinRequest, leaves []LeaveRequest, reqs []RequestEnvelope) {
	nowTick := w.tick.Load()

	// Leaves only detach the session; the agent stays in the world.
	for _, req := range leaves {
		w.handleLeave(req)
	}

	recorded := make([]Input, 0, len(joins)+len(reqs))
	for _, req := range joins {
		resp, in, ok := w.joinAgent(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
		if ok {
			recorded = append(recorded, in)
		}
	}

	// Apply requests in server receive order (the inbox order).
	for _, env := range reqs {
		r := env.Msg.Action
		ack := w.applyRequest(env.Messenger, env.Msg.RequestID, r, nowTick)
		recorded = append(recorded, Input{
			Kind:      InputRequest,
			Messenger: env.Messenger,
			RequestID: env.Msg.RequestID,
			Request:   &r,
		})
		if env.Resp != nil {
			select {
			case env.Resp <- ack:
			default:
			}
		}
	}

	w.finishTick(nowTick, recorded)
}

// finishTick runs the per-tick systems, advances the clock and emits the tick
// log entry and STATE broadcast. It returns the post-tick digest.
func (w *World) finishTick(nowTick uint64, recorded []Input) string {
	w.server.Update()
	w.stepNPCs(nowTick)

	nextTick := w.tick.Add(1)
	w.state.Tick = nextTick
	digest := w.state.Digest()

	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Inputs: recorded, Digest: digest}); err != nil {
			w.log.Printf("tick log: %v", err)
		}
	}
	if len(w.clients) > 0 && nextTick%uint64(w.cfg.StateEveryTicks) == 0 {
		w.broadcastState(nextTick, digest)
	}
	return digest
}

func (w *World) broadcastState(tick uint64, digest string) {
	b, err := json.Marshal(protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Digest:          digest,
		State:           w.state,
	})
	if err != nil {
		w.log.Printf("marshal state: %v", err)
		return
	}
	for _, id := range sortedClientIDs(w.clients) {
		sendLatest(w.clients[id].Out, b)
	}
}
