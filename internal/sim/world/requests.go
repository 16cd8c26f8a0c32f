package world

import (
	"actionforge.ai/internal/protocol"
	"actionforge.ai/internal/sim/action"
)

// applyRequest runs one remote request through the server queue and builds
// its ACK. The checks run in the same order during replay.
func (w *World) applyRequest(m action.MessengerID, requestID string, req action.Request, tick uint64) protocol.AckMsg {
	if _, ok := w.state.Agent(m); !ok {
		return protocol.NewAck(requestID, tick, protocol.ErrBadRequest, "unknown messenger")
	}
	if _, _, ok := w.server.Registry().Lookup(req.Type); !ok {
		return protocol.NewAck(requestID, tick, protocol.ErrUnknownType, string(req.Type))
	}
	if !w.server.IsActive() {
		return protocol.NewAck(requestID, tick, protocol.ErrWorldBusy, "world is not accepting requests")
	}
	if _, ok := w.server.ProcessUserRequest(m, req); !ok {
		return protocol.NewAck(requestID, tick, protocol.ErrInvalid, string(req.Type)+" rejected")
	}
	return protocol.NewAck(requestID, tick, "", "")
}
