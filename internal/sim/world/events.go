package world

import (
	"encoding/json"
	"sort"

	"actionforge.ai/internal/protocol"
	"actionforge.ai/internal/sim/action"
	"actionforge.ai/internal/sim/actionqueue"
	"actionforge.ai/internal/sim/events"
	"actionforge.ai/internal/sim/requests"
	"actionforge.ai/internal/sim/state"
)

// EventRecord is the persisted form of one bus event.
type EventRecord struct {
	Tick      uint64             `json:"tick"`
	WorldID   string             `json:"world_id"`
	Event     string             `json:"event"`
	Messenger action.MessengerID `json:"messenger_id,omitempty"`
	Action    action.TypeID      `json:"action,omitempty"`
	Skipped   bool               `json:"skipped,omitempty"`
	Data      json.RawMessage    `json:"data,omitempty"`
}

func (w *World) onEvent(e events.Event) {
	rec := EventRecord{
		Tick:    w.tick.Load(),
		WorldID: w.cfg.ID,
		Event:   string(e.Type),
	}
	switch p := e.Payload.(type) {
	case *action.Item[*state.State]:
		rec.Messenger, rec.Action, rec.Data = p.Messenger, p.Type(), p.Request.Data
	case actionqueue.Ended[*state.State]:
		rec.Messenger, rec.Action, rec.Data = p.Item.Messenger, p.Item.Type(), p.Item.Request.Data
		rec.Skipped = p.Skipped
	case actionqueue.Pending:
		rec.Messenger, rec.Action, rec.Data = p.Messenger, p.Request.Type, p.Request.Data
	case requests.Pending:
		rec.Messenger, rec.Action, rec.Data = p.Messenger, p.Request.Type, p.Request.Data
	}

	if w.eventLogger != nil {
		if err := w.eventLogger.WriteEvent(rec); err != nil {
			w.log.Printf("event log: %v", err)
		}
	}

	cl := w.clients[rec.Messenger]
	if cl == nil {
		return
	}
	b, err := json.Marshal(protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Tick:            rec.Tick,
		Event:           rec.Event,
		MessengerID:     string(rec.Messenger),
		Action:          string(rec.Action),
	})
	if err != nil {
		return
	}
	if !trySend(cl.Out, b) {
		w.log.Printf("event %s for %s dropped: outbound full", rec.Event, rec.Messenger)
	}
}

func sortIDs(ids []action.MessengerID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
