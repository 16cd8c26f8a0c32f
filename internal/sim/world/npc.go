package world

import (
	"fmt"

	"actionforge.ai/internal/sim/action"
	"actionforge.ai/internal/sim/actionqueue"
	"actionforge.ai/internal/sim/actions"
	"actionforge.ai/internal/sim/state"
)

var npcLines = []string{"hello", "anyone here?", "nice weather", "watch out", "on my way"}

// npc is a server-side wanderer with its own local ActionQueue.
type npc struct {
	id action.MessengerID
	q  *actionqueue.ActionQueue[*state.State]

	// ticks the current item has been running
	running int
}

func (w *World) spawnNPC(id action.MessengerID) error {
	w.state.Join(id, "npc-"+string(id), true)
	q := actionqueue.New(w.state, actionqueue.Options{
		ImmediateSize:     w.cfg.ImmediateSize,
		ExecutionSize:     w.cfg.ExecutionSize,
		MaxInstantActions: w.cfg.MaxInstantActions,
		Bus:               w.bus,
		Logger:            w.log,
	})
	if err := actions.Register(q.Registry(), actions.Kinds()...); err != nil {
		return err
	}
	if !q.Load(w.cfg.Actions) {
		return fmt.Errorf("npc %s: invalid action type table", id)
	}
	w.npcs[id] = &npc{id: id, q: q}
	return nil
}

// stepNPCs advances every NPC queue in id order.
func (w *World) stepNPCs(nowTick uint64) {
	ids := make([]action.MessengerID, 0, len(w.npcs))
	for id := range w.npcs {
		ids = append(ids, id)
	}
	sortIDs(ids)
	for _, id := range ids {
		w.npcs[id].step(w, nowTick)
	}
}

func (n *npc) step(w *World, nowTick uint64) {
	if n.q.Current() != nil {
		n.running++
		if n.running > w.cfg.NPCMaxActionTicks && n.q.Skip() {
			w.log.Printf("npc %s: skipping %s after %d ticks", n.id, n.q.Current().Type(), n.running)
		}
	} else {
		n.running = 0
	}

	if n.idle() && nowTick%uint64(w.cfg.WanderEveryTicks) == 0 {
		n.wander(w)
	}
	n.q.Update()
}

func (n *npc) idle() bool {
	return n.q.Current() == nil && n.q.Size() == 0 && n.q.ImmediateSize() == 0
}

func (n *npc) wander(w *World) {
	a, ok := w.state.Agent(n.id)
	if !ok || !a.Alive() {
		return
	}
	switch w.rng.Intn(4) {
	case 0, 1:
		x := w.rng.Intn(w.cfg.Width)
		y := w.rng.Intn(w.cfg.Height)
		n.q.AddImmediateRequest(actions.KindMove, n.id, x, y)
	case 2:
		n.q.AddImmediateRequest(actions.KindSay, n.id, npcLines[w.rng.Intn(len(npcLines))])
	default:
		n.q.AddImmediateRequest(actions.KindWait, n.id, 1+w.rng.Intn(3))
	}
}
