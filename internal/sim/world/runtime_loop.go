package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer w.server.End()

	var pendingRequests []RequestEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []LeaveRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case req := <-w.leave:
			pendingLeaves = append(pendingLeaves, req)
		case req := <-w.stateReq:
			w.handleStateReq(req)
		case env := <-w.inbox:
			pendingRequests = append(pendingRequests, env)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingRequests)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingRequests = pendingRequests[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick, applying recorded inputs in
// order. It is intended for deterministic replays and tests.
func (w *World) StepOnce(inputs []Input) (tick uint64, digest string) {
	tick = w.tick.Load()
	recorded := make([]Input, 0, len(inputs))
	for _, in := range inputs {
		switch in.Kind {
		case InputJoin:
			w.applyJoin(in.Messenger, in.Name)
		case InputRequest:
			if in.Request == nil {
				continue
			}
			w.applyRequest(in.Messenger, in.RequestID, *in.Request, tick)
		default:
			continue
		}
		recorded = append(recorded, in)
	}
	return tick, w.finishTick(tick, recorded)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func trySend(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}
