package world

import (
	"context"
	"errors"

	"actionforge.ai/internal/sim/state"
)

type stateReq struct {
	Resp chan *state.State
}

// RequestState returns a copy of the world state taken on the world loop
// goroutine.
func (w *World) RequestState(ctx context.Context) (*state.State, error) {
	if w == nil || w.stateReq == nil {
		return nil, errors.New("state query not available")
	}
	req := stateReq{Resp: make(chan *state.State, 1)}
	select {
	case w.stateReq <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case s := <-req.Resp:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *World) handleStateReq(req stateReq) {
	if req.Resp == nil {
		return
	}
	select {
	case req.Resp <- w.state.Clone():
	default:
	}
}
