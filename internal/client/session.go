// Package client is the prediction peer: it runs the player's intents
// locally, forwards them to the server, and corrects itself from
// authoritative snapshots.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"

	"actionforge.ai/internal/protocol"
	"actionforge.ai/internal/sim/action"
	"actionforge.ai/internal/sim/actionqueue"
	"actionforge.ai/internal/sim/actions"
	"actionforge.ai/internal/sim/events"
	"actionforge.ai/internal/sim/requests"
	"actionforge.ai/internal/sim/state"
)

// Sender delivers one REQUEST to the server.
type Sender func(protocol.RequestMsg) error

type Options struct {
	ImmediateSize     int
	ExecutionSize     int
	MaxInstantActions int
	MaxRequests       int

	Logger *log.Logger
}

type Stats struct {
	Sent     int
	Accepted int
	Rejected int
	Syncs    int
	Events   int
}

// Session holds the predicted state and the two queues that drive it. It is
// not safe for concurrent use; call every method from one goroutine.
type Session struct {
	id    action.MessengerID
	state *state.State
	bus   *events.Bus

	// local runs intents optimistically and announces them.
	local *actionqueue.ActionQueue[*state.State]
	// sync applies authoritative corrections.
	sync *requests.ClientQueue[*state.State]

	send    Sender
	pending map[string]action.Request
	resync  bool
	stats   Stats

	log *log.Logger
}

func NewSession(welcome protocol.WelcomeMsg, send Sender, opts Options) (*Session, error) {
	if welcome.MessengerID == "" {
		return nil, errors.New("welcome without messenger id")
	}
	if send == nil {
		return nil, errors.New("nil sender")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}

	s := &Session{
		id:      action.MessengerID(welcome.MessengerID),
		state:   state.New(welcome.World.Width, welcome.World.Height, 1),
		bus:     events.NewBus(),
		send:    send,
		pending: map[string]action.Request{},
		resync:  true,
		log:     opts.Logger,
	}

	s.local = actionqueue.New(s.state, actionqueue.Options{
		ImmediateSize:     opts.ImmediateSize,
		ExecutionSize:     opts.ExecutionSize,
		MaxInstantActions: opts.MaxInstantActions,
		Bus:               s.bus,
		Logger:            opts.Logger,
	})
	// Only built-in kinds run locally; others go straight to the server.
	var table []action.TypeConfig
	for _, tc := range welcome.Actions {
		if !isBuiltin(tc.ID) {
			continue
		}
		if err := actions.Register(s.local.Registry(), tc.ID); err != nil {
			return nil, err
		}
		table = append(table, tc)
	}
	if len(table) > 0 && !s.local.Load(table) {
		return nil, fmt.Errorf("invalid action table from server")
	}
	s.local.ToTell()

	s.sync = requests.NewClientQueue(s.state, requests.Options{
		MaxRequests: opts.MaxRequests,
		Bus:         s.bus,
		Logger:      opts.Logger,
	})
	if err := actions.Register(s.sync.Registry(), actions.KindSync); err != nil {
		return nil, err
	}
	syncConfig, ok := actions.DefaultConfig(actions.KindSync)
	if !ok || !s.sync.Load([]action.TypeConfig{syncConfig}) {
		return nil, fmt.Errorf("load sync kind")
	}

	s.bus.Subscribe(actionqueue.EventExecutionDefer, s.onDefer)
	s.bus.Subscribe(requests.EventRequestInvalid, func(e events.Event) {
		s.log.Printf("correction rejected: %+v", e.Payload)
		s.resync = true
	})
	return s, nil
}

func isBuiltin(id action.TypeID) bool {
	for _, k := range actions.Kinds() {
		if k == id {
			return true
		}
	}
	return false
}

func (s *Session) MessengerID() action.MessengerID { return s.id }
func (s *Session) State() *state.State             { return s.state }
func (s *Session) Bus() *events.Bus                { return s.bus }
func (s *Session) Stats() Stats                    { return s.stats }
func (s *Session) InFlight() int                   { return len(s.pending) }

// Intend queues a built-in intent for local execution. Kinds marked
// message.send are forwarded to the server when they are validated.
func (s *Session) Intend(id action.TypeID, args ...any) bool {
	return s.local.AddImmediateRequest(id, s.id, args...)
}

// Forward sends a request the session cannot predict, such as a scripted
// kind, straight to the server.
func (s *Session) Forward(id action.TypeID, args any) error {
	return s.sendRequest(action.Request{Type: id, Data: action.Encode(args)})
}

func (s *Session) onDefer(e events.Event) {
	it, ok := e.Payload.(*action.Item[*state.State])
	if !ok {
		return
	}
	if err := s.sendRequest(it.Request); err != nil {
		s.log.Printf("forward %s: %v", it.Type(), err)
	}
}

func (s *Session) sendRequest(req action.Request) error {
	msg := protocol.RequestMsg{
		Type:            protocol.TypeRequest,
		ProtocolVersion: protocol.Version,
		RequestID:       uuid.NewString(),
		Tick:            s.state.Tick,
		Action:          req,
	}
	if err := s.send(msg); err != nil {
		return err
	}
	s.pending[msg.RequestID] = req
	s.stats.Sent++
	return nil
}

// HandleMessage applies one server message.
func (s *Session) HandleMessage(b []byte) error {
	base, err := protocol.DecodeBase(b)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	switch base.Type {
	case protocol.TypeState:
		var msg protocol.StateMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			return fmt.Errorf("decode STATE: %w", err)
		}
		s.OnState(msg)
	case protocol.TypeAck:
		var msg protocol.AckMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			return fmt.Errorf("decode ACK: %w", err)
		}
		s.OnAck(msg)
	case protocol.TypeEvent:
		s.stats.Events++
	}
	return nil
}

// OnState schedules a correction when the snapshot disagrees with the
// prediction, or when a resync is pending.
func (s *Session) OnState(msg protocol.StateMsg) {
	if msg.State == nil {
		return
	}
	if !s.resync && msg.Digest != "" && msg.Digest == s.predictedDigest(msg.Tick) {
		return
	}
	req, ok := s.sync.CreateRequest(actions.KindSync, msg.State)
	if !ok {
		return
	}
	if s.sync.Submit(s.id, req, requests.PrioritySuper) {
		s.resync = false
		s.stats.Syncs++
	}
}

func (s *Session) predictedDigest(tick uint64) string {
	c := s.state.Clone()
	c.Tick = tick
	return c.Digest()
}

// OnAck settles an in-flight request. A rejection drops every local
// prediction and forces a correction from the next snapshot.
func (s *Session) OnAck(msg protocol.AckMsg) {
	delete(s.pending, msg.AckFor)
	if msg.Accepted {
		s.stats.Accepted++
		return
	}
	s.stats.Rejected++
	s.log.Printf("request %s rejected: %s %s", msg.AckFor, msg.Code, msg.Message)
	s.local.Reset()
	s.local.ToTell()
	s.resync = true
}

// Tick advances both queues by one tick: corrections first, then the local
// prediction.
func (s *Session) Tick() {
	s.sync.Update()
	s.local.Update()
}
