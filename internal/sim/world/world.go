package world

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync/atomic"

	"actionforge.ai/internal/protocol"
	"actionforge.ai/internal/sim/action"
	"actionforge.ai/internal/sim/actions"
	"actionforge.ai/internal/sim/events"
	"actionforge.ai/internal/sim/requests"
	"actionforge.ai/internal/sim/state"
)

type JoinRequest struct {
	Name string
	// Resume reattaches to an existing agent when set and known.
	Resume action.MessengerID
	Out    chan []byte
	Resp   chan JoinResponse
}

// LeaveRequest detaches a session. Out identifies the session, so a late
// leave from an old connection does not detach a resumed one.
type LeaveRequest struct {
	Messenger action.MessengerID
	Out       chan []byte
}

type JoinResponse struct {
	MessengerID action.MessengerID
	Resumed     bool
	Welcome     protocol.WelcomeMsg
}

// RequestEnvelope carries one REQUEST into the world loop. Resp, when set,
// receives the ACK.
type RequestEnvelope struct {
	Messenger action.MessengerID
	Msg       protocol.RequestMsg
	Resp      chan protocol.AckMsg
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	log *log.Logger

	tick atomic.Uint64

	state   *state.State
	bus     *events.Bus
	server  *requests.ServerQueue[*state.State]
	npcs    map[action.MessengerID]*npc
	clients map[action.MessengerID]*clientState
	kinds   []action.TypeID

	rng *rand.Rand

	inbox    chan RequestEnvelope
	join     chan JoinRequest
	leave    chan LeaveRequest
	stateReq chan stateReq
	stop     chan struct{}

	nextAgentNum uint64

	// inputs recorded since the last tick, for the tick log.
	inputs []Input

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	eventLogger EventLogger
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type EventLogger interface {
	WriteEvent(rec EventRecord) error
}

// Input is one state-changing call applied between two ticks.
type Input struct {
	Kind      string             `json:"kind"`
	Messenger action.MessengerID `json:"messenger_id"`
	Name      string             `json:"name,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
	Request   *action.Request    `json:"request,omitempty"`
}

const (
	InputJoin    = "join"
	InputRequest = "request"
)

type TickLogEntry struct {
	Tick   uint64  `json:"tick"`
	Inputs []Input `json:"inputs,omitempty"`
	Digest string  `json:"digest"`
}

type clientState struct {
	Out chan []byte
}

// Option configures a World.
type Option func(*World)

func WithLogger(l *log.Logger) Option { return func(w *World) { w.log = l } }

// WithScripts binds extra action kinds, typically Lua handlers.
func WithScripts(h map[action.TypeID]action.Handler[*state.State]) Option {
	return func(w *World) {
		ids := make([]action.TypeID, 0, len(h))
		for id := range h {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			w.server.RegisterHandler(id, h[id])
			w.kinds = append(w.kinds, id)
		}
	}
}

func New(cfg WorldConfig, opts ...Option) (*World, error) {
	cfg.applyDefaults()
	w := &World{
		cfg:      cfg,
		log:      log.New(io.Discard, "", 0),
		state:    state.New(cfg.Width, cfg.Height, cfg.StartHP),
		bus:      events.NewBus(),
		npcs:     map[action.MessengerID]*npc{},
		clients:  map[action.MessengerID]*clientState{},
		kinds:    actions.Kinds(),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		inbox:    make(chan RequestEnvelope, 1024),
		join:     make(chan JoinRequest, 64),
		leave:    make(chan LeaveRequest, 64),
		stateReq: make(chan stateReq, 16),
		stop:     make(chan struct{}),
	}
	w.server = requests.NewServerQueue(w.state, requests.Options{
		MaxRequests: cfg.MaxRequests,
		Bus:         w.bus,
	})
	if err := actions.Register(w.server.Registry(), actions.Kinds()...); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(w)
	}
	table := cfg.Actions
	if table == nil {
		table = actions.DefaultTable(false)
	}
	if !w.server.Load(table) {
		return nil, fmt.Errorf("world %s: invalid action type table", cfg.ID)
	}
	if err := w.server.Registry().CheckComplete(w.kinds); err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	w.cfg.Actions = table
	w.bus.SubscribeAll(w.onEvent)

	for i := 1; i <= cfg.NPCs; i++ {
		if err := w.spawnNPC(action.MessengerID(fmt.Sprintf("N%d", i))); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)   { w.tickLogger = l }
func (w *World) SetEventLogger(l EventLogger) { w.eventLogger = l }

func (w *World) Inbox() chan<- RequestEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest      { return w.join }
func (w *World) Leave() chan<- LeaveRequest    { return w.leave }

func (w *World) ID() string          { return w.cfg.ID }
func (w *World) TickRateHz() int     { return w.cfg.TickRateHz }
func (w *World) CurrentTick() uint64 { return w.tick.Load() }
func (w *World) Bus() *events.Bus    { return w.bus }

// Config is the effective configuration, defaults applied. Replaying a tick
// log needs a world built from the same value.
func (w *World) Config() WorldConfig {
	c := w.cfg
	c.Actions = w.Actions()
	return c
}

// Actions is the installed action type table, as sent in WELCOME.
func (w *World) Actions() []action.TypeConfig {
	return append([]action.TypeConfig(nil), w.cfg.Actions...)
}

func (w *World) worldParams() protocol.WorldParams {
	return protocol.WorldParams{
		TickRateHz: w.cfg.TickRateHz,
		Width:      w.cfg.Width,
		Height:     w.cfg.Height,
	}
}
