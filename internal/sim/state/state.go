// Package state is the game context every action runs against.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"actionforge.ai/internal/sim/action"
)

// MaxChatLines bounds the chat history kept in state.
const MaxChatLines = 64

type Vec2 struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (v Vec2) Manhattan(o Vec2) int {
	return abs(v.X-o.X) + abs(v.Y-o.Y)
}

// StepsToward returns the cells one step closer to t: the X step first, then
// the Y step. It is empty when v == t.
func (v Vec2) StepsToward(t Vec2) []Vec2 {
	var out []Vec2
	if dx := sign(t.X - v.X); dx != 0 {
		out = append(out, Vec2{X: v.X + dx, Y: v.Y})
	}
	if dy := sign(t.Y - v.Y); dy != 0 {
		out = append(out, Vec2{X: v.X, Y: v.Y + dy})
	}
	return out
}

func sign(x int) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

type Agent struct {
	ID   action.MessengerID `json:"id"`
	Name string             `json:"name"`
	Pos  Vec2               `json:"pos"`
	HP   int                `json:"hp"`
	NPC  bool               `json:"npc,omitempty"`
	// Dest is set while a MOVE is running.
	Dest *Vec2 `json:"dest,omitempty"`
}

func (a *Agent) Alive() bool { return a != nil && a.HP > 0 }

type ChatLine struct {
	Tick uint64             `json:"tick"`
	From action.MessengerID `json:"from"`
	Text string             `json:"text"`
}

// State is owned by one goroutine. Queues mutate it only through action
// hooks.
type State struct {
	Tick     uint64                        `json:"tick"`
	Width    int                           `json:"width"`
	Height   int                           `json:"height"`
	StartHP  int                           `json:"start_hp"`
	Agents   map[action.MessengerID]*Agent `json:"agents"`
	Chat     []ChatLine                    `json:"chat,omitempty"`
	Counters map[string]int64              `json:"counters,omitempty"`
}

func New(width, height, startHP int) *State {
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}
	if startHP <= 0 {
		startHP = 1
	}
	return &State{
		Width:    width,
		Height:   height,
		StartHP:  startHP,
		Agents:   map[action.MessengerID]*Agent{},
		Counters: map[string]int64{},
	}
}

func (s *State) InBounds(p Vec2) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < s.Width && p.Y < s.Height
}

func (s *State) Agent(id action.MessengerID) (*Agent, bool) {
	a, ok := s.Agents[id]
	return a, ok
}

// AgentAt returns the living agent standing on p, or nil.
func (s *State) AgentAt(p Vec2) *Agent {
	for _, a := range s.Agents {
		if a.Alive() && a.Pos == p {
			return a
		}
	}
	return nil
}

// Join places a new agent on the first free cell in row-major order. Joining
// an id that is already present returns the existing agent.
func (s *State) Join(id action.MessengerID, name string, npc bool) *Agent {
	if a, ok := s.Agents[id]; ok {
		return a
	}
	a := &Agent{ID: id, Name: name, HP: s.StartHP, NPC: npc, Pos: s.freeCell()}
	s.Agents[id] = a
	return a
}

func (s *State) freeCell() Vec2 {
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			p := Vec2{X: x, Y: y}
			if s.AgentAt(p) == nil {
				return p
			}
		}
	}
	return Vec2{}
}

func (s *State) Leave(id action.MessengerID) bool {
	if _, ok := s.Agents[id]; !ok {
		return false
	}
	delete(s.Agents, id)
	return true
}

func (s *State) AddChat(from action.MessengerID, text string) {
	s.Chat = append(s.Chat, ChatLine{Tick: s.Tick, From: from, Text: text})
	if over := len(s.Chat) - MaxChatLines; over > 0 {
		s.Chat = append([]ChatLine(nil), s.Chat[over:]...)
	}
}

func (s *State) AddCounter(name string, delta int64) int64 {
	if s.Counters == nil {
		s.Counters = map[string]int64{}
	}
	s.Counters[name] += delta
	return s.Counters[name]
}

// AgentIDs lists agent ids in sorted order.
func (s *State) AgentIDs() []action.MessengerID {
	ids := make([]action.MessengerID, 0, len(s.Agents))
	for id := range s.Agents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *State) Clone() *State {
	c := &State{
		Tick:     s.Tick,
		Width:    s.Width,
		Height:   s.Height,
		StartHP:  s.StartHP,
		Agents:   make(map[action.MessengerID]*Agent, len(s.Agents)),
		Chat:     append([]ChatLine(nil), s.Chat...),
		Counters: make(map[string]int64, len(s.Counters)),
	}
	for id, a := range s.Agents {
		cp := *a
		if a.Dest != nil {
			d := *a.Dest
			cp.Dest = &d
		}
		c.Agents[id] = &cp
	}
	for k, v := range s.Counters {
		c.Counters[k] = v
	}
	return c
}

// Replace overwrites s with a copy of o.
func (s *State) Replace(o *State) {
	*s = *o.Clone()
}

// Digest is the sha256 of the canonical JSON encoding. encoding/json sorts
// map keys, so equal states hash equal.
func (s *State) Digest() string {
	b, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
