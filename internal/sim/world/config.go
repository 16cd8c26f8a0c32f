package world

import "actionforge.ai/internal/sim/action"

type WorldConfig struct {
	ID         string `json:"id"`
	TickRateHz int    `json:"tick_rate_hz"`
	Seed       int64  `json:"seed"`

	Width   int `json:"width"`
	Height  int `json:"height"`
	StartHP int `json:"start_hp"`

	// Server-side wanderers. Each gets its own ActionQueue.
	NPCs              int `json:"npcs"`
	WanderEveryTicks  int `json:"wander_every_ticks"`
	// NPCMaxActionTicks skips an NPC action that has been running this long.
	NPCMaxActionTicks int `json:"npc_max_action_ticks"`

	StateEveryTicks int `json:"state_every_ticks"`

	ImmediateSize     int `json:"immediate_size"`
	ExecutionSize     int `json:"execution_size"`
	MaxInstantActions int `json:"max_instant_actions"`
	MaxRequests       int `json:"max_requests"`

	// Actions is the action type table. Nil uses the built-in defaults.
	Actions []action.TypeConfig `json:"actions,omitempty"`
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	if c.Width <= 0 {
		c.Width = 32
	}
	if c.Height <= 0 {
		c.Height = 32
	}
	if c.StartHP <= 0 {
		c.StartHP = 20
	}
	if c.NPCs < 0 {
		c.NPCs = 0
	}
	if c.WanderEveryTicks <= 0 {
		c.WanderEveryTicks = 10
	}
	if c.NPCMaxActionTicks <= 0 {
		c.NPCMaxActionTicks = 4 * (c.Width + c.Height)
	}
	if c.StateEveryTicks <= 0 {
		c.StateEveryTicks = 1
	}
}
