package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz"`
	Width      int `yaml:"width"`
	Height     int `yaml:"height"`
	StartHP    int `yaml:"start_hp"`

	// Server-side wanderers driven by an ActionQueue.
	NPCs             int `yaml:"npcs"`
	WanderEveryTicks int `yaml:"wander_every_ticks"`

	StateEveryTicks int `yaml:"state_every_ticks"`

	Queues Queues `yaml:"queues"`
}

type Queues struct {
	ImmediateSize     int `yaml:"immediate_size"`
	ExecutionSize     int `yaml:"execution_size"`
	MaxInstantActions int `yaml:"max_instant_actions"`
	MaxRequests       int `yaml:"max_requests"`
}

func Defaults() Tuning {
	t := Tuning{}
	t.applyDefaults()
	return t
}

func (t *Tuning) applyDefaults() {
	if t.TickRateHz <= 0 {
		t.TickRateHz = 5
	}
	if t.Width <= 0 {
		t.Width = 32
	}
	if t.Height <= 0 {
		t.Height = 32
	}
	if t.StartHP <= 0 {
		t.StartHP = 20
	}
	if t.NPCs < 0 {
		t.NPCs = 0
	}
	if t.WanderEveryTicks <= 0 {
		t.WanderEveryTicks = 10
	}
	if t.StateEveryTicks <= 0 {
		t.StateEveryTicks = 1
	}
	if t.Queues.ImmediateSize <= 0 {
		t.Queues.ImmediateSize = 100
	}
	if t.Queues.ExecutionSize <= 0 {
		t.Queues.ExecutionSize = 100
	}
	if t.Queues.MaxInstantActions <= 0 {
		t.Queues.MaxInstantActions = 100
	}
	if t.Queues.MaxRequests <= 0 {
		t.Queues.MaxRequests = 100
	}
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	return t, nil
}
