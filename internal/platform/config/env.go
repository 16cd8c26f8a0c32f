package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ServerEnv holds the server settings that may come from the environment.
// Flags set explicitly on the command line win.
type ServerEnv struct {
	Addr          string `env:"ACTIONFORGE_ADDR"           envDefault:":8080"`
	DataDir       string `env:"ACTIONFORGE_DATA_DIR"       envDefault:"./data"`
	ConfigDir     string `env:"ACTIONFORGE_CONFIG_DIR"     envDefault:"./configs"`
	SessionSecret string `env:"ACTIONFORGE_SESSION_SECRET"`
	WorldID       string `env:"ACTIONFORGE_WORLD_ID"       envDefault:"world_1"`
	Seed          int64  `env:"ACTIONFORGE_SEED"           envDefault:"1"`
	DisableIndex  bool   `env:"ACTIONFORGE_DISABLE_INDEX"`
}
