package log

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"actionforge.ai/internal/sim/world"
)

const metaFile = "run.json"

// RunMeta describes one server run. A run directory holds the meta file, the
// tick log and the event journal.
type RunMeta struct {
	RunID     string            `json:"run_id"`
	StartedAt time.Time         `json:"started_at"`
	Config    world.WorldConfig `json:"config"`

	// Scripts is the directory the scripted kinds were loaded from.
	Scripts string `json:"scripts,omitempty"`
}

func WriteRunMeta(runDir string, m RunMeta) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(runDir, metaFile+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(runDir, metaFile))
}

func ReadRunMeta(runDir string) (RunMeta, error) {
	var m RunMeta
	b, err := os.ReadFile(filepath.Join(runDir, metaFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("decode %s: %w", metaFile, err)
	}
	return m, nil
}
