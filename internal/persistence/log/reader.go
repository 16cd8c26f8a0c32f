package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"actionforge.ai/internal/sim/world"
)

// ReadJSONL decodes every line of the <prefix>-*.jsonl.zst files in dir, in
// file name (hour) order, calling fn for each line.
func ReadJSONL(dir, prefix string, fn func(line []byte) error) error {
	paths, err := filepath.Glob(filepath.Join(dir, segmentGlob(prefix)))
	if err != nil {
		return err
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := readFile(p, fn); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

func readFile(path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ReadTicks streams the tick log written by TickLogger under worldDir.
func ReadTicks(worldDir string, fn func(world.TickLogEntry) error) error {
	return ReadJSONL(filepath.Join(worldDir, "ticks"), "ticks", func(line []byte) error {
		var e world.TickLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		return fn(e)
	})
}
