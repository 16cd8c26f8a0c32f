package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"actionforge.ai/internal/persistence/indexdb"
	persistlog "actionforge.ai/internal/persistence/log"
	"actionforge.ai/internal/sim/action"
	"actionforge.ai/internal/sim/script"
	"actionforge.ai/internal/sim/world"
)

var errStop = errors.New("stop")

func main() {
	var (
		runDir    = flag.String("run", "", "run directory (contains run.json, ticks/, events/)")
		scripts   = flag.String("scripts", "", "scripts directory (default: the one recorded in run.json)")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		summary   = flag.Bool("events", false, "summarize the event journal")
		messenger = flag.String("messenger", "", "list recent requests of this messenger from the index (optional)")
	)
	flag.Parse()

	if *runDir == "" {
		fmt.Fprintln(os.Stderr, "missing -run")
		os.Exit(2)
	}

	meta, err := persistlog.ReadRunMeta(*runDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read run meta:", err)
		os.Exit(1)
	}
	fmt.Printf("run %s world=%s seed=%d size=%dx%d npcs=%d actions=%d\n",
		meta.RunID, meta.Config.ID, meta.Config.Seed, meta.Config.Width, meta.Config.Height, meta.Config.NPCs, len(meta.Config.Actions))

	sd := meta.Scripts
	if *scripts != "" {
		sd = *scripts
	}
	handlers, err := script.LoadDir(sd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load scripts:", err)
		os.Exit(1)
	}
	w, err := world.New(meta.Config, world.WithScripts(script.Handlers(handlers)))
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}

	var checked, lastTick uint64
	var lastDigest string
	err = persistlog.ReadTicks(*runDir, func(entry world.TickLogEntry) error {
		if *toTick != 0 && entry.Tick > *toTick {
			return errStop
		}
		tick, digest := w.StepOnce(entry.Inputs)
		if tick != entry.Tick {
			return fmt.Errorf("tick mismatch: got %d want %d", tick, entry.Tick)
		}
		if digest != entry.Digest {
			return fmt.Errorf("digest mismatch at tick %d: got %s want %s", tick, digest, entry.Digest)
		}
		checked++
		lastTick, lastDigest = tick, digest
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks last_tick=%d\n", checked, lastTick)

	if idx := openIndex(*runDir); idx != nil {
		defer idx.Close()
		crossCheck(idx, lastTick, lastDigest, action.MessengerID(*messenger))
	}

	if *summary {
		if err := summarizeEvents(*runDir); err != nil {
			fmt.Fprintln(os.Stderr, "events:", err)
			os.Exit(1)
		}
	}
}

func openIndex(runDir string) *indexdb.SQLiteIndex {
	path := filepath.Join(runDir, "index.sqlite")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open index:", err)
		return nil
	}
	return idx
}

// crossCheck compares the index with the replayed log. The index drops
// writes under load, so a missing row is reported but not fatal.
func crossCheck(idx *indexdb.SQLiteIndex, tick uint64, digest string, m action.MessengerID) {
	ctx := context.Background()
	if digest != "" {
		got, ok, err := idx.TickDigest(ctx, tick)
		switch {
		case err != nil:
			fmt.Fprintln(os.Stderr, "index:", err)
		case !ok:
			fmt.Printf("index: tick %d not indexed\n", tick)
		case got != digest:
			fmt.Printf("index: digest differs at tick %d: %s\n", tick, got)
		default:
			fmt.Printf("index: tick %d digest matches\n", tick)
		}
	}
	if counts, err := idx.CountOutcomes(ctx); err == nil {
		fmt.Printf("index: outcomes %v\n", counts)
	}
	if m == "" {
		return
	}
	rows, err := idx.RequestsBy(ctx, m, 20)
	if err != nil {
		fmt.Fprintln(os.Stderr, "index:", err)
		return
	}
	for _, r := range rows {
		fmt.Printf("  tick=%d request=%s type=%s\n", r.Tick, r.RequestID, r.Type)
	}
}

func summarizeEvents(runDir string) error {
	counts := map[string]int{}
	skipped := 0
	err := persistlog.ReadJSONL(filepath.Join(runDir, "events"), "events", func(line []byte) error {
		var rec world.EventRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		counts[rec.Event]++
		if rec.Skipped {
			skipped++
		}
		return nil
	})
	if err != nil {
		return err
	}
	names := make([]string, 0, len(counts))
	for k := range counts {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Printf("%-20s %d\n", k, counts[k])
	}
	fmt.Printf("%-20s %d\n", "skipped", skipped)
	return nil
}
