package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"actionforge.ai/internal/persistence/indexdb"
	persistlog "actionforge.ai/internal/persistence/log"
	"actionforge.ai/internal/platform/config"
	"actionforge.ai/internal/sim/script"
	"actionforge.ai/internal/sim/tuning"
	"actionforge.ai/internal/sim/world"
	"actionforge.ai/internal/transport/ws"
)

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	var env config.ServerEnv
	if err := config.ParseEnv(&env); err != nil {
		logger.Fatalf("%v", err)
	}

	var (
		addr        = flag.String("addr", env.Addr, "http listen address")
		worldID     = flag.String("world", env.WorldID, "world id")
		seed        = flag.Int64("seed", env.Seed, "world seed")
		configDir   = flag.String("configs", env.ConfigDir, "config directory")
		dataDir     = flag.String("data", env.DataDir, "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		actionsPath = flag.String("actions", "", "path to actions.yaml (default: <configs>/actions.yaml)")
		scriptsDir  = flag.String("scripts", "", "directory of scripted kinds (default: <configs>/scripts)")
		disableDB   = flag.Bool("disable_db", env.DisableIndex, "disable the sqlite read index")
		tokenTTL    = flag.Duration("token_ttl", 24*time.Hour, "resume token lifetime")
	)
	flag.Parse()

	tp := orDefault(*tuningPath, filepath.Join(*configDir, "tuning.yaml"))
	ap := orDefault(*actionsPath, filepath.Join(*configDir, "actions.yaml"))
	sd := orDefault(*scriptsDir, filepath.Join(*configDir, "scripts"))

	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	table, err := tuning.LoadActionTypes(ap)
	if err != nil {
		logger.Fatalf("load action types: %v", err)
	}
	scripts, err := script.LoadDir(sd)
	if err != nil {
		logger.Fatalf("load scripts: %v", err)
	}

	w, err := world.New(world.WorldConfig{
		ID:                *worldID,
		TickRateHz:        tune.TickRateHz,
		Seed:              *seed,
		Width:             tune.Width,
		Height:            tune.Height,
		StartHP:           tune.StartHP,
		NPCs:              tune.NPCs,
		WanderEveryTicks:  tune.WanderEveryTicks,
		StateEveryTicks:   tune.StateEveryTicks,
		ImmediateSize:     tune.Queues.ImmediateSize,
		ExecutionSize:     tune.Queues.ExecutionSize,
		MaxInstantActions: tune.Queues.MaxInstantActions,
		MaxRequests:       tune.Queues.MaxRequests,
		Actions:           table,
	}, world.WithLogger(logger), world.WithScripts(script.Handlers(scripts)))
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	// Every run logs into its own directory; replay rebuilds the world from
	// run.json and feeds it the tick log.
	runID := time.Now().UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
	runDir := filepath.Join(*dataDir, "worlds", *worldID, "runs", runID)
	if err := persistlog.WriteRunMeta(runDir, persistlog.RunMeta{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Config:    w.Config(),
		Scripts:   sd,
	}); err != nil {
		logger.Fatalf("write run meta: %v", err)
	}
	logger.Printf("run %s: %s", runID, runDir)

	tickLog := persistlog.NewTickLogger(runDir)
	journal := persistlog.NewJournal(runDir)
	defer tickLog.Close()
	defer journal.Close()

	// Optional read index (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(runDir, "index.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertConfigs(w.Actions(), tune); err != nil {
			logger.Printf("index: upsert configs: %v", err)
		}
	}
	if idx != nil {
		w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
		w.SetEventLogger(multiEventLogger{a: journal, b: idx})
	} else {
		w.SetTickLogger(tickLog)
		w.SetEventLogger(journal)
	}

	secret := strings.TrimSpace(env.SessionSecret)
	if secret == "" {
		secret = uuid.NewString()
		logger.Printf("ACTIONFORGE_SESSION_SECRET not set; resume tokens will not survive a restart")
	}
	tokens, err := ws.NewTokenIssuer([]byte(secret), *tokenTTL)
	if err != nil {
		logger.Fatalf("token issuer: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx2, cancel2 := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel2()
		s, err := w.RequestState(ctx2)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		resp := struct {
			WorldID string        `json:"world_id"`
			RunID   string        `json:"run_id"`
			Tick    uint64        `json:"tick"`
			Digest  string        `json:"digest"`
			Index   indexdb.Stats `json:"index"`
			State   any           `json:"state"`
		}{
			WorldID: w.ID(),
			RunID:   runID,
			Tick:    s.Tick,
			Digest:  s.Digest(),
			State:   s,
		}
		if idx != nil {
			resp.Index = idx.Stats()
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/v1/ws", ws.NewServer(w, tokens, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiEventLogger struct {
	a world.EventLogger
	b world.EventLogger
}

func (m multiEventLogger) WriteEvent(rec world.EventRecord) error {
	if m.a != nil {
		_ = m.a.WriteEvent(rec)
	}
	if m.b != nil {
		_ = m.b.WriteEvent(rec)
	}
	return nil
}
