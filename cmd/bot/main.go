package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"actionforge.ai/internal/client"
	"actionforge.ai/internal/protocol"
	"actionforge.ai/internal/sim/actions"
)

var lines = []string{"hello", "anyone here?", "nice day", "on my way"}

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "agent name")
		resume   = flag.String("resume_token", "", "resume token from a previous WELCOME")
		actEvery = flag.Int("act_every", 5, "ticks between intents")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, welcome, err := client.Dial(ctx, *url, protocol.HelloMsg{Name: *name, ResumeToken: *resume, MaxQueue: 32})
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer conn.Close()
	logger.Printf("WELCOME messenger=%s session=%s tick_rate=%d size=%dx%d",
		welcome.MessengerID, welcome.SessionID, welcome.World.TickRateHz, welcome.World.Width, welcome.World.Height)
	if welcome.ResumeToken != "" {
		logger.Printf("resume with -resume_token=%s", welcome.ResumeToken)
	}

	sess, err := client.NewSession(welcome, conn.SendRequest, client.Options{Logger: logger})
	if err != nil {
		logger.Fatalf("session: %v", err)
	}

	canHeal := false
	for _, tc := range welcome.Actions {
		if tc.ID == "HEAL" {
			canHeal = true
		}
	}

	rng := rand.New(rand.NewSource(*seed))
	n := 0
	onTick := func(s *client.Session) {
		n++
		if *actEvery <= 0 || n%*actEvery != 0 || s.InFlight() > 0 {
			return
		}
		act(s, rng, welcome.World, canHeal, logger)
		if n%(*actEvery*20) == 0 {
			logger.Printf("stats %+v", s.Stats())
		}
	}
	if err := conn.Run(ctx, sess, welcome.World.TickRateHz, onTick); err != nil && ctx.Err() == nil {
		logger.Fatalf("%v", err)
	}
	logger.Printf("bye %+v", sess.Stats())
}

func act(s *client.Session, rng *rand.Rand, wp protocol.WorldParams, canHeal bool, logger *log.Logger) {
	switch r := rng.Intn(10); {
	case r < 5:
		s.Intend(actions.KindMove, rng.Intn(wp.Width), rng.Intn(wp.Height))
	case r < 7:
		s.Intend(actions.KindSay, lines[rng.Intn(len(lines))])
	case r < 9 || !canHeal:
		s.Intend(actions.KindWait, 1+rng.Intn(3))
	default:
		if err := s.Forward("HEAL", map[string]any{"amount": 1 + rng.Intn(5)}); err != nil {
			logger.Printf("heal: %v", err)
		}
	}
}
