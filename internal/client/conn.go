package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"actionforge.ai/internal/protocol"
)

// Conn is a websocket connection to the server. Writes are serialized.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Dial connects to url, sends HELLO and waits for WELCOME.
func Dial(ctx context.Context, url string, hello protocol.HelloMsg) (*Conn, protocol.WelcomeMsg, error) {
	var welcome protocol.WelcomeMsg
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, welcome, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Conn{ws: ws}

	hello.Type = protocol.TypeHello
	hello.ProtocolVersion = protocol.Version
	if err := c.WriteJSON(hello); err != nil {
		_ = ws.Close()
		return nil, welcome, fmt.Errorf("send HELLO: %w", err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, b, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return nil, welcome, fmt.Errorf("read WELCOME: %w", err)
	}
	_ = ws.SetReadDeadline(time.Time{})
	if err := json.Unmarshal(b, &welcome); err != nil || welcome.Type != protocol.TypeWelcome {
		_ = ws.Close()
		return nil, welcome, fmt.Errorf("expected WELCOME, got %q", string(b))
	}
	return c, welcome, nil
}

func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteJSON(v)
}

// SendRequest is a Sender.
func (c *Conn) SendRequest(msg protocol.RequestMsg) error { return c.WriteJSON(msg) }

func (c *Conn) Close() error { return c.ws.Close() }

// Run pumps server messages into s and ticks it at tickRateHz until ctx is
// done or the connection fails. onTick, if set, runs after every tick.
func (c *Conn) Run(ctx context.Context, s *Session, tickRateHz int, onTick func(*Session)) error {
	if tickRateHz <= 0 {
		tickRateHz = 5
	}
	in := make(chan []byte, 64)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, b, err := c.ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case in <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second / time.Duration(tickRateHz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return fmt.Errorf("read: %w", err)
		case b := <-in:
			if err := s.HandleMessage(b); err != nil {
				s.log.Printf("%v", err)
			}
		case <-ticker.C:
			s.Tick()
			if onTick != nil {
				onTick(s)
			}
		}
	}
}
