package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"actionforge.ai/internal/protocol"
	"actionforge.ai/internal/sim/action"
	"actionforge.ai/internal/sim/world"
)

type Server struct {
	world  *world.World
	tokens *TokenIssuer
	log    *log.Logger

	upgrader websocket.Upgrader
}

// NewServer serves the world over websocket. tokens may be nil, in which
// case WELCOME carries no resume token and HELLO tokens are ignored.
func NewServer(w *world.World, tokens *TokenIssuer, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		world:  w,
		tokens: tokens,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, out := s.handshake(conn)
		if id == "" {
			return
		}
		acks := make(chan protocol.AckMsg, cap(out))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case ack := <-acks:
					var err error
					if b, err = json.Marshal(ack); err != nil {
						continue
					}
				case msg, ok := <-out:
					if !ok {
						return
					}
					b = msg
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeRequest {
				continue
			}
			var req protocol.RequestMsg
			if err := json.Unmarshal(msg, &req); err != nil {
				continue
			}
			if code, text := checkRequest(req); code != "" {
				pushAck(acks, protocol.NewAck(req.RequestID, s.world.CurrentTick(), code, text))
				continue
			}
			select {
			case s.world.Inbox() <- world.RequestEnvelope{Messenger: id, Msg: req, Resp: acks}:
			default:
				pushAck(acks, protocol.NewAck(req.RequestID, s.world.CurrentTick(), protocol.ErrQueueFull, "world inbox full"))
			}
		}

		// Cleanup.
		s.world.Leave() <- world.LeaveRequest{Messenger: id, Out: out}
	}
}

func checkRequest(req protocol.RequestMsg) (code, text string) {
	switch {
	case req.ProtocolVersion != protocol.Version:
		return protocol.ErrProtoBadRequest, "bad protocol_version"
	case strings.TrimSpace(req.RequestID) == "":
		return protocol.ErrProtoBadRequest, "missing request_id"
	case req.Action.Type == "":
		return protocol.ErrBadRequest, "missing action type"
	}
	return "", ""
}

func pushAck(ch chan protocol.AckMsg, ack protocol.AckMsg) {
	select {
	case ch <- ack:
	default:
	}
}

func (s *Server) handshake(conn *websocket.Conn) (action.MessengerID, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", nil
	}
	if hello.Name == "" {
		hello.Name = "agent"
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 16
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out := make(chan []byte, maxQ)

	// Optional: resume an existing messenger (reconnect).
	var resume action.MessengerID
	if tok := strings.TrimSpace(hello.ResumeToken); tok != "" && s.tokens != nil {
		if id, err := s.tokens.Verify(tok, s.world.ID()); err == nil {
			resume = id
		} else {
			s.log.Printf("handshake: %v", err)
		}
	}

	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{Name: hello.Name, Resume: resume, Out: out, Resp: respCh}
	resp := <-respCh

	welcome := resp.Welcome
	welcome.SessionID = uuid.NewString()
	if s.tokens != nil {
		tok, err := s.tokens.Issue(s.world.ID(), welcome.SessionID, resp.MessengerID)
		if err != nil {
			s.log.Printf("handshake: %v", err)
		}
		welcome.ResumeToken = tok
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.world.Leave() <- world.LeaveRequest{Messenger: resp.MessengerID, Out: out}
		return "", nil
	}
	s.log.Printf("session %s: %s joined (resumed=%v)", welcome.SessionID, resp.MessengerID, resp.Resumed)
	return resp.MessengerID, out
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
