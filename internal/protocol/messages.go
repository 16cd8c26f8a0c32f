package protocol

import (
	"actionforge.ai/internal/sim/action"
	"actionforge.ai/internal/sim/state"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Name            string `json:"name"`
	// ResumeToken reattaches a reconnecting client to its messenger id.
	ResumeToken string `json:"resume_token,omitempty"`
	MaxQueue    int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string              `json:"type"`
	ProtocolVersion string              `json:"protocol_version"`
	SessionID       string              `json:"session_id"`
	MessengerID     string              `json:"messenger_id"`
	ResumeToken     string              `json:"resume_token"`
	World           WorldParams         `json:"world"`
	Actions         []action.TypeConfig `json:"actions"`
}

type WorldParams struct {
	TickRateHz int `json:"tick_rate_hz"`
	Width      int `json:"width"`
	Height     int `json:"height"`
}

// REQUEST (client -> server): one action request.
type RequestMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	RequestID       string         `json:"request_id"`
	Tick            uint64         `json:"tick,omitempty"`
	Action          action.Request `json:"action"`
}

// ACK (server -> client): outcome of a REQUEST.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// STATE (server -> client): authoritative snapshot.
type StateMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Digest          string       `json:"digest"`
	State           *state.State `json:"state"`
}

// EVENT (server -> client): a queue event attributed to the recipient.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Event           string `json:"event"`
	MessengerID     string `json:"messenger_id,omitempty"`
	Action          string `json:"action,omitempty"`
}

func NewAck(ackFor string, tick uint64, code, msg string) AckMsg {
	return AckMsg{
		Type:            TypeAck,
		ProtocolVersion: Version,
		AckFor:          ackFor,
		Accepted:        code == "",
		Code:            code,
		Message:         msg,
		ServerTick:      tick,
	}
}
