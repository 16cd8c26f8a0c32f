// Package action defines the contract every executable game action implements
// and the typed registry queues resolve handlers through.
package action

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// TypeID names a registered action kind, e.g. "MOVE".
type TypeID string

// MessengerID identifies the caller that originated a request. Queues treat it
// as an opaque token.
type MessengerID string

type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "LOW":
		return PriorityLow, nil
	case "HIGH":
		return PriorityHigh, nil
	}
	return PriorityLow, fmt.Errorf("unknown priority %q", s)
}

// Request is an unvalidated call: the action kind plus the payload its
// handler's Template produced. It only lives until validation.
type Request struct {
	Type TypeID          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Handler is the behavior behind one action kind. C is the game context the
// queue was built for.
//
// Template and Validate are pure. Validate is the only way to reject a request:
// it returns ok=false, it never panics. The hooks run in order OnStart, then
// OnUpdate/IsFinished once per tick until finished, then OnEnd, which also runs
// when the action is skipped.
type Handler[C any] interface {
	Template(args ...any) json.RawMessage
	Validate(c C, data json.RawMessage, m MessengerID) (validated any, ok bool)
	OnStart(c C, data any, m MessengerID)
	OnUpdate(c C, data any, m MessengerID)
	IsFinished(c C, data any, m MessengerID) bool
	OnEnd(c C, data any, m MessengerID)
}

// Clearer is implemented by handlers that need to undo partial state when a
// running action is forcibly skipped. OnClear runs before OnEnd.
type Clearer[C any] interface {
	OnClear(c C, data any, m MessengerID)
}

// Noop supplies the duration hooks for actions whose whole effect happens in
// OnStart. Embed it and implement Template, Validate and OnStart.
type Noop[C any] struct{}

func (Noop[C]) OnUpdate(C, any, MessengerID)        {}
func (Noop[C]) IsFinished(C, any, MessengerID) bool { return true }
func (Noop[C]) OnEnd(C, any, MessengerID)           {}

// Encode marshals v into a canonical template payload. Struct fields keep
// declaration order and map keys are sorted, so equal inputs give equal bytes.
func Encode(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// Decode unmarshals a template payload into T, rejecting unknown fields.
func Decode[T any](data json.RawMessage) (T, bool) {
	var v T
	if len(data) == 0 {
		return v, false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, false
	}
	return v, true
}
