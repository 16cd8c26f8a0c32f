package action

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
)

type Message struct {
	// Send marks kinds that must be announced to the remote authority when a
	// queue defers execution.
	Send bool `json:"send" yaml:"send"`
}

// TypeConfig is the per-kind metadata installed with Registry.Load.
type TypeConfig struct {
	ID       TypeID   `json:"id" yaml:"id"`
	Priority Priority `json:"priority" yaml:"priority"`
	Instant  bool     `json:"instant" yaml:"instant"`
	Message  Message  `json:"message" yaml:"message"`
}

// Registry binds action kinds to handlers and metadata. Each queue owns one.
type Registry[C any] struct {
	handlers map[TypeID]Handler[C]
	configs  map[TypeID]TypeConfig
	log      *log.Logger
}

func NewRegistry[C any](logger *log.Logger) *Registry[C] {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Registry[C]{
		handlers: map[TypeID]Handler[C]{},
		configs:  map[TypeID]TypeConfig{},
		log:      logger,
	}
}

// Register binds h to id. Empty ids, nil handlers and duplicates are logged
// and ignored.
func (r *Registry[C]) Register(id TypeID, h Handler[C]) bool {
	if id == "" || h == nil {
		r.log.Printf("register action: empty id or nil handler (id=%q)", id)
		return false
	}
	if _, ok := r.handlers[id]; ok {
		r.log.Printf("register action: duplicate handler for %s", id)
		return false
	}
	r.handlers[id] = h
	return true
}

// Load installs metadata for the listed kinds. A malformed table (empty or
// duplicate ids, unknown priority) is rejected as a whole.
func (r *Registry[C]) Load(table []TypeConfig) bool {
	if len(table) == 0 {
		r.log.Printf("load action types: empty table")
		return false
	}
	seen := make(map[TypeID]struct{}, len(table))
	for i, tc := range table {
		if tc.ID == "" {
			r.log.Printf("load action types: entry %d has no id", i)
			return false
		}
		if _, dup := seen[tc.ID]; dup {
			r.log.Printf("load action types: duplicate id %s", tc.ID)
			return false
		}
		if tc.Priority != PriorityLow && tc.Priority != PriorityHigh {
			r.log.Printf("load action types: %s has invalid priority %d", tc.ID, int(tc.Priority))
			return false
		}
		seen[tc.ID] = struct{}{}
	}
	for _, tc := range table {
		r.configs[tc.ID] = tc
	}
	return true
}

// Lookup returns the handler and metadata for id. Both must be present.
func (r *Registry[C]) Lookup(id TypeID) (Handler[C], TypeConfig, bool) {
	h, ok := r.handlers[id]
	if !ok {
		return nil, TypeConfig{}, false
	}
	tc, ok := r.configs[id]
	if !ok {
		return nil, TypeConfig{}, false
	}
	return h, tc, true
}

func (r *Registry[C]) Config(id TypeID) (TypeConfig, bool) {
	tc, ok := r.configs[id]
	return tc, ok
}

// Kinds lists the ids that have a handler, sorted.
func (r *Registry[C]) Kinds() []TypeID {
	out := make([]TypeID, 0, len(r.handlers))
	for id := range r.handlers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CreateRequest builds a request through the kind's Template. Unknown kinds
// are logged and yield ok=false.
func (r *Registry[C]) CreateRequest(id TypeID, args ...any) (Request, bool) {
	h, _, ok := r.Lookup(id)
	if !ok {
		r.log.Printf("create request: unknown action type %q", id)
		return Request{}, false
	}
	return Request{Type: id, Data: h.Template(args...)}, true
}

// Validate runs the kind's validator against c and wraps an accepted request
// in an execution item.
func (r *Registry[C]) Validate(c C, req Request, m MessengerID) (*Item[C], bool) {
	h, tc, ok := r.Lookup(req.Type)
	if !ok {
		r.log.Printf("validate request: unknown action type %q", req.Type)
		return nil, false
	}
	data, ok := h.Validate(c, req.Data, m)
	if !ok {
		return nil, false
	}
	return newItem(h, tc, req, data, m), true
}

// CheckComplete verifies that handlers and metadata cover exactly the
// supported kinds. Call it once at startup.
func (r *Registry[C]) CheckComplete(supported []TypeID) error {
	if err := checkKeys("handlers", r.handlers, supported); err != nil {
		return err
	}
	return checkKeys("action types", r.configs, supported)
}

func checkKeys[T any](name string, m map[TypeID]T, supported []TypeID) error {
	allowed := make(map[TypeID]struct{}, len(supported))
	for _, k := range supported {
		if k == "" {
			return fmt.Errorf("%s: empty supported key", name)
		}
		if _, ok := allowed[k]; ok {
			return fmt.Errorf("%s: duplicate supported key %q", name, k)
		}
		allowed[k] = struct{}{}
	}
	for k := range m {
		if _, ok := allowed[k]; !ok {
			return fmt.Errorf("%s has unsupported key %q", name, k)
		}
	}
	for k := range allowed {
		if _, ok := m[k]; !ok {
			return fmt.Errorf("%s missing key %q", name, k)
		}
	}
	return nil
}

// Item is a validated request ready to run. It is consumed exactly once.
type Item[C any] struct {
	Request   Request
	Data      any
	Priority  Priority
	Instant   bool
	Send      bool
	Messenger MessengerID

	handler Handler[C]
}

func newItem[C any](h Handler[C], tc TypeConfig, req Request, data any, m MessengerID) *Item[C] {
	return &Item[C]{
		Request:   req,
		Data:      data,
		Priority:  tc.Priority,
		Instant:   tc.Instant,
		Send:      tc.Message.Send,
		Messenger: m,
		handler:   h,
	}
}

func (it *Item[C]) Type() TypeID { return it.Request.Type }

// Validated reports whether the item came out of Registry.Validate. Items
// built any other way have no handler and must not run.
func (it *Item[C]) Validated() bool { return it != nil && it.handler != nil }

func (it *Item[C]) Start(c C)  { it.handler.OnStart(c, it.Data, it.Messenger) }
func (it *Item[C]) Update(c C) { it.handler.OnUpdate(c, it.Data, it.Messenger) }
func (it *Item[C]) End(c C)    { it.handler.OnEnd(c, it.Data, it.Messenger) }

func (it *Item[C]) Finished(c C) bool {
	return it.handler.IsFinished(c, it.Data, it.Messenger)
}

// Clear runs the handler's OnClear hook if it has one.
func (it *Item[C]) Clear(c C) {
	if cl, ok := it.handler.(Clearer[C]); ok {
		cl.OnClear(c, it.Data, it.Messenger)
	}
}

// MarshalJSON reports the wire view of the item; the handler is omitted.
func (it *Item[C]) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Request   Request     `json:"request"`
		Priority  Priority    `json:"priority"`
		Instant   bool        `json:"instant"`
		Messenger MessengerID `json:"messenger_id,omitempty"`
	}{it.Request, it.Priority, it.Instant, it.Messenger})
}
