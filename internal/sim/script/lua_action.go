// Package script defines action kinds in Lua.
//
// A script declares global functions:
//
//	validate(actor, args) -> bool   required
//	start(actor, args)              required
//	update(actor, args)             optional
//	finished(actor, args) -> bool   optional, default true
//	finish(actor, args)             optional
//
// args is the request payload decoded into a table. Scripts read and change
// state only through counter_get(name), counter_add(name, delta) and
// agent_hp(id). validate and finished are read-only: counter_add raises an
// error there, which rejects the request.
package script

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Shopify/go-lua"

	"actionforge.ai/internal/sim/action"
	"actionforge.ai/internal/sim/state"
)

// LuaAction is an action.Handler backed by one Lua interpreter. It must be
// used from a single goroutine.
type LuaAction struct {
	name string
	l    *lua.State

	// current is the state the running hook may touch.
	current *state.State
	// readOnly is set while validate or finished runs; counter_add fails.
	readOnly bool
}

var _ action.Handler[*state.State] = (*LuaAction)(nil)

// Load compiles src and checks the required functions exist.
func Load(name, src string) (*LuaAction, error) {
	a := &LuaAction{name: name, l: lua.NewState()}
	lua.OpenLibraries(a.l)
	a.registerHelpers()
	if err := lua.DoString(a.l, src); err != nil {
		return nil, fmt.Errorf("script %s: %w", name, err)
	}
	for _, fn := range []string{"validate", "start"} {
		if !a.hasFunction(fn) {
			return nil, fmt.Errorf("script %s: missing function %s", name, fn)
		}
	}
	return a, nil
}

// LoadDir loads every *.lua file in dir. The kind id is the upper-cased file
// name without extension.
func LoadDir(dir string) (map[action.TypeID]*LuaAction, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	out := make(map[action.TypeID]*LuaAction, len(paths))
	for _, p := range paths {
		src, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		id := action.TypeID(strings.ToUpper(strings.TrimSuffix(filepath.Base(p), ".lua")))
		a, err := Load(string(id), string(src))
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}

func (a *LuaAction) Name() string { return a.name }

// Template accepts a single map of arguments, or positional values exposed to
// the script as args[1..n].
func (a *LuaAction) Template(args ...any) json.RawMessage {
	if len(args) == 1 {
		if m, ok := args[0].(map[string]any); ok {
			return action.Encode(m)
		}
	}
	return action.Encode(map[string]any{"args": args})
}

type scriptData struct {
	args map[string]any
}

func (a *LuaAction) Validate(s *state.State, data json.RawMessage, m action.MessengerID) (any, bool) {
	var args map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, false
		}
	}
	d := &scriptData{args: args}
	ok, err := a.callBool(s, "validate", m, d, false)
	if err != nil || !ok {
		return nil, false
	}
	return d, true
}

func (a *LuaAction) OnStart(s *state.State, data any, m action.MessengerID) {
	_ = a.call(s, "start", m, data.(*scriptData))
}

func (a *LuaAction) OnUpdate(s *state.State, data any, m action.MessengerID) {
	_ = a.call(s, "update", m, data.(*scriptData))
}

// IsFinished treats a failing script as finished so it cannot stall a queue.
func (a *LuaAction) IsFinished(s *state.State, data any, m action.MessengerID) bool {
	ok, err := a.callBool(s, "finished", m, data.(*scriptData), true)
	return err != nil || ok
}

func (a *LuaAction) OnEnd(s *state.State, data any, m action.MessengerID) {
	_ = a.call(s, "finish", m, data.(*scriptData))
}

func (a *LuaAction) hasFunction(name string) bool {
	a.l.Global(name)
	ok := a.l.IsFunction(-1)
	a.l.Pop(1)
	return ok
}

// call runs an optional hook; a missing function is a no-op.
func (a *LuaAction) call(s *state.State, fn string, m action.MessengerID, d *scriptData) error {
	_, err := a.invoke(s, fn, m, d, 0)
	return err
}

func (a *LuaAction) callBool(s *state.State, fn string, m action.MessengerID, d *scriptData, missing bool) (bool, error) {
	if !a.hasFunction(fn) {
		return missing, nil
	}
	a.readOnly = true
	defer func() { a.readOnly = false }()
	return a.invoke(s, fn, m, d, 1)
}

func (a *LuaAction) invoke(s *state.State, fn string, m action.MessengerID, d *scriptData, results int) (bool, error) {
	if !a.hasFunction(fn) {
		return false, nil
	}
	a.current = s
	defer func() { a.current = nil }()

	top := a.l.Top()
	defer a.l.SetTop(top)

	a.l.Global(fn)
	a.l.PushString(string(m))
	pushValue(a.l, d.args)
	if err := a.l.ProtectedCall(2, results, 0); err != nil {
		return false, fmt.Errorf("script %s: %s: %w", a.name, fn, err)
	}
	if results == 0 {
		return true, nil
	}
	return a.l.ToBoolean(-1), nil
}

func (a *LuaAction) registerHelpers() {
	a.l.Register("counter_get", func(l *lua.State) int {
		name := lua.CheckString(l, 1)
		var v int64
		if a.current != nil {
			v = a.current.Counters[name]
		}
		l.PushInteger(int(v))
		return 1
	})
	a.l.Register("counter_add", func(l *lua.State) int {
		name := lua.CheckString(l, 1)
		delta := lua.CheckInteger(l, 2)
		if a.readOnly {
			lua.Errorf(l, "counter_add(%s) called from a read-only hook", name)
			return 0
		}
		var v int64
		if a.current != nil {
			v = a.current.AddCounter(name, int64(delta))
		}
		l.PushInteger(int(v))
		return 1
	})
	a.l.Register("agent_hp", func(l *lua.State) int {
		id := lua.CheckString(l, 1)
		hp := 0
		if a.current != nil {
			if ag, ok := a.current.Agent(action.MessengerID(id)); ok {
				hp = ag.HP
			}
		}
		l.PushInteger(hp)
		return 1
	})
}

// pushValue pushes a JSON-decoded value onto the Lua stack.
func pushValue(l *lua.State, v any) {
	switch x := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(x)
	case string:
		l.PushString(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			l.PushInteger(int(x))
		} else {
			l.PushNumber(x)
		}
	case []any:
		l.CreateTable(len(x), 0)
		for i, e := range x {
			pushValue(l, e)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		l.CreateTable(0, len(x))
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pushValue(l, x[k])
			l.SetField(-2, k)
		}
	default:
		l.PushString(fmt.Sprint(x))
	}
}

// Handlers widens a LoadDir result for world.WithScripts.
func Handlers(m map[action.TypeID]*LuaAction) map[action.TypeID]action.Handler[*state.State] {
	out := make(map[action.TypeID]action.Handler[*state.State], len(m))
	for id, a := range m {
		out[id] = a
	}
	return out
}
