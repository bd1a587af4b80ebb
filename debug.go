package ember

import "fmt"

// DebugInfo mirrors the fields the reference implementation's
// lua_Debug struct exposes to hooks and to getinfo (spec.md §4.15
// "Debug introspection"): enough to build a traceback or inspect a
// frame without reaching into CallInfo/Proto internals directly.
type DebugInfo struct {
	Source        string
	ShortSource   string
	CurrentLine   int
	LineDefined   int
	LastLineDef   int
	What          string // "Ember", "C", "main"
	Name          string
	NumParams     int
	IsVararg      bool
	NumUpvalues   int
}

// GetInfo fills a DebugInfo for the frame `level` stack frames up from
// the running one (0 = currently running frame), the embedding
// equivalent of lua_getstack + lua_getinfo combined.
func GetInfo(th *Thread, level int) (*DebugInfo, bool) {
	ci := th.ci
	for i := 0; i < level && ci != nil; i++ {
		ci = ci.previous
	}
	if ci == nil {
		return nil, false
	}
	info := &DebugInfo{}
	if ci.isEmber() && ci.proto != nil {
		p := ci.proto
		info.Source = p.Source
		info.ShortSource = shortSource(p.Source)
		info.CurrentLine = ci.currentLine()
		info.LineDefined = p.LineDefined
		info.LastLineDef = p.LastLineDefined
		info.NumParams = p.NumParams
		info.IsVararg = p.IsVararg
		info.NumUpvalues = len(p.Upvalues)
		if ci.previous == nil {
			info.What = "main"
		} else {
			info.What = "Ember"
		}
	} else {
		info.What = "C"
		info.CurrentLine = -1
		if ci.closure != nil {
			info.Name = ci.closure.NativeName
		}
	}
	return info, true
}

func shortSource(source string) string {
	const max = 60
	if len(source) <= max {
		return source
	}
	return source[:max-3] + "..."
}

// GetLocal returns the name and current value of the n-th active
// local in the frame `level` up (1-based, spec.md §4.15's
// lua_getlocal), using the Proto's debug-local records to resolve
// names and liveness ranges.
func GetLocal(th *Thread, level, n int) (string, Value, bool) {
	ci := th.ci
	for i := 0; i < level && ci != nil; i++ {
		ci = ci.previous
	}
	if ci == nil || !ci.isEmber() || ci.proto == nil {
		return "", NilValue, false
	}
	p := ci.proto
	found := 0
	for _, lv := range p.Locals {
		if ci.savedpc < lv.startpc || ci.savedpc > lv.endpc {
			continue
		}
		found++
		if found == n {
			reg := localRegisterOf(p, lv)
			return lv.name, th.stack[ci.base+reg], true
		}
	}
	return "", NilValue, false
}

// localRegisterOf recovers a localVar's register by its position among
// the locals live at the point it was declared: the Proto doesn't
// store the register directly, only the (name, startpc, endpc) debug
// triple, so the register is its rank among overlapping-range locals
// declared at or before it. This mirrors how the reference
// implementation derives it from a parallel `LocVars` table indexed
// implicitly by declaration order.
func localRegisterOf(p *Proto, target localVar) int {
	reg := 0
	for _, lv := range p.Locals {
		if lv.startpc <= target.startpc && lv.endpc >= target.startpc {
			if lv == target {
				break
			}
			reg++
		}
	}
	return reg
}

// GetUpvalueName returns the name of a closure's n-th upvalue (1-based,
// spec.md §4.15's lua_getupvalue name half; the value itself is
// cl.Upvalues[n-1].get()).
func GetUpvalueName(cl *Closure, n int) (string, bool) {
	if cl.Proto == nil || n < 1 || n > len(cl.Proto.Upvalues) {
		return "", false
	}
	return cl.Proto.Upvalues[n-1].name, true
}

// Traceback renders every frame from the running one outward, each
// line formatted the way the reference implementation's
// luaL_traceback does: "source:line: in what 'name'".
func Traceback(th *Thread, message string) string {
	out := message
	if out != "" {
		out += "\n"
	}
	out += "stack traceback:"
	level := 0
	for {
		info, ok := GetInfo(th, level)
		if !ok {
			break
		}
		switch info.What {
		case "main":
			out += fmt.Sprintf("\n\t%s:%d: in main chunk", info.ShortSource, info.CurrentLine)
		case "Ember":
			name := info.Name
			if name == "" {
				name = "?"
			}
			out += fmt.Sprintf("\n\t%s:%d: in function '%s'", info.ShortSource, info.CurrentLine, name)
		case "C":
			out += fmt.Sprintf("\n\t[C]: in function '%s'", info.Name)
		}
		level++
	}
	return out
}

// hookEvent enumerates the points at which a debug hook may fire
// (spec.md §4.15 "Hooks").
type hookEvent int

const (
	HookCall hookEvent = iota
	HookReturn
	HookLine
	HookCount
)

// Hook is a host-installed callback invoked from the dispatch loop at
// the events selected by mask; count is the instruction-count interval
// for HookCount.
type Hook func(th *Thread, event hookEvent, line int)

type hookState struct {
	fn      Hook
	mask    uint8
	count   int
	counter int
}

const (
	maskCall  uint8 = 1 << iota
	maskReturn
	maskLine
	maskCount
)

// SetHook installs or clears (fn == nil) th's debug hook.
func (s *State) SetHook(fn Hook, mask uint8, count int) {
	if fn == nil {
		s.th.hook = nil
		return
	}
	s.th.hook = &hookState{fn: fn, mask: mask, count: count}
}

// fireLineHook is called by the dispatch loop before executing each
// instruction whose line differs from the previous one, when a line
// hook is installed.
func fireLineHook(th *Thread, line int) {
	if th.hook == nil || th.hook.mask&maskLine == 0 {
		return
	}
	th.hook.fn(th, HookLine, line)
}

// fireCallHook is called by runClosure right after a new script frame
// is pushed (spec.md §4.12/§4.15 "call" event).
func fireCallHook(th *Thread, line int) {
	if th.hook == nil || th.hook.mask&maskCall == 0 {
		return
	}
	th.hook.fn(th, HookCall, line)
}

// fireReturnHook is called by dispatch at every point a script frame
// completes normally (fallthrough, RETURN, TAILCALL).
func fireReturnHook(th *Thread) {
	if th.hook == nil || th.hook.mask&maskReturn == 0 {
		return
	}
	th.hook.fn(th, HookReturn, -1)
}

// fireCountHook is called once per executed instruction; it fires the
// installed hook every th.hook.count instructions (spec.md §4.15
// "count" event), mirroring the reference implementation's
// l_signalT-decrementing counter.
func fireCountHook(th *Thread, line int) {
	h := th.hook
	if h == nil || h.mask&maskCount == 0 || h.count <= 0 {
		return
	}
	h.counter++
	if h.counter >= h.count {
		h.counter = 0
		h.fn(th, HookCount, line)
	}
}
