package ember

import "fmt"

// State is the host-facing embedding handle (spec.md §4.14 "Host
// embedding API"): a thin, stack-index-based wrapper around a Thread,
// mirroring the reference implementation's lua_State C API but
// expressed as Go methods instead of extern "C" functions. Every
// operation here is relative to th's operand stack, exactly like the
// opcodes the VM itself executes.
type State struct {
	th *Thread
}

// NewState boots a fresh runtime: a globalState, its main thread, and
// the registry entries that wire them together.
func NewState(cfg *Config) *State {
	if cfg == nil {
		cfg = NewConfig()
	}
	g := newGlobalState(cfg, defaultHashSeed())
	main := newThread(g)
	main.status = ThreadRunning
	g.mainTh = main
	g.registry.rawSet(g, IntValue(registryMainThread), ThreadValue(main))
	globals := newTable(g, 0, 32)
	g.registry.rawSet(g, IntValue(registryGlobals), TableValue(globals))
	return &State{th: main}
}

func defaultHashSeed() uint64 { return 0x9e3779b97f4a7c15 }

func (s *State) Thread() *Thread       { return s.th }
func (s *State) Global() *globalState  { return s.th.global }

// abs turns a possibly-negative (from-the-top) index into an absolute
// stack slot, the same convention the reference C API uses.
func (s *State) abs(idx int) int {
	if idx < 0 {
		return s.th.top + idx
	}
	return idx
}

func (s *State) Top() int { return s.th.top }

func (s *State) SetTop(idx int) {
	n := s.abs(idx)
	if n > s.th.top {
		if err := s.th.growStack(n - s.th.top + 1); err != nil {
			panic(err)
		}
		for i := s.th.top; i < n; i++ {
			s.th.stack[i] = NilValue
		}
	}
	s.th.top = n
}

func (s *State) push(v Value) {
	if err := s.th.growStack(1); err != nil {
		panic(err)
	}
	s.th.stack[s.th.top] = v
	s.th.top++
}

func (s *State) PushNil()             { s.push(NilValue) }
func (s *State) PushBool(b bool)      { s.push(BoolValue(b)) }
func (s *State) PushInt(i int64)      { s.push(IntValue(i)) }
func (s *State) PushFloat(f float64)  { s.push(FloatValue(f)) }
func (s *State) PushString(str string) { s.push(StringValue(s.th.global.NewString(str))) }
func (s *State) PushValue(idx int)    { s.push(s.th.stack[s.abs(idx)]) }

func (s *State) PushGoFunc(name string, fn NativeFunc) {
	s.push(ClosureValue(newNativeClosure(s.th.global, name, fn)))
}

// Pop discards n values off the top of the stack.
func (s *State) Pop(n int) { s.th.top -= n }

func (s *State) at(idx int) Value { return s.th.stack[s.abs(idx)] }

func (s *State) IsNil(idx int) bool     { return s.at(idx).IsNil() }
func (s *State) IsTable(idx int) bool   { return s.at(idx).IsTable() }
func (s *State) IsFunction(idx int) bool { return s.at(idx).IsClosure() }
func (s *State) IsNumber(idx int) bool  { return s.at(idx).IsNumber() }
func (s *State) IsString(idx int) bool  { return s.at(idx).IsString() }

func (s *State) ToBool(idx int) bool    { return s.at(idx).IsTruthy() }
func (s *State) ToInt(idx int) int64    { return s.at(idx).AsInt() }
func (s *State) ToFloat(idx int) float64 { return s.at(idx).AsFloat() }
func (s *State) ToString(idx int) string { return s.at(idx).ToStringValue() }
func (s *State) Type(idx int) string     { return s.at(idx).TypeName() }

// Get/SetGlobal implement the table accesses the reference API
// exposes as lua_getglobal/lua_setglobal, routed through the main
// thread's own _ENV table rather than a registry shortcut so
// metatables on _G are honored (spec.md §4.4).
func (s *State) GetGlobal(name string) error {
	g := s.th.globals()
	v, err := index(s.th, TableValue(g), StringValue(s.th.global.NewString(name)))
	if err != nil {
		return err
	}
	s.push(v)
	return nil
}

func (s *State) SetGlobal(name string) error {
	v := s.at(-1)
	s.Pop(1)
	g := s.th.globals()
	return newindex(s.th, TableValue(g), StringValue(s.th.global.NewString(name)), v)
}

// NewTable pushes a fresh empty table.
func (s *State) NewTable() { s.push(TableValue(newTable(s.th.global, 0, 0))) }

// GetTable implements t[k] where t is at idx and k is the value on
// top of the stack (popped); the result replaces it.
func (s *State) GetTable(idx int) error {
	t := s.at(idx)
	k := s.at(-1)
	s.Pop(1)
	v, err := index(s.th, t, k)
	if err != nil {
		return err
	}
	s.push(v)
	return nil
}

// SetTable implements t[k] = v where t is at idx and k, v are the top
// two stack values (both popped).
func (s *State) SetTable(idx int) error {
	t := s.at(idx)
	v := s.at(-1)
	k := s.at(-2)
	s.Pop(2)
	return newindex(s.th, t, k, v)
}

// Call invokes the function at stack slot -(nargs+1) with the nargs
// values above it, replacing them all with up to nresults results
// (spec.md §4.14; nresults=-1 keeps every result, matching
// LUA_MULTRET).
func (s *State) Call(nargs, nresults int) error {
	fnIdx := s.th.top - nargs - 1
	fn := s.th.stack[fnIdx]
	args := make([]Value, nargs)
	copy(args, s.th.stack[fnIdx+1:s.th.top])
	s.th.top = fnIdx
	res, err := call(s.th, fn, args, nresults)
	if err != nil {
		return err
	}
	for _, v := range res {
		s.push(v)
	}
	return nil
}

// PCall is Call's protected form: errors are caught and reported
// instead of propagating to the host as a Go panic/error return that
// unwinds past this call (spec.md §4.8).
func (s *State) PCall(nargs, nresults int) error {
	fnIdx := s.th.top - nargs - 1
	fn := s.th.stack[fnIdx]
	args := make([]Value, nargs)
	copy(args, s.th.stack[fnIdx+1:s.th.top])
	s.th.top = fnIdx
	res, errv, kind := protect(s.th, func() ([]Value, error) {
		return call(s.th, fn, args, nresults)
	})
	if kind != KindNone {
		s.push(errv)
		return &RuntimeError{Message: errv.ToStringValue(), Value: errv}
	}
	for _, v := range res {
		s.push(v)
	}
	if err := s.th.global.finalizerErr; err != nil {
		s.th.global.finalizerErr = nil
		return err
	}
	return nil
}

// Load compiles source (or a binary chunk) into a closure pushed onto
// the stack, the embedding equivalent of luaL_loadstring /
// luaL_loadfile (spec.md §4.11's chunk loader dispatches on the first
// byte already).
func (s *State) Load(data []byte, chunkName string) error {
	p, err := Load(s.th.global, data, chunkName)
	if err != nil {
		return err
	}
	cl := newScriptClosure(s.th.global, p)
	if len(p.Upvalues) > 0 {
		// a freshly loaded chunk's _ENV upvalue has no parent frame to
		// link to a stack slot, so it closes directly over the globals table
		cl.Upvalues[0] = &upvalue{closed: true, value: TableValue(s.th.globals())}
	}
	s.push(ClosureValue(cl))
	return nil
}

// DumpTop serializes the script closure on top of the stack to the
// binary chunk format of spec.md §4.11, the embedding counterpart of
// the reference implementation's lua_dump.
func (s *State) DumpTop() ([]byte, error) {
	v := s.at(-1)
	if !v.IsClosure() || v.AsClosure().Proto == nil {
		return nil, newRuntimeError(s.th, "attempt to dump a non-script function")
	}
	return Dump(v.AsClosure().Proto), nil
}

// DoString compiles and immediately runs source in protected mode, the
// common one-shot embedding entry point.
func (s *State) DoString(source string, chunkName string) error {
	if err := s.Load([]byte(source), chunkName); err != nil {
		return err
	}
	return s.PCall(0, -1)
}

// RegisterLibrary installs a table of native functions under name in
// globals, the idiom the standard library (lib.go) uses to expose
// "string", "table", "math", etc.
func (s *State) RegisterLibrary(name string, lib *Table) {
	s.th.globals().rawSet(s.th.global, StringValue(s.th.global.NewString(name)), TableValue(lib))
}

// CollectGarbage exposes the GC controls spec.md §4.7 names:
// "collect" forces a full cycle, "stop"/"restart" toggle incremental
// running, "count" reports current heap size in Kbytes.
func (s *State) CollectGarbage(opt string) int {
	gc := s.th.global.gc
	switch opt {
	case "collect":
		gc.fullCollect(false)
	case "stop":
		gc.running = false
	case "restart":
		gc.running = true
	case "count":
		return int(gc.totalBytes / 1024)
	}
	if err := s.th.global.finalizerErr; err != nil && opt == "collect" {
		s.th.global.finalizerErr = nil
		s.push(StringValue(s.th.global.NewString(err.Error())))
	}
	return 0
}

// Traceback builds a human-readable call stack, from the innermost
// frame outward, the embedding API's equivalent of luaL_traceback
// (spec.md §4.15).
func (s *State) Traceback() string {
	out := "stack traceback:"
	for ci := s.th.ci; ci != nil; ci = ci.previous {
		if ci.isEmber() && ci.proto != nil {
			out += fmt.Sprintf("\n\t%s:%d: in function", ci.proto.Source, ci.currentLine())
		} else {
			out += "\n\t[C]: in function"
		}
	}
	return out
}
