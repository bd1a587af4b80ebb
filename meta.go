package ember

import "math"

// metatableOf returns the metatable consulted for v: a table or
// userdata's own, or the per-Kind fallback registered on globalState
// (spec.md §3 "Global state" / §4.4).
func metatableOf(g *globalState, v Value) *Table {
	switch v.Kind {
	case KTable:
		if mt := v.AsTable().metatable; mt != nil {
			return mt
		}
	case KUserdata:
		if mt := v.AsUserdata().metatable; mt != nil {
			return mt
		}
	}
	return g.metatableFor(v.Kind)
}

func rawMeta(g *globalState, v Value, ev metaEvent) Value {
	mt := metatableOf(g, v)
	if mt == nil {
		return NilValue
	}
	return mt.rawGetStr(g.metaName(ev))
}

const maxIndexChainDefault = 2000

// index implements `t[k]` with the __index chain of spec.md §4.4,
// bounded by vm.maxindexchain to catch a metatable cycle.
func index(th *Thread, t Value, k Value) (Value, error) {
	g := th.global
	limit := g.config.GetInt("vm.maxindexchain")
	for i := 0; i < limit; i++ {
		if t.IsTable() {
			raw := t.AsTable().rawGet(k)
			if !raw.IsNil() {
				return raw, nil
			}
			h := rawMeta(g, t, metaIndex)
			if h.IsNil() {
				return NilValue, nil
			}
			if h.IsClosure() {
				res, err := call(th, h, []Value{t, k}, 1)
				if err != nil {
					return NilValue, err
				}
				return first(res), nil
			}
			t = h
			continue
		}
		h := rawMeta(g, t, metaIndex)
		if h.IsNil() {
			return NilValue, newRuntimeError(th, "attempt to index a %s value", t.TypeName())
		}
		if h.IsClosure() {
			res, err := call(th, h, []Value{t, k}, 1)
			if err != nil {
				return NilValue, err
			}
			return first(res), nil
		}
		t = h
	}
	return NilValue, newRuntimeError(th, "'__index' chain too long; possible loop")
}

// newindex implements `t[k] = v` with the __newindex chain, symmetric
// to index but a raw-nil hit with no hook forbids creating the entry
// only when a hook for a *different* step in the chain exists.
func newindex(th *Thread, t Value, k Value, v Value) error {
	g := th.global
	limit := g.config.GetInt("vm.maxindexchain")
	for i := 0; i < limit; i++ {
		if t.IsTable() {
			tab := t.AsTable()
			if !tab.rawGet(k).IsNil() {
				tab.rawSet(g, k, v)
				g.gc.writeTable(tab, v)
				return nil
			}
			h := rawMeta(g, t, metaNewIndex)
			if h.IsNil() {
				if k.IsNil() {
					return newRuntimeError(th, "table index is nil")
				}
				tab.rawSet(g, k, v)
				g.gc.writeTable(tab, v)
				return nil
			}
			if h.IsClosure() {
				_, err := call(th, h, []Value{t, k, v}, 0)
				return err
			}
			t = h
			continue
		}
		h := rawMeta(g, t, metaNewIndex)
		if h.IsNil() {
			return newRuntimeError(th, "attempt to index a %s value", t.TypeName())
		}
		if h.IsClosure() {
			_, err := call(th, h, []Value{t, k, v}, 0)
			return err
		}
		t = h
	}
	return newRuntimeError(th, "'__newindex' chain too long; possible loop")
}

func first(vs []Value) Value {
	if len(vs) == 0 {
		return NilValue
	}
	return vs[0]
}

// equals implements `==`: same-type/numeric fast path, then __eq on
// either operand for tables/userdata with distinct addresses (spec.md
// §4.6).
func equals(th *Thread, a, b Value) (bool, error) {
	if RawEqual(a, b) {
		return true, nil
	}
	if a.Kind != b.Kind || (a.Kind != KTable && a.Kind != KUserdata) {
		return false, nil
	}
	h := rawMeta(th.global, a, metaEq)
	if h.IsNil() {
		h = rawMeta(th.global, b, metaEq)
	}
	if h.IsNil() {
		return false, nil
	}
	res, err := call(th, h, []Value{a, b}, 1)
	if err != nil {
		return false, err
	}
	return first(res).IsTruthy(), nil
}

// less implements `<`; lessEqual implements `<=` falling back to
// `not (b<a)` per spec.md §4.6. The fallback negates the __lt result
// directly; no cistLeq flag is set on the frame.
func less(th *Thread, a, b Value) (bool, error) {
	if a.IsNumber() && b.IsNumber() {
		return numLess(a, b), nil
	}
	if a.IsString() && b.IsString() {
		return a.AsString().content() < b.AsString().content(), nil
	}
	h := rawMeta(th.global, a, metaLt)
	if h.IsNil() {
		h = rawMeta(th.global, b, metaLt)
	}
	if h.IsNil() {
		return false, newRuntimeError(th, "attempt to compare %s with %s", a.TypeName(), b.TypeName())
	}
	res, err := call(th, h, []Value{a, b}, 1)
	if err != nil {
		return false, err
	}
	return first(res).IsTruthy(), nil
}

func lessEqual(th *Thread, a, b Value) (bool, error) {
	if a.IsNumber() && b.IsNumber() {
		return !numLess(b, a), nil
	}
	if a.IsString() && b.IsString() {
		return a.AsString().content() <= b.AsString().content(), nil
	}
	h := rawMeta(th.global, a, metaLe)
	if h.IsNil() {
		h = rawMeta(th.global, b, metaLe)
	}
	if !h.IsNil() {
		res, err := call(th, h, []Value{a, b}, 1)
		if err != nil {
			return false, err
		}
		return first(res).IsTruthy(), nil
	}
	lt, err := less(th, b, a)
	if err != nil {
		return false, err
	}
	return !lt, nil
}

// maxIntFitsFloat is the largest magnitude an int64 can have and still
// be represented exactly by a float64's 53-bit mantissa.
const maxIntFitsFloat = int64(1) << 53

func intFitsFloat(i int64) bool { return i >= -maxIntFitsFloat && i <= maxIntFitsFloat }

// numLess implements spec.md §4.6's mixed int/float comparison: an
// integer exactly representable as a float compares directly as
// floats; otherwise the float is checked against the int64 range
// boundaries before being truncated, so large int64 magnitudes beyond
// 2^53 don't silently lose precision against a float operand.
func numLess(a, b Value) bool {
	if a.Kind == b.Kind {
		if a.Kind == KInt {
			return a.i < b.i
		}
		return a.f < b.f
	}
	if a.Kind == KInt {
		return ltIntFloat(a.i, b.f)
	}
	return ltFloatInt(a.f, b.i)
}

func ltIntFloat(i int64, f float64) bool {
	if intFitsFloat(i) {
		return float64(i) < f
	}
	if f >= -float64(math.MinInt64) {
		return true
	}
	if f > float64(math.MinInt64) {
		return i < int64(f)
	}
	return false
}

func ltFloatInt(f float64, i int64) bool {
	if intFitsFloat(i) {
		return f < float64(i)
	}
	if f >= -float64(math.MinInt64) {
		return false
	}
	if f > float64(math.MinInt64) {
		return int64(f) < i
	}
	return true
}

// setMetatable is the raw setmetatable(t, mt) primitive. It does not
// read __mode, so attaching a metatable never makes t weak for the
// GC. A metatable carrying __gc moves
// t into the GC's finobj list so it gets a finalizer call once it
// becomes unreachable (spec.md §4.7 "Finalization").
func setMetatable(g *globalState, t *Table, mt *Table) {
	t.metatable = mt
	if mt != nil && !mt.rawGetStr(g.metaName(metaGC)).IsNil() {
		g.gc.registerFinalizer(t)
	}
}

// runFinalizer invokes o's __gc metamethod, if any, with o itself as
// the sole argument (spec.md §4.7). Called from gc.go's
// runOneFinalizer once per object popped off tobefnz; errors are
// wrapped by the caller into a FinalizerError (ERRGCMM).
func runFinalizer(g *globalState, o object) error {
	var v Value
	switch obj := o.(type) {
	case *Table:
		v = TableValue(obj)
	case *Userdata:
		v = UserdataValue(obj)
	default:
		return nil
	}
	h := rawMeta(g, v, metaGC)
	if h.IsNil() || !h.IsClosure() {
		return nil
	}
	th := g.mainTh
	if th == nil {
		return nil
	}
	ci := th.currentCallInfo()
	if ci != nil {
		ci.status |= cistFin
		defer func() { ci.status &^= cistFin }()
	}
	_, err := call(th, h, []Value{v}, 0)
	return err
}
