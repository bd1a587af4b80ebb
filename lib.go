package ember

import (
	"fmt"
	"strings"
)

// OpenBase installs the unqualified global functions every script
// expects in scope: print, type, tostring, tonumber, pairs, ipairs,
// next, pcall, xpcall, error, assert, setmetatable, getmetatable,
// rawget/rawset/rawequal/rawlen, select (spec.md §4.14 "standard
// library surface"). Each is a NativeFunc closure over nothing but g,
// registered directly on globals rather than under a sub-table.
func (s *State) OpenBase() {
	g := s.th.global
	G := s.th.globals()
	reg := func(name string, fn NativeFunc) {
		G.rawSet(g, StringValue(g.NewString(name)), ClosureValue(newNativeClosure(g, name, fn)))
	}

	reg("print", func(th *Thread, args []Value) ([]Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			if h := rawMeta(g, a, metaToString); !h.IsNil() {
				res, err := call(th, h, []Value{a}, 1)
				if err != nil {
					return nil, err
				}
				parts[i] = first(res).ToStringValue()
				continue
			}
			parts[i] = a.ToStringValue()
		}
		fmt.Println(strings.Join(parts, "\t"))
		return nil, nil
	})

	reg("type", func(th *Thread, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, newRuntimeError(th, "bad argument #1 to 'type' (value expected)")
		}
		return []Value{StringValue(g.NewString(args[0].TypeName()))}, nil
	})

	reg("tostring", func(th *Thread, args []Value) ([]Value, error) {
		v := first(args)
		if h := rawMeta(g, v, metaToString); !h.IsNil() {
			res, err := call(th, h, []Value{v}, 1)
			if err != nil {
				return nil, err
			}
			return []Value{first(res)}, nil
		}
		return []Value{StringValue(g.NewString(v.ToStringValue()))}, nil
	})

	reg("tonumber", func(th *Thread, args []Value) ([]Value, error) {
		v := first(args)
		if n, ok := ToNumber(v); ok {
			return []Value{n}, nil
		}
		return []Value{NilValue}, nil
	})

	reg("pairs", func(th *Thread, args []Value) ([]Value, error) {
		if len(args) == 0 || !args[0].IsTable() {
			return nil, newRuntimeError(th, "bad argument #1 to 'pairs' (table expected)")
		}
		t := args[0]
		nextFn := G.rawGetStr(g.NewString("next"))
		return []Value{nextFn, t, NilValue}, nil
	})

	reg("next", func(th *Thread, args []Value) ([]Value, error) {
		if len(args) == 0 || !args[0].IsTable() {
			return nil, newRuntimeError(th, "bad argument #1 to 'next' (table expected)")
		}
		k := NilValue
		if len(args) > 1 {
			k = args[1]
		}
		nk, nv, more := args[0].AsTable().Next(k)
		if !more || nk.IsNil() {
			return []Value{NilValue}, nil
		}
		return []Value{nk, nv}, nil
	})

	reg("ipairs", func(th *Thread, args []Value) ([]Value, error) {
		if len(args) == 0 || !args[0].IsTable() {
			return nil, newRuntimeError(th, "bad argument #1 to 'ipairs' (table expected)")
		}
		iter := newNativeClosure(g, "ipairs.iterator", func(th *Thread, ia []Value) ([]Value, error) {
			t := ia[0].AsTable()
			i := ia[1].AsInt() + 1
			v := t.rawGetInt(int(i))
			if v.IsNil() {
				return []Value{NilValue}, nil
			}
			return []Value{IntValue(i), v}, nil
		})
		return []Value{ClosureValue(iter), args[0], IntValue(0)}, nil
	})

	reg("pcall", func(th *Thread, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, newRuntimeError(th, "bad argument #1 to 'pcall' (value expected)")
		}
		return pcallAPI(th, args[0], args[1:]), nil
	})

	reg("xpcall", func(th *Thread, args []Value) ([]Value, error) {
		if len(args) < 2 {
			return nil, newRuntimeError(th, "bad argument #2 to 'xpcall' (value expected)")
		}
		return xpcallAPI(th, args[0], args[1], args[2:]), nil
	})

	reg("error", func(th *Thread, args []Value) ([]Value, error) {
		v := first(args)
		level := int64(1)
		if len(args) > 1 {
			level = args[1].AsInt()
		}
		if v.IsString() && level > 0 {
			return nil, newRuntimeError(th, "%s", v.ToStringValue())
		}
		return nil, &RuntimeError{Message: v.ToStringValue(), Value: v}
	})

	reg("assert", func(th *Thread, args []Value) ([]Value, error) {
		if len(args) == 0 || args[0].IsFalsy() {
			msg := "assertion failed!"
			if len(args) > 1 {
				msg = args[1].ToStringValue()
			}
			return nil, newRuntimeError(th, "%s", msg)
		}
		return args, nil
	})

	reg("setmetatable", func(th *Thread, args []Value) ([]Value, error) {
		if len(args) == 0 || !args[0].IsTable() {
			return nil, newRuntimeError(th, "bad argument #1 to 'setmetatable' (table expected)")
		}
		var mt *Table
		if len(args) > 1 && args[1].IsTable() {
			mt = args[1].AsTable()
		}
		setMetatable(g, args[0].AsTable(), mt)
		return []Value{args[0]}, nil
	})

	reg("getmetatable", func(th *Thread, args []Value) ([]Value, error) {
		mt := metatableOf(g, first(args))
		if mt == nil {
			return []Value{NilValue}, nil
		}
		return []Value{TableValue(mt)}, nil
	})

	reg("rawget", func(th *Thread, args []Value) ([]Value, error) {
		return []Value{args[0].AsTable().rawGet(args[1])}, nil
	})

	reg("rawset", func(th *Thread, args []Value) ([]Value, error) {
		t := args[0].AsTable()
		t.rawSet(g, args[1], args[2])
		g.gc.writeTable(t, args[2])
		g.gc.writeTable(t, args[1])
		return []Value{args[0]}, nil
	})

	reg("rawequal", func(th *Thread, args []Value) ([]Value, error) {
		return []Value{BoolValue(RawEqual(args[0], args[1]))}, nil
	})

	reg("rawlen", func(th *Thread, args []Value) ([]Value, error) {
		if args[0].IsTable() {
			return []Value{IntValue(args[0].AsTable().Len())}, nil
		}
		return []Value{IntValue(int64(args[0].AsString().length()))}, nil
	})

	reg("select", func(th *Thread, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, newRuntimeError(th, "bad argument #1 to 'select'")
		}
		if args[0].IsString() && args[0].ToStringValue() == "#" {
			return []Value{IntValue(int64(len(args) - 1))}, nil
		}
		n := int(args[0].AsInt())
		if n < 0 {
			n = len(args) - 1 + n + 1
		}
		if n < 1 || n >= len(args) {
			return nil, nil
		}
		return args[n:], nil
	})

	G.rawSet(g, StringValue(g.NewString("_G")), TableValue(G))
	G.rawSet(g, StringValue(g.NewString("_VERSION")), StringValue(g.NewString("Ember 1.0")))
}

// OpenLibraries installs every standard sub-library (coroutine, plus
// whatever string/table/math support lib_string.go/lib_table.go/
// lib_math.go add) and the base globals, the one call an embedder
// makes to get a fully-populated runtime.
func (s *State) OpenLibraries() {
	s.OpenBase()
	s.RegisterLibrary("coroutine", newCoroutineLibrary(s.th.global))
	s.RegisterLibrary("string", newStringLibrary(s.th.global))
	s.RegisterLibrary("table", newTableLibrary(s.th.global))
	s.RegisterLibrary("math", newMathLibrary(s.th.global))
}
