package ember

// newTableLibrary builds the `table` table: insert, remove, concat,
// unpack, pack (spec.md §4.14), operating through the raw table primitives
// directly since they never need metamethod dispatch.
func newTableLibrary(g *globalState) *Table {
	lib := newTable(g, 0, 4)
	reg := func(name string, fn NativeFunc) {
		lib.rawSet(g, StringValue(g.NewString(name)), ClosureValue(newNativeClosure(g, "table."+name, fn)))
	}

	reg("insert", func(th *Thread, args []Value) ([]Value, error) {
		t := args[0].AsTable()
		n := t.Len()
		if len(args) == 2 {
			t.rawSet(g, IntValue(n+1), args[1])
			g.gc.writeTable(t, args[1])
			return nil, nil
		}
		pos := args[1].AsInt()
		v := args[2]
		for i := n; i >= pos; i-- {
			moved := t.rawGet(IntValue(i))
			t.rawSet(g, IntValue(i+1), moved)
			g.gc.writeTable(t, moved)
		}
		t.rawSet(g, IntValue(pos), v)
		g.gc.writeTable(t, v)
		return nil, nil
	})

	reg("remove", func(th *Thread, args []Value) ([]Value, error) {
		t := args[0].AsTable()
		n := t.Len()
		if n == 0 {
			return []Value{NilValue}, nil
		}
		pos := n
		if len(args) > 1 {
			pos = args[1].AsInt()
		}
		removed := t.rawGet(IntValue(pos))
		for i := pos; i < n; i++ {
			moved := t.rawGet(IntValue(i + 1))
			t.rawSet(g, IntValue(i), moved)
			g.gc.writeTable(t, moved)
		}
		t.rawSet(g, IntValue(n), NilValue)
		return []Value{removed}, nil
	})

	reg("concat", func(th *Thread, args []Value) ([]Value, error) {
		t := args[0].AsTable()
		sep := ""
		if len(args) > 1 && args[1].IsString() {
			sep = args[1].AsString().content()
		}
		i := int64(1)
		if len(args) > 2 {
			i = args[2].AsInt()
		}
		j := t.Len()
		if len(args) > 3 {
			j = args[3].AsInt()
		}
		var sb []byte
		for k := i; k <= j; k++ {
			v := t.rawGet(IntValue(k))
			if !v.IsString() && !v.IsNumber() {
				return nil, newRuntimeError(th, "invalid value (at index %d) in table for 'concat'", k)
			}
			sb = append(sb, v.ToStringValue()...)
			if k < j {
				sb = append(sb, sep...)
			}
		}
		return []Value{StringValue(g.NewString(string(sb)))}, nil
	})

	reg("unpack", func(th *Thread, args []Value) ([]Value, error) {
		t := args[0].AsTable()
		i := int64(1)
		if len(args) > 1 {
			i = args[1].AsInt()
		}
		j := t.Len()
		if len(args) > 2 {
			j = args[2].AsInt()
		}
		var out []Value
		for k := i; k <= j; k++ {
			out = append(out, t.rawGet(IntValue(k)))
		}
		return out, nil
	})

	reg("pack", func(th *Thread, args []Value) ([]Value, error) {
		t := newTable(g, len(args), 1)
		for i, v := range args {
			t.rawSet(g, IntValue(int64(i+1)), v)
			g.gc.writeTable(t, v)
		}
		t.rawSet(g, StringValue(g.NewString("n")), IntValue(int64(len(args))))
		return []Value{TableValue(t)}, nil
	})

	return lib
}
