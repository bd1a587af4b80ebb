package ember

import "math"

// newMathLibrary builds the `math` table (spec.md §4.14): the
// constant fields pi/huge/maxinteger/mininteger plus the usual
// wrappers around Go's math package.
func newMathLibrary(g *globalState) *Table {
	lib := newTable(g, 0, 20)
	reg := func(name string, fn NativeFunc) {
		lib.rawSet(g, StringValue(g.NewString(name)), ClosureValue(newNativeClosure(g, "math."+name, fn)))
	}
	set := func(name string, v Value) {
		lib.rawSet(g, StringValue(g.NewString(name)), v)
	}

	set("pi", FloatValue(math.Pi))
	set("huge", FloatValue(math.Inf(1)))
	set("maxinteger", IntValue(math.MaxInt64))
	set("mininteger", IntValue(math.MinInt64))

	unary := func(name string, f func(float64) float64) {
		reg(name, func(th *Thread, args []Value) ([]Value, error) {
			return []Value{FloatValue(f(args[0].AsFloat()))}, nil
		})
	}
	unary("sqrt", math.Sqrt)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
	unary("asin", math.Asin)
	unary("acos", math.Acos)
	unary("atan", math.Atan)
	unary("exp", math.Exp)

	reg("log", func(th *Thread, args []Value) ([]Value, error) {
		x := args[0].AsFloat()
		if len(args) > 1 {
			base := args[1].AsFloat()
			return []Value{FloatValue(math.Log(x) / math.Log(base))}, nil
		}
		return []Value{FloatValue(math.Log(x))}, nil
	})

	reg("floor", func(th *Thread, args []Value) ([]Value, error) {
		v := args[0]
		if v.IsInt() {
			return []Value{v}, nil
		}
		return []Value{IntValue(int64(math.Floor(v.AsFloat())))}, nil
	})

	reg("ceil", func(th *Thread, args []Value) ([]Value, error) {
		v := args[0]
		if v.IsInt() {
			return []Value{v}, nil
		}
		return []Value{IntValue(int64(math.Ceil(v.AsFloat())))}, nil
	})

	reg("abs", func(th *Thread, args []Value) ([]Value, error) {
		v := args[0]
		if v.IsInt() {
			if v.AsInt() < 0 {
				return []Value{IntValue(-v.AsInt())}, nil
			}
			return []Value{v}, nil
		}
		return []Value{FloatValue(math.Abs(v.AsFloat()))}, nil
	})

	reg("max", func(th *Thread, args []Value) ([]Value, error) {
		best := args[0]
		for _, v := range args[1:] {
			if numLess(best, v) {
				best = v
			}
		}
		return []Value{best}, nil
	})

	reg("min", func(th *Thread, args []Value) ([]Value, error) {
		best := args[0]
		for _, v := range args[1:] {
			if numLess(v, best) {
				best = v
			}
		}
		return []Value{best}, nil
	})

	reg("fmod", func(th *Thread, args []Value) ([]Value, error) {
		return []Value{FloatValue(math.Mod(args[0].AsFloat(), args[1].AsFloat()))}, nil
	})

	reg("modf", func(th *Thread, args []Value) ([]Value, error) {
		ip, fp := math.Modf(args[0].AsFloat())
		return []Value{FloatValue(ip), FloatValue(fp)}, nil
	})

	reg("tointeger", func(th *Thread, args []Value) ([]Value, error) {
		v := args[0]
		if v.IsInt() {
			return []Value{v}, nil
		}
		if v.IsFloat() {
			if i, ok := FloatIsInteger(v.AsFloat()); ok {
				return []Value{IntValue(i)}, nil
			}
		}
		return []Value{NilValue}, nil
	})

	reg("type", func(th *Thread, args []Value) ([]Value, error) {
		switch args[0].Kind {
		case KInt:
			return []Value{StringValue(g.NewString("integer"))}, nil
		case KFloat:
			return []Value{StringValue(g.NewString("float"))}, nil
		}
		return []Value{NilValue}, nil
	})

	var rngState uint64 = 0x2545F4914F6CDD1D
	reg("random", func(th *Thread, args []Value) ([]Value, error) {
		rngState ^= rngState << 13
		rngState ^= rngState >> 7
		rngState ^= rngState << 17
		f := float64(rngState%(1<<53)) / float64(uint64(1)<<53)
		switch len(args) {
		case 0:
			return []Value{FloatValue(f)}, nil
		case 1:
			m := args[0].AsInt()
			return []Value{IntValue(1 + int64(f*float64(m)))}, nil
		default:
			lo, hi := args[0].AsInt(), args[1].AsInt()
			return []Value{IntValue(lo + int64(f*float64(hi-lo+1)))}, nil
		}
	})

	reg("randomseed", func(th *Thread, args []Value) ([]Value, error) {
		if len(args) > 0 {
			rngState = uint64(args[0].AsInt()) | 1
		}
		return nil, nil
	})

	return lib
}
