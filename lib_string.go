package ember

import (
	"strconv"
	"strings"
)

// newStringLibrary builds the `string` table: the subset of spec.md
// §4.14's string library that doesn't require a full pattern-matching
// engine (len, sub, upper, lower, rep, reverse, byte, char, format,
// and find restricted to plain substrings); there is no gsub.
func newStringLibrary(g *globalState) *Table {
	lib := newTable(g, 0, 12)
	reg := func(name string, fn NativeFunc) {
		lib.rawSet(g, StringValue(g.NewString(name)), ClosureValue(newNativeClosure(g, "string."+name, fn)))
	}

	reg("len", func(th *Thread, args []Value) ([]Value, error) {
		return []Value{IntValue(int64(args[0].AsString().length()))}, nil
	})

	reg("sub", func(th *Thread, args []Value) ([]Value, error) {
		s := args[0].AsString().content()
		i, j := strIndices(len(s), args)
		if i > j {
			return []Value{StringValue(g.NewString(""))}, nil
		}
		return []Value{StringValue(g.NewString(s[i-1 : j]))}, nil
	})

	reg("upper", func(th *Thread, args []Value) ([]Value, error) {
		return []Value{StringValue(g.NewString(strings.ToUpper(args[0].AsString().content())))}, nil
	})

	reg("lower", func(th *Thread, args []Value) ([]Value, error) {
		return []Value{StringValue(g.NewString(strings.ToLower(args[0].AsString().content())))}, nil
	})

	reg("rep", func(th *Thread, args []Value) ([]Value, error) {
		s := args[0].AsString().content()
		n := int(args[1].AsInt())
		sep := ""
		if len(args) > 2 {
			sep = args[2].AsString().content()
		}
		if n <= 0 {
			return []Value{StringValue(g.NewString(""))}, nil
		}
		parts := make([]string, n)
		for i := range parts {
			parts[i] = s
		}
		return []Value{StringValue(g.NewString(strings.Join(parts, sep)))}, nil
	})

	reg("reverse", func(th *Thread, args []Value) ([]Value, error) {
		b := []byte(args[0].AsString().content())
		for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
		return []Value{StringValue(g.NewString(string(b)))}, nil
	})

	reg("byte", func(th *Thread, args []Value) ([]Value, error) {
		s := args[0].AsString().content()
		i, j := strIndices(len(s), args)
		if i > j {
			return nil, nil
		}
		out := make([]Value, 0, j-i+1)
		for k := i; k <= j; k++ {
			out = append(out, IntValue(int64(s[k-1])))
		}
		return out, nil
	})

	reg("char", func(th *Thread, args []Value) ([]Value, error) {
		b := make([]byte, len(args))
		for i, a := range args {
			b[i] = byte(a.AsInt())
		}
		return []Value{StringValue(g.NewString(string(b)))}, nil
	})

	reg("format", func(th *Thread, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, newRuntimeError(th, "bad argument #1 to 'format' (string expected)")
		}
		out, err := stringFormat(th, args[0].AsString().content(), args[1:])
		if err != nil {
			return nil, err
		}
		return []Value{StringValue(g.NewString(out))}, nil
	})

	reg("find", func(th *Thread, args []Value) ([]Value, error) {
		s := args[0].AsString().content()
		pat := args[1].AsString().content()
		idx := strings.Index(s, pat)
		if idx < 0 {
			return []Value{NilValue}, nil
		}
		return []Value{IntValue(int64(idx + 1)), IntValue(int64(idx + len(pat)))}, nil
	})

	return lib
}

// strIndices resolves string.sub/byte's 1-based, possibly-negative
// (i, j) index pair against a string of length n (spec.md's "negative
// indices count from the end").
func strIndices(n int, args []Value) (int, int) {
	i, j := 1, n
	if len(args) > 1 {
		i = clampIndex(int(args[1].AsInt()), n)
	}
	if len(args) > 2 {
		j = clampIndex(int(args[2].AsInt()), n)
	} else if len(args) > 1 {
		j = n
	}
	if i < 1 {
		i = 1
	}
	if j > n {
		j = n
	}
	return i, j
}

func clampIndex(i, n int) int {
	if i < 0 {
		i = n + i + 1
	}
	return i
}

// stringFormat implements the directives string.format's callers
// actually exercise: %s, %d, %f/%g, %x, %q, %%.
func stringFormat(th *Thread, format string, args []Value) (string, error) {
	var sb strings.Builder
	argi := 0
	next := func() (Value, error) {
		if argi >= len(args) {
			return NilValue, newRuntimeError(th, "bad argument #%d to 'format' (no value)", argi+2)
		}
		v := args[argi]
		argi++
		return v, nil
	}
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		i++
		if i >= len(format) {
			break
		}
		spec := string(format[i])
		switch format[i] {
		case '%':
			sb.WriteByte('%')
		case 's':
			v, err := next()
			if err != nil {
				return "", err
			}
			sb.WriteString(v.ToStringValue())
		case 'd', 'i':
			v, err := next()
			if err != nil {
				return "", err
			}
			sb.WriteString(strconv.FormatInt(v.AsInt(), 10))
		case 'x':
			v, err := next()
			if err != nil {
				return "", err
			}
			sb.WriteString(strconv.FormatInt(v.AsInt(), 16))
		case 'f', 'g':
			v, err := next()
			if err != nil {
				return "", err
			}
			sb.WriteString(strconv.FormatFloat(v.AsFloat(), format[i], -1, 64))
		case 'q':
			v, err := next()
			if err != nil {
				return "", err
			}
			sb.WriteString(strconv.Quote(v.ToStringValue()))
		default:
			sb.WriteByte('%')
			sb.WriteString(spec)
		}
	}
	return sb.String(), nil
}
