package ember

import (
	"math"
	"strconv"
	"strings"
)

// arithOp enumerates the binary arithmetic/bitwise operators that
// share one numeric-fast-path-then-metamethod dispatch shape (spec.md
// §4.6).
type arithOp int

const (
	opAdd arithOp = iota
	opSub
	opMul
	opMod
	opPow
	opDiv
	opIDiv
	opBAnd
	opBOr
	opBXor
	opShl
	opShr
	opUnm
	opBNot
)

var arithMeta = map[arithOp]metaEvent{
	opAdd: metaAdd, opSub: metaSub, opMul: metaMul, opMod: metaMod,
	opPow: metaPow, opDiv: metaDiv, opIDiv: metaIDiv, opBAnd: metaBAnd,
	opBOr: metaBOr, opBXor: metaBXor, opShl: metaShl, opShr: metaShr,
	opUnm: metaUnm, opBNot: metaBNot,
}

var arithOpName = map[arithOp]string{
	opAdd: "add", opSub: "sub", opMul: "mul", opMod: "mod", opPow: "pow",
	opDiv: "div", opIDiv: "idiv", opBAnd: "band", opBOr: "bor", opBXor: "bxor",
	opShl: "shl", opShr: "shr", opUnm: "unm", opBNot: "bnot",
}

// floorDiv implements `a // b` with spec.md §4.6's overflow-safe
// INT_MIN // -1 = 0 special case.
func floorDiv(a, b int64) (int64, error) {
	if b == 0 {
		return 0, errDivZero
	}
	if b == -1 {
		if a == math.MinInt64 {
			return 0, nil // -MinInt64 would wrap back to MinInt64 in two's complement; spec mandates MinInt64 // -1 = 0
		}
		return -a, nil
	}
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q, nil
}

// floorMod implements `a % b = a - (a//b)*b` for integers, with the
// same b=-1 short circuit (result is always 0).
func floorMod(a, b int64) (int64, error) {
	if b == 0 {
		return 0, errDivZero
	}
	if b == -1 {
		return 0, nil
	}
	m := a % b
	if m != 0 && ((a < 0) != (b < 0)) {
		m += b
	}
	return m, nil
}

var errDivZero = &RuntimeError{Message: "attempt to perform 'n//0'"}

func floatFloorDiv(a, b float64) float64 { return math.Floor(a / b) }

func floatFloorMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

func toInt64Bitwise(v Value) (int64, bool) {
	switch v.Kind {
	case KInt:
		return v.i, true
	case KFloat:
		i, ok := FloatIsInteger(v.f)
		return i, ok
	case KString:
		if n, ok := ToNumber(v); ok {
			return toInt64Bitwise(n)
		}
	}
	return 0, false
}

// arith implements spec.md §4.6's binary numeric fast path and
// metamethod fallback for one opcode's worth of operands.
func arith(th *Thread, op arithOp, a, b Value) (Value, error) {
	an, aok := ToNumber(a)
	bn, bok := ToNumber(b)
	if aok && bok {
		switch op {
		case opAdd, opSub, opMul, opMod:
			if an.Kind == KInt && bn.Kind == KInt {
				return intArith(th, op, an.i, bn.i)
			}
			return FloatValue(floatArith(op, an.AsFloat(), bn.AsFloat())), nil
		case opPow:
			return FloatValue(math.Pow(an.AsFloat(), bn.AsFloat())), nil
		case opDiv:
			return FloatValue(an.AsFloat() / bn.AsFloat()), nil
		case opIDiv:
			if an.Kind == KInt && bn.Kind == KInt {
				if bn.i == 0 {
					return NilValue, newRuntimeError(th, "attempt to perform 'n//0'")
				}
				q, _ := floorDiv(an.i, bn.i)
				return IntValue(q), nil
			}
			return FloatValue(floatFloorDiv(an.AsFloat(), bn.AsFloat())), nil
		case opBAnd, opBOr, opBXor, opShl, opShr:
			ai, aok2 := toInt64Bitwise(an)
			bi, bok2 := toInt64Bitwise(bn)
			if !aok2 || !bok2 {
				return NilValue, newRuntimeError(th, "number has no integer representation")
			}
			return IntValue(bitwise(op, ai, bi)), nil
		}
	}
	ev := arithMeta[op]
	h := rawMeta(th.global, a, ev)
	if h.IsNil() {
		h = rawMeta(th.global, b, ev)
	}
	if h.IsNil() {
		bad := a
		if aok {
			bad = b
		}
		return NilValue, newRuntimeError(th, "attempt to perform arithmetic on a %s value", bad.TypeName())
	}
	res, err := call(th, h, []Value{a, b}, 1)
	if err != nil {
		return NilValue, err
	}
	return first(res), nil
}

func intArith(th *Thread, op arithOp, a, b int64) (Value, error) {
	switch op {
	case opAdd:
		return IntValue(a + b), nil // two's-complement wraparound is the defined behavior
	case opSub:
		return IntValue(a - b), nil
	case opMul:
		return IntValue(a * b), nil
	case opMod:
		m, err := floorMod(a, b)
		if err != nil {
			return NilValue, newRuntimeError(th, "attempt to perform 'n%%0'")
		}
		return IntValue(m), nil
	}
	return NilValue, nil
}

func floatArith(op arithOp, a, b float64) float64 {
	switch op {
	case opAdd:
		return a + b
	case opSub:
		return a - b
	case opMul:
		return a * b
	case opMod:
		return floatFloorMod(a, b)
	}
	return 0
}

func bitwise(op arithOp, a, b int64) int64 {
	switch op {
	case opBAnd:
		return a & b
	case opBOr:
		return a | b
	case opBXor:
		return a ^ b
	case opShl:
		return shiftLeft(a, b)
	case opShr:
		return shiftLeft(a, -b)
	}
	return 0
}

// shiftLeft implements Lua-style shifts: negative count shifts the
// other way, counts >= 64 produce 0, using unsigned semantics so a
// left shift off the top or a right shift is never UB.
func shiftLeft(a, n int64) int64 {
	if n <= -64 || n >= 64 {
		return 0
	}
	if n >= 0 {
		return int64(uint64(a) << uint(n))
	}
	return int64(uint64(a) >> uint(-n))
}

// unaryArith implements UNM/BNOT (spec.md bytecode ops 25-26).
func unaryArith(th *Thread, op arithOp, a Value) (Value, error) {
	an, ok := ToNumber(a)
	if ok {
		if op == opUnm {
			if an.Kind == KInt {
				return IntValue(-an.i), nil
			}
			return FloatValue(-an.f), nil
		}
		if op == opBNot {
			ai, ok2 := toInt64Bitwise(an)
			if !ok2 {
				return NilValue, newRuntimeError(th, "number has no integer representation")
			}
			return IntValue(^ai), nil
		}
	}
	ev := arithMeta[op]
	h := rawMeta(th.global, a, ev)
	if h.IsNil() {
		return NilValue, newRuntimeError(th, "attempt to perform arithmetic on a %s value", a.TypeName())
	}
	res, err := call(th, h, []Value{a, a}, 1)
	if err != nil {
		return NilValue, err
	}
	return first(res), nil
}

// concatString implements `..` for one pair of operands: strings and
// numbers are coerced and joined, otherwise __concat is tried (spec.md
// §4.6). vm.go's CONCAT handler calls it pairwise from right to left
// over R(B)..R(C), building one intermediate string per pair.
func concatString(th *Thread, a, b Value) (Value, error) {
	as, aok := concatCoerce(a)
	bs, bok := concatCoerce(b)
	if aok && bok {
		return StringValue(th.global.NewString(as + bs)), nil
	}
	h := rawMeta(th.global, a, metaConcat)
	if h.IsNil() {
		h = rawMeta(th.global, b, metaConcat)
	}
	if h.IsNil() {
		bad := a
		if aok {
			bad = b
		}
		return NilValue, newRuntimeError(th, "attempt to concatenate a %s value", bad.TypeName())
	}
	res, err := call(th, h, []Value{a, b}, 1)
	if err != nil {
		return NilValue, err
	}
	return first(res), nil
}

func concatCoerce(v Value) (string, bool) {
	switch v.Kind {
	case KString:
		return v.AsString().content(), true
	case KInt, KFloat:
		return v.ToStringValue(), true
	}
	return "", false
}

// length implements `#v`: __len first for tables (and any value
// carrying the hook), otherwise the raw array-part border search, a
// string's byte length, or a type error.
func length(th *Thread, v Value) (Value, error) {
	h := rawMeta(th.global, v, metaLen)
	if !h.IsNil() {
		res, err := call(th, h, []Value{v}, 1)
		if err != nil {
			return NilValue, err
		}
		return first(res), nil
	}
	switch v.Kind {
	case KTable:
		return IntValue(v.AsTable().Len()), nil
	case KString:
		return IntValue(int64(v.AsString().length())), nil
	}
	return NilValue, newRuntimeError(th, "attempt to get length of a %s value", v.TypeName())
}

// parseNumber implements the lexer's numeric-literal grammar (spec.md
// §4.9) applied to a whole string, as used by string-to-number
// coercion: decimal/hex integers, decimal/hex floats with a
// p-exponent.
func parseNumber(s string) (Value, bool) {
	if s == "" {
		return NilValue, false
	}
	neg := false
	rest := s
	if rest[0] == '+' || rest[0] == '-' {
		neg = rest[0] == '-'
		rest = rest[1:]
	}
	if len(rest) > 1 && rest[0] == '0' && (rest[1] == 'x' || rest[1] == 'X') {
		return parseHexNumber(rest[2:], neg)
	}
	if i, err := strconv.ParseInt(rest, 10, 64); err == nil {
		if neg {
			i = -i
		}
		return IntValue(i), true
	}
	if f, err := strconv.ParseFloat(rest, 64); err == nil {
		if neg {
			f = -f
		}
		return FloatValue(f), true
	}
	return NilValue, false
}

func parseHexNumber(body string, neg bool) (Value, bool) {
	if body == "" {
		return NilValue, false
	}
	if !strings.ContainsAny(body, ".pP") {
		u, err := strconv.ParseUint(body, 16, 64)
		if err != nil {
			return NilValue, false
		}
		i := int64(u)
		if neg {
			i = -i
		}
		return IntValue(i), true
	}
	mantissa := body
	exp := 0
	if p := strings.IndexAny(body, "pP"); p >= 0 {
		mantissa = body[:p]
		e, err := strconv.Atoi(body[p+1:])
		if err != nil {
			return NilValue, false
		}
		exp = e
	}
	intPart, fracPart := mantissa, ""
	if d := strings.IndexByte(mantissa, '.'); d >= 0 {
		intPart, fracPart = mantissa[:d], mantissa[d+1:]
	}
	var val float64
	for _, c := range intPart {
		val = val*16 + float64(hexDigit(byte(c)))
	}
	scale := 1.0 / 16.0
	for _, c := range fracPart {
		val += float64(hexDigit(byte(c))) * scale
		scale /= 16
	}
	val *= math.Pow(2, float64(exp))
	if neg {
		val = -val
	}
	return FloatValue(val), true
}

func hexDigit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return 0
}
