package ember

// call invokes fn(args...) on th, returning up to nresults values
// (nresults=-1 means "as many as produced", spec.md §4.12's CALL
// semantics). It enters the dispatch loop for script closures and
// calls straight through for native ones.
func call(th *Thread, fn Value, args []Value, nresults int) ([]Value, error) {
	if !fn.IsClosure() {
		h := rawMeta(th.global, fn, metaCall)
		if h.IsNil() {
			return nil, newRuntimeError(th, "attempt to call a %s value", fn.TypeName())
		}
		return call(th, h, append([]Value{fn}, args...), nresults)
	}
	cl := fn.AsClosure()
	if cl.IsNative() {
		// nny marks this thread non-yieldable for the duration of any
		// Go-native frame (spec.md §4.13): a script closure called back
		// synchronously from inside this native function (e.g. a
		// table.sort comparator) cannot suspend the Go stack a native
		// function occupies, so yield() must see this frame on the count.
		th.nny++
		res, err := cl.Native(th, args)
		th.nny--
		return res, err
	}
	return runClosure(th, cl, args, nresults)
}

// runClosure pushes a new script frame and drives the dispatch loop
// until that frame returns (spec.md §4.12: "a script-to-script call
// pushes a new CallInfo and restarts the loop at the new frame").
func runClosure(th *Thread, cl *Closure, args []Value, nresults int) ([]Value, error) {
	p := cl.Proto
	base := th.top
	if err := th.growStack(p.MaxStackSize + 8); err != nil {
		return nil, err
	}
	np := p.NumParams
	for i := 0; i < np; i++ {
		if i < len(args) {
			th.stack[base+i] = args[i]
		} else {
			th.stack[base+i] = NilValue
		}
	}
	var varargs []Value
	if p.IsVararg && len(args) > np {
		varargs = append(varargs, args[np:]...)
	}
	for i := np; i < p.MaxStackSize; i++ {
		th.stack[base+i] = NilValue
	}
	th.top = base + p.MaxStackSize

	ci := th.pushCallInfo()
	ci.status = cistEmber | cistFresh
	ci.proto = p
	ci.base = base
	ci.savedpc = 0
	ci.fn = base - 1
	ci.nresults = nresults
	ci.closure = cl
	ci.varargs = varargs

	if th.hook != nil {
		fireCallHook(th, p.LineDefined)
	}

	defer th.popCallInfo()
	return dispatch(th, ci)
}

// dispatch is the giant-switch interpreter loop of spec.md §4.12.
// Each RETURN either completes this Go call (cistFresh) or, in a
// fuller implementation, continues at the caller's frame in place;
// here every script call is one Go call deep, which keeps Go's own
// stack as the call stack and sidesteps needing a trampoline.
func dispatch(th *Thread, ci *CallInfo) ([]Value, error) {
	p := ci.proto
	base := ci.base
	g := th.global
	lastLine := -1
	for {
		if ci.savedpc >= len(p.Code) {
			fireReturnHook(th)
			return nil, nil
		}
		ins := p.Code[ci.savedpc]
		op := decodeOp(ins)
		line := p.LineInfo[ci.savedpc]
		ci.savedpc++

		if th.hook != nil {
			if line != lastLine {
				fireLineHook(th, line)
			}
			fireCountHook(th, line)
		}
		lastLine = line

		a := decodeA(ins)
		switch op {
		case OpMove:
			th.stack[base+a] = th.stack[base+decodeB(ins)]
		case OpLoadK:
			th.stack[base+a] = p.Constants[decodeBx(ins)]
		case OpLoadKX:
			extra := p.Code[ci.savedpc]
			ci.savedpc++
			th.stack[base+a] = p.Constants[decodeAx(extra)]
		case OpLoadBool:
			th.stack[base+a] = BoolValue(decodeB(ins) != 0)
			if decodeC(ins) != 0 {
				ci.savedpc++
			}
		case OpLoadNil:
			b := decodeB(ins)
			for i := 0; i <= b; i++ {
				th.stack[base+a+i] = NilValue
			}
		case OpGetUpval:
			th.stack[base+a] = ci.closure.Upvalues[decodeB(ins)].get()
		case OpSetUpval:
			uv := ci.closure.Upvalues[decodeB(ins)]
			uv.set(th.stack[base+a])
			g.gc.writeField(ci.closure, th.stack[base+a])
		case OpGetTabUp:
			t := ci.closure.Upvalues[decodeB(ins)].get()
			k := rk(p, th, base, decodeC(ins))
			v, err := index(th, t, k)
			if err != nil {
				return nil, annotate(err, p, ci.savedpc-1)
			}
			th.stack[base+a] = v
		case OpSetTabUp:
			t := ci.closure.Upvalues[decodeA(ins)].get()
			k := rk(p, th, base, decodeB(ins))
			v := rk(p, th, base, decodeC(ins))
			if err := newindex(th, t, k, v); err != nil {
				return nil, annotate(err, p, ci.savedpc-1)
			}
		case OpGetTable:
			t := th.stack[base+decodeB(ins)]
			k := rk(p, th, base, decodeC(ins))
			v, err := index(th, t, k)
			if err != nil {
				return nil, annotate(err, p, ci.savedpc-1)
			}
			th.stack[base+a] = v
		case OpSetTable:
			t := th.stack[base+a]
			k := rk(p, th, base, decodeB(ins))
			v := rk(p, th, base, decodeC(ins))
			if err := newindex(th, t, k, v); err != nil {
				return nil, annotate(err, p, ci.savedpc-1)
			}
		case OpNewTable:
			narr := decodeB(ins)
			if e := narr >> 3; e != 0 {
				narr = ((narr & 7) + 8) << uint(e-1)
			}
			th.stack[base+a] = TableValue(newTable(g, narr, 0))
		case OpSelf:
			obj := th.stack[base+decodeB(ins)]
			th.stack[base+a+1] = obj
			k := rk(p, th, base, decodeC(ins))
			v, err := index(th, obj, k)
			if err != nil {
				return nil, annotate(err, p, ci.savedpc-1)
			}
			th.stack[base+a] = v
		case OpAdd, OpSub, OpMul, OpMod, OpPow, OpDiv, OpIDiv,
			OpBAnd, OpBOr, OpBXor, OpShl, OpShr:
			res, err := arith(th, opcodeToArith(op), rk(p, th, base, decodeB(ins)), rk(p, th, base, decodeC(ins)))
			if err != nil {
				return nil, annotate(err, p, ci.savedpc-1)
			}
			th.stack[base+a] = res
		case OpUnm, OpBNot:
			res, err := unaryArith(th, opcodeToArith(op), th.stack[base+decodeB(ins)])
			if err != nil {
				return nil, annotate(err, p, ci.savedpc-1)
			}
			th.stack[base+a] = res
		case OpNot:
			th.stack[base+a] = BoolValue(th.stack[base+decodeB(ins)].IsFalsy())
		case OpLen:
			res, err := length(th, th.stack[base+decodeB(ins)])
			if err != nil {
				return nil, annotate(err, p, ci.savedpc-1)
			}
			th.stack[base+a] = res
		case OpConcat:
			bIdx, cIdx := decodeB(ins), decodeC(ins)
			acc := th.stack[base+cIdx]
			for i := cIdx - 1; i >= bIdx; i-- {
				res, err := concatString(th, th.stack[base+i], acc)
				if err != nil {
					return nil, annotate(err, p, ci.savedpc-1)
				}
				acc = res
			}
			th.stack[base+a] = acc
		case OpJmp:
			if a != 0 {
				closeUpvaluesDownTo(th, base+a-1)
			}
			ci.savedpc += decodeSBx(ins)
		case OpEq, OpLt, OpLe:
			bv := rk(p, th, base, decodeB(ins))
			cv := rk(p, th, base, decodeC(ins))
			var cond bool
			var err error
			switch op {
			case OpEq:
				cond, err = equals(th, bv, cv)
			case OpLt:
				cond, err = less(th, bv, cv)
			case OpLe:
				cond, err = lessEqual(th, bv, cv)
			}
			if err != nil {
				return nil, annotate(err, p, ci.savedpc-1)
			}
			if cond != (a != 0) {
				ci.savedpc++ // skip the following JMP
			}
		case OpTest:
			if th.stack[base+a].IsTruthy() != (decodeC(ins) != 0) {
				ci.savedpc++
			}
		case OpTestSet:
			bv := th.stack[base+decodeB(ins)]
			if bv.IsTruthy() == (decodeC(ins) != 0) {
				th.stack[base+a] = bv
			} else {
				ci.savedpc++
			}
		case OpCall:
			res, err := vmCall(th, base, a, decodeB(ins), decodeC(ins))
			if err != nil {
				return nil, annotate(err, p, ci.savedpc-1)
			}
			_ = res
		case OpTailCall:
			res, err := vmCall(th, base, a, decodeB(ins), 0)
			if err != nil {
				return nil, annotate(err, p, ci.savedpc-1)
			}
			fireReturnHook(th)
			return res, nil
		case OpReturn:
			b := decodeB(ins)
			var n int
			if b == 0 {
				n = th.top - (base + a)
			} else {
				n = b - 1
			}
			out := make([]Value, n)
			copy(out, th.stack[base+a:base+a+n])
			closeUpvaluesDownTo(th, base)
			fireReturnHook(th)
			return adjustResults(out, ci.nresults), nil
		case OpForPrep:
			idx := th.stack[base+a]
			limit := th.stack[base+a+1]
			step := th.stack[base+a+2]
			idx2, err := arith(th, opSub, idx, step)
			if err != nil {
				return nil, annotate(err, p, ci.savedpc-1)
			}
			th.stack[base+a] = idx2
			_ = limit
			ci.savedpc += decodeSBx(ins)
		case OpForLoop:
			idx, err := arith(th, opAdd, th.stack[base+a], th.stack[base+a+2])
			if err != nil {
				return nil, annotate(err, p, ci.savedpc-1)
			}
			th.stack[base+a] = idx
			step := th.stack[base+a+2]
			limit := th.stack[base+a+1]
			cont := false
			if stepPositive(step) {
				cont = numLE(idx, limit)
			} else {
				cont = numLE(limit, idx)
			}
			if cont {
				ci.savedpc += decodeSBx(ins)
				th.stack[base+a+3] = idx
			}
		case OpTForCall:
			f := th.stack[base+a]
			s := th.stack[base+a+1]
			ctrl := th.stack[base+a+2]
			res, err := call(th, f, []Value{s, ctrl}, decodeC(ins))
			if err != nil {
				return nil, annotate(err, p, ci.savedpc-1)
			}
			for i := 0; i < decodeC(ins); i++ {
				if i < len(res) {
					th.stack[base+a+3+i] = res[i]
				} else {
					th.stack[base+a+3+i] = NilValue
				}
			}
		case OpTForLoop:
			if !th.stack[base+a+1].IsNil() {
				th.stack[base+a] = th.stack[base+a+1]
				ci.savedpc += decodeSBx(ins)
			}
		case OpSetList:
			t := th.stack[base+a].AsTable()
			b := decodeB(ins)
			c := decodeC(ins)
			n := b
			if n == 0 {
				n = th.top - (base + a + 1)
			}
			start := (c - 1) * 50
			for i := 1; i <= n; i++ {
				v := th.stack[base+a+i]
				t.rawSet(g, IntValue(int64(start+i)), v)
				g.gc.writeTable(t, v)
			}
		case OpClosure:
			childProto := p.Protos[decodeBx(ins)]
			cl := newScriptClosure(g, childProto)
			for i, uv := range childProto.Upvalues {
				if uv.fromStack {
					cl.Upvalues[i] = findOrCreateUpvalue(th, base+uv.index)
				} else {
					cl.Upvalues[i] = ci.closure.Upvalues[uv.index]
				}
			}
			th.stack[base+a] = ClosureValue(cl)
		case OpVararg:
			b := decodeB(ins)
			n := len(ci.varargs)
			if b != 0 {
				n = b - 1
			}
			for i := 0; i < n; i++ {
				if i < len(ci.varargs) {
					th.stack[base+a+i] = ci.varargs[i]
				} else {
					th.stack[base+a+i] = NilValue
				}
			}
			if b == 0 {
				th.top = base + a + n
			}
		case OpExtraArg:
			// consumed inline by LOADKX/SETLIST handlers above
		}
	}
}

func stepPositive(step Value) bool {
	if step.Kind == KInt {
		return step.i >= 0
	}
	return step.f >= 0
}

func numLE(a, b Value) bool {
	if a.Kind == KInt && b.Kind == KInt {
		return a.i <= b.i
	}
	return a.AsFloat() <= b.AsFloat()
}

func opcodeToArith(op Op) arithOp {
	switch op {
	case OpAdd:
		return opAdd
	case OpSub:
		return opSub
	case OpMul:
		return opMul
	case OpMod:
		return opMod
	case OpPow:
		return opPow
	case OpDiv:
		return opDiv
	case OpIDiv:
		return opIDiv
	case OpBAnd:
		return opBAnd
	case OpBOr:
		return opBOr
	case OpBXor:
		return opBXor
	case OpShl:
		return opShl
	case OpShr:
		return opShr
	case OpUnm:
		return opUnm
	case OpBNot:
		return opBNot
	}
	return opAdd
}

func rk(p *Proto, th *Thread, base, operand int) Value {
	if isK(operand) {
		return p.Constants[rkAsK(operand)]
	}
	return th.stack[base+operand]
}

// vmCall executes CALL/TAILCALL's R(A)(R(A+1..A+B-1)), writing up to
// C-1 results back at R(A) (invariant VM2).
func vmCall(th *Thread, base, a, b, c int) ([]Value, error) {
	fn := th.stack[base+a]
	var nargs int
	if b == 0 {
		nargs = th.top - (base + a + 1)
	} else {
		nargs = b - 1
	}
	args := make([]Value, nargs)
	copy(args, th.stack[base+a+1:base+a+1+nargs])
	want := -1
	if c != 0 {
		want = c - 1
	}
	res, err := call(th, fn, args, want)
	if err != nil {
		return nil, err
	}
	if c == 0 {
		th.top = base + a + len(res)
	}
	for i := 0; i < len(res) || (c != 0 && i < c-1); i++ {
		if c != 0 && i >= c-1 {
			break
		}
		if i < len(res) {
			th.stack[base+a+i] = res[i]
		} else {
			th.stack[base+a+i] = NilValue
		}
	}
	return res, nil
}

func adjustResults(out []Value, want int) []Value {
	if want < 0 {
		return out
	}
	if len(out) == want {
		return out
	}
	adj := make([]Value, want)
	copy(adj, out)
	return adj
}

func annotate(err error, p *Proto, pc int) error {
	if re, ok := err.(*RuntimeError); ok && re.Traceback == "" {
		line := 0
		if pc >= 0 && pc < len(p.LineInfo) {
			line = p.LineInfo[pc]
		}
		re.Traceback = p.Source + ":" + itoa(line)
	}
	return err
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
