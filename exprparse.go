package ember

// binOp identifies a binary operator token for precedence-climbing
// parsing (spec.md §6 "binary ops with fixed precedence table").
type binOp int

const (
	bNone binOp = iota
	bOr
	bAnd
	bLt
	bGt
	bLe
	bGe
	bNe
	bEq
	bBOr
	bBXor
	bBAnd
	bShl
	bShr
	bConcat
	bAdd
	bSub
	bMul
	bMod
	bDiv
	bIDiv
	bPow
)

type opPriority struct{ left, right int }

var binPriority = map[binOp]opPriority{
	bOr:     {1, 1},
	bAnd:    {2, 2},
	bLt:     {3, 3}, bGt: {3, 3}, bLe: {3, 3}, bGe: {3, 3}, bNe: {3, 3}, bEq: {3, 3},
	bBOr:    {4, 4},
	bBXor:   {5, 5},
	bBAnd:   {6, 6},
	bShl:    {7, 7}, bShr: {7, 7},
	bConcat: {9, 8}, // right-associative
	bAdd:    {10, 10}, bSub: {10, 10},
	bMul:    {11, 11}, bMod: {11, 11}, bDiv: {11, 11}, bIDiv: {11, 11},
	bPow:    {14, 13}, // right-associative
}

const unaryPriority = 12

func tokToBinOp(k tokKind) binOp {
	switch k {
	case tkOr:
		return bOr
	case tkAnd:
		return bAnd
	case tkLt:
		return bLt
	case tkGt:
		return bGt
	case tkLe:
		return bLe
	case tkGe:
		return bGe
	case tkNe:
		return bNe
	case tkEq:
		return bEq
	case tkPipe:
		return bBOr
	case tkTilde:
		return bBXor
	case tkAmp:
		return bBAnd
	case tkLtLt:
		return bShl
	case tkGtGt:
		return bShr
	case tkConcat:
		return bConcat
	case tkPlus:
		return bAdd
	case tkMinus:
		return bSub
	case tkStar:
		return bMul
	case tkPercent:
		return bMod
	case tkSlash:
		return bDiv
	case tkDSlash:
		return bIDiv
	case tkCaret:
		return bPow
	}
	return bNone
}

// expr parses a full expression using precedence climbing, folding
// constants where spec.md §4.10 allows and emitting short-circuit
// TEST/TESTSET+JMP pairs for and/or.
func (p *parser) expr() expDesc { return p.subExpr(0) }

func (p *parser) subExpr(limit int) expDesc {
	var e expDesc
	if p.check(tkHash) {
		line := p.lex.cur.line
		p.lex.advance()
		operand := p.subExpr(unaryPriority)
		reg := p.fs.exp2anyReg(&operand)
		pc := p.fs.emitABC(OpLen, 0, reg, 0, line)
		e = expDesc{kind: eRelocable, info: pc, t: noJump, f: noJump}
	} else if uop, ok := unaryTok(p.lex.cur.kind); ok {
		line := p.lex.cur.line
		p.lex.advance()
		operand := p.subExpr(unaryPriority)
		e = p.emitUnary(uop, operand, line)
	} else {
		e = p.simpleExpr()
	}
	for {
		op := tokToBinOp(p.lex.cur.kind)
		if op == bNone {
			break
		}
		pri, ok := binPriority[op]
		if !ok || pri.left <= limit {
			break
		}
		line := p.lex.cur.line
		p.lex.advance()
		if op == bAnd {
			p.fs.gotoIfFalse(&e)
			rhs := p.subExpr(pri.right)
			e = p.mergeAnd(e, rhs)
			continue
		}
		if op == bOr {
			p.fs.gotoIfTrue(&e)
			rhs := p.subExpr(pri.right)
			e = p.mergeOr(e, rhs)
			continue
		}
		rhs := p.subExpr(pri.right)
		e = p.emitBinOp(op, e, rhs, line)
	}
	return e
}

func unaryTok(k tokKind) (arithOp, bool) {
	switch k {
	case tkMinus:
		return opUnm, true
	case tkTilde:
		return opBNot, true
	}
	return 0, false
}

// gotoIfTrue is gotoIfFalse's mirror, used by `or`'s short circuit.
func (fs *funcState) gotoIfTrue(e *expDesc) {
	reg := fs.exp2anyReg(e)
	fs.emitABC(OpTest, reg, 0, 1, fs.curLine())
	pc := fs.emitJmp()
	concatJump(fs, &e.t, pc)
}

func (p *parser) mergeAnd(lhs, rhs expDesc) expDesc {
	concatJump(p.fs, &rhs.f, lhs.f)
	return rhs
}

func (p *parser) mergeOr(lhs, rhs expDesc) expDesc {
	concatJump(p.fs, &rhs.t, lhs.t)
	return rhs
}

func (p *parser) emitUnary(op arithOp, e expDesc, line int) expDesc {
	if op == opUnm && (e.kind == eKInt || e.kind == eKFlt) {
		if e.kind == eKInt {
			e.ival = -e.ival
		} else {
			e.fval = -e.fval
		}
		return e
	}
	reg := p.fs.exp2anyReg(&e)
	opc := OpUnm
	if op == opBNot {
		opc = OpBNot
	}
	pc := p.fs.emitABC(opc, 0, reg, 0, line)
	return expDesc{kind: eRelocable, info: pc, t: noJump, f: noJump}
}

var binOpArith = map[binOp]arithOp{
	bAdd: opAdd, bSub: opSub, bMul: opMul, bMod: opMod, bDiv: opDiv,
	bIDiv: opIDiv, bPow: opPow, bBAnd: opBAnd, bBOr: opBOr, bBXor: opBXor,
	bShl: opShl, bShr: opShr,
}

var arithToCode = map[arithOp]Op{
	opAdd: OpAdd, opSub: OpSub, opMul: OpMul, opMod: OpMod, opPow: OpPow,
	opDiv: OpDiv, opIDiv: OpIDiv, opBAnd: OpBAnd, opBOr: OpBOr, opBXor: OpBXor,
	opShl: OpShl, opShr: OpShr,
}

func (p *parser) emitBinOp(op binOp, lhs, rhs expDesc, line int) expDesc {
	if aop, ok := binOpArith[op]; ok {
		if folded, ok := constFold(aop, lhs, rhs); ok {
			return folded
		}
		b := p.fs.exp2RK(&lhs)
		c := p.fs.exp2RK(&rhs)
		p.fs.freeExpr(&rhs)
		p.fs.freeExpr(&lhs)
		pc := p.fs.emitABC(arithToCode[aop], 0, b, c, line)
		return expDesc{kind: eRelocable, info: pc, t: noJump, f: noJump}
	}
	switch op {
	case bConcat:
		b := p.fs.exp2nextRegRet(&lhs)
		c := p.fs.exp2nextRegRet(&rhs)
		p.fs.freereg = b
		pc := p.fs.emitABC(OpConcat, 0, b, c, line)
		return expDesc{kind: eRelocable, info: pc, t: noJump, f: noJump}
	case bEq, bNe:
		b := p.fs.exp2RK(&lhs)
		c := p.fs.exp2RK(&rhs)
		p.fs.freeExpr(&rhs)
		p.fs.freeExpr(&lhs)
		a := 1
		if op == bNe {
			a = 0
		}
		p.fs.emitABC(OpEq, a, b, c, line)
		return p.testToExpr()
	case bLt, bGt, bLe, bGe:
		swap := op == bGt || op == bGe
		if swap {
			lhs, rhs = rhs, lhs
		}
		b := p.fs.exp2RK(&lhs)
		c := p.fs.exp2RK(&rhs)
		p.fs.freeExpr(&rhs)
		p.fs.freeExpr(&lhs)
		opc := OpLt
		if op == bLe || op == bGe {
			opc = OpLe
		}
		p.fs.emitABC(opc, 1, b, c, line)
		return p.testToExpr()
	}
	return lhs
}

func (fs *funcState) exp2nextRegRet(e *expDesc) int {
	fs.exp2nextReg(e)
	return e.info
}

// testToExpr wraps the JMP that must follow every EQ/LT/LE (invariant
// VM1) into a JMP-kind expression descriptor so the caller can later
// materialize it as a boolean or use it directly as a condition.
func (p *parser) testToExpr() expDesc {
	pc := p.fs.emitJmp()
	return expDesc{kind: eJmp, info: pc, t: noJump, f: noJump}
}

// constFold implements spec.md §4.10's constant folding: numeric
// binops on two literal operands compute at parse time when doing so
// is safe (no div-by-zero, no bitwise-on-non-integral-float).
func constFold(op arithOp, lhs, rhs expDesc) (expDesc, bool) {
	if !isNumLit(lhs) || !isNumLit(rhs) {
		return expDesc{}, false
	}
	av, aok := litValue(lhs)
	bv, bok := litValue(rhs)
	if !aok || !bok {
		return expDesc{}, false
	}
	switch op {
	case opDiv, opPow:
		f := 0.0
		if op == opDiv {
			if bv.AsFloat() == 0 {
				return expDesc{}, false
			}
			f = av.AsFloat() / bv.AsFloat()
		} else {
			return expDesc{}, false // pow folding deferred to runtime to match float rounding exactly
		}
		return expDesc{kind: eKFlt, fval: f, t: noJump, f: noJump}, true
	case opBAnd, opBOr, opBXor, opShl, opShr:
		ai, aok2 := toInt64Bitwise(av)
		bi, bok2 := toInt64Bitwise(bv)
		if !aok2 || !bok2 {
			return expDesc{}, false
		}
		return expDesc{kind: eKInt, ival: bitwise(op, ai, bi), t: noJump, f: noJump}, true
	case opMod, opIDiv:
		if bv.Kind == KInt && bv.i == 0 {
			return expDesc{}, false
		}
		if av.Kind == KInt && bv.Kind == KInt {
			var r int64
			var err error
			if op == opMod {
				r, err = floorMod(av.i, bv.i)
			} else {
				r, err = floorDiv(av.i, bv.i)
			}
			if err != nil {
				return expDesc{}, false
			}
			return expDesc{kind: eKInt, ival: r, t: noJump, f: noJump}, true
		}
		return expDesc{}, false
	default:
		if av.Kind == KInt && bv.Kind == KInt {
			v, err := intArith(nil, op, av.i, bv.i)
			if err != nil {
				return expDesc{}, false
			}
			return expDesc{kind: eKInt, ival: v.i, t: noJump, f: noJump}, true
		}
		f := floatArith(op, av.AsFloat(), bv.AsFloat())
		return expDesc{kind: eKFlt, fval: f, t: noJump, f: noJump}, true
	}
}

func isNumLit(e expDesc) bool { return e.kind == eKInt || e.kind == eKFlt }

func litValue(e expDesc) (Value, bool) {
	switch e.kind {
	case eKInt:
		return IntValue(e.ival), true
	case eKFlt:
		return FloatValue(e.fval), true
	}
	return NilValue, false
}
