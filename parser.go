package ember

// parser drives the lexer and a chain of funcState compilers
// one per nested function literal (spec.md §4.10: single pass, no
// AST — every construct is compiled as it's recognized).
type parser struct {
	lex *lexer
	fs  *funcState
	g   *globalState
}

// compile parses source under chunkName and returns the main
// chunk's Proto, whose sole upvalue is the implicit _ENV (spec.md
// §4.10 "The name _ENV is always an implicit upvalue of the main
// chunk").
func compile(g *globalState, source, chunkName string) (*Proto, error) {
	p := &parser{lex: newLexer(chunkName, source), g: g}
	var perr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				if e, ok := r.(error); ok {
					perr = e
				} else {
					perr = &SyntaxError{Source: chunkName, Message: "internal compiler error"}
				}
			}
		}()
		fs := newFuncState(g, nil, p.lex, chunkName)
		fs.proto.IsVararg = true
		fs.findUpvalue("_ENV")
		p.fs = fs
		p.fs.enterBlock(false)
		p.block()
		p.fs.leaveBlock()
		p.expect(tkEOF)
		fs.emitABC(OpReturn, 0, 1, 0, p.lex.cur.line)
	}()
	if perr != nil {
		return nil, perr
	}
	return p.fs.proto, nil
}

func (p *parser) errorf(format string, args ...interface{}) {
	panic(p.lex.errorf(format, args...))
}

func (p *parser) check(k tokKind) bool { return p.lex.cur.kind == k }

func (p *parser) accept(k tokKind) bool {
	if p.check(k) {
		p.lex.advance()
		return true
	}
	return false
}

func (p *parser) expect(k tokKind) token {
	if !p.check(k) {
		p.errorf("unexpected token (want %d, got %d)", k, p.lex.cur.kind)
	}
	t := p.lex.cur
	p.lex.advance()
	return t
}

func (p *parser) expectName() string {
	t := p.expect(tkName)
	return t.s
}

func blockFollow(k tokKind) bool {
	switch k {
	case tkEOF, tkEnd, tkElse, tkElseif, tkUntil:
		return true
	}
	return false
}

// block parses a sequence of statements, stopping at a block-follow
// token or a `return` (which must be the block's last statement).
func (p *parser) block() {
	for !blockFollow(p.lex.cur.kind) {
		if p.check(tkReturn) {
			p.returnStat()
			return
		}
		p.statement()
	}
}

func (p *parser) statement() {
	switch p.lex.cur.kind {
	case tkSemi:
		p.lex.advance()
	case tkIf:
		p.ifStat()
	case tkWhile:
		p.whileStat()
	case tkDo:
		p.lex.advance()
		p.fs.enterBlock(false)
		p.block()
		p.fs.leaveBlock()
		p.expect(tkEnd)
	case tkFor:
		p.forStat()
	case tkRepeat:
		p.repeatStat()
	case tkFunction:
		p.funcStat()
	case tkLocal:
		p.lex.advance()
		if p.accept(tkFunction) {
			p.localFuncStat()
		} else {
			p.localStat()
		}
	case tkDColon:
		p.labelStat()
	case tkBreak:
		p.lex.advance()
		p.breakStat()
	case tkGoto:
		p.lex.advance()
		p.gotoStat()
	default:
		p.exprStat()
	}
}

func (p *parser) ifStat() {
	p.lex.advance()
	var endJumps int = noJump
	cond := p.expr()
	p.fs.gotoIfFalse(&cond)
	p.expect(tkThen)
	p.fs.enterBlock(false)
	p.block()
	p.fs.leaveBlock()
	for p.check(tkElseif) || p.check(tkElse) {
		if p.check(tkElseif) {
			j := p.fs.emitJmp()
			concatJump(p.fs, &endJumps, j)
			p.fs.patchListToHere(cond.f)
			p.lex.advance()
			cond = p.expr()
			p.fs.gotoIfFalse(&cond)
			p.expect(tkThen)
			p.fs.enterBlock(false)
			p.block()
			p.fs.leaveBlock()
		} else {
			j := p.fs.emitJmp()
			concatJump(p.fs, &endJumps, j)
			p.fs.patchListToHere(cond.f)
			p.lex.advance()
			p.fs.enterBlock(false)
			p.block()
			p.fs.leaveBlock()
			break
		}
	}
	p.fs.patchListToHere(cond.f)
	p.fs.patchListToHere(endJumps)
	p.expect(tkEnd)
}

// gotoIfFalse finishes discharging a conditional expression into a
// pending jump taken when it's false (used by if/while conditions).
func (fs *funcState) gotoIfFalse(e *expDesc) {
	var pc int
	switch e.kind {
	case eTrue:
		pc = noJump
	case eJmp:
		cmp := fs.proto.Code[e.info-1]
		fs.proto.Code[e.info-1] = encodeABC(decodeOp(cmp), decodeA(cmp)^1, decodeB(cmp), decodeC(cmp))
		pc = e.info
	default:
		reg := fs.exp2anyReg(e)
		fs.emitABC(OpTest, reg, 0, 0, fs.curLine())
		pc = fs.emitJmp()
	}
	concatJump(fs, &e.f, pc)
}

func (p *parser) whileStat() {
	p.lex.advance()
	topPC := len(p.fs.proto.Code)
	cond := p.expr()
	p.fs.gotoIfFalse(&cond)
	p.expect(tkDo)
	p.fs.enterBlock(true)
	p.block()
	back := p.fs.emitAsBx(OpJmp, 0, topPC-len(p.fs.proto.Code)-1, p.lex.cur.line)
	_ = back
	p.fs.leaveBlock()
	p.expect(tkEnd)
	p.fs.patchListToHere(cond.f)
}

func (p *parser) repeatStat() {
	p.lex.advance()
	topPC := len(p.fs.proto.Code)
	p.fs.enterBlock(true)
	p.block()
	p.expect(tkUntil)
	cond := p.expr()
	p.fs.gotoIfFalse(&cond)
	p.fs.patchListTo(cond.t, topPC)
	p.fs.emitAsBx(OpJmp, 0, topPC-len(p.fs.proto.Code)-1, p.lex.cur.line)
	p.fs.leaveBlock()
}

// forStat dispatches on the lookahead to decide numeric vs generic
// for (spec.md §4.10 "Numeric for").
func (p *parser) forStat() {
	p.lex.advance()
	name := p.expectName()
	if p.check(tkAssign) {
		p.numericFor(name)
		return
	}
	names := []string{name}
	for p.accept(tkComma) {
		names = append(names, p.expectName())
	}
	p.expect(tkIn)
	p.genericFor(names)
}

func (p *parser) numericFor(name string) {
	p.expect(tkAssign)
	p.fs.enterBlock(true)
	initE := p.expr()
	p.fs.exp2nextReg(&initE)
	p.expect(tkComma)
	limitE := p.expr()
	p.fs.exp2nextReg(&limitE)
	stepVal := int64(1)
	hasStep := false
	if p.accept(tkComma) {
		stepE := p.expr()
		p.fs.exp2nextReg(&stepE)
		hasStep = true
		_ = stepVal
	}
	if !hasStep {
		reg := p.fs.reserveRegs(1)
		p.fs.emitABx(OpLoadK, reg, p.fs.intConstant(1), p.lex.cur.line)
	}
	base := p.fs.freereg - 3
	p.fs.declareLocal(name)
	prep := p.fs.emitAsBx(OpForPrep, base, noJump, p.lex.cur.line)
	p.expect(tkDo)
	p.block()
	loopStart := len(p.fs.proto.Code)
	p.fs.proto.Code[prep] = encodeAsBx(OpForPrep, base, loopStart-prep-1)
	p.fs.emitAsBx(OpForLoop, base, prep-loopStart, p.lex.cur.line)
	p.fs.leaveBlock()
	p.expect(tkEnd)
}

func (p *parser) genericFor(names []string) {
	p.fs.enterBlock(true)
	exprList := []expDesc{p.expr()}
	for p.accept(tkComma) {
		exprList = append(exprList, p.expr())
	}
	base := p.fs.freereg
	p.adjustAssignList(3, exprList)
	for _, n := range names {
		p.fs.declareLocal(n)
	}
	p.expect(tkDo)
	prep := p.fs.emitAsBx(OpJmp, 0, noJump, p.lex.cur.line)
	loopStart := len(p.fs.proto.Code)
	p.block()
	p.fs.proto.Code[prep] = encodeAsBx(OpJmp, 0, loopStart-prep-1-0)
	p.fs.emitABC(OpTForCall, base, 0, len(names), p.lex.cur.line)
	p.fs.emitAsBx(OpTForLoop, base+2, loopStart-len(p.fs.proto.Code)-1, p.lex.cur.line)
	p.fs.leaveBlock()
	p.expect(tkEnd)
}

func (p *parser) labelStat() {
	p.expect(tkDColon)
	name := p.expectName()
	p.expect(tkDColon)
	if p.fs.block != nil {
		p.fs.block.labels[name] = len(p.fs.proto.Code)
		var remaining []pendingGoto
		for _, pg := range p.fs.block.pendingGotos {
			if pg.name == name {
				p.fs.patchListTo(pg.pc, len(p.fs.proto.Code))
			} else {
				remaining = append(remaining, pg)
			}
		}
		p.fs.block.pendingGotos = remaining
	}
}

func (p *parser) breakStat() {
	j := p.fs.emitJmp()
	for b := p.fs.block; b != nil; b = b.parent {
		if b.isLoop {
			concatJump(p.fs, &b.breakList, j)
			return
		}
	}
	p.errorf("break outside a loop")
}

func (p *parser) gotoStat() {
	name := p.expectName()
	j := p.fs.emitJmp()
	for b := p.fs.block; b != nil; b = b.parent {
		if pc, ok := b.labels[name]; ok {
			p.fs.patchListTo(j, pc)
			return
		}
	}
	p.fs.block.pendingGotos = append(p.fs.block.pendingGotos, pendingGoto{name: name, pc: j, line: p.lex.cur.line})
}

func (p *parser) returnStat() {
	p.lex.advance()
	base := p.fs.freereg
	n := 0
	if !blockFollow(p.lex.cur.kind) && !p.check(tkSemi) {
		list := []expDesc{p.expr()}
		for p.accept(tkComma) {
			list = append(list, p.expr())
		}
		n = p.dischargeExprListOpen(list)
	}
	p.accept(tkSemi)
	b := n + 1
	if n == -1 {
		b = 0
	}
	p.fs.emitABC(OpReturn, base, b, 0, p.lex.cur.line)
}

// dischargeExprListOpen emits list so its values land in consecutive
// registers from the current frontier, returning the count (or -1 if
// the last expression is multi-valued and left "open").
func (p *parser) dischargeExprListOpen(list []expDesc) int {
	for i := range list {
		if i == len(list)-1 && (list[i].kind == eCall || list[i].kind == eVararg) {
			p.fs.setMultret(&list[i])
			return -1
		}
		p.fs.exp2nextReg(&list[i])
	}
	return len(list)
}

func (fs *funcState) setMultret(e *expDesc) {
	switch e.kind {
	case eCall:
		fs.proto.Code[e.info] = encodeABC(OpCall, decodeA(fs.proto.Code[e.info]), decodeB(fs.proto.Code[e.info]), 0)
	case eVararg:
		fs.proto.Code[e.info] = encodeABC(OpVararg, decodeA(fs.proto.Code[e.info]), 0, 0)
	}
}

func (p *parser) exprStat() {
	e := p.suffixedExpr()
	if p.check(tkAssign) || p.check(tkComma) {
		p.assignment(e)
		return
	}
	if e.kind != eCall {
		p.errorf("syntax error (expression statement must be a call)")
	}
	// a standalone call's result register is freed implicitly
}

func (p *parser) assignment(first expDesc) {
	targets := []expDesc{first}
	for p.accept(tkComma) {
		targets = append(targets, p.suffixedExpr())
	}
	p.expect(tkAssign)
	values := []expDesc{p.expr()}
	for p.accept(tkComma) {
		values = append(values, p.expr())
	}
	p.adjustAssignList(len(targets), values)
	// values now sit in the top len(targets) registers in order; walk
	// targets in reverse so earlier frees don't shift later registers
	base := p.fs.freereg - len(targets)
	for i := len(targets) - 1; i >= 0; i-- {
		p.assignTo(&targets[i], base+i)
	}
	p.fs.freereg = base
}

func (p *parser) assignTo(t *expDesc, srcReg int) {
	switch t.kind {
	case eLocal:
		p.fs.emitABC(OpMove, t.info, srcReg, 0, p.lex.cur.line)
	case eUpval:
		p.fs.emitABC(OpSetUpval, srcReg, t.info, 0, p.lex.cur.line)
	case eIndexed:
		p.fs.emitABC(OpSetTable, t.info, t.aux, rkOperand(srcReg), p.lex.cur.line)
	default:
		p.errorf("cannot assign to this expression")
	}
}

// adjustAssignList materializes exprList into exactly want consecutive
// registers starting at the current frontier, padding with nil or
// truncating, expanding a trailing multi-value expression to fill the
// remainder (spec.md §4.10's register-frontier discipline).
func (p *parser) adjustAssignList(want int, exprList []expDesc) {
	for i := 0; i < len(exprList); i++ {
		last := i == len(exprList)-1
		if last && (exprList[i].kind == eCall || exprList[i].kind == eVararg) {
			extra := want - i
			if extra < 0 {
				extra = 0
			}
			p.fs.setReturnCount(&exprList[i], extra)
			p.fs.exp2nextRegMulti(&exprList[i], extra)
			return
		}
		p.fs.exp2nextReg(&exprList[i])
	}
	for i := len(exprList); i < want; i++ {
		reg := p.fs.reserveRegs(1)
		p.fs.emitABC(OpLoadNil, reg, 0, 0, p.lex.cur.line)
	}
}

func (fs *funcState) setReturnCount(e *expDesc, n int) {
	switch e.kind {
	case eCall:
		ins := fs.proto.Code[e.info]
		fs.proto.Code[e.info] = encodeABC(OpCall, decodeA(ins), decodeB(ins), n+1)
	case eVararg:
		ins := fs.proto.Code[e.info]
		fs.proto.Code[e.info] = encodeABC(OpVararg, decodeA(ins), n+1, 0)
	}
}

func (fs *funcState) exp2nextRegMulti(e *expDesc, n int) {
	reg := fs.freereg
	if e.kind == eCall {
		reg = decodeA(fs.proto.Code[e.info])
	}
	fs.dischargeToReg(e, reg)
	fs.freereg = reg + n
	if fs.freereg > fs.proto.MaxStackSize {
		fs.proto.MaxStackSize = fs.freereg
	}
}

func (p *parser) localStat() {
	var names []string
	names = append(names, p.expectName())
	for p.accept(tkComma) {
		names = append(names, p.expectName())
	}
	var values []expDesc
	if p.accept(tkAssign) {
		values = append(values, p.expr())
		for p.accept(tkComma) {
			values = append(values, p.expr())
		}
	}
	if len(values) > 0 {
		p.adjustAssignList(len(names), values)
	} else {
		for range names {
			reg := p.fs.reserveRegs(1)
			p.fs.emitABC(OpLoadNil, reg, 0, 0, p.lex.cur.line)
		}
	}
	base := p.fs.freereg - len(names)
	for i, n := range names {
		p.fs.actvars = append(p.fs.actvars, localInfo{name: n, reg: base + i})
	}
}

func (p *parser) localFuncStat() {
	name := p.expectName()
	p.fs.declareLocal(name)
	e := p.funcBody(false)
	p.fs.exp2nextRegIntoExisting(&e, p.fs.actvars[len(p.fs.actvars)-1].reg)
}

// exp2nextRegIntoExisting discharges e directly into an already
// reserved register (used for `local function f` so f is visible,
// recursively, inside its own body).
func (fs *funcState) exp2nextRegIntoExisting(e *expDesc, reg int) {
	fs.dischargeToReg(e, reg)
}

func (p *parser) funcStat() {
	p.lex.advance()
	name := p.expectName()
	target := p.fs.singleVarAux(name)
	isMethod := false
	for p.check(tkDot) || p.check(tkColon) {
		method := p.check(tkColon)
		p.lex.advance()
		field := p.expectName()
		key := expDesc{kind: eK, info: p.fs.stringConstant(field), t: noJump, f: noJump}
		target = p.fs.indexedExpr(target, key)
		if method {
			isMethod = true
			break
		}
	}
	e := p.funcBody(isMethod)
	reg := p.fs.exp2anyReg(&e)
	e2 := expDesc{kind: eNonReloc, info: reg, t: noJump, f: noJump}
	p.assignTo(&target, e2.info)
}

// funcBody parses `(params) block end`, compiling it as a nested
// funcState and leaving a CLOSURE expression descriptor for the
// caller to discharge.
func (p *parser) funcBody(isMethod bool) expDesc {
	line := p.lex.cur.line
	child := newFuncState(p.g, p.fs, p.lex, p.fs.proto.Source)
	parent := p.fs
	p.fs = child
	p.fs.enterBlock(false)
	if isMethod {
		p.fs.declareLocal("self")
	}
	p.expect(tkLParen)
	if !p.check(tkRParen) {
		for {
			if p.check(tkEllipsis) {
				p.lex.advance()
				p.fs.proto.IsVararg = true
				break
			}
			n := p.expectName()
			p.fs.declareLocal(n)
			if !p.accept(tkComma) {
				break
			}
		}
	}
	p.expect(tkRParen)
	p.fs.proto.NumParams = len(p.fs.actvars)
	p.fs.proto.LineDefined = line
	p.block()
	p.fs.proto.LastLineDefined = p.lex.cur.line
	p.fs.emitABC(OpReturn, 0, 1, 0, p.lex.cur.line)
	p.fs.leaveBlock()
	childProto := p.fs.proto
	p.fs = parent
	idx := len(p.fs.proto.Protos)
	p.fs.proto.Protos = append(p.fs.proto.Protos, childProto)
	pc := p.fs.emitABx(OpClosure, 0, idx, line)
	return expDesc{kind: eRelocable, info: pc, t: noJump, f: noJump}
}
