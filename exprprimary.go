package ember

// simpleExpr parses a literal, table constructor, function literal,
// vararg, or a suffixed (primary) expression (spec.md §6 "expressions
// (literals, ..., function, table constructor ..., prefix
// expressions ...)").
func (p *parser) simpleExpr() expDesc {
	switch p.lex.cur.kind {
	case tkInt:
		v := p.lex.cur.ival
		p.lex.advance()
		return expDesc{kind: eKInt, ival: v, t: noJump, f: noJump}
	case tkFloat:
		v := p.lex.cur.fval
		p.lex.advance()
		return expDesc{kind: eKFlt, fval: v, t: noJump, f: noJump}
	case tkString:
		s := p.lex.cur.s
		p.lex.advance()
		idx := p.fs.stringConstant(s)
		return expDesc{kind: eK, info: idx, t: noJump, f: noJump}
	case tkNil:
		p.lex.advance()
		return expDesc{kind: eNil, t: noJump, f: noJump}
	case tkTrue:
		p.lex.advance()
		return expDesc{kind: eTrue, t: noJump, f: noJump}
	case tkFalse:
		p.lex.advance()
		return expDesc{kind: eFalse, t: noJump, f: noJump}
	case tkEllipsis:
		p.lex.advance()
		if !p.fs.proto.IsVararg {
			p.errorf("cannot use '...' outside a vararg function")
		}
		pc := p.fs.emitABC(OpVararg, 0, 1, 0, p.lex.cur.line)
		return expDesc{kind: eVararg, info: pc, t: noJump, f: noJump}
	case tkLBrace:
		return p.tableConstructor()
	case tkFunction:
		p.lex.advance()
		return p.funcBody(false)
	default:
		return p.suffixedExpr()
	}
}

// primaryExpr parses a parenthesized expression or a bare name.
func (p *parser) primaryExpr() expDesc {
	if p.accept(tkLParen) {
		e := p.expr()
		p.expect(tkRParen)
		// a parenthesized expression is truncated to one value, so a
		// multi-value kind must be discharged to a single register now
		if e.kind == eCall || e.kind == eVararg {
			p.fs.exp2nextReg(&e)
		}
		return e
	}
	name := p.expectName()
	return p.fs.singleVarAux(name)
}

// suffixedExpr parses a primary expression followed by any chain of
// `.name`, `[k]`, `:name(args)`, and `(args)` suffixes.
func (p *parser) suffixedExpr() expDesc {
	e := p.primaryExpr()
	for {
		switch p.lex.cur.kind {
		case tkDot:
			p.lex.advance()
			field := p.expectName()
			key := expDesc{kind: eK, info: p.fs.stringConstant(field), t: noJump, f: noJump}
			e = p.fs.indexedExpr(e, key)
		case tkLBracket:
			p.lex.advance()
			key := p.expr()
			p.expect(tkRBracket)
			e = p.fs.indexedExpr(e, key)
		case tkColon:
			p.lex.advance()
			method := p.expectName()
			e = p.methodCall(e, method)
		case tkLParen, tkString, tkLBrace:
			e = p.call(e)
		default:
			return e
		}
	}
}

// call parses a function call's argument list and emits CALL,
// returning a CALL-kind descriptor (spec.md bytecode op 36).
func (p *parser) call(fn expDesc) expDesc {
	line := p.lex.cur.line
	wasLocal := fn.kind == eLocal
	base := p.fs.exp2anyReg(&fn)
	if wasLocal || base != p.fs.freereg-1 || fn.kind != eNonReloc {
		p.fs.exp2nextReg(&fn)
		base = fn.info
	} else {
		p.fs.freereg = base + 1
	}
	nargs := p.argList()
	p.fs.freereg = base + 1
	b := nargs + 1
	if nargs == -1 {
		b = 0
	}
	pc := p.fs.emitABC(OpCall, base, b, 2, line)
	return expDesc{kind: eCall, info: pc, t: noJump, f: noJump}
}

// methodCall parses `obj:name(args)`, emitting SELF then a CALL whose
// first argument is the receiver (spec.md bytecode op 12).
func (p *parser) methodCall(obj expDesc, method string) expDesc {
	line := p.lex.cur.line
	objReg := p.fs.exp2anyReg(&obj)
	base := p.fs.reserveRegs(2)
	key := p.fs.stringConstant(method)
	p.fs.emitABC(OpSelf, base, objReg, rkOperand(key), line)
	p.fs.freereg = base + 2
	nargs := p.argList()
	p.fs.freereg = base + 1
	b := nargs + 2
	if nargs == -1 {
		b = 0
	}
	pc := p.fs.emitABC(OpCall, base, b, 2, line)
	return expDesc{kind: eCall, info: pc, t: noJump, f: noJump}
}

// argList parses `(e1, e2, ...)` or a single string/table-constructor
// sugar call, discharging each argument into consecutive registers
// and returning the count (-1 if the last argument is multi-valued).
func (p *parser) argList() int {
	if p.check(tkString) {
		s := p.lex.cur.s
		p.lex.advance()
		reg := p.fs.reserveRegs(1)
		p.fs.emitABx(OpLoadK, reg, p.fs.stringConstant(s), p.lex.cur.line)
		return 1
	}
	if p.check(tkLBrace) {
		e := p.tableConstructor()
		p.fs.exp2nextReg(&e)
		return 1
	}
	p.expect(tkLParen)
	if p.accept(tkRParen) {
		return 0
	}
	list := []expDesc{p.expr()}
	for p.accept(tkComma) {
		list = append(list, p.expr())
	}
	p.expect(tkRParen)
	return p.dischargeExprListOpen(list)
}

// tableConstructor parses `{ ... }`: array-style, record (`name =
// expr`), and computed-key (`[expr] = expr`) fields, emitting
// NEWTABLE then SETLIST/SETTABLE as appropriate (spec.md bytecode ops
// 11 and 43).
func (p *parser) tableConstructor() expDesc {
	line := p.lex.cur.line
	reg := p.fs.reserveRegs(1)
	pc := p.fs.emitABC(OpNewTable, reg, 0, 0, line)
	p.expect(tkLBrace)
	arrayIdx := 0
	pending := 0
	flushArray := func(last bool) {
		if pending == 0 {
			return
		}
		b := pending
		if last {
			b = 0
		}
		p.fs.emitABC(OpSetList, reg, b, (arrayIdx-pending)/50+1, line)
		p.fs.freereg = reg + 1
		pending = 0
	}
	for !p.check(tkRBrace) {
		if p.check(tkLBracket) {
			p.lex.advance()
			key := p.expr()
			p.expect(tkRBracket)
			p.expect(tkAssign)
			val := p.expr()
			k := p.fs.exp2RK(&key)
			v := p.fs.exp2RK(&val)
			p.fs.emitABC(OpSetTable, reg, k, v, line)
		} else if p.check(tkName) && p.lex.peek().kind == tkAssign {
			field := p.expectName()
			p.expect(tkAssign)
			val := p.expr()
			k := rkOperand(p.fs.stringConstant(field))
			v := p.fs.exp2RK(&val)
			p.fs.emitABC(OpSetTable, reg, k, v, line)
		} else {
			val := p.expr()
			if p.check(tkRBrace) || p.check(tkComma) || p.check(tkSemi) {
				if _, isLast := peekIsLast(p); isLast && (val.kind == eCall || val.kind == eVararg) {
					p.fs.setMultret(&val)
					p.fs.exp2nextReg(&val)
					arrayIdx++
					pending++
					flushArray(true)
					if !p.check(tkRBrace) {
						p.accept(tkComma)
						p.accept(tkSemi)
					}
					continue
				}
			}
			p.fs.exp2nextReg(&val)
			arrayIdx++
			pending++
			if pending >= 50 {
				flushArray(false)
			}
		}
		if !p.accept(tkComma) {
			p.accept(tkSemi)
		}
	}
	flushArray(false)
	p.expect(tkRBrace)
	p.fs.proto.Code[pc] = encodeABC(OpNewTable, decodeA(p.fs.proto.Code[pc]), floatByte(arrayIdx), 0)
	return expDesc{kind: eNonReloc, info: reg, t: noJump, f: noJump}
}

func peekIsLast(p *parser) (token, bool) {
	return p.lex.cur, p.lex.peek().kind == tkRBrace
}

// floatByte packs a size hint the way NEWTABLE's B/C fields do
// (spec.md §4.11: "floating-point byte... 5-bit mantissa x 3-bit
// exponent"): counts below 16 are stored exactly, larger counts keep
// only their top four bits and so round down. vm.go's NEWTABLE decodes
// the byte back into the array size it pre-allocates.
func floatByte(n int) int {
	if n < 8 {
		return n
	}
	e := 0
	for n >= 1<<(e+4) {
		e++
	}
	m := n >> uint(e)
	return (e+1)<<3 | (m & 7)
}
