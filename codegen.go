package ember

// blockScope tracks one lexical block for break/goto resolution
// (spec.md §4.10 "Goto/labels"): break targets the nearest loop
// block's exit patch list; labels are scoped to the block that
// declares them.
type blockScope struct {
	parent     *blockScope
	isLoop     bool
	firstLocal int
	breakList  int
	labels     map[string]int // label name -> pc
	pendingGotos []pendingGoto
}

type pendingGoto struct {
	name string
	pc   int
	line int
}

// localInfo is one active local variable's slot and name, used both
// by the upvalue resolver and by debug local records.
type localInfo struct {
	name string
	reg  int
}

// funcState is the compiler's per-function working set: the Proto
// being built plus the register frontier and block/goto bookkeeping
// that only exist during compilation (spec.md §4.10).
type funcState struct {
	g      *globalState
	parent *funcState
	lex    *lexer

	proto *Proto

	freereg int
	actvars []localInfo

	block *blockScope

	jumpChain map[int][]int // pc -> other pcs chained to the same target (patch-list fan-in)

	constCache map[interface{}]int
}

func newFuncState(g *globalState, parent *funcState, lex *lexer, source string) *funcState {
	return &funcState{
		g: g, parent: parent, lex: lex,
		proto:      newProto(g, source),
		jumpChain:  map[int][]int{},
		constCache: map[interface{}]int{},
	}
}

func (fs *funcState) emit(i uint32, line int) int {
	fs.proto.Code = append(fs.proto.Code, i)
	fs.proto.LineInfo = append(fs.proto.LineInfo, line)
	if fs.g != nil {
		fs.g.accountBytes(12) // one uint32 instruction + one int line record
	}
	return len(fs.proto.Code) - 1
}

func (fs *funcState) emitABC(op Op, a, b, c int, line int) int { return fs.emit(encodeABC(op, a, b, c), line) }
func (fs *funcState) emitABx(op Op, a, bx int, line int) int   { return fs.emit(encodeABx(op, a, bx), line) }
func (fs *funcState) emitAsBx(op Op, a, sbx int, line int) int { return fs.emit(encodeAsBx(op, a, sbx), line) }

func (fs *funcState) emitJmp() int {
	return fs.emitAsBx(OpJmp, 0, noJump, fs.curLine())
}

func (fs *funcState) curLine() int {
	if fs.lex != nil {
		return fs.lex.cur.line
	}
	return 0
}

// reserveRegs bumps the register frontier, growing maxstacksize as
// needed (spec.md §4.10 "Register allocation").
func (fs *funcState) reserveRegs(n int) int {
	base := fs.freereg
	fs.freereg += n
	if fs.freereg > fs.proto.MaxStackSize {
		fs.proto.MaxStackSize = fs.freereg
	}
	return base
}

func (fs *funcState) freeReg(reg int) {
	if reg >= len(fs.actvars)+fs.loopDepthOffset() && reg == fs.freereg-1 {
		fs.freereg--
	}
}

func (fs *funcState) loopDepthOffset() int { return 0 }

// addConstant interns a constant Value into the pool, deduplicating
// via constCache so repeated literals share one slot.
func (fs *funcState) addConstant(key interface{}, v Value) int {
	if idx, ok := fs.constCache[key]; ok {
		return idx
	}
	idx := len(fs.proto.Constants)
	fs.proto.Constants = append(fs.proto.Constants, v)
	fs.constCache[key] = idx
	return idx
}

func (fs *funcState) stringConstant(s string) int {
	return fs.addConstant("s:"+s, StringValue(fs.g.NewString(s)))
}

func (fs *funcState) intConstant(i int64) int {
	return fs.addConstant(i, IntValue(i))
}

func (fs *funcState) floatConstant(f float64) int {
	return fs.addConstant(f, FloatValue(f))
}

// dischargeToReg forces e into register reg, emitting whatever
// load/move instruction its current kind needs.
func (fs *funcState) dischargeToReg(e *expDesc, reg int) {
	switch e.kind {
	case eNil:
		fs.emitABC(OpLoadNil, reg, 0, 0, fs.curLine())
	case eTrue:
		fs.emitABC(OpLoadBool, reg, 1, 0, fs.curLine())
	case eFalse:
		fs.emitABC(OpLoadBool, reg, 0, 0, fs.curLine())
	case eKInt:
		fs.emitABx(OpLoadK, reg, fs.intConstant(e.ival), fs.curLine())
	case eKFlt:
		fs.emitABx(OpLoadK, reg, fs.floatConstant(e.fval), fs.curLine())
	case eK:
		fs.emitABx(OpLoadK, reg, e.info, fs.curLine())
	case eLocal:
		if e.info != reg {
			fs.emitABC(OpMove, reg, e.info, 0, fs.curLine())
		}
	case eUpval:
		fs.emitABC(OpGetUpval, reg, e.info, 0, fs.curLine())
	case eIndexed:
		fs.emitABC(OpGetTable, reg, e.info, e.aux, fs.curLine())
	case eRelocable:
		fs.proto.Code[e.info] = patchInstructionA(fs.proto.Code[e.info], reg)
	case eNonReloc:
		if e.info != reg {
			fs.emitABC(OpMove, reg, e.info, 0, fs.curLine())
		}
	case eCall, eVararg:
		fs.proto.Code[e.info] = patchInstructionA(fs.proto.Code[e.info], reg)
	case eJmp:
		fs.emitABC(OpLoadBool, reg, 0, 1, fs.curLine())
		fs.patchListToHere(e.info)
		fs.emitABC(OpLoadBool, reg, 1, 0, fs.curLine())
	case eVoid:
		// nothing to materialize
	}
	e.kind = eNonReloc
	e.info = reg
}

// patchInstructionA rewrites a RELOCABLE instruction's A field once
// its destination register is finally known (spec.md §4.10:
// "RELOCABLE: an instruction whose A field is not yet filled").
func patchInstructionA(ins uint32, a int) uint32 {
	return encodeABC(decodeOp(ins), a, decodeB(ins), decodeC(ins))
}

// exp2nextReg discharges e into the next free register and consumes
// it (spec.md's "temporary operands are freed in reverse allocation
// order" is handled by callers freeing in LIFO order).
func (fs *funcState) exp2nextReg(e *expDesc) {
	fs.dischargeVars(e)
	fs.freeExpr(e)
	reg := fs.reserveRegs(1)
	fs.dischargeToReg(e, reg)
}

func (fs *funcState) exp2anyReg(e *expDesc) int {
	fs.dischargeVars(e)
	if e.kind == eNonReloc {
		return e.info
	}
	fs.exp2nextReg(e)
	return e.info
}

func (fs *funcState) dischargeVars(e *expDesc) {
	switch e.kind {
	case eLocal:
		e.kind = eNonReloc
	case eUpval:
		reg := fs.reserveRegs(1)
		fs.emitABC(OpGetUpval, reg, e.info, 0, fs.curLine())
		e.kind = eNonReloc
		e.info = reg
	case eIndexed:
		if !isK(e.aux) {
			fs.freeReg(e.aux)
		}
		fs.freeReg(e.info)
		reg := fs.reserveRegs(1)
		fs.emitABC(OpGetTable, reg, e.info, e.aux, fs.curLine())
		e.kind = eNonReloc
		e.info = reg
	case eCall:
		e.kind = eNonReloc
		e.info = decodeA(fs.proto.Code[e.info])
	case eVararg:
		fs.proto.Code[e.info] = encodeABC(OpVararg, decodeA(fs.proto.Code[e.info]), 2, 0)
		e.kind = eRelocable
	}
}

func (fs *funcState) freeExpr(e *expDesc) {
	if e.kind == eNonReloc {
		fs.freeReg(e.info)
	}
}

// exp2RK returns an RK operand for e: a constant-pool index with the
// high bit set if e is a literal, else a register.
func (fs *funcState) exp2RK(e *expDesc) int {
	switch e.kind {
	case eNil:
		return rkOperand(fs.addConstant("nil", NilValue))
	case eTrue:
		return rkOperand(fs.addConstant("true", TrueValue))
	case eFalse:
		return rkOperand(fs.addConstant("false", FalseValue))
	case eKInt:
		return rkOperand(fs.intConstant(e.ival))
	case eKFlt:
		return rkOperand(fs.floatConstant(e.fval))
	case eK:
		return rkOperand(e.info)
	}
	return fs.exp2anyReg(e)
}

// resolveLocal searches this function's active locals from the
// innermost declared backward.
func (fs *funcState) resolveLocal(name string) (int, bool) {
	for i := len(fs.actvars) - 1; i >= 0; i-- {
		if fs.actvars[i].name == name {
			return fs.actvars[i].reg, true
		}
	}
	return 0, false
}

// singleVarAux implements spec.md §4.10's upvalue search: a miss in
// the immediate parent recurses outward, threading a chain of
// upvalue-referent descriptors back down.
func (fs *funcState) singleVarAux(name string) expDesc {
	if reg, ok := fs.resolveLocal(name); ok {
		return expDesc{kind: eLocal, info: reg, t: noJump, f: noJump}
	}
	if idx, ok := fs.findUpvalue(name); ok {
		return expDesc{kind: eUpval, info: idx, t: noJump, f: noJump}
	}
	// global: _ENV[name]
	env := fs.singleVarAux("_ENV")
	key := expDesc{kind: eK, info: fs.stringConstant(name), t: noJump, f: noJump}
	return fs.indexedExpr(env, key)
}

func (fs *funcState) findUpvalue(name string) (int, bool) {
	for i, uv := range fs.proto.Upvalues {
		if uv.name == name {
			return i, true
		}
	}
	if fs.parent == nil {
		if name == "_ENV" {
			fs.proto.Upvalues = append(fs.proto.Upvalues, upvalDesc{name: "_ENV", fromStack: false, index: 0})
			return len(fs.proto.Upvalues) - 1, true
		}
		return 0, false
	}
	if reg, ok := fs.parent.resolveLocal(name); ok {
		fs.proto.Upvalues = append(fs.proto.Upvalues, upvalDesc{name: name, fromStack: true, index: reg})
		return len(fs.proto.Upvalues) - 1, true
	}
	if idx, ok := fs.parent.findUpvalue(name); ok {
		fs.proto.Upvalues = append(fs.proto.Upvalues, upvalDesc{name: name, fromStack: false, index: idx})
		return len(fs.proto.Upvalues) - 1, true
	}
	return 0, false
}

func (fs *funcState) indexedExpr(t expDesc, k expDesc) expDesc {
	reg := fs.exp2anyReg(&t)
	return expDesc{kind: eIndexed, info: reg, aux: fs.exp2RK(&k), t: noJump, f: noJump}
}

// declareLocal registers a new active local in the next free
// register, which the caller has typically just populated.
func (fs *funcState) declareLocal(name string) int {
	reg := fs.reserveRegs(1)
	fs.actvars = append(fs.actvars, localInfo{name: name, reg: reg})
	return reg
}

func (fs *funcState) enterBlock(isLoop bool) {
	fs.block = &blockScope{parent: fs.block, isLoop: isLoop, firstLocal: len(fs.actvars), breakList: noJump, labels: map[string]int{}}
}

func (fs *funcState) leaveBlock() {
	b := fs.block
	if len(fs.actvars) > b.firstLocal {
		// JMP with A != 0 closes upvalues >= R(A-1) without actually
		// branching anywhere useful; sBx=0 makes it a same-pc no-op jump.
		fs.emitAsBx(OpJmp, b.firstLocal+1, 0, fs.curLine())
	}
	fs.actvars = fs.actvars[:b.firstLocal]
	fs.freereg = len(fs.actvars)
	if b.isLoop {
		fs.patchListToHere(b.breakList)
	} else if b.parent != nil && b.breakList != noJump {
		concatJump(fs, &b.parent.breakList, b.breakList)
	}
	fs.block = b.parent
}
