package ember

// exprKind is an expression descriptor's kind (spec.md §4.10): the
// compiler has no AST, so every expression is reduced to one of these
// as soon as it's parsed.
type exprKind int

const (
	eVoid exprKind = iota
	eNil
	eTrue
	eFalse
	eK        // index into the function's constant pool
	eKFlt     // an immediate float not yet in the pool
	eKInt     // an immediate int not yet in the pool
	eNonReloc // value already sitting in a known register
	eLocal
	eUpval
	eIndexed // t.info = table register, aux = RK key
	eJmp     // info = pc of a pending test+jump
	eRelocable
	eCall
	eVararg
)

const noJump = -1

// expDesc is the expression descriptor of spec.md §4.10: kind plus
// the true/false patch-list heads used by short-circuit and/or and by
// comparisons.
type expDesc struct {
	kind exprKind
	info int // meaning depends on kind: reg, constant index, or pc
	aux  int // INDEXED's key RK operand
	fval float64
	ival int64
	t, f int // patch-list heads
}

func voidExpr() expDesc { return expDesc{kind: eVoid, t: noJump, f: noJump} }

func (e *expDesc) hasJumps() bool { return e.t != e.f }

func (e *expDesc) isConstant() bool {
	switch e.kind {
	case eNil, eTrue, eFalse, eK, eKFlt, eKInt:
		return true
	}
	return false
}

// patch list helpers: a list is chained through each JMP's sBx field,
// which we track here as plain int slices on the fly rather than by
// re-reading instructions, trading constant-factor speed for clarity
// (functionally equivalent to spec.md §4.10's pc-linked-list scheme).
type patchList struct {
	pcs []int
}

func newJump(fs *funcState) int {
	fs.emitJmp()
	return len(fs.proto.Code) - 1
}

func concatJump(fs *funcState, l1 *int, l2 int) {
	if l2 == noJump {
		return
	}
	if *l1 == noJump {
		*l1 = l2
		return
	}
	fs.jumpChain[l2] = append(fs.jumpChain[l2], *l1)
	*l1 = l2
}

// patchListToHere patches every pc chained from l to jump to the
// current instruction pointer.
func (fs *funcState) patchListToHere(l int) {
	fs.patchListTo(l, len(fs.proto.Code))
}

func (fs *funcState) patchListTo(l int, target int) {
	if l == noJump {
		return
	}
	seen := map[int]bool{}
	var walk func(pc int)
	walk = func(pc int) {
		if seen[pc] {
			return
		}
		seen[pc] = true
		fs.proto.Code[pc] = encodeAsBx(OpJmp, decodeA(fs.proto.Code[pc]), target-pc-1)
		for _, next := range fs.jumpChain[pc] {
			walk(next)
		}
	}
	walk(l)
}
