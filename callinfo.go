package ember

// ciStatus is the bitset of per-frame flags spec.md §3 "Call info
// frame" lists (is-Ember, hook-active, tail-called, yieldable
// protected call, using __lt for __le, running finalizer).
type ciStatus uint16

const (
	cistEmber    ciStatus = 1 << iota // frame runs compiled bytecode, not a native func
	cistHookYield                     // frame yielded from inside a line/count hook
	cistTail                          // frame was entered by TAILCALL, reusing its caller's slot
	cistYpcall                        // frame is a yieldable pcall (pcallk) boundary
	cistLeq                           // __le computed as "not (b < a)"; negate the result on resume
	cistFin                           // frame is running a __gc finalizer
	cistFresh                         // frame is the outermost one of this host-API entry (stop here on RETURN)
)

// continuation is what callk/pcallk record so a yield across a native
// boundary can resume: k is invoked with the thread, the status the
// resume completed with, and the opaque ctx the caller supplied.
type continuation func(th *Thread, status ErrKind, ctx int) ([]Value, error)

// CallInfo is one activation record, script or native, linked into
// the owning Thread's frame list (spec.md §3 "Call info frame";
// §4.12's dispatch loop walks this list via previous/next on
// call/return/tailcall).
type CallInfo struct {
	previous, next *CallInfo

	fn  int // stack slot holding the callee (registers are fn+1, fn+2, ...)
	top int // highest stack slot this frame may use

	// script frame fields (valid when status&cistEmber != 0)
	proto   *Proto
	base    int // stack slot of register 0
	savedpc int // index into proto.Code; the instruction about to execute/resume at
	closure *Closure
	varargs []Value

	// native frame fields (valid when status&cistEmber == 0)
	cont      continuation
	ctx       int
	savedErrf int // stack index of the error handler active when this frame was entered

	nresults int // LUA_MULTRET (-1) means "as many as produced"
	status   ciStatus
}

func (ci *CallInfo) isEmber() bool { return ci.status&cistEmber != 0 }

// currentLine maps this frame's savedpc to a source line via its
// prototype's line-info table (spec.md §4.15).
func (ci *CallInfo) currentLine() int {
	if ci.proto == nil || ci.savedpc < 0 || ci.savedpc >= len(ci.proto.LineInfo) {
		return -1
	}
	return ci.proto.LineInfo[ci.savedpc]
}
