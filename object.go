package ember

// objType is the type byte stored in every heap object's header,
// mirroring the collectable variants a tagged Value's Kind can point
// at (spec.md §3 "Heap object common header").
type objType uint8

const (
	objString objType = iota
	objTable
	objClosure
	objUserdata
	objThread
	objProto
	objUpvalue
)

func (t objType) String() string {
	switch t {
	case objString:
		return "string"
	case objTable:
		return "table"
	case objClosure:
		return "function"
	case objUserdata:
		return "userdata"
	case objThread:
		return "thread"
	case objProto:
		return "proto"
	case objUpvalue:
		return "upvalue"
	}
	return "?"
}

// gcColor is the tri-color mark used by the incremental collector
// (spec.md §4.7, invariants GC1/GC2). white0/white1 alternate across
// cycles so "other white" objects from the previous cycle are exactly
// the ones condemned by the current sweep.
type gcColor uint8

const (
	gcWhite0 gcColor = iota
	gcWhite1
	gcGray
	gcBlack
)

// header is embedded (by value) in every heap object. next threads
// the object into exactly one of the GC's intrusive lists
// (allgc/finobj/tobefnz/gray/grayagain/weak/ephemeron/allweak) —
// objects move between lists by having their list owner relink next,
// never by copying.
type header struct {
	next      object
	typ       objType
	color     gcColor
	finalized bool
	fixed     bool
	hasFin    bool // already spliced into the gc's finobj list
}

func (h *header) hdr() *header { return h }

// object is implemented by every type that can live on the GC heap:
// *stringObj, *Table, *Closure, *Userdata, *Coroutine (Thread), *Proto.
type object interface {
	hdr() *header
	objType() objType
}

func (h *header) objType() objType { return h.typ }

func isWhite(o object) bool {
	if o == nil {
		return false
	}
	c := o.hdr().color
	return c == gcWhite0 || c == gcWhite1
}

// isDead reports whether o carries the *other* white — the color the
// current sweep condemns — rather than merely "some" white.
func isDead(o object, currentWhite gcColor) bool {
	if o == nil {
		return false
	}
	return isWhite(o) && o.hdr().color != currentWhite
}
