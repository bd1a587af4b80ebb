package ember

// upvalue is a shared variable cell (spec.md §3 "Upvalue cell",
// §4.5). While open, value aliases th.stack[stackIdx]; once closed,
// value is the cell's own storage and stackIdx is no longer
// meaningful. Open cells are threaded through a per-thread list sorted
// by descending stackIdx so find_or_create can stop at the first cell
// whose address is <= the target slot.
type upvalue struct {
	header

	owner    *Thread
	stackIdx int
	closed   bool
	value    Value

	next *upvalue // next cell in owner.openUpvals, or nil
}

func (u *upvalue) hdr() *header     { return &u.header }
func (u *upvalue) objType() objType { return objUpvalue } // upvalues aren't Values themselves; tag is never read off a Kind

func (u *upvalue) get() Value {
	if u.closed {
		return u.value
	}
	return u.owner.stack[u.stackIdx]
}

func (u *upvalue) set(v Value) {
	if u.closed {
		u.value = v
		return
	}
	u.owner.stack[u.stackIdx] = v
}

// findOrCreateUpvalue implements spec.md §4.5's
// find_or_create_open_upvalue: walk th's open list (descending
// address) for a cell already aliasing stackIdx; otherwise splice a
// new one in at the sorted position.
func findOrCreateUpvalue(th *Thread, stackIdx int) *upvalue {
	var prev *upvalue
	cur := th.openUpvals
	for cur != nil && cur.stackIdx > stackIdx {
		prev = cur
		cur = cur.next
	}
	if cur != nil && cur.stackIdx == stackIdx {
		return cur
	}
	uv := &upvalue{owner: th, stackIdx: stackIdx}
	uv.next = cur
	if prev == nil {
		th.openUpvals = uv
	} else {
		prev.next = uv
	}
	return uv
}

// closeUpvaluesDownTo implements spec.md §4.5's
// close_upvalues_down_to: every open cell aliasing a slot >= level is
// closed, copying the stack value into the cell's own storage.
func closeUpvaluesDownTo(th *Thread, level int) {
	for th.openUpvals != nil && th.openUpvals.stackIdx >= level {
		uv := th.openUpvals
		uv.value = th.stack[uv.stackIdx]
		uv.closed = true
		th.openUpvals = uv.next
		uv.next = nil
	}
}
