package ember

// ThreadStatus is a coroutine's run status (spec.md §4.13).
type ThreadStatus int

const (
	ThreadOK ThreadStatus = iota
	ThreadSuspended
	ThreadRunning
	ThreadNormal // resumed another coroutine; itself not running, not resumable
	ThreadDead
)

func (s ThreadStatus) String() string {
	switch s {
	case ThreadOK:
		return "ok"
	case ThreadSuspended:
		return "suspended"
	case ThreadRunning:
		return "running"
	case ThreadNormal:
		return "normal"
	case ThreadDead:
		return "dead"
	}
	return "?"
}

// Thread is a coroutine: an operand stack, a call-frame list, the
// open-upvalue chain rooted at it, and the yield plumbing (spec.md §3
// "Thread (coroutine)", §4.13). The main thread is a Thread like any
// other, just never resumed by a coroutine.resume call.
type Thread struct {
	header

	global *globalState

	stack []Value
	top   int // index of the first free stack slot

	baseCI *CallInfo // pooled first frame, reused across shallow calls
	ci     *CallInfo // currently executing frame

	openUpvals *upvalue // sorted by descending stackIdx

	status ThreadStatus
	nny    int // count of non-yieldable native calls currently on this thread's C-equivalent stack

	errfunc int // stack index of the active error handler, or 0

	resumeCh chan []Value // see coroutine.go: the goroutine+channel rendez-vous pair
	yieldCh  chan yieldMsg
	done     bool

	hook *hookState // see debug.go; nil when no hook is installed
}

func (t *Thread) hdr() *header    { return &t.header }
func (t *Thread) objType() objType { return objThread }

// newThread allocates a Thread with a small initial stack, wired into
// the global state's GC list. The main thread and every
// coroutine.create result both go through this constructor.
func newThread(g *globalState) *Thread {
	th := &Thread{global: g, stack: make([]Value, initialStackSize)}
	th.header.typ = objThread
	if g != nil {
		th.header.color = g.gc.currentWhite
		g.gc.link(th)
		g.accountBytes(threadOverhead + int64(initialStackSize)*valueSize)
	}
	th.baseCI = &CallInfo{fn: 0, top: initialStackSize - 1}
	th.ci = th.baseCI
	return th
}

const initialStackSize = 64

func (t *Thread) currentCallInfo() *CallInfo { return t.ci }

// globals returns the _ENV table of the main chunk's sole upvalue;
// stored at a well-known registry key rather than as a field so it is
// reachable (and mutable by scripts) the same way the registry's other
// entries are.
func (t *Thread) globals() *Table {
	v := t.global.registry.rawGetInt(registryGlobals)
	if v.IsTable() {
		return v.AsTable()
	}
	return nil
}

const (
	registryMainThread = 1
	registryGlobals    = 2
)

// pushCallInfo grows the frame list by one, reusing a previously
// popped frame where possible (spec.md §3's "one-frame pool to avoid
// churn across shallow calls").
func (t *Thread) pushCallInfo() *CallInfo {
	if t.ci.next == nil {
		ci := &CallInfo{previous: t.ci}
		t.ci.next = ci
	}
	t.ci = t.ci.next
	return t.ci
}

func (t *Thread) popCallInfo() {
	if t.ci.previous != nil {
		t.ci = t.ci.previous
	}
}

// growStack doubles capacity up to vm.maxstack, rebasing every active
// pointer into the old array (spec.md §4.8). Because Go slices move
// on growth, every stack reference elsewhere in the runtime is a plain
// int index, never a *Value — so "rebasing" here is simply a realloc
// plus copy.
func (t *Thread) growStack(need int) error {
	max := t.global.config.GetInt("vm.maxstack")
	if t.top+need <= len(t.stack) {
		return nil
	}
	newSize := len(t.stack) * 2
	for newSize < t.top+need {
		newSize *= 2
	}
	if newSize > max {
		if t.top+need > max {
			return newRuntimeError(t, "stack overflow")
		}
		newSize = max
	}
	oldSize := len(t.stack)
	grown := make([]Value, newSize)
	copy(grown, t.stack)
	t.stack = grown
	if t.global != nil {
		t.global.accountBytes(int64(newSize-oldSize) * valueSize)
	}
	return nil
}
