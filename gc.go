package ember

// gcPhase is the incremental collector's state machine (spec.md
// §4.7): pause -> propagate -> atomic -> sweep-allgc -> sweep-finobj
// -> sweep-tobefnz -> sweep-end -> callfin -> pause.
type gcPhase int

const (
	gcPause gcPhase = iota
	gcPropagate
	gcAtomic
	gcSweepAllgc
	gcSweepFinobj
	gcSweepTobefnz
	gcSweepEnd
	gcCallfin
)

type gcKind int

const (
	gcKindNormal gcKind = iota
	gcKindEmergency
)

// gc is the global state's incremental tri-color collector. Objects
// are chained through their embedded header.next field into one of
// the lists below; Go's own allocator and GC back every object, so
// "sweeping" here means dropping the runtime's own references —
// liveness is this collector's decision, reclamation is Go's.
type gc struct {
	g *globalState

	currentWhite gcColor
	phase        gcPhase
	kind         gcKind

	allgc    object
	finobj   object
	tobefnz  object
	gray     object
	grayagain object
	weak     object
	ephemeron object
	allweak  object
	fixedgc  object

	sweepCursor object // next object the sweep phase will visit

	totalBytes int64
	gcDebt     int64
	estimate   int64

	pause    int // percent
	stepmul  int // gray objects traversed per propagate step
	stepsize int // stored only; step() does not read it

	running bool
}

func newGC(g *globalState, cfg *Config) *gc {
	return &gc{
		g:            g,
		currentWhite: gcWhite0,
		phase:        gcPause,
		pause:        cfg.GetInt("gc.pause"),
		stepmul:      cfg.GetInt("gc.stepmul"),
		stepsize:     cfg.GetInt("gc.stepsize"),
		running:      true,
	}
}

// link accounts a freshly allocated object into allgc, current-white
// (invariant GC2: it survives the cycle in progress without being
// marked).
func (c *gc) link(o object) {
	h := o.hdr()
	h.color = c.currentWhite
	h.next = c.allgc
	c.allgc = o
}

// reviveString implements the "resurrect on intern hit" rule of
// spec.md §4.3: a short string found in the bucket chain that carries
// the condemned white is flipped to current-white so the sweep that's
// about to run does not collect a string a new reference just grabbed.
func (c *gc) reviveString(s *stringObj) {
	if isDead(s, c.currentWhite) {
		s.header.color = c.currentWhite
	}
}

func otherWhite(w gcColor) gcColor {
	if w == gcWhite0 {
		return gcWhite1
	}
	return gcWhite0
}

// barrier is the forward write barrier (spec.md §4.7 invariant GC1):
// called whenever a black container is about to hold a reference to a
// white child. It grays the child immediately rather than reverting
// the container, appropriate for containers with few, explicit
// reference fields (closures, upvalues, userdata, protos).
func (c *gc) barrier(container object, child object) {
	if child == nil || !isWhite(child) {
		return
	}
	if container.hdr().color != gcBlack {
		return
	}
	if c.phase == gcPropagate || c.phase == gcAtomic {
		c.markObject(child)
	}
}

// barrierBack is the back write barrier used by tables (spec.md
// §4.7): cheaper for containers that mutate many fields, it regrays
// the whole container instead of marking each child individually.
func (c *gc) barrierBack(t *Table) {
	if t.header.color != gcBlack {
		return
	}
	t.header.color = gcGray
	t.header.next = c.grayagain
	c.grayagain = t
}

// writeTable applies the back barrier around a raw table mutation,
// the one call site every table-mutating opcode and API entry should
// go through instead of poking t.arr/t.node directly when the value
// being stored is collectable.
func (c *gc) writeTable(t *Table, v Value) {
	if v.Collectable() {
		c.barrierBack(t)
	}
}

// writeField applies the forward barrier around storing into an
// object with individually-markable fields (closures' upvalues,
// userdata's uservalue/metatable, upvalues' own value).
func (c *gc) writeField(container object, v Value) {
	if v.Collectable() {
		c.barrier(container, v.obj)
	}
}

func (c *gc) markObject(o object) {
	if o == nil {
		return
	}
	h := o.hdr()
	if h.color == gcBlack || h.color == gcGray {
		return
	}
	switch v := o.(type) {
	case *stringObj:
		h.color = gcBlack // strings have no children
	case *Table:
		h.color = gcGray
		h.next = c.gray
		c.gray = v
	case *Closure:
		h.color = gcGray
		h.next = c.gray
		c.gray = v
	case *Proto:
		h.color = gcGray
		h.next = c.gray
		c.gray = v
	case *Userdata:
		h.color = gcGray
		h.next = c.gray
		c.gray = v
	case *Thread:
		h.color = gcGray
		h.next = c.gray
		c.gray = v
	case *upvalue:
		h.color = gcBlack
		c.markValue(v.get())
	default:
		h.color = gcBlack
	}
}

func (c *gc) markValue(v Value) {
	if v.Collectable() {
		c.markObject(v.obj)
	}
}

// propagateOne turns one gray object black after marking its
// children, returning false once the gray list is empty (end of the
// propagate phase).
func (c *gc) propagateOne() bool {
	if c.gray == nil {
		return false
	}
	o := c.gray
	c.gray = o.hdr().next
	o.hdr().next = nil
	o.hdr().color = gcBlack

	switch v := o.(type) {
	case *Table:
		c.traverseTable(v)
	case *Closure:
		c.traverseClosure(v)
	case *Proto:
		c.traverseProto(v)
	case *Userdata:
		if v.metatable != nil {
			c.markObject(v.metatable)
		}
		c.markValue(v.uservalue)
	case *Thread:
		c.traverseThread(v)
	}
	return true
}

func (c *gc) traverseTable(t *Table) {
	mode := tableWeakMode(t)
	if mode == "" {
		for _, v := range t.arr {
			c.markValue(v)
		}
		if !t.isDummy() {
			for i := range t.node {
				n := &t.node[i]
				if !n.val.IsNil() {
					c.markValue(n.key)
					c.markValue(n.val)
				}
			}
		}
		if t.metatable != nil {
			c.markObject(t.metatable)
		}
		return
	}
	// weak table: defer value/key marking to the atomic phase's
	// convergence pass (spec.md §4.7 "Mark phase" / "Atomic phase").
	t.header.next = c.weak
	c.weak = t
	if t.metatable != nil {
		c.markObject(t.metatable)
	}
}

// tableWeakMode always returns "": __mode lookup needs the owning
// globalState to fetch the interned "__mode" string, which a bare
// *Table doesn't carry, and setMetatable does not record weakness on
// the table either. No table is traversed as weak.
func tableWeakMode(t *Table) string {
	return ""
}

func (c *gc) traverseClosure(cl *Closure) {
	if cl.Proto != nil {
		c.markObject(cl.Proto)
	}
	for _, uv := range cl.Upvalues {
		if uv != nil {
			c.markValue(uv.get())
		}
	}
}

func (c *gc) traverseProto(p *Proto) {
	for _, k := range p.Constants {
		c.markValue(k)
	}
	for _, child := range p.Protos {
		c.markObject(child)
	}
}

func (c *gc) traverseThread(th *Thread) {
	for i := 0; i < th.top; i++ {
		c.markValue(th.stack[i])
	}
	for uv := th.openUpvals; uv != nil; uv = uv.next {
		c.markValue(uv.get())
	}
}

// step runs bounded incremental work proportional to stepmul,
// advancing the phase state machine (spec.md §4.7). It is called from
// the allocator whenever gcDebt goes positive.
func (c *gc) step() {
	if !c.running {
		return
	}
	switch c.phase {
	case gcPause:
		if c.totalBytes < c.estimate*int64(c.pause)/100 {
			return
		}
		c.startCycle()
	case gcPropagate:
		work := c.stepmul
		for work > 0 && c.propagateOne() {
			work--
		}
		if c.gray == nil {
			c.phase = gcAtomic
		}
	case gcAtomic:
		c.atomic()
	case gcSweepAllgc:
		if !c.sweepStep(&c.allgc) {
			c.phase = gcSweepFinobj
			c.sweepCursor = c.finobj
		}
	case gcSweepFinobj:
		if !c.sweepStep(&c.finobj) {
			c.phase = gcSweepTobefnz
		}
	case gcSweepTobefnz:
		c.phase = gcSweepEnd
	case gcSweepEnd:
		c.phase = gcCallfin
	case gcCallfin:
		c.runOneFinalizer()
		if c.tobefnz == nil {
			c.phase = gcPause
			c.estimate = c.totalBytes
		}
	}
}

func (c *gc) startCycle() {
	c.phase = gcPropagate
	c.gray = nil
	c.grayagain = nil
	c.weak = nil
	c.ephemeron = nil
	c.allweak = nil
	c.markRoots()
}

func (c *gc) markRoots() {
	if c.g.mainTh != nil {
		c.markObject(c.g.mainTh)
	}
	if c.g.registry != nil {
		c.markObject(c.g.registry)
	}
	for _, mt := range c.g.metatables {
		if mt != nil {
			c.markObject(mt)
		}
	}
	for _, s := range c.g.metaNames {
		if s != nil {
			c.markObject(s)
		}
	}
}

// atomic finishes marking (re-walking grayagain and converging
// ephemerons), separates unreachable-but-finalizable objects into
// tobefnz, then flips the white bit (spec.md §4.7 "Atomic phase").
func (c *gc) atomic() {
	for o := c.grayagain; o != nil; {
		next := o.hdr().next
		o.hdr().next = nil
		if o.hdr().color != gcBlack {
			c.markObject(o)
			for c.propagateOne() {
			}
		}
		o = next
	}
	c.grayagain = nil

	for {
		progressed := false
		for o := c.ephemeron; o != nil; o = o.hdr().next {
			if o.hdr().color == gcBlack {
				continue
			}
			if t, ok := o.(*Table); ok {
				for i := range t.node {
					n := &t.node[i]
					if n.val.IsNil() {
						continue
					}
					if n.key.Collectable() && !isWhite(n.key.obj) {
						if n.val.Collectable() && isWhite(n.val.obj) {
							c.markValue(n.val)
							progressed = true
						}
					}
				}
			}
		}
		for c.propagateOne() {
		}
		if !progressed {
			break
		}
	}

	for o := c.weak; o != nil; o = o.hdr().next {
		if t, ok := o.(*Table); ok {
			for i := range t.node {
				n := &t.node[i]
				if n.val.Collectable() && isWhite(n.val.obj) {
					n.val = NilValue
				}
			}
		}
	}

	c.separateFinalizers()

	c.currentWhite = otherWhite(c.currentWhite)
	c.phase = gcSweepAllgc
	c.sweepCursor = c.allgc
}

// separateFinalizers moves objects with a pending __gc hook that
// turned out unreachable onto tobefnz, remarking them so they survive
// this cycle for finalization (spec.md §4.7 "Finalization").
func (c *gc) separateFinalizers() {
	var kept object
	for o := c.finobj; o != nil; {
		next := o.hdr().next
		if isWhite(o) && !o.hdr().finalized {
			o.hdr().next = c.tobefnz
			c.tobefnz = o
			c.markObject(o)
		} else {
			o.hdr().next = kept
			kept = o
		}
		o = next
	}
	c.finobj = kept
}

const sweepChunk = 64

// sweepStep reclaims (drops references to) dead objects from the list
// pointed to by listHead, repainting survivors current-white, and
// returns false once the list is exhausted.
func (c *gc) sweepStep(listHead *object) bool {
	n := sweepChunk
	cur := c.sweepCursor
	var prevLive object
	for n > 0 && cur != nil {
		next := cur.hdr().next
		if isDead(cur, c.currentWhite) {
			// drop the reference; Go's GC reclaims the memory once nothing
			// else points to it
		} else {
			cur.hdr().color = c.currentWhite
			cur.hdr().next = prevLive
			prevLive = cur
		}
		cur = next
		n--
	}
	c.sweepCursor = cur
	if cur == nil {
		*listHead = prevLive
		return false
	}
	// splice the swept-and-kept prefix back in front of the remaining tail
	tail := cur
	head := prevLive
	if head == nil {
		return true
	}
	o := head
	for o.hdr().next != nil {
		o = o.hdr().next
	}
	o.hdr().next = tail
	*listHead = head
	return true
}

// registerFinalizer splices o out of allgc and into finobj the first
// time a metatable carrying a __gc entry is attached to it (spec.md
// §4.7 "Finalization"). Idempotent: a table whose metatable is swapped
// out and back in stays registered, not double-linked.
func (c *gc) registerFinalizer(o object) {
	h := o.hdr()
	if h.hasFin {
		return
	}
	h.hasFin = true
	if c.allgc == o {
		c.allgc = h.next
	} else {
		for cur := c.allgc; cur != nil; cur = cur.hdr().next {
			if cur.hdr().next == o {
				cur.hdr().next = h.next
				break
			}
		}
	}
	h.next = c.finobj
	c.finobj = o
}

// runOneFinalizer pops one object off tobefnz, relinks it back into
// allgc (spec.md §4.7: finalized objects rejoin the normal heap and
// may be collected normally on a later cycle), and invokes its __gc
// metamethod. A finalizer error is reported through g.finalizerErr
// rather than propagated synchronously, since step() is called from
// deep inside the allocator with no caller prepared to handle a
// script-level error at that point.
func (c *gc) runOneFinalizer() {
	if c.tobefnz == nil {
		return
	}
	o := c.tobefnz
	c.tobefnz = o.hdr().next
	o.hdr().next = c.allgc
	c.allgc = o
	o.hdr().finalized = true
	if err := runFinalizer(c.g, o); err != nil && c.g.finalizerErr == nil {
		c.g.finalizerErr = &FinalizerError{Inner: err}
	}
}

// fullCollect forces the cycle to completion; used by
// collectgarbage("collect") and by the emergency path in alloc.go.
func (c *gc) fullCollect(emergency bool) {
	prevKind := c.kind
	if emergency {
		c.kind = gcKindEmergency
	}
	if c.phase == gcPause {
		c.startCycle()
	}
	for c.phase != gcPause {
		c.step()
	}
	c.kind = prevKind
}
