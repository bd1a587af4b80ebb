package ember

// accountBytes implements spec.md §4.1: every allocation site reports
// its size delta here, which feeds the GC debt counter that drives
// step()'s incremental pacing. Go's runtime does the actual
// allocation; this function exists so every object/array/table grow
// path participates in the same debt accounting the reference
// implementation derives from a single realloc primitive.
func (g *globalState) accountBytes(delta int64) {
	g.gc.totalBytes += delta
	g.gc.gcDebt += delta
	if g.gc.gcDebt > 0 && g.gc.running {
		g.gc.step()
	}
}

// Rough per-object byte costs used to feed accountBytes at every
// constructor/grow site. These are approximations of the struct
// layouts they price (Go doesn't expose the reference allocator's
// exact block sizes), close enough for the debt counter's purpose:
// pacing step() proportionally to actual heap growth, not billing to
// the byte.
const (
	valueSize       = 48 // Kind + bool + int64 + float64 + uintptr + interface
	tableNodeSize   = valueSize*2 + 16
	stringOverhead  = 40
	tableOverhead   = 56
	closureOverhead = 64
	upvalueSize     = 8
	protoOverhead   = 96
	threadOverhead  = 128
	userdataOverhead = 48
)

// growLimit computes the next doubled capacity for a vector of size
// cur, capped at limit, and reports a "too many X" error once cur has
// reached limit. No allocation site calls it; growStack applies its
// own vm.maxstack ceiling.
func growLimit(cur, limit int, what string, th *Thread) (int, error) {
	if cur >= limit {
		return 0, newRuntimeError(th, "too many %s (limit is %d)", what, limit)
	}
	next := cur * 2
	if next == 0 {
		next = 4
	}
	if next > limit {
		next = limit
	}
	return next, nil
}

// checkGC runs one emergency collection and reports ERRMEM if the
// allocator hook itself signals failure (spec.md §4.1). The allocation
// is not retried after the collection: whenever allocFails is set the
// result is ERRMEM.
func checkGC(g *globalState, allocFails bool) error {
	if !allocFails {
		return nil
	}
	g.gc.fullCollect(true)
	return errOutOfMemory
}
