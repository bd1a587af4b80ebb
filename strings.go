package ember

// stringObj is the heap string object (spec.md §3 "String"). Short
// strings are interned and compared by pointer identity; long strings
// are heap-unique and compared by content, with their hash computed
// lazily on first keyed use.
type stringObj struct {
	header
	data       string
	hash       uint64
	hashed     bool
	long       bool
	bucketNext *stringObj // chains short strings within one interner bucket
}

func (s *stringObj) content() string { return s.data }
func (s *stringObj) length() int     { return len(s.data) }

// stringsEqual is short-string-pointer-equal, long-string-content-equal,
// exactly as spec.md §3/§4.3 require.
func stringsEqual(a, b *stringObj) bool {
	if a == b {
		return true
	}
	if a.long || b.long {
		return a.data == b.data
	}
	return false // two distinct short-string objects can never hold equal bytes
}

// fnv1a64 is the byte-hash used both by the intern table and, lazily,
// by long strings used as table keys. The reference implementation
// salts this with a per-runtime random seed to resist
// algorithmic-complexity attacks from attacker-controlled keys; Ember
// keeps that same defense via global.hashSeed.
func fnv1a64(seed uint64, data string) uint64 {
	h := seed ^ 0xcbf29ce484222325
	for i := 0; i < len(data); i++ {
		h ^= uint64(data[i])
		h *= 0x100000001b3
	}
	return h
}

func (s *stringObj) Hash(seed uint64) uint64 {
	if !s.hashed {
		s.hash = fnv1a64(seed, s.data)
		s.hashed = true
	}
	return s.hash
}

// interner implements C3: short-string uniquing in a resizable bucket
// table, plus an unconditional allocator for the long-string path.
type interner struct {
	buckets []*stringObj // singly linked via stringObj.bucketNext within this table
	count   int
	seed    uint64
	limit   int // spec.md config: strings.shortlimit
}

func newInterner(seed uint64, shortLimit int) *interner {
	return &interner{buckets: make([]*stringObj, 32), seed: seed, limit: shortLimit}
}

func (it *interner) bucketFor(h uint64) int { return int(h) & (len(it.buckets) - 1) }

// newShort interns s: hash, walk the bucket chain comparing length
// then bytes, return the existing object on a hit (resurrecting it if
// it was about to be collected — see gc.go reviveString), else
// allocate and insert.
func (it *interner) newShort(g *globalState, s string) *stringObj {
	h := fnv1a64(it.seed, s)
	idx := it.bucketFor(h)
	for cur := it.buckets[idx]; cur != nil; {
		next := cur.bucketNext
		if len(cur.data) == len(s) && cur.data == s {
			if g != nil {
				g.gc.reviveString(cur)
			}
			return cur
		}
		cur = next
	}

	obj := &stringObj{data: s, hash: h, hashed: true}
	obj.header.typ = objString
	if g != nil {
		obj.header.color = g.gc.currentWhite
		g.gc.link(obj)
		g.accountBytes(stringOverhead + int64(len(s)))
	}
	obj.bucketNext, it.buckets[idx] = it.buckets[idx], obj
	it.count++
	if it.count >= len(it.buckets) {
		it.grow()
	}
	return obj
}

func (it *interner) grow() {
	old := it.buckets
	it.buckets = make([]*stringObj, len(old)*2)
	it.count = 0
	for _, head := range old {
		for cur := head; cur != nil; {
			next := cur.bucketNext
			idx := it.bucketFor(cur.hash)
			cur.bucketNext, it.buckets[idx] = it.buckets[idx], cur
			it.count++
			cur = next
		}
	}
}

// shrink halves capacity; invoked by the GC string-table sweep when
// load factor drops to <= 1/4 (spec.md §4.3).
func (it *interner) shrink() {
	if len(it.buckets) <= 32 {
		return
	}
	old := it.buckets
	it.buckets = make([]*stringObj, len(old)/2)
	it.count = 0
	for _, head := range old {
		for cur := head; cur != nil; {
			next := cur.bucketNext
			idx := it.bucketFor(cur.hash)
			cur.bucketNext, it.buckets[idx] = it.buckets[idx], cur
			it.count++
			cur = next
		}
	}
}

// sweep drops buckets' references to dead (other-white) short strings
// so the GC sweep phase can reclaim them, then shrinks the table if
// the load factor collapsed.
func (it *interner) sweep(currentWhite gcColor) {
	for i, head := range it.buckets {
		var kept *stringObj
		for cur := head; cur != nil; {
			next := cur.bucketNext
			if isDead(cur, currentWhite) {
				it.count--
			} else {
				cur.bucketNext = kept
				kept = cur
			}
			cur = next
		}
		it.buckets[i] = kept
	}
	if it.count > 0 && it.count*4 <= len(it.buckets) {
		it.shrink()
	}
}

// newLong always allocates a fresh heap-unique string object and
// defers hashing until the string is first used as a table key.
func (g *globalState) newLongString(s string) *stringObj {
	obj := &stringObj{data: s, long: true}
	obj.header.typ = objString
	obj.header.color = g.gc.currentWhite
	g.gc.link(obj)
	g.accountBytes(stringOverhead + int64(len(s)))
	return obj
}

// NewString is the host-facing constructor: strings no longer than
// strings.shortlimit are interned, longer ones go through the
// heap-unique path.
func (g *globalState) NewString(s string) *stringObj {
	if len(s) <= g.strings.limit {
		return g.strings.newShort(g, s)
	}
	return g.newLongString(s)
}
