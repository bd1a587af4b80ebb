package ember

import "fmt"

// tableNode is one hash-part entry: a key/value pair plus a
// next-offset relative link so a resize can relocate nodes en bloc
// without rewriting absolute pointers (spec.md §3 "Table").
type tableNode struct {
	key   Value
	val   Value
	next  int // relative offset to the next node in this key's chain, 0 = end
	dead  bool
}

// Table is the hybrid array+hash container (spec.md §3/§4.4): indices
// 1..len(array) live packed in arr, everything else lives in the
// open-addressed node table sized to a power of two.
type Table struct {
	header

	arr []Value

	node     []tableNode
	lastfree int // one past the highest slot not yet tried as a displacement target

	metatable *Table

	flags uint8 // per-event "no such metamethod" cache bits; nothing reads or sets them
}

func (t *Table) hdr() *header    { return &t.header }
func (t *Table) objType() objType { return objTable }

var dummyNode = [1]tableNode{}

func newTable(g *globalState, narr, nhash int) *Table {
	t := &Table{}
	t.header.typ = objTable
	if g != nil {
		t.header.color = g.gc.currentWhite
		g.gc.link(t)
		g.accountBytes(tableOverhead + int64(narr)*valueSize)
	}
	if narr > 0 {
		t.arr = make([]Value, narr)
	}
	if nhash > 0 {
		t.resizeHash(g, nhash)
	} else {
		t.node = dummyNode[:]
	}
	return t
}

func (t *Table) isDummy() bool { return len(t.node) == 1 && &t.node[0] == &dummyNode[0] }

func ceilPow2(n int) int {
	if n <= 0 {
		return 0
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (t *Table) resizeHash(g *globalState, n int) {
	size := ceilPow2(n)
	if size == 0 {
		t.node = dummyNode[:]
		t.lastfree = 0
		return
	}
	t.node = make([]tableNode, size)
	for i := range t.node {
		t.node[i].val = NilValue
	}
	if g != nil {
		g.accountBytes(int64(size) * tableNodeSize)
	}
	t.lastfree = size
}

func (t *Table) mainPosition(k Value) int {
	if len(t.node) == 0 || t.isDummy() {
		return 0
	}
	var h uint64
	switch k.Kind {
	case KInt:
		h = uint64(k.i)
	case KFloat:
		h = uint64(int64(k.f)) ^ uint64(len(t.node))
	case KBool:
		if k.b {
			h = 1
		}
	case KLightPtr:
		h = uint64(k.ptr)
	case KString:
		h = k.AsString().Hash(0)
	default:
		h = objectHashMix(k.obj)
	}
	return int(h & uint64(len(t.node)-1))
}

// objectHashMix gives object-identity keys (tables, closures, ...) a
// stable hash without relying on Go's map hashing, which isn't exposed
// for arbitrary pointers.
func objectHashMix(o object) uint64 {
	return fnv1a64(0xabad1dea, fmt.Sprintf("%p", o))
}

func (t *Table) getFree(from int) int {
	for i := from - 1; i >= 0; i-- {
		if t.node[i].val.IsNil() && t.node[i].key.IsNil() {
			return i
		}
	}
	return -1
}

// rawGet implements indexing without metamethods (spec.md §4.4
// "Lookup by integer key").
func (t *Table) rawGet(k Value) Value {
	k = k.Canonicalize()
	switch k.Kind {
	case KInt:
		if k.i >= 1 && int(k.i) <= len(t.arr) {
			return t.arr[k.i-1]
		}
	case KNil:
		return NilValue
	}
	if t.isDummy() {
		return NilValue
	}
	mp := t.mainPosition(k)
	for {
		n := &t.node[mp]
		if RawEqual(n.key, k) {
			return n.val
		}
		if n.next == 0 {
			return NilValue
		}
		mp += n.next
	}
}

func (t *Table) rawGetInt(i int) Value { return t.rawGet(IntValue(int64(i))) }
func (t *Table) rawGetStr(s *stringObj) Value { return t.rawGet(StringValue(s)) }

// rawSet implements insertion with Brent's variation (spec.md §4.4
// "Insert new key"): a colliding newcomer displaces the occupant only
// if that occupant isn't already sitting in its own main position.
func (t *Table) rawSet(g *globalState, k Value, v Value) {
	k = k.Canonicalize()
	if k.Kind == KInt && k.i >= 1 {
		idx := int(k.i)
		if idx <= len(t.arr) {
			t.arr[idx-1] = v
			return
		}
		if idx == len(t.arr)+1 && !v.IsNil() {
			t.arr = append(t.arr, v)
			if g != nil {
				g.accountBytes(valueSize)
			}
			t.migrateFromHash(g)
			return
		}
	}
	if v.IsNil() {
		t.removeKey(k)
		return
	}
	if t.isDummy() {
		t.resizeHash(g, 1)
	}
	mp := t.mainPosition(k)
	main := &t.node[mp]
	if !main.key.IsNil() || !main.val.IsNil() {
		if RawEqual(main.key, k) {
			main.val = v
			return
		}
		// walk existing chain for an update first
		cur := mp
		for t.node[cur].next != 0 {
			cur += t.node[cur].next
			if RawEqual(t.node[cur].key, k) {
				t.node[cur].val = v
				return
			}
		}
		otherMain := t.mainPosition(main.key)
		if otherMain != mp {
			// occupant is a displaced collider of otherMain; evict it
			free := t.getFree(len(t.node))
			if free < 0 {
				t.rehash(g, k)
				t.rawSet(g, k, v)
				return
			}
			prev := otherMain
			for prev+t.node[prev].next != mp {
				prev += t.node[prev].next
			}
			t.node[prev].next = free - prev
			t.node[free] = *main
			if main.next != 0 {
				t.node[free].next = mp + main.next - free
			}
			*main = tableNode{key: k, val: v}
			return
		}
		// occupant is in its main position: chain the new key elsewhere
		free := t.getFree(len(t.node))
		if free < 0 {
			t.rehash(g, k)
			t.rawSet(g, k, v)
			return
		}
		t.node[free] = tableNode{key: k, val: v}
		last := mp
		for t.node[last].next != 0 {
			last += t.node[last].next
		}
		t.node[last].next = free - last
		return
	}
	main.key = k
	main.val = v
}

// migrateFromHash pulls any keys the hash part holds that now fall
// into the (just-grown) array range back into the array.
func (t *Table) migrateFromHash(g *globalState) {
	if t.isDummy() {
		return
	}
	for {
		k := IntValue(int64(len(t.arr) + 1))
		v := t.rawGetHashOnly(k)
		if v.IsNil() {
			return
		}
		t.removeKey(k)
		t.arr = append(t.arr, v)
	}
}

func (t *Table) rawGetHashOnly(k Value) Value {
	if t.isDummy() {
		return NilValue
	}
	mp := t.mainPosition(k)
	for {
		n := &t.node[mp]
		if RawEqual(n.key, k) {
			return n.val
		}
		if n.next == 0 {
			return NilValue
		}
		mp += n.next
	}
}

// removeKey implements invariant T1: the slot keeps its key with a
// dead tag and a nil value so a chain walk in progress elsewhere is
// never broken.
func (t *Table) removeKey(k Value) {
	if t.isDummy() {
		return
	}
	mp := t.mainPosition(k)
	for {
		n := &t.node[mp]
		if RawEqual(n.key, k) {
			n.val = NilValue
			n.dead = true
			return
		}
		if n.next == 0 {
			return
		}
		mp += n.next
	}
}

// rehash grows the table to fit the existing keys plus one pending
// insert, following the array-sizing histogram of spec.md §4.4.
func (t *Table) rehash(g *globalState, pending Value) {
	var counts [64]int
	total := 0
	consider := func(k Value) {
		if k.Kind == KInt && k.i >= 1 && k.i < (1<<62) {
			bit := 0
			for (int64(1) << uint(bit)) < k.i {
				bit++
			}
			counts[bit]++
			total++
		}
	}
	for _, v := range t.arr {
		if !v.IsNil() {
			consider(IntValue(1))
		}
	}
	for i := range t.arr {
		if !t.arr[i].IsNil() {
			consider(IntValue(int64(i + 1)))
		}
	}
	if !t.isDummy() {
		for i := range t.node {
			if !t.node[i].val.IsNil() {
				consider(t.node[i].key)
			}
		}
	}
	if pending.Kind == KInt {
		consider(pending)
	}
	best, acc := 0, 0
	for b := 0; b < 64; b++ {
		acc += counts[b]
		if acc > (1<<uint(b))/2 {
			best = b + 1
		}
	}
	arrSize := 0
	if best > 0 {
		arrSize = 1 << uint(best)
	}

	var all []tableNode
	for i, v := range t.arr {
		if !v.IsNil() {
			all = append(all, tableNode{key: IntValue(int64(i + 1)), val: v})
		}
	}
	if !t.isDummy() {
		for i := range t.node {
			if !t.node[i].val.IsNil() {
				all = append(all, tableNode{key: t.node[i].key, val: t.node[i].val})
			}
		}
	}

	t.arr = make([]Value, arrSize)
	if g != nil {
		g.accountBytes(int64(arrSize) * valueSize)
	}
	hashCount := 0
	for _, n := range all {
		if n.key.Kind == KInt && n.key.i >= 1 && int(n.key.i) <= arrSize {
			continue
		}
		hashCount++
	}
	t.resizeHash(g, hashCount)
	for _, n := range all {
		if n.key.Kind == KInt && n.key.i >= 1 && int(n.key.i) <= arrSize {
			t.arr[n.key.i-1] = n.val
			continue
		}
		t.rawSet(g, n.key, n.val)
	}
}

// Len implements invariant T2: a border, found by binary search over
// the array part with a fallback unbounded probe into the hash part.
func (t *Table) Len() int64 {
	if n := len(t.arr); n > 0 && !t.arr[n-1].IsNil() {
		// array is full to the end: the border may continue into the hash part
		j := int64(n)
		for !t.rawGetHashOnly(IntValue(j + 1)).IsNil() {
			j++
			if j >= 1<<62 {
				break
			}
		}
		return j
	}
	if len(t.arr) == 0 || t.arr[0].IsNil() {
		if len(t.arr) > 0 {
			return 0
		}
	}
	lo, hi := 0, len(t.arr)
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if t.arr[mid-1].IsNil() {
			hi = mid
		} else {
			lo = mid
		}
	}
	return int64(lo)
}

// Next implements the stateless iteration protocol (`next`): given the
// previously returned key (NilValue to start), returns the following
// (key, value) pair or (Nil, Nil) at the end.
func (t *Table) Next(k Value) (Value, Value, bool) {
	idx := 0
	if !k.IsNil() {
		kk := k.Canonicalize()
		if kk.Kind == KInt && kk.i >= 1 && int(kk.i) <= len(t.arr) {
			idx = int(kk.i)
		} else {
			idx = len(t.arr) + t.nodeIndexOf(kk) + 1
		}
	}
	for i := idx; i < len(t.arr); i++ {
		if !t.arr[i].IsNil() {
			return IntValue(int64(i + 1)), t.arr[i], true
		}
	}
	start := idx - len(t.arr)
	if start < 0 {
		start = 0
	}
	if t.isDummy() {
		return NilValue, NilValue, true
	}
	for i := start; i < len(t.node); i++ {
		if !t.node[i].val.IsNil() {
			return t.node[i].key, t.node[i].val, true
		}
	}
	return NilValue, NilValue, true
}

func (t *Table) nodeIndexOf(k Value) int {
	if t.isDummy() {
		return -1
	}
	for i := range t.node {
		if RawEqual(t.node[i].key, k) {
			return i
		}
	}
	return -1
}
