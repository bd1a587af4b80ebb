package ember

// globalState is the one-per-runtime struct shared by every thread
// (spec.md §3 "Global state"). It owns the GC, the string intern
// table, the registry, and the cached metamethod-name strings; a
// Thread only ever reaches these through its global field.
type globalState struct {
	gc      *gc
	strings *interner

	registry *Table // root table: well-known indices hold the main thread and _G
	mainTh   *Thread

	metatables [int(KThread) + 1]*Table // per-Kind fallback metatable, or nil

	metaNames [numMetaEvents]*stringObj // interned, permanently fixed

	hashSeed uint64

	config *Config

	// finalizerErr latches the first error raised by a __gc metamethod
	// run from gc.go's runOneFinalizer (spec.md §7 ERRGCMM); step() runs
	// deep inside the allocator with no caller ready to handle a
	// script-level error synchronously, so CollectGarbage/PCall surface
	// it on their next check instead.
	finalizerErr error
}

// metaEvent enumerates the fast metamethod names the VM consults on
// every arithmetic/indexing op; caching them as pre-interned strings
// avoids re-hashing "__index" on every table miss.
type metaEvent int

const (
	metaIndex metaEvent = iota
	metaNewIndex
	metaCall
	metaAdd
	metaSub
	metaMul
	metaMod
	metaPow
	metaDiv
	metaIDiv
	metaBAnd
	metaBOr
	metaBXor
	metaShl
	metaShr
	metaUnm
	metaBNot
	metaLen
	metaEq
	metaLt
	metaLe
	metaConcat
	metaGC
	metaMode
	metaName
	metaToString
	metaClose
	numMetaEvents
)

var metaEventNames = [numMetaEvents]string{
	metaIndex:    "__index",
	metaNewIndex: "__newindex",
	metaCall:     "__call",
	metaAdd:      "__add",
	metaSub:      "__sub",
	metaMul:      "__mul",
	metaMod:      "__mod",
	metaPow:      "__pow",
	metaDiv:      "__div",
	metaIDiv:     "__idiv",
	metaBAnd:     "__band",
	metaBOr:      "__bor",
	metaBXor:     "__bxor",
	metaShl:      "__shl",
	metaShr:      "__shr",
	metaUnm:      "__unm",
	metaBNot:     "__bnot",
	metaLen:      "__len",
	metaEq:       "__eq",
	metaLt:       "__lt",
	metaLe:       "__le",
	metaConcat:   "__concat",
	metaGC:       "__gc",
	metaMode:     "__mode",
	metaName:     "__name",
	metaToString: "__tostring",
	metaClose:    "__close",
}

// newGlobalState wires a fresh runtime: an interner, a GC bound to it,
// an empty registry, and the fixed metamethod-name strings (which are
// allocated through the interner but marked fixed so the GC never
// sweeps them; see gc.go).
func newGlobalState(cfg *Config, seed uint64) *globalState {
	if cfg == nil {
		cfg = NewConfig()
	}
	g := &globalState{config: cfg, hashSeed: seed}
	g.strings = newInterner(seed, cfg.GetInt("strings.shortlimit"))
	g.gc = newGC(g, cfg)
	g.registry = newTable(g, 0, 2)
	for i, name := range metaEventNames {
		s := g.NewString(name)
		s.header.fixed = true
		g.metaNames[i] = s
	}
	return g
}

func (g *globalState) metaName(ev metaEvent) *stringObj { return g.metaNames[ev] }

// metatableFor returns the fallback metatable registered for a
// primitive Kind (tables and userdata also carry a per-instance
// metatable, consulted first by meta.go).
func (g *globalState) metatableFor(k Kind) *Table {
	if int(k) >= len(g.metatables) {
		return nil
	}
	return g.metatables[k]
}

func (g *globalState) setMetatableFor(k Kind, mt *Table) {
	g.metatables[k] = mt
}
