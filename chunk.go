package ember

import (
	"encoding/binary"
	"fmt"
	"math"
)

func f64bits(f float64) uint64      { return math.Float64bits(f) }
func f64frombits(b uint64) float64  { return math.Float64frombits(b) }

// Binary chunk header constants (spec.md §4.11 "Binary chunk
// format"). The signature and endianness test literal let a loader
// reject a chunk produced by an incompatible build before trusting
// any of its sizes.
var chunkSignature = [4]byte{0x1b, 'E', 'm', 'b'}

const (
	chunkVersionMajor = 1
	chunkVersionMinor = 0
	chunkFormat       = 0
)

var chunkEndianTest = [6]byte{0x19, 0x93, '\r', '\n', 0x1a, '\n'}

const (
	chunkSizeofInt         = 8
	chunkSizeofSizeT       = 8
	chunkSizeofInstruction = 4
	chunkSizeofInteger     = 8
	chunkSizeofNumber      = 8
	chunkTestInt           = 0x5678
	chunkTestNumber        = 370.5
)

// constTag identifies a Proto.Constants entry's runtime Kind in the
// serialized form (spec.md §4.11 "constants (tag byte + payload per
// type)").
type constTag byte

const (
	tagNil constTag = iota
	tagFalse
	tagTrue
	tagInt
	tagFloat
	tagShortStr
	tagLongStr
)

type chunkWriter struct {
	buf []byte
}

func (w *chunkWriter) byte(b byte) { w.buf = append(w.buf, b) }

func (w *chunkWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *chunkWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *chunkWriter) i64(v int64)     { w.u64(uint64(v)) }
func (w *chunkWriter) f64(v float64)   { w.u64(f64bits(v)) }

// str writes a size-prefixed string: 0 for nil, otherwise len+1
// fitting in one byte (<=253 total), else an 0xFF escape followed by
// a size_t length (spec.md §4.11).
func (w *chunkWriter) str(s string, present bool) {
	if !present {
		w.byte(0)
		return
	}
	n := len(s)
	if n+1 <= 253 {
		w.byte(byte(n + 1))
	} else {
		w.byte(0xFF)
		w.u64(uint64(n))
	}
	w.buf = append(w.buf, s...)
}

func (w *chunkWriter) header() {
	w.buf = append(w.buf, chunkSignature[:]...)
	w.byte(chunkVersionMajor<<4 | chunkVersionMinor)
	w.byte(chunkFormat)
	w.buf = append(w.buf, chunkEndianTest[:]...)
	w.byte(chunkSizeofInt)
	w.byte(chunkSizeofSizeT)
	w.byte(chunkSizeofInstruction)
	w.byte(chunkSizeofInteger)
	w.byte(chunkSizeofNumber)
	w.i64(chunkTestInt)
	w.f64(chunkTestNumber)
}

func (w *chunkWriter) proto(p *Proto) {
	w.str(p.Source, p.Source != "")
	w.u32(uint32(p.LineDefined))
	w.u32(uint32(p.LastLineDefined))
	w.byte(byte(p.NumParams))
	w.byte(boolByte(p.IsVararg))
	w.byte(byte(p.MaxStackSize))

	w.u32(uint32(len(p.Code)))
	for _, ins := range p.Code {
		w.u32(ins)
	}

	w.u32(uint32(len(p.Constants)))
	for _, k := range p.Constants {
		w.constant(k)
	}

	w.u32(uint32(len(p.Protos)))
	for _, child := range p.Protos {
		w.proto(child)
	}

	w.u32(uint32(len(p.Upvalues)))
	for _, uv := range p.Upvalues {
		w.byte(boolByte(uv.fromStack))
		w.byte(byte(uv.index))
	}

	w.u32(uint32(len(p.LineInfo)))
	for _, l := range p.LineInfo {
		w.u32(uint32(l))
	}
	w.u32(uint32(len(p.Locals)))
	for _, lv := range p.Locals {
		w.str(lv.name, true)
		w.u32(uint32(lv.startpc))
		w.u32(uint32(lv.endpc))
	}
	w.u32(uint32(len(p.Upvalues)))
	for _, uv := range p.Upvalues {
		w.str(uv.name, true)
	}
}

func (w *chunkWriter) constant(v Value) {
	switch v.Kind {
	case KNil:
		w.byte(byte(tagNil))
	case KBool:
		if v.b {
			w.byte(byte(tagTrue))
		} else {
			w.byte(byte(tagFalse))
		}
	case KInt:
		w.byte(byte(tagInt))
		w.i64(v.i)
	case KFloat:
		w.byte(byte(tagFloat))
		w.f64(v.f)
	case KString:
		s := v.AsString()
		if s.long {
			w.byte(byte(tagLongStr))
		} else {
			w.byte(byte(tagShortStr))
		}
		w.str(s.content(), true)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Dump serializes p into a chunk byte slice matching spec.md §4.11
// bit-for-bit, so a chunk produced by this runtime can round-trip
// through Load on the same platform.
func Dump(p *Proto) []byte {
	w := &chunkWriter{}
	w.header()
	w.proto(p)
	return w.buf
}

type chunkReader struct {
	buf []byte
	pos int
}

func (r *chunkReader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("truncated chunk")
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *chunkReader) byte() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *chunkReader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *chunkReader) u64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *chunkReader) i64() (int64, error) {
	v, err := r.u64()
	return int64(v), err
}

func (r *chunkReader) f64() (float64, error) {
	v, err := r.u64()
	if err != nil {
		return 0, err
	}
	return f64frombits(v), nil
}

func (r *chunkReader) str() (string, bool, error) {
	n, err := r.byte()
	if err != nil {
		return "", false, err
	}
	if n == 0 {
		return "", false, nil
	}
	size := int(n) - 1
	if n == 0xFF {
		u, err := r.u64()
		if err != nil {
			return "", false, err
		}
		size = int(u)
	}
	b, err := r.bytes(size)
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

func (r *chunkReader) header() error {
	sig, err := r.bytes(4)
	if err != nil {
		return err
	}
	for i := range sig {
		if sig[i] != chunkSignature[i] {
			return &SyntaxError{Message: "not a valid chunk"}
		}
	}
	ver, err := r.byte()
	if err != nil {
		return err
	}
	if ver != chunkVersionMajor<<4|chunkVersionMinor {
		return &SyntaxError{Message: "version mismatch"}
	}
	if _, err := r.byte(); err != nil { // format byte
		return err
	}
	endian, err := r.bytes(6)
	if err != nil {
		return err
	}
	for i := range endian {
		if endian[i] != chunkEndianTest[i] {
			return &SyntaxError{Message: "endianness mismatch"}
		}
	}
	sizes, err := r.bytes(5)
	if err != nil {
		return err
	}
	if sizes[0] != chunkSizeofInt || sizes[1] != chunkSizeofSizeT ||
		sizes[2] != chunkSizeofInstruction || sizes[3] != chunkSizeofInteger ||
		sizes[4] != chunkSizeofNumber {
		return &SyntaxError{Message: "size mismatch"}
	}
	ti, err := r.i64()
	if err != nil {
		return err
	}
	if ti != chunkTestInt {
		return &SyntaxError{Message: "integer format mismatch"}
	}
	tf, err := r.f64()
	if err != nil {
		return err
	}
	if tf != chunkTestNumber {
		return &SyntaxError{Message: "float format mismatch"}
	}
	return nil
}

func (r *chunkReader) proto(g *globalState) (*Proto, error) {
	src, ok, err := r.str()
	if err != nil {
		return nil, err
	}
	p := newProto(g, "")
	if ok {
		p.Source = src
	}
	ld, err := r.u32()
	if err != nil {
		return nil, err
	}
	p.LineDefined = int(ld)
	lld, err := r.u32()
	if err != nil {
		return nil, err
	}
	p.LastLineDefined = int(lld)
	np, err := r.byte()
	if err != nil {
		return nil, err
	}
	p.NumParams = int(np)
	va, err := r.byte()
	if err != nil {
		return nil, err
	}
	p.IsVararg = va != 0
	mx, err := r.byte()
	if err != nil {
		return nil, err
	}
	p.MaxStackSize = int(mx)

	ncode, err := r.u32()
	if err != nil {
		return nil, err
	}
	p.Code = make([]uint32, ncode)
	for i := range p.Code {
		p.Code[i], err = r.u32()
		if err != nil {
			return nil, err
		}
	}

	nk, err := r.u32()
	if err != nil {
		return nil, err
	}
	p.Constants = make([]Value, nk)
	for i := range p.Constants {
		p.Constants[i], err = r.constant(g)
		if err != nil {
			return nil, err
		}
	}

	nproto, err := r.u32()
	if err != nil {
		return nil, err
	}
	p.Protos = make([]*Proto, nproto)
	for i := range p.Protos {
		p.Protos[i], err = r.proto(g)
		if err != nil {
			return nil, err
		}
	}

	nup, err := r.u32()
	if err != nil {
		return nil, err
	}
	p.Upvalues = make([]upvalDesc, nup)
	for i := range p.Upvalues {
		fs, err := r.byte()
		if err != nil {
			return nil, err
		}
		idx, err := r.byte()
		if err != nil {
			return nil, err
		}
		p.Upvalues[i].fromStack = fs != 0
		p.Upvalues[i].index = int(idx)
	}

	nline, err := r.u32()
	if err != nil {
		return nil, err
	}
	p.LineInfo = make([]int, nline)
	for i := range p.LineInfo {
		l, err := r.u32()
		if err != nil {
			return nil, err
		}
		p.LineInfo[i] = int(l)
	}

	nlocals, err := r.u32()
	if err != nil {
		return nil, err
	}
	p.Locals = make([]localVar, nlocals)
	for i := range p.Locals {
		name, _, err := r.str()
		if err != nil {
			return nil, err
		}
		sp, err := r.u32()
		if err != nil {
			return nil, err
		}
		ep, err := r.u32()
		if err != nil {
			return nil, err
		}
		p.Locals[i] = localVar{name: name, startpc: int(sp), endpc: int(ep)}
	}

	nupnames, err := r.u32()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(nupnames) && i < len(p.Upvalues); i++ {
		name, _, err := r.str()
		if err != nil {
			return nil, err
		}
		p.Upvalues[i].name = name
	}
	return p, nil
}

func (r *chunkReader) constant(g *globalState) (Value, error) {
	tb, err := r.byte()
	if err != nil {
		return NilValue, err
	}
	switch constTag(tb) {
	case tagNil:
		return NilValue, nil
	case tagFalse:
		return FalseValue, nil
	case tagTrue:
		return TrueValue, nil
	case tagInt:
		i, err := r.i64()
		return IntValue(i), err
	case tagFloat:
		f, err := r.f64()
		return FloatValue(f), err
	case tagShortStr, tagLongStr:
		s, _, err := r.str()
		if err != nil {
			return NilValue, err
		}
		return StringValue(g.NewString(s)), nil
	}
	return NilValue, &SyntaxError{Message: "bad constant tag"}
}

// Load parses a chunk: source text if the first byte isn't the binary
// escape, otherwise a binary chunk (spec.md §4.11/§6 "Persisted
// state").
func Load(g *globalState, data []byte, chunkName string) (*Proto, error) {
	if len(data) > 0 && data[0] == chunkSignature[0] {
		r := &chunkReader{buf: data}
		if err := r.header(); err != nil {
			return nil, err
		}
		return r.proto(g)
	}
	return compile(g, string(data), chunkName)
}
