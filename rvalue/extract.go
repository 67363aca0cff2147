package rvalue

import (
	"encoding/binary"
	"fmt"
)

// extract fills obj from the payload that follows its header.
func (x *inspection) extract(obj *Object, depth int) {
	h := obj.Header
	switch h.Tag() {
	case TNone:
		obj.summaryf("(free slot)")
		obj.Short = fmt.Sprintf("T_NONE 0x%x", h.Addr)
	case TNil, TTrue, TFalse, TFixnum, TUndef:
		// Special constants never live on the heap; show what is there.
		obj.summaryf("flags=0x%x klass=0x%x", h.Flags, h.Klass)
	case TObject:
		x.extractObject(obj)
	case TClass, TModule, TIClass:
		x.extractClass(obj)
	case TFloat:
		x.extractFloat(obj)
	case TString:
		x.extractString(obj)
	case TRegexp:
		x.extractRegexp(obj, depth)
	case TArray:
		x.extractArray(obj, depth)
	case THash:
		x.extractHash(obj, depth)
	case TStruct:
		x.extractStruct(obj, depth)
	case TBignum:
		x.extractBignum(obj)
	case TFile:
		x.extractFile(obj)
	case TData:
		x.extractData(obj)
	case TMatch:
		x.extractMatch(obj, depth)
	case TComplex:
		x.extractComplex(obj, depth)
	case TRational:
		x.extractRational(obj, depth)
	case TSymbol:
		x.extractSymbol(obj)
	case TImemo:
		x.extractImemo(obj)
	case TNode:
		x.extractNode(obj)
	case TZombie:
		x.extractZombie(obj)
	case TMoved:
		x.extractMoved(obj)
	default:
		obj.Summary = fmt.Sprintf("Not-handled type %#x", uint8(h.Tag()))
		obj.addText("flags", "0x%016x", h.Flags)
		obj.addText("klass", "0x%016x", h.Klass)
	}
}

// vector reads n VALUE words starting at addr, at most MaxElements of them.
func (x *inspection) vector(addr, n uint64) ([]uint64, error) {
	if max := uint64(x.opts.MaxElements); n > max {
		n = max
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n*8)
	if err := readBytes(x.in.mem, addr, buf); err != nil {
		return nil, err
	}
	ws := make([]uint64, n)
	for i := range ws {
		ws[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return ws, nil
}

// elements adds one field per VALUE in ws, plus a marker for the remainder.
func (x *inspection) elements(obj *Object, ws []uint64, total uint64, depth int) []*Object {
	var kids []*Object
	for i, w := range ws {
		c := x.child(w, depth+1)
		obj.addValue(fmt.Sprintf("[%d]", i), c)
		kids = append(kids, c)
	}
	if total > uint64(len(ws)) {
		obj.Fields = append(obj.Fields, Field{Name: fmt.Sprintf("... %d more", total-uint64(len(ws)))})
	}
	return kids
}

// joinInline formats kids as "open a, b, c close", with "..." when
// total exceeds the number shown.
func joinInline(open, close string, kids []string, total uint64) string {
	s := open
	for i, k := range kids {
		if i > 0 {
			s += ", "
		}
		s += k
	}
	if total > uint64(len(kids)) {
		if len(kids) > 0 {
			s += ", "
		}
		s += "..."
	}
	return s + close
}
