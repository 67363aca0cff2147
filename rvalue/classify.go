package rvalue

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
)

// Variant is the decoded form of a single VALUE word.
// The set of implementations is closed: False, True, Nil, Undef, SmallInt,
// SmallFloat, StaticSymbol, Immediate and HeapRef.
type Variant interface {
	isVariant()
	String() string
}

type (
	False struct{}
	True  struct{}
	Nil   struct{}
	Undef struct{}

	// SmallInt is a fixnum.
	SmallInt struct{ Int int64 }

	// SmallFloat is a flonum.
	SmallFloat struct{ Float float64 }

	// StaticSymbol is a symbol whose ID is stored in the word itself.
	StaticSymbol struct{ ID uint64 }

	// Immediate is a special constant this package does not know about.
	Immediate struct{ Word uint64 }

	// HeapRef is a pointer to a heap cell that starts with an RBasic header.
	HeapRef struct{ Addr uint64 }
)

func (False) isVariant()        {}
func (True) isVariant()         {}
func (Nil) isVariant()          {}
func (Undef) isVariant()        {}
func (SmallInt) isVariant()     {}
func (SmallFloat) isVariant()   {}
func (StaticSymbol) isVariant() {}
func (Immediate) isVariant()    {}
func (HeapRef) isVariant()      {}

func (False) String() string { return "false" }
func (True) String() string  { return "true" }
func (Nil) String() string   { return "nil" }
func (Undef) String() string { return "undef" }

func (v SmallInt) String() string { return strconv.FormatInt(v.Int, 10) }

func (v SmallFloat) String() string {
	return strconv.FormatFloat(v.Float, 'g', -1, 64)
}

func (v StaticSymbol) String() string {
	if v.ID < 128 && strconv.IsPrint(rune(v.ID)) {
		return fmt.Sprintf("T_SYMBOL: %c", rune(v.ID))
	}
	return fmt.Sprintf("T_SYMBOL: (id %#x)", v.ID)
}

func (v Immediate) String() string { return fmt.Sprintf("immediate(%x)", v.Word) }
func (v HeapRef) String() string   { return fmt.Sprintf("0x%016x", v.Addr) }

// flonumZero is the word used for +0.0, which the rotation scheme cannot express.
const flonumZero = 0x8000000000000002

// Classify decodes w using the immediate encoding in abi.
// It never fails: every word maps to exactly one Variant.
func Classify(w uint64, abi *Immediates) Variant {
	switch w {
	case abi.Qfalse:
		return False{}
	case abi.Qtrue:
		return True{}
	case abi.Qnil:
		return Nil{}
	case abi.Qundef:
		return Undef{}
	}
	if w&abi.FixnumFlag != 0 {
		return SmallInt{int64(w) >> 1}
	}
	if w&abi.FlonumMask == abi.FlonumFlag {
		return SmallFloat{decodeFlonum(w)}
	}
	if w&^(^uint64(0)<<abi.SpecialShift) == abi.SymbolFlag {
		return StaticSymbol{w >> abi.SpecialShift}
	}
	if w&abi.ImmediateMask != 0 {
		return Immediate{w}
	}
	return HeapRef{w}
}

func decodeFlonum(w uint64) float64 {
	if w == flonumZero {
		return 0
	}
	b63 := w >> 63
	t := (2 - b63) | (w &^ 3)
	return math.Float64frombits(bits.RotateLeft64(t, -3))
}

// EncodeFixnum returns the word for the fixnum n.
// The boolean is false when n does not fit in a fixnum.
func EncodeFixnum(n int64) (uint64, bool) {
	if n > math.MaxInt64>>1 || n < math.MinInt64>>1 {
		return 0, false
	}
	return uint64(n)<<1 | 1, true
}

// EncodeFlonum returns the word for f. The boolean is false when f must be
// stored as a heap T_FLOAT instead.
func EncodeFlonum(f float64) (uint64, bool) {
	v := math.Float64bits(f)
	if v == 0 {
		return flonumZero, true
	}
	exp := (v >> 60) & 7
	if v != 0x3000000000000000 && (exp == 3 || exp == 4) {
		return (bits.RotateLeft64(v, 3) &^ 1) | 2, true
	}
	return 0, false
}

// EncodeStaticSymbol returns the word for the static symbol with the given ID.
func EncodeStaticSymbol(id uint64, abi *Immediates) uint64 {
	return id<<abi.SpecialShift | abi.SymbolFlag
}
