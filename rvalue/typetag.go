package rvalue

import "fmt"

// TypeTag is the ruby_value_type stored in the low bits of RBasic.flags.
type TypeTag uint8

const (
	TNone     TypeTag = 0x00
	TObject   TypeTag = 0x01
	TClass    TypeTag = 0x02
	TModule   TypeTag = 0x03
	TFloat    TypeTag = 0x04
	TString   TypeTag = 0x05
	TRegexp   TypeTag = 0x06
	TArray    TypeTag = 0x07
	THash     TypeTag = 0x08
	TStruct   TypeTag = 0x09
	TBignum   TypeTag = 0x0a
	TFile     TypeTag = 0x0b
	TData     TypeTag = 0x0c
	TMatch    TypeTag = 0x0d
	TComplex  TypeTag = 0x0e
	TRational TypeTag = 0x0f
	TNil      TypeTag = 0x11
	TTrue     TypeTag = 0x12
	TFalse    TypeTag = 0x13
	TSymbol   TypeTag = 0x14
	TFixnum   TypeTag = 0x15
	TUndef    TypeTag = 0x16
	TImemo    TypeTag = 0x1a
	TNode     TypeTag = 0x1b
	TIClass   TypeTag = 0x1c
	TZombie   TypeTag = 0x1d
	TMoved    TypeTag = 0x1e
)

var typeTagNames = map[TypeTag]string{
	TNone:     "T_NONE",
	TObject:   "T_OBJECT",
	TClass:    "T_CLASS",
	TModule:   "T_MODULE",
	TFloat:    "T_FLOAT",
	TString:   "T_STRING",
	TRegexp:   "T_REGEXP",
	TArray:    "T_ARRAY",
	THash:     "T_HASH",
	TStruct:   "T_STRUCT",
	TBignum:   "T_BIGNUM",
	TFile:     "T_FILE",
	TData:     "T_DATA",
	TMatch:    "T_MATCH",
	TComplex:  "T_COMPLEX",
	TRational: "T_RATIONAL",
	TNil:      "T_NIL",
	TTrue:     "T_TRUE",
	TFalse:    "T_FALSE",
	TSymbol:   "T_SYMBOL",
	TFixnum:   "T_FIXNUM",
	TUndef:    "T_UNDEF",
	TImemo:    "T_IMEMO",
	TNode:     "T_NODE",
	TIClass:   "T_ICLASS",
	TZombie:   "T_ZOMBIE",
	TMoved:    "T_MOVED",
}

// Known reports whether t is one of the defined type tags.
func (t TypeTag) Known() bool {
	_, ok := typeTagNames[t]
	return ok
}

func (t TypeTag) String() string {
	if s, ok := typeTagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("T_0x%02x", uint8(t))
}

// name returns the secondary tag packed in flags and its name,
// or a numbered placeholder when it is outside the table.
func (s *SubtypeLayout) name(flags uint64) (uint64, string) {
	n := (flags >> s.Shift) & s.Mask
	if n < uint64(len(s.Names)) {
		return n, s.Names[n]
	}
	return n, fmt.Sprintf("#%d", n)
}

// encodingName returns the name of the preserved encoding index, if known.
func (s *StringLayout) encodingName(flags uint64, f *FlagBits) (uint64, string, bool) {
	mask, shift := f.userRange(s.EncodingLo, s.EncodingHi)
	idx := (flags & mask) >> shift
	if idx < uint64(len(s.EncodingName)) {
		return idx, s.EncodingName[idx], true
	}
	return idx, "", false
}
