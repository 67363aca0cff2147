package rvalue

import "fmt"

// Header is the RBasic header shared by every heap object.
type Header struct {
	Addr  uint64
	Flags uint64
	Klass uint64

	bits *FlagBits
}

// Tag returns the object's type tag.
func (h Header) Tag() TypeTag {
	return TypeTag(h.Flags & h.bits.TypeMask)
}

// Promoted reports whether the object is in the old generation.
func (h Header) Promoted() bool { return h.Flags&h.bits.Promoted != 0 }

// Frozen reports whether FL_FREEZE is set.
func (h Header) Frozen() bool { return h.Flags&h.bits.Freeze != 0 }

// User reports whether FL_USER<n> is set.
func (h Header) User(n uint) bool { return h.Flags&h.bits.User(n) != 0 }

// userField extracts the bit field FL_USER<lo>..FL_USER<hi>.
func (h Header) userField(lo, hi uint) uint64 {
	mask, shift := h.bits.userRange(lo, hi)
	return (h.Flags & mask) >> shift
}

// flagInfo is the "[PROMOTED] [FROZEN] " prefix printed before the payload.
func (h Header) flagInfo() string {
	s := ""
	if h.Promoted() {
		s += "[PROMOTED] "
	}
	if h.Frozen() {
		s += "[FROZEN] "
	}
	return s
}

// FlagNames returns the names of all set flag bits, generic bits first,
// then the per-type user bits, then any remaining user bits by number.
func (h Header) FlagNames(l *Layout) []string {
	f := &l.Flags
	var names []string
	generic := []struct {
		bit  uint64
		name string
	}{
		{f.Promoted, "FL_PROMOTED"},
		{f.Finalize, "FL_FINALIZE"},
		{f.Shareable, "FL_SHAREABLE"},
		{f.SeenObjID, "FL_SEEN_OBJ_ID"},
		{f.Exivar, "FL_EXIVAR"},
		{f.Freeze, "FL_FREEZE"},
	}
	for _, g := range generic {
		if g.bit != 0 && h.Flags&g.bit != 0 {
			names = append(names, g.name)
		}
	}

	named := map[uint]string{}
	switch h.Tag() {
	case TString:
		named[l.String.NoEmbed] = "STR_NOEMBED"
		named[l.String.SharedBit] = "STR_SHARED"
		named[l.String.ChilledBit] = "STR_CHILLED"
	case TArray:
		named[l.Array.EmbedBit] = "RARRAY_EMBED_FLAG"
		named[l.Array.SharedBit] = "ELTS_SHARED"
	case TBignum:
		named[l.Bignum.SignBit] = "BIGNUM_SIGN_BIT"
		named[l.Bignum.EmbedBit] = "BIGNUM_EMBED_FLAG"
	case THash:
		named[l.Hash.STTableBit] = "RHASH_ST_TABLE_FLAG"
	case TObject:
		named[l.Fields.ObjectEmbedBit] = "ROBJECT_EMBED"
	case TClass, TModule, TIClass:
		named[l.Fields.ClassSingletonBit] = "FL_SINGLETON"
	}
	// Fields that are multi-bit counters are reported once, not per bit.
	skip := map[uint]bool{}
	field := func(lo, hi uint, name string) {
		if hi < lo {
			return
		}
		for n := lo; n <= hi; n++ {
			skip[n] = true
		}
		if v := h.userField(lo, hi); v != 0 {
			names = append(names, fmt.Sprintf("%s=%d", name, v))
		}
	}
	switch h.Tag() {
	case TString:
		field(l.String.EncodingLo, l.String.EncodingHi, "ENCODING")
	case TArray:
		if h.User(l.Array.EmbedBit) {
			field(l.Array.EmbedLenLo, l.Array.EmbedLenHi, "RARRAY_EMBED_LEN")
		}
	case TBignum:
		if h.User(l.Bignum.EmbedBit) {
			field(l.Bignum.EmbedLenLo, l.Bignum.EmbedLenHi, "BIGNUM_EMBED_LEN")
		}
	case THash:
		if !h.User(l.Hash.STTableBit) {
			field(l.Hash.ARSizeLo, l.Hash.ARSizeHi, "AR_TABLE_SIZE")
			field(l.Hash.ARBoundLo, l.Hash.ARBoundHi, "AR_TABLE_BOUND")
		}
	case TStruct:
		field(l.Struct.EmbedLenLo, l.Struct.EmbedLenHi, "RSTRUCT_EMBED_LEN")
	case TImemo:
		_, name := l.Imemo.name(h.Flags)
		names = append(names, "imemo_"+name)
		for n := uint(0); n < 4; n++ {
			skip[n] = true
		}
	}

	for n := uint(0); f.UserShift+n < 64; n++ {
		if skip[n] || !h.User(n) {
			continue
		}
		if name, ok := named[n]; ok {
			names = append(names, name)
		} else if f.UserShift+n < 32 {
			names = append(names, fmt.Sprintf("FL_USER%d", n))
		}
	}
	return names
}
