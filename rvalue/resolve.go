package rvalue

import (
	"math/bits"
	"strconv"
)

// refineLayout overwrites profile values in l with what src knows.
// Missing entries keep the profile's values. An error is returned only
// when src has no RBasic at all, which means it does not describe a
// Ruby runtime.
func refineLayout(l *Layout, src LayoutSource) error {
	if _, err := src.StructSize("RBasic"); err != nil {
		return &LayoutError{Name: "struct RBasic", Err: err}
	}
	r := refiner{src: src}

	r.enum("RUBY_Qfalse", &l.Imm.Qfalse)
	r.enum("RUBY_Qtrue", &l.Imm.Qtrue)
	r.enum("RUBY_Qnil", &l.Imm.Qnil)
	r.enum("RUBY_Qundef", &l.Imm.Qundef)
	r.enum("RUBY_IMMEDIATE_MASK", &l.Imm.ImmediateMask)
	r.enum("RUBY_FIXNUM_FLAG", &l.Imm.FixnumFlag)
	r.enum("RUBY_FLONUM_MASK", &l.Imm.FlonumMask)
	r.enum("RUBY_FLONUM_FLAG", &l.Imm.FlonumFlag)
	r.enum("RUBY_SYMBOL_FLAG", &l.Imm.SymbolFlag)
	r.enumShift("RUBY_SPECIAL_SHIFT", &l.Imm.SpecialShift, 0)

	r.enum("RUBY_T_MASK", &l.Flags.TypeMask)
	r.enumShift("RUBY_FL_USHIFT", &l.Flags.UserShift, 0)
	r.enum("RUBY_FL_PROMOTED", &l.Flags.Promoted)
	r.enum("RUBY_FL_FINALIZE", &l.Flags.Finalize)
	r.enum("RUBY_FL_SHAREABLE", &l.Flags.Shareable)
	r.enum("RUBY_FL_SEEN_OBJ_ID", &l.Flags.SeenObjID)
	r.enum("RUBY_FL_EXIVAR", &l.Flags.Exivar)
	r.enum("RUBY_FL_FREEZE", &l.Flags.Freeze)

	ushift := l.Flags.UserShift
	if r.enumShift("RUBY_ENCODING_SHIFT", &l.String.EncodingLo, ushift) {
		l.String.EncodingHi = l.String.EncodingLo + 6
	}
	r.offset("RString", "len", &l.String.LenOffset)
	r.offset("RString", "as.heap.ptr", &l.String.PtrOffset)
	r.offset("RString", "as.heap.aux", &l.String.AuxOffset)
	r.offset("RString", "as.embed.ary", &l.String.EmbedOffset)

	r.enumField("RARRAY_EMBED_LEN_SHIFT", "RARRAY_EMBED_LEN_MASK", ushift,
		&l.Array.EmbedLenLo, &l.Array.EmbedLenHi)
	r.offset("RArray", "as.heap.len", &l.Array.LenOffset)
	r.offset("RArray", "as.heap.aux", &l.Array.AuxOffset)
	r.offset("RArray", "as.heap.ptr", &l.Array.PtrOffset)
	r.offset("RArray", "as.ary", &l.Array.EmbedOffset)

	r.enumField("BIGNUM_EMBED_LEN_SHIFT", "BIGNUM_EMBED_LEN_MASK", ushift,
		&l.Bignum.EmbedLenLo, &l.Bignum.EmbedLenHi)
	r.offset("RBignum", "as.heap.len", &l.Bignum.LenOffset)
	r.offset("RBignum", "as.heap.digits", &l.Bignum.DigitsOffset)
	r.offset("RBignum", "as.ary", &l.Bignum.EmbedOffset)

	r.offset("RHash", "ifnone", &l.Hash.IfnoneOffset)
	r.size("RHash", &l.Hash.TableOffset)
	r.offset("ar_table_struct", "pairs", &l.Hash.ARPairsOffset)
	r.offset("st_table", "num_entries", &l.Hash.STNumEntries)
	r.offset("st_table", "entries_start", &l.Hash.STEntriesStart)
	r.offset("st_table", "entries_bound", &l.Hash.STEntriesBound)
	r.offset("st_table", "entries", &l.Hash.STEntries)
	r.size("st_table_entry", &l.Hash.STEntrySize)
	r.offset("st_table_entry", "key", &l.Hash.STEntryKeyOffset)
	r.offset("st_table_entry", "record", &l.Hash.STEntryValOffset)

	r.offset("RStruct", "as.heap.len", &l.Struct.LenOffset)
	r.offset("RStruct", "as.heap.ptr", &l.Struct.PtrOffset)
	r.offset("RStruct", "as.ary", &l.Struct.EmbedOffset)

	r.offset("RData", "dmark", &l.Data.DmarkOffset)
	r.offset("RData", "dfree", &l.Data.DfreeOffset)
	r.offset("RData", "data", &l.Data.DataOffset)
	r.offset("RTypedData", "type", &l.Data.TypeOffset)
	r.offset("RTypedData", "data", &l.Data.TypedDataOffset)
	if off, err := src.StructFieldOffset("RTypedData", "typed_flag"); err == nil {
		l.Data.Scheme = DataSchemeTypedFlag
		l.Data.TypedFlagOffset = off
	} else if _, err := src.StructFieldOffset("RTypedData", "fields_obj"); err == nil {
		l.Data.Scheme = DataSchemeTaggedType
	}
	r.offset("rb_data_type_struct", "wrap_struct_name", &l.Data.WrapStructNameOffset)

	r.offset("RFloat", "float_value", &l.Fields.FloatValue)
	r.offset("RRational", "num", &l.Fields.RationalNum)
	r.offset("RRational", "den", &l.Fields.RationalDen)
	r.offset("RComplex", "real", &l.Fields.ComplexReal)
	r.offset("RComplex", "imag", &l.Fields.ComplexImag)
	r.offset("RRegexp", "ptr", &l.Fields.RegexpPtr)
	r.offset("RRegexp", "src", &l.Fields.RegexpSrc)
	r.offset("RRegexp", "usecnt", &l.Fields.RegexpUsecnt)
	r.offset("RMatch", "str", &l.Fields.MatchStr)
	r.offset("RMatch", "regexp", &l.Fields.MatchRegexp)
	r.offset("RSymbol", "fstr", &l.Fields.SymbolFstr)
	r.offset("RSymbol", "id", &l.Fields.SymbolID)
	r.offset("RObject", "as.heap.ivptr", &l.Fields.ObjectIvptr)
	r.offset("RClass", "super", &l.Fields.ClassSuper)
	r.offset("RFile", "fptr", &l.Fields.FileFptr)
	r.offset("rb_io", "fd", &l.Fields.IOFd)
	r.offset("RMoved", "destination", &l.Fields.MovedDestination)
	r.offset("RZombie", "next", &l.Fields.ZombieNext)
	r.offset("RZombie", "dfree", &l.Fields.ZombieDfree)
	r.offset("RZombie", "data", &l.Fields.ZombieData)

	r.names(&l.Imemo, "imemo_", l.Imemo.Names)
	r.names(&l.Node, "", l.Node.Names)

	r.enumShift("HEAP_PAGE_ALIGN_LOG", &l.Page.AlignLog, 0)
	r.offset("heap_page", "slot_size", &l.Page.SlotSize)
	r.offset("heap_page", "total_slots", &l.Page.TotalSlots)
	r.offset("heap_page", "free_slots", &l.Page.FreeSlots)
	r.offset("heap_page", "final_slots", &l.Page.FinalSlots)
	r.offset("heap_page", "pinned_slots", &l.Page.PinnedSlots)
	r.offset("heap_page", "start", &l.Page.Start)
	r.offset("heap_page", "wb_unprotected_bits", &l.Page.WBUnprotected)
	r.offset("heap_page", "mark_bits", &l.Page.Mark)
	r.offset("heap_page", "uncollectible_bits", &l.Page.Uncollectible)
	r.offset("heap_page", "marking_bits", &l.Page.Marking)
	r.offset("heap_page", "remembered_bits", &l.Page.Remembered)
	r.offset("heap_page", "pinned_bits", &l.Page.Pinned)

	r.offset("rb_symbols_t", "ids", &l.Symbols.IDsOffset)

	logf("refined layout %s: %d values from debug info, %d missing", l.Name, r.found, r.missing)
	return nil
}

type refiner struct {
	src            LayoutSource
	found, missing int
}

func (r *refiner) miss(name string, err error) {
	r.missing++
	verbosef("layout: keeping default for %s: %v", name, err)
}

func (r *refiner) offset(structName, field string, dst *uint64) {
	off, err := r.src.StructFieldOffset(structName, field)
	if err != nil {
		r.miss(structName+"."+field, err)
		return
	}
	r.found++
	*dst = off
}

func (r *refiner) size(structName string, dst *uint64) {
	n, err := r.src.StructSize(structName)
	if err != nil {
		r.miss("sizeof "+structName, err)
		return
	}
	r.found++
	*dst = n
}

func (r *refiner) enum(name string, dst *uint64) {
	v, err := r.src.Enumerator(name)
	if err != nil {
		r.miss(name, err)
		return
	}
	r.found++
	*dst = uint64(v)
}

// enumShift stores an enumerator that is a bit position, minus base.
func (r *refiner) enumShift(name string, dst *uint, base uint) bool {
	v, err := r.src.Enumerator(name)
	if err != nil {
		r.miss(name, err)
		return false
	}
	if v < int64(base) || v >= 64 {
		r.miss(name, &LayoutError{Name: name})
		return false
	}
	r.found++
	*dst = uint(v) - base
	return true
}

// enumField reads a shift/mask pair and stores it as a FL_USER bit range.
func (r *refiner) enumField(shiftName, maskName string, ushift uint, lo, hi *uint) {
	shift, err := r.src.Enumerator(shiftName)
	if err != nil {
		r.miss(shiftName, err)
		return
	}
	mask, err := r.src.Enumerator(maskName)
	if err != nil {
		r.miss(maskName, err)
		return
	}
	if shift < int64(ushift) || mask == 0 {
		r.miss(shiftName, &LayoutError{Name: shiftName})
		return
	}
	r.found += 2
	*lo = uint(shift) - ushift
	*hi = *lo + uint(bits.OnesCount64(uint64(mask)>>uint(shift))) - 1
}

// names rebuilds a subtype name table from enumerator values. Names that
// are unknown to src are dropped; if none are known the table is kept.
func (r *refiner) names(s *SubtypeLayout, prefix string, known []string) {
	var table []string
	for _, name := range known {
		v, err := r.src.Enumerator(prefix + name)
		if err != nil || v < 0 || v > int64(s.Mask) {
			continue
		}
		for int64(len(table)) <= v {
			table = append(table, "")
		}
		table[v] = name
	}
	if len(table) == 0 {
		r.miss(prefix+"*", nil)
		return
	}
	for i, name := range table {
		if name == "" {
			table[i] = "#" + strconv.Itoa(i)
		}
	}
	r.found++
	s.Names = table
}
