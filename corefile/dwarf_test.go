package corefile

import (
	"bytes"
	"debug/dwarf"
	"encoding/binary"
	"testing"
)

// DWARF constants used by the test encoder.
const (
	dwTagCompileUnit = 0x11
	dwTagStruct      = 0x13
	dwTagUnion       = 0x17
	dwTagMember      = 0x0d
	dwTagBaseType    = 0x24
	dwTagTypedef     = 0x16
	dwTagEnumType    = 0x04
	dwTagEnumerator  = 0x28

	dwAtName      = 0x03
	dwAtByteSize  = 0x0b
	dwAtType      = 0x49
	dwAtMemberLoc = 0x38
	dwAtEncoding  = 0x3e
	dwAtConst     = 0x1c

	dwFormString = 0x08
	dwFormData1  = 0x0b
	dwFormRef4   = 0x13
	dwFormSdata  = 0x0d
)

// Abbreviation codes.
const (
	abCU = iota + 1
	abBase
	abStruct
	abUnion
	abMember
	abAnonMember
	abTypedef
	abEnum
	abEnumerator
)

func dwarfAbbrevs() []byte {
	var b bytes.Buffer
	add := func(code, tag byte, children bool, attrs ...byte) {
		b.WriteByte(code)
		b.WriteByte(tag)
		if children {
			b.WriteByte(1)
		} else {
			b.WriteByte(0)
		}
		b.Write(attrs)
		b.Write([]byte{0, 0})
	}
	add(abCU, dwTagCompileUnit, true)
	add(abBase, dwTagBaseType, false, dwAtName, dwFormString, dwAtByteSize, dwFormData1, dwAtEncoding, dwFormData1)
	add(abStruct, dwTagStruct, true, dwAtName, dwFormString, dwAtByteSize, dwFormData1)
	add(abUnion, dwTagUnion, true, dwAtByteSize, dwFormData1)
	add(abMember, dwTagMember, false, dwAtName, dwFormString, dwAtType, dwFormRef4, dwAtMemberLoc, dwFormData1)
	add(abAnonMember, dwTagMember, false, dwAtType, dwFormRef4, dwAtMemberLoc, dwFormData1)
	add(abTypedef, dwTagTypedef, false, dwAtName, dwFormString, dwAtType, dwFormRef4)
	add(abEnum, dwTagEnumType, true, dwAtName, dwFormString, dwAtByteSize, dwFormData1)
	add(abEnumerator, dwTagEnumerator, false, dwAtName, dwFormString, dwAtConst, dwFormSdata)
	b.WriteByte(0)
	return b.Bytes()
}

type dieWriter struct{ bytes.Buffer }

func (w *dieWriter) off() uint32 { return uint32(w.Len()) }

func (w *dieWriter) str(s string) {
	w.WriteString(s)
	w.WriteByte(0)
}

func (w *dieWriter) ref(off uint32) {
	binary.Write(w, binary.LittleEndian, off)
}

func (w *dieWriter) sleb(v int64) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			w.WriteByte(c)
			return
		}
		w.WriteByte(c | 0x80)
	}
}

func (w *dieWriter) member(name string, typ uint32, loc byte) {
	if name == "" {
		w.WriteByte(abAnonMember)
	} else {
		w.WriteByte(abMember)
		w.str(name)
	}
	w.ref(typ)
	w.WriteByte(loc)
}

// testDWARF encodes a compile unit shaped like a tiny slice of CRuby:
//
//	struct RBasic { long flags; long klass; };
//	struct RString {
//		struct RBasic basic;
//		long len;
//		union { struct { long ptr; union { long capa; long shared; } aux; } heap; } as;
//		union { long anon_a; long anon_b; };
//	};
//	typedef struct RString rstring_t;
//	enum ruby_value_type { RUBY_T_STRING = 5, RUBY_T_MASK = 0x1f, RUBY_NEG = -2 };
func testDWARF(t *testing.T) *dwarf.Data {
	t.Helper()
	var w dieWriter
	w.Write([]byte{0, 0, 0, 0}) // unit_length, patched below
	w.Write([]byte{4, 0})       // version
	w.Write([]byte{0, 0, 0, 0}) // abbrev offset
	w.WriteByte(8)              // address size
	w.WriteByte(abCU)

	long := w.off()
	w.WriteByte(abBase)
	w.str("long")
	w.Write([]byte{8, 5})

	rbasic := w.off()
	w.WriteByte(abStruct)
	w.str("RBasic")
	w.WriteByte(16)
	w.member("flags", long, 0)
	w.member("klass", long, 8)
	w.WriteByte(0)

	aux := w.off()
	w.WriteByte(abUnion)
	w.WriteByte(8)
	w.member("capa", long, 0)
	w.member("shared", long, 0)
	w.WriteByte(0)

	heap := w.off()
	w.WriteByte(abStruct)
	w.str("heap_s")
	w.WriteByte(16)
	w.member("ptr", long, 0)
	w.member("aux", aux, 8)
	w.WriteByte(0)

	as := w.off()
	w.WriteByte(abUnion)
	w.WriteByte(16)
	w.member("heap", heap, 0)
	w.WriteByte(0)

	anon := w.off()
	w.WriteByte(abUnion)
	w.WriteByte(8)
	w.member("anon_a", long, 0)
	w.member("anon_b", long, 0)
	w.WriteByte(0)

	rstring := w.off()
	w.WriteByte(abStruct)
	w.str("RString")
	w.WriteByte(48)
	w.member("basic", rbasic, 0)
	w.member("len", long, 16)
	w.member("as", as, 24)
	w.member("", anon, 40)
	w.WriteByte(0)

	w.WriteByte(abTypedef)
	w.str("rstring_t")
	w.ref(rstring)

	w.WriteByte(abEnum)
	w.str("ruby_value_type")
	w.WriteByte(4)
	for _, e := range []struct {
		name string
		v    int64
	}{
		{"RUBY_T_STRING", 5},
		{"RUBY_T_MASK", 0x1f},
		{"RUBY_NEG", -2},
	} {
		w.WriteByte(abEnumerator)
		w.str(e.name)
		w.sleb(e.v)
	}
	w.WriteByte(0)

	w.WriteByte(0) // end of compile unit
	info := w.Bytes()
	binary.LittleEndian.PutUint32(info, uint32(len(info)-4))

	d, err := dwarf.New(dwarfAbbrevs(), nil, nil, info, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("dwarf.New: %v", err)
	}
	return d
}

func TestDWARFLayout(t *testing.T) {
	p := &Program{}
	if err := p.dwarf.add(testDWARF(t)); err != nil {
		t.Fatalf("indexing: %v", err)
	}

	offsets := []struct {
		structName, field string
		want              uint64
		wantErr           bool
	}{
		{"RBasic", "klass", 8, false},
		{"RString", "len", 16, false},
		{"RString", "as.heap.ptr", 24, false},
		{"RString", "as.heap.aux", 32, false},
		{"RString", "as.heap.aux.shared", 32, false},
		{"RString", "basic.klass", 8, false},
		{"RString", "anon_b", 40, false},
		{"rstring_t", "as.heap.aux", 32, false},
		{"RString", "as.embed", 0, true},
		{"RString", "len.x", 0, true},
		{"RArray", "len", 0, true},
	}
	for _, test := range offsets {
		got, err := p.StructFieldOffset(test.structName, test.field)
		if (err != nil) != test.wantErr || got != test.want {
			t.Errorf("StructFieldOffset(%s, %s)=%d,%v want %d (error=%v)", test.structName, test.field, got, err, test.want, test.wantErr)
		}
	}

	sizes := []struct {
		name string
		want uint64
	}{
		{"RBasic", 16},
		{"RString", 48},
		{"rstring_t", 48},
	}
	for _, test := range sizes {
		if got, err := p.StructSize(test.name); err != nil || got != test.want {
			t.Errorf("StructSize(%s)=%d,%v want %d", test.name, got, err, test.want)
		}
	}
	if _, err := p.StructSize("long"); err == nil {
		t.Errorf("StructSize(long) succeeded, want error")
	}

	enums := []struct {
		name string
		want int64
		ok   bool
	}{
		{"RUBY_T_STRING", 5, true},
		{"RUBY_T_MASK", 0x1f, true},
		{"RUBY_NEG", -2, true},
		{"RUBY_T_ARRAY", 0, false},
	}
	for _, test := range enums {
		got, err := p.Enumerator(test.name)
		if (err == nil) != test.ok || got != test.want {
			t.Errorf("Enumerator(%s)=%d,%v want %d", test.name, got, err, test.want)
		}
	}
}
