package rvalue

import (
	"reflect"
	"testing"
)

func TestReadHeader(t *testing.T) {
	f := newFixture(t, Ruby34())
	al := &f.l.Array
	arr := f.embedArray(f.fix(1), f.fix(2), f.fix(3))
	f.b.PutUint64(arr, uint64(TArray)|f.l.Flags.Freeze|f.l.Flags.Promoted|f.user(al.EmbedBit)|f.field(al.EmbedLenLo, 3))
	str := f.str("x", f.l.Flags.Exivar)
	in := f.inspector(Options{})

	tests := []struct {
		addr         uint64
		wantTag      TypeTag
		wantPromoted bool
		wantFrozen   bool
		wantNames    []string
	}{
		{arr, TArray, true, true, []string{"FL_PROMOTED", "FL_FREEZE", "RARRAY_EMBED_LEN=3", "RARRAY_EMBED_FLAG"}},
		{str, TString, false, false, []string{"FL_EXIVAR", "ENCODING=1"}},
	}
	for _, test := range tests {
		h, err := in.ReadHeader(test.addr)
		if err != nil {
			t.Fatalf("ReadHeader(0x%x) failed: %v", test.addr, err)
		}
		if h.Tag() != test.wantTag || h.Promoted() != test.wantPromoted || h.Frozen() != test.wantFrozen {
			t.Errorf("ReadHeader(0x%x)=%v,%v,%v want %v,%v,%v", test.addr,
				h.Tag(), h.Promoted(), h.Frozen(), test.wantTag, test.wantPromoted, test.wantFrozen)
		}
		if h.Klass != fixtureKlass {
			t.Errorf("Klass=0x%x, want 0x%x", h.Klass, uint64(fixtureKlass))
		}
		if got := h.FlagNames(in.Layout()); !reflect.DeepEqual(got, test.wantNames) {
			t.Errorf("FlagNames(0x%x)=%q, want %q", test.addr, got, test.wantNames)
		}
	}

	if _, err := in.ReadHeader(0xdead000); !IsMemoryAccessError(err) {
		t.Errorf("ReadHeader(0xdead000)=%v, want *MemoryAccessError", err)
	}
	if _, err := in.ReadHeader(0); !IsMemoryAccessError(err) {
		t.Errorf("ReadHeader(0)=%v, want *MemoryAccessError", err)
	}
}

func TestTypeTagString(t *testing.T) {
	tests := []struct {
		tag  TypeTag
		want string
	}{
		{TString, "T_STRING"},
		{TMoved, "T_MOVED"},
		{0x10, "T_0x10"},
	}
	for _, test := range tests {
		if got := test.tag.String(); got != test.want {
			t.Errorf("TypeTag(0x%x).String()=%q, want %q", uint8(test.tag), got, test.want)
		}
	}
	if TypeTag(0x10).Known() || !TImemo.Known() {
		t.Errorf("Known() is wrong for 0x10 or T_IMEMO")
	}
}
