package corefile

import (
	"bytes"
	"testing"
)

func TestDataSegmentsInsert(t *testing.T) {
	backing := map[byte][]byte{
		'a': bytes.Repeat([]byte{'a'}, 0x1000),
		'b': bytes.Repeat([]byte{'b'}, 0x1000),
	}
	maker := func(c byte) func(addr, size uint64) (dataSegment, error) {
		return func(addr, size uint64) (dataSegment, error) {
			return dataSegment{addr: addr, data: backing[c][:size], readable: true}, nil
		}
	}

	var ss dataSegments
	if err := ss.insert(0x100, 0x100, maker('a')); err != nil {
		t.Fatal(err)
	}
	// Overlaps both sides of the first range, so it is split in two.
	if err := ss.insert(0x80, 0x200, maker('b')); err != nil {
		t.Fatal(err)
	}

	want := []struct {
		addr, size uint64
		c          byte
	}{
		{0x80, 0x80, 'b'},
		{0x100, 0x100, 'a'},
		{0x200, 0x80, 'b'},
	}
	if len(ss) != len(want) {
		t.Fatalf("got %d segments %v, want %d", len(ss), ss, len(want))
	}
	for k, w := range want {
		s := ss[k]
		if s.addr != w.addr || uint64(len(s.data)) != w.size || s.data[0] != w.c {
			t.Errorf("segment %d = %s data %q, want addr=0x%x size=0x%x data %q", k, s, s.data[0], w.addr, w.size, w.c)
		}
	}

	tests := []struct {
		addr    uint64
		n       int
		want    string
		wantErr bool
	}{
		{0xf8, 16, "bbbbbbbbaaaaaaaa", false},
		{0x1f8, 16, "aaaaaaaabbbbbbbb", false},
		{0x278, 16, "", true},
		{0x10, 4, "", true},
	}
	for _, test := range tests {
		buf := make([]byte, test.n)
		err := ss.read(test.addr, buf)
		if (err != nil) != test.wantErr {
			t.Errorf("read(0x%x, %d) err=%v, want error=%v", test.addr, test.n, err, test.wantErr)
			continue
		}
		if err == nil && string(buf) != test.want {
			t.Errorf("read(0x%x, %d)=%q, want %q", test.addr, test.n, buf, test.want)
		}
	}
}

func TestDataSegmentUnreadable(t *testing.T) {
	var ss dataSegments
	ss.insert(0x1000, 0x10, func(addr, size uint64) (dataSegment, error) {
		return dataSegment{addr: addr, data: make([]byte, size)}, nil
	})
	if err := ss.read(0x1000, make([]byte, 1)); err == nil {
		t.Errorf("read of a guard segment succeeded")
	}
}

func TestSymbolTableAt(t *testing.T) {
	st := symbolTable{byAddr: []elfSymbol{
		{"ruby_version", 0x1000, 6},
		{"label", 0x2000, 0},
		{"rb_cObject", 0x3000, 8},
	}}
	tests := []struct {
		addr uint64
		want string
		ok   bool
	}{
		{0xfff, "", false},
		{0x1000, "ruby_version", true},
		{0x1005, "ruby_version", true},
		{0x1006, "", false},
		{0x2000, "label", true},
		{0x2001, "", false},
		{0x3007, "rb_cObject", true},
	}
	for _, test := range tests {
		s, ok := st.at(test.addr)
		if ok != test.ok || s.name != test.want {
			t.Errorf("at(0x%x)=%q,%v want %q,%v", test.addr, s.name, ok, test.want, test.ok)
		}
	}
}
