package rvalue

import (
	"testing"

	"github.com/tombergan/rubycore/snapshot"
)

// fixture builds Ruby heap objects in a snapshot using a Layout.
type fixture struct {
	t *testing.T
	b *snapshot.Builder
	l *Layout
}

const fixtureKlass = 0x7f00dead0000

func newFixture(t *testing.T, l *Layout) *fixture {
	return &fixture{t: t, b: snapshot.NewBuilder(), l: l}
}

func (f *fixture) inspector(opts Options) *Inspector {
	snap := f.b.Snapshot()
	in, err := NewInspector(snap, Config{Layout: f.l, Symbols: snap, Options: opts})
	if err != nil {
		f.t.Fatalf("NewInspector failed: %v", err)
	}
	return in
}

// user returns the flag bits for FL_USER<n>...
func (f *fixture) user(ns ...uint) uint64 {
	var v uint64
	for _, n := range ns {
		v |= f.l.Flags.User(n)
	}
	return v
}

// field places v in the FL_USER<lo>.. bit field.
func (f *fixture) field(lo, v uint) uint64 {
	return uint64(v) << (f.l.Flags.UserShift + lo)
}

// object allocates a slot of size bytes with the given header.
func (f *fixture) object(tag TypeTag, flags uint64, size uint64) uint64 {
	if size < f.l.Page.BaseSlotSize {
		size = f.l.Page.BaseSlotSize
	}
	addr := f.b.Alloc(size)
	f.b.PutUint64(addr, uint64(tag)|flags)
	f.b.PutUint64(addr+8, fixtureKlass)
	return addr
}

func (f *fixture) fix(n int64) uint64 {
	w, ok := EncodeFixnum(n)
	if !ok {
		f.t.Fatalf("EncodeFixnum(%d) failed", n)
	}
	return w
}

// str allocates an embedded UTF-8 string.
func (f *fixture) str(s string, flags uint64) uint64 {
	sl := &f.l.String
	addr := f.object(TString, flags|f.field(sl.EncodingLo, 1), sl.EmbedOffset+uint64(len(s))+1)
	f.b.PutUint64(addr+sl.LenOffset, uint64(len(s)))
	f.b.Write(addr+sl.EmbedOffset, []byte(s))
	return addr
}

// heapStr allocates a string whose bytes live outside the slot.
func (f *fixture) heapStr(s string) uint64 {
	sl := &f.l.String
	addr := f.object(TString, f.user(sl.NoEmbed)|f.field(sl.EncodingLo, 1), 0)
	f.b.PutUint64(addr+sl.LenOffset, uint64(len(s)))
	f.b.PutUint64(addr+sl.PtrOffset, f.b.CString(s))
	f.b.PutUint64(addr+sl.AuxOffset, uint64(len(s)))
	return addr
}

func (f *fixture) embedArray(elems ...uint64) uint64 {
	al := &f.l.Array
	addr := f.object(TArray, f.user(al.EmbedBit)|f.field(al.EmbedLenLo, uint(len(elems))),
		al.EmbedOffset+8*uint64(len(elems)))
	for i, e := range elems {
		f.b.PutUint64(addr+al.EmbedOffset+8*uint64(i), e)
	}
	return addr
}

func (f *fixture) heapArray(ptr, n, aux uint64, flags uint64) uint64 {
	al := &f.l.Array
	addr := f.object(TArray, flags, 0)
	f.b.PutUint64(addr+al.LenOffset, n)
	f.b.PutUint64(addr+al.AuxOffset, aux)
	f.b.PutUint64(addr+al.PtrOffset, ptr)
	return addr
}

// words allocates a VALUE vector.
func (f *fixture) words(ws ...uint64) uint64 {
	addr := f.b.Alloc(8 * uint64(len(ws)))
	for i, w := range ws {
		f.b.PutUint64(addr+8*uint64(i), w)
	}
	return addr
}

func (f *fixture) pair(tag TypeTag, off1, off2, v1, v2 uint64) uint64 {
	addr := f.object(tag, 0, 0)
	f.b.PutUint64(addr+off1, v1)
	f.b.PutUint64(addr+off2, v2)
	return addr
}
