package corefile

import (
	"testing"

	"github.com/tombergan/rubycore/rvalue"
)

var (
	_ rvalue.Memory       = (*Program)(nil)
	_ rvalue.LayoutSource = (*Program)(nil)
	_ rvalue.SymbolTable  = (*Program)(nil)
	_ Env                 = (*Program)(nil)
)

// An Inspector refines its layout from the DWARF a Program serves.
func TestProgramRefinesLayout(t *testing.T) {
	p := &Program{}
	if err := p.dwarf.add(testDWARF(t)); err != nil {
		t.Fatal(err)
	}
	in, err := rvalue.NewInspector(p, rvalue.Config{Source: p, Layout: rvalue.Ruby34()})
	if err != nil {
		t.Fatalf("NewInspector: %v", err)
	}
	// The test DWARF puts RString.len at 16, like the real ABI, and the
	// RUBY_T_MASK enumerator at 0x1f.
	l := in.Layout()
	if l.String.LenOffset != 16 || l.Flags.TypeMask != 0x1f {
		t.Errorf("refined layout: len offset %d, type mask %#x", l.String.LenOffset, l.Flags.TypeMask)
	}
	// as.heap.aux is at 32 in the test DWARF.
	if l.String.AuxOffset != 32 {
		t.Errorf("refined layout: aux offset %d, want 32", l.String.AuxOffset)
	}
}
