package corefile

import (
	"encoding/binary"
	"errors"
	"testing"
)

type fakeEnv struct {
	mem  map[uint64]uint64 // word-aligned
	syms map[string]uint64
}

func (e fakeEnv) ReadMemory(addr uint64, buf []byte) error {
	w, ok := e.mem[addr]
	if !ok || len(buf) != 8 {
		return errors.New("unmapped")
	}
	binary.LittleEndian.PutUint64(buf, w)
	return nil
}

func (e fakeEnv) LookupSymbol(name string) (uint64, bool) {
	v, ok := e.syms[name]
	return v, ok
}

type fakeRegsEnv struct {
	fakeEnv
	regs map[string]uint64
}

func (e fakeRegsEnv) Register(name string) (uint64, bool) {
	v, ok := e.regs[name]
	return v, ok
}

func TestEval(t *testing.T) {
	env := fakeRegsEnv{
		fakeEnv: fakeEnv{
			mem: map[uint64]uint64{
				0x1000: 0x2000,
				0x2000: 0x14,
				0x2008: 0x7f00dead0000,
			},
			syms: map[string]uint64{
				"rb_cObject":          0x1000,
				"ruby_global_symbols": 0x3000,
			},
		},
		regs: map[string]uint64{"rdi": 0x2008, "rsp": 0x10},
	}
	tests := []struct {
		expr string
		want uint64
	}{
		{"0", 0},
		{"42", 42},
		{"0x7f00_dead_0000", 0x7f00dead0000},
		{"rb_cObject", 0x1000},
		{"*rb_cObject", 0x2000},
		{"**rb_cObject", 0x14},
		{"*(rb_cObject)+8", 0x2008},
		{"*(*rb_cObject+8)", 0x7f00dead0000},
		{"$rdi", 0x2008},
		{"$RDI", 0x2008},
		{"*$rdi", 0x7f00dead0000},
		{" ruby_global_symbols + 0x10 - 4 ", 0x300c},
		{"(1+2)-(3-1)", 1},
		{"0-1", 0xffffffffffffffff},
	}
	for _, test := range tests {
		got, err := Eval(test.expr, env)
		if err != nil || got != test.want {
			t.Errorf("Eval(%q)=%#x,%v want %#x", test.expr, got, err, test.want)
		}
	}
}

func TestEvalErrors(t *testing.T) {
	env := fakeEnv{mem: map[uint64]uint64{}, syms: map[string]uint64{"a": 8}}
	tests := []struct {
		expr    string
		wantPos int
	}{
		{"", 0},
		{"a+", 2},
		{"(a", 2},
		{"a)", 1},
		{"nosuch", 0},
		{"*a", 1},
		{"$rip", 1},
		{"0xzz", 0},
		{"a # b", 2},
	}
	for _, test := range tests {
		_, err := Eval(test.expr, env)
		var ee *EvalError
		if !errors.As(err, &ee) {
			t.Errorf("Eval(%q) err=%v, want *EvalError", test.expr, err)
			continue
		}
		if ee.Pos != test.wantPos {
			t.Errorf("Eval(%q) error at %d, want %d (%v)", test.expr, ee.Pos, test.wantPos, err)
		}
	}
}
