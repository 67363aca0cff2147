package session

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tombergan/rubycore/rvalue"
	"github.com/tombergan/rubycore/snapshot"
)

type target struct {
	snap *snapshot.Snapshot
	str  uint64 // an embedded T_STRING "hello"
	ptr  uint64 // a word holding str; the symbol my_global
}

func newTarget(t *testing.T) *target {
	b := snapshot.NewBuilder()
	l := rvalue.Ruby34()
	str := b.Alloc(l.Page.BaseSlotSize)
	b.PutUint64(str, uint64(rvalue.TString)|uint64(1)<<(l.Flags.UserShift+l.String.EncodingLo))
	b.PutUint64(str+8, 0x7f00dead0000)
	b.PutUint64(str+l.String.LenOffset, 5)
	b.Write(str+l.String.EmbedOffset, []byte("hello"))
	ptr := b.Alloc(8)
	b.PutUint64(ptr, str)
	b.Symbol("my_global", ptr)
	b.SetMeta(MetaRegisters, fmt.Sprintf("rip=0x401000 rsp=%#x", ptr))
	return &target{snap: b.Snapshot(), str: str, ptr: ptr}
}

func run(t *testing.T, s *Session, line string) string {
	var b strings.Builder
	if err := s.Run(&b, line); err != nil {
		t.Fatalf("Run(%q) failed: %v", line, err)
	}
	return b.String()
}

func TestCommands(t *testing.T) {
	tg := newTarget(t)
	s, err := OpenSnapshot(tg.snap, "test", Config{})
	if err != nil {
		t.Fatalf("OpenSnapshot failed: %v", err)
	}
	defer s.Close()

	tests := []struct {
		line string
		want []string // substrings of the output
	}{
		{"rp 7", []string{"3\n"}},
		{"rp 0x14", []string{"true\n"}},
		{"rp *my_global", []string{"T_STRING: [UTF_8] \"hello\"\n"}},
		{"rp *$sp", []string{"T_STRING: [UTF_8] \"hello\"\n"}},
		{"rbasic *my_global", []string{
			fmt.Sprintf("addr:  0x%x\n", tg.str),
			"type:  T_STRING\n",
			"ENCODING=1",
			"klass: 0x7f00dead0000\n",
			"bits:  <unavailable: ",
		}},
		{"x my_global 1", []string{fmt.Sprintf("0x%016x: 0x%016x\n", tg.ptr, tg.str)}},
		{"x my_global - 8 3", []string{fmt.Sprintf("0x%016x:", tg.ptr-8), fmt.Sprintf("0x%016x:", tg.ptr+8)}},
		{"sym my_global", []string{fmt.Sprintf("my_global = 0x%x\n", tg.ptr)}},
		{"regs", []string{"rip     0x0000000000401000\n", fmt.Sprintf("rsp     0x%016x\n", tg.ptr)}},
		{"abi", []string{`name = "ruby-3.4-x86_64-linux"`}},
		{"reset", []string{"using layout ruby-3.4-x86_64-linux\n"}},
		{"help", []string{"rp <expr>", "heap_page <expr>", "quit"}},
		{"   ", nil},
	}
	for _, test := range tests {
		got := run(t, s, test.line)
		for _, want := range test.want {
			if !strings.Contains(got, want) {
				t.Errorf("Run(%q)=\n%s\nwant it to contain %q", test.line, got, want)
			}
		}
	}
}

func TestCommandErrors(t *testing.T) {
	s, err := OpenSnapshot(newTarget(t).snap, "test", Config{})
	if err != nil {
		t.Fatalf("OpenSnapshot failed: %v", err)
	}
	defer s.Close()

	for _, line := range []string{
		"frobnicate",
		"rp",
		"rp no_such_symbol",
		"rp $rax",
		"rbasic 7",
		"heap_page 7",
		"x 0x10",
		"x my_global 0",
		"sym",
		"sym 0x1234",
	} {
		var b strings.Builder
		if err := s.Run(&b, line); err == nil {
			t.Errorf("Run(%q) succeeded with output %q, want error", line, b.String())
		}
	}
	if err := s.Run(&strings.Builder{}, "quit"); !errors.Is(err, ErrQuit) {
		t.Errorf("Run(quit)=%v, want ErrQuit", err)
	}
}

func TestRecordReplay(t *testing.T) {
	tg := newTarget(t)
	path := filepath.Join(t.TempDir(), "rec.cbor")
	s, err := OpenSnapshot(tg.snap, "test", Config{Record: path})
	if err != nil {
		t.Fatalf("OpenSnapshot failed: %v", err)
	}
	lines := []string{"rp *my_global", "rbasic *my_global", "x my_global 2", "regs"}
	var want []string
	for _, line := range lines {
		want = append(want, run(t, s, line))
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	replay, err := Open(Config{Snapshot: path})
	if err != nil {
		t.Fatalf("Open(recorded snapshot) failed: %v", err)
	}
	defer replay.Close()
	if !strings.HasSuffix(replay.Desc, " of test") {
		t.Errorf("Desc=%q, want the recorded source", replay.Desc)
	}
	for i, line := range lines {
		if got := run(t, replay, line); got != want[i] {
			t.Errorf("replayed %q=\n%s\nwant\n%s", line, got, want[i])
		}
	}
}

func TestOpenNeedsOneTarget(t *testing.T) {
	for _, cfg := range []Config{
		{},
		{Core: "core", PID: 1},
		{Core: "core", Snapshot: "snap"},
	} {
		if _, err := Open(cfg); err == nil {
			t.Errorf("Open(%+v) succeeded", cfg)
		}
	}
	if _, err := Open(Config{Snapshot: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Errorf("Open(missing snapshot) succeeded")
	}
}

func TestRegisters(t *testing.T) {
	regs := map[string]uint64{"rsp": 0x10, "rip": 0xffffffffffffffff}
	text := formatRegisters(regs)
	if text != "rip=0xffffffffffffffff rsp=0x10" {
		t.Errorf("formatRegisters=%q", text)
	}
	got, err := parseRegisters(text)
	if err != nil || len(got) != 2 || got["rip"] != regs["rip"] || got["rsp"] != regs["rsp"] {
		t.Errorf("parseRegisters(%q)=%v, %v", text, got, err)
	}
	for _, bad := range []string{"rip", "=1", "rip=xyz"} {
		if _, err := parseRegisters(bad); err == nil {
			t.Errorf("parseRegisters(%q) succeeded", bad)
		}
	}

	s := &Session{regs: map[string]uint64{"rip": 1, "rsp": 2, "rbp": 3}}
	for name, want := range map[string]uint64{"pc": 1, "sp": 2, "fp": 3, "rip": 1} {
		if v, ok := s.Register(name); !ok || v != want {
			t.Errorf("Register(%s)=%d,%v want %d", name, v, ok, want)
		}
	}
	if _, ok := s.Register("lr"); ok {
		t.Errorf("Register(lr) succeeded on amd64 registers")
	}
}
