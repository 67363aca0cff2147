package perfsum

import (
	"strings"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want Sample
		ok   bool
	}{
		{
			"ruby 12345 1234.567890: 250000 cycles: 55d4c8a0abcd vm_exec_core+0x1234 (/usr/bin/ruby)",
			Sample{Comm: "ruby", PID: "12345", Cycles: 250000, Symbol: "vm_exec_core", DSO: "/usr/bin/ruby"},
			true,
		},
		{
			"    ruby 77/78 [003] 9.000001:      1000 cycles:u:  7f3a1f0c5010 rb_ary_push+0x10 (/usr/lib/libruby.so.3.4.1)",
			Sample{Comm: "ruby", PID: "77", Cycles: 1000, Symbol: "rb_ary_push", DSO: "/usr/lib/libruby.so.3.4.1"},
			true,
		},
		{
			"puma worker 5 1.5: 42 cycles: ffffffff81000000 [unknown] ([kernel.kallsyms])",
			Sample{Comm: "puma worker", PID: "5", Cycles: 42, Symbol: "[unknown]", DSO: "[kernel.kallsyms]"},
			true,
		},
		{
			"ruby 1 2.0: 7 cycles: 7f00 operator new(unsigned long)+0x8 (/usr/lib/libstdc++.so.6)",
			Sample{Comm: "ruby", PID: "1", Cycles: 7, Symbol: "operator new(unsigned long)", DSO: "/usr/lib/libstdc++.so.6"},
			true,
		},
		{"# ========", Sample{}, false},
		{"\t    55d4c8a0abcd vm_exec_core+0x1234 (/usr/bin/ruby)", Sample{}, false},
		{"ruby 12345 1234.5: cycles: 55d4 f (/x)", Sample{}, false},
	}
	for _, test := range tests {
		got, ok := ParseLine(test.line)
		if ok != test.ok || got != test.want {
			t.Errorf("ParseLine(%q)=%+v,%v want %+v,%v", test.line, got, ok, test.want, test.ok)
		}
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		dso, sym string
		want     string
	}{
		{"/tmp/perf-123.map", "getlocal_WC_0", CategoryJIT},
		{"/usr/bin/ruby", "[JIT] Integer#+", CategoryJIT},
		{"/usr/bin/ruby", "gc_mark_children", CategoryGC},
		{"/usr/bin/ruby", "rb_gc_mark_movable", CategoryGC},
		{"/usr/bin/ruby", "vm_exec_core", CategoryInterp},
		{"/usr/bin/ruby", "vm_call_cfunc_with_frame", CategoryDispatch},
		{"/usr/bin/ruby", "rb_ivar_get", CategoryIvar},
		{"/usr/bin/ruby", "vm_getivar", CategoryIvar},
		{"/usr/bin/ruby", "rb_wb_protected_newobj_of", CategoryAlloc},
		{"/usr/bin/ruby", "rb_str_buf_append", CategoryString},
		{"/usr/bin/ruby", "rb_ary_push", CategoryArray},
		{"/usr/bin/ruby", "st_lookup", CategoryHash},
		{"/usr/bin/ruby", "onig_search", CategoryRegexp},
		{"/usr/bin/ruby", "rb_sym2str", CategorySymbol},
		{"/usr/bin/ruby", "rb_raise", CategoryException},
		{"/lib/x86_64-linux-gnu/libc.so.6", "malloc", CategoryMemory},
		{"/usr/bin/ruby", "ruby_xmalloc2", CategoryMemory},
		{"/lib/x86_64-linux-gnu/libc.so.6", "__memmove_avx_unaligned_erms", CategoryLibc},
		{"[kernel.kallsyms]", "clear_page_erms", CategoryKernel},
		{"/usr/bin/ruby", "rb_yield_values", "rb_yield_values"},
	}
	for _, test := range tests {
		if got := Categorize(test.dso, test.sym); got != test.want {
			t.Errorf("Categorize(%q, %q)=%q, want %q", test.dso, test.sym, got, test.want)
		}
	}
}

func TestReportEmpty(t *testing.T) {
	a := NewAggregator(nil)
	var b strings.Builder
	if err := a.Report(&b); err != nil || b.Len() != 0 {
		t.Errorf("Report() of no samples wrote %q, %v; want nothing", b.String(), err)
	}
	a.Add(Sample{DSO: "/usr/bin/ruby", Symbol: "gc_start", Cycles: 0})
	if err := a.Report(&b); err != nil || b.Len() != 0 {
		t.Errorf("Report() of zero cycles wrote %q, %v; want nothing", b.String(), err)
	}
}

func TestReport(t *testing.T) {
	a := NewAggregator(nil)
	for _, s := range []Sample{
		{DSO: "/usr/bin/ruby", Symbol: "gc_sweep_step", Cycles: 100},
		{DSO: "/lib/x86_64-linux-gnu/libc.so.6", Symbol: "memcpy", Cycles: 100},
		{DSO: "/usr/bin/ruby", Symbol: "gc_mark_children", Cycles: 300},
	} {
		a.Add(s)
	}

	cats := a.Categories()
	if len(cats) != 2 || cats[0].Name != CategoryGC || cats[0].Ratio != 80 {
		t.Fatalf("Categories()=%+v, want GC first at 80%%", cats)
	}
	if syms := cats[0].Symbols; syms[0].Symbol != "gc_mark_children" || syms[0].Cycles != 300 {
		t.Errorf("GC symbols=%+v, want the 300-cycle entry first", syms)
	}

	want := "3 samples, 500 cycles\n" +
		"\n" +
		"   ratio         cycles  category\n" +
		"  80.00%            400  GC\n" +
		"  20.00%            100  libc\n" +
		"\n" +
		"GC:\n" +
		"  60.00%            300  ruby  gc_mark_children\n" +
		"  20.00%            100  ruby  gc_sweep_step\n" +
		"\n" +
		"libc:\n" +
		"  20.00%            100  libc.so.6  memcpy\n"
	var b strings.Builder
	if err := a.Report(&b); err != nil {
		t.Fatal(err)
	}
	if got := b.String(); got != want {
		t.Errorf("Report()=\n%s\nwant\n%s", got, want)
	}
}

func TestCategoriesTieBreak(t *testing.T) {
	a := NewAggregator(nil)
	a.Add(Sample{DSO: "x", Symbol: "zeta", Cycles: 5})
	a.Add(Sample{DSO: "x", Symbol: "alpha", Cycles: 5})
	cats := a.Categories()
	if len(cats) != 2 || cats[0].Name != "alpha" || cats[1].Name != "zeta" {
		t.Errorf("Categories()=%+v, want alpha before zeta", cats)
	}
}

func TestReadSamples(t *testing.T) {
	input := "# perf script header\n" +
		"ruby 1 1.0: 10 cycles: 1 rb_ary_push+0x1 (/usr/bin/ruby)\n" +
		"\t    deadbeef caller+0x2 (/usr/bin/ruby)\n" +
		"\n" +
		"ruby 1 1.1: 20 cycles: 1 rb_ary_pop+0x1 (/usr/bin/ruby)\n"
	a := NewAggregator(nil)
	skipped, err := ReadSamples(strings.NewReader(input), a.Add)
	if err != nil {
		t.Fatal(err)
	}
	if skipped != 2 || a.Samples() != 2 || a.Total() != 30 {
		t.Errorf("skipped=%d samples=%d total=%d, want 2, 2, 30", skipped, a.Samples(), a.Total())
	}
}

func TestParseRules(t *testing.T) {
	rs, err := ParseRules(`
[[rule]]
category = "Ractor"
symbol = ["^ractor_", "^rb_ractor_"]

[[rule]]
category = "My gem"
dso = ["mygem\\.so$"]
`)
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	tests := []struct {
		dso, sym string
		want     string
	}{
		{"/usr/bin/ruby", "rb_ractor_send", "Ractor"},
		{"/gems/mygem.so", "rb_str_new", "My gem"},
		{"/usr/bin/ruby", "rb_str_new", CategoryString},
	}
	for _, test := range tests {
		if got := rs.Categorize(test.dso, test.sym); got != test.want {
			t.Errorf("Categorize(%q, %q)=%q, want %q", test.dso, test.sym, got, test.want)
		}
	}

	rs, err = ParseRules("defaults = false\n[[rule]]\ncategory = \"Only\"\nsymbol = [\"^only$\"]\n")
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if got := rs.Categorize("/usr/bin/ruby", "rb_str_new"); got != "rb_str_new" {
		t.Errorf("without defaults, Categorize(rb_str_new)=%q, want the symbol", got)
	}

	for _, bad := range []string{
		"[[rule]]\nsymbol = [\"x\"]\n",
		"[[rule]]\ncategory = \"x\"\n",
		"[[rule]]\ncategory = \"x\"\nsymbol = [\"(\"]\n",
		"[[rule]]\ncategory = \"x\"\nsymbols = [\"x\"]\n",
		"not toml",
	} {
		if _, err := ParseRules(bad); err == nil {
			t.Errorf("ParseRules(%q) succeeded, want error", bad)
		}
	}
}
