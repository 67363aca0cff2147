package perfsum

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Rule puts a sample in Category when any DSO pattern matches its DSO or
// any Symbol pattern matches its symbol. Patterns are regular expressions.
type Rule struct {
	Category string   `toml:"category"`
	DSO      []string `toml:"dso"`
	Symbol   []string `toml:"symbol"`
}

// Default categories, in priority order.
const (
	CategoryJIT       = "[JIT] YJIT/ZJIT code"
	CategoryGC        = "GC"
	CategoryInterp    = "Interpreter loop"
	CategoryDispatch  = "Method dispatch"
	CategoryIvar      = "Instance variables"
	CategoryAlloc     = "Object allocation"
	CategoryString    = "String"
	CategoryArray     = "Array"
	CategoryHash      = "Hash"
	CategoryRegexp    = "Regexp"
	CategorySymbol    = "Symbol"
	CategoryException = "Exception"
	CategoryMemory    = "Memory allocation"
	CategoryLibc      = "libc"
	CategoryKernel    = "Kernel"
)

// DefaultRules returns the built-in rules for CRuby.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: CategoryJIT,
			DSO:      []string{`(^|/)perf-\d+\.map$`, `^\[JIT\]`},
			Symbol:   []string{`^\[JIT\]`, `^\[?[yz]jit`},
		},
		{
			Category: CategoryGC,
			Symbol:   []string{`^gc_`, `^rb_gc_`, `^rgengc_`, `^gc\b`, `_mark(_|$)`, `^mark_`, `sweep`, `^rb_objspace_`},
		},
		{
			Category: CategoryInterp,
			Symbol:   []string{`^vm_exec`, `^rb_vm_exec`, `^rb_iseq_eval`, `^vm_push_frame`, `^vm_pop_frame`, `^invoke_iseq_block`},
		},
		{
			Category: CategoryDispatch,
			Symbol:   []string{`^vm_call`, `^rb_call`, `^vm_search_method`, `^rb_funcall`, `method_missing`, `callable_method_entry`, `^vm_sendish`, `^rb_vm_call`, `^vm_invoke`},
		},
		{
			Category: CategoryIvar,
			Symbol:   []string{`ivar`, `^rb_shape_`, `^shape_`},
		},
		{
			Category: CategoryAlloc,
			Symbol:   []string{`newobj`, `^rb_obj_alloc`, `^rb_class_new_instance`, `^rb_class_allocate_instance`, `_alloc$`},
		},
		{
			Category: CategoryString,
			Symbol:   []string{`^rb_str_`, `^str_`, `^rb_enc_`, `^rb_utf8_`, `^rb_fstring`, `^enc_`},
		},
		{
			Category: CategoryArray,
			Symbol:   []string{`^rb_ary_`, `^ary_`},
		},
		{
			Category: CategoryHash,
			Symbol:   []string{`^rb_hash_`, `^hash_`, `^st_`, `^rb_st_`, `^ar_`},
		},
		{
			Category: CategoryRegexp,
			Symbol:   []string{`^rb_reg_`, `^onig_`, `^reg_`, `^rb_backref_`, `^match_`},
		},
		{
			Category: CategorySymbol,
			Symbol:   []string{`^rb_sym`, `^sym_`, `^rb_id2`, `^rb_intern`, `^rb_check_id`},
		},
		{
			Category: CategoryException,
			Symbol:   []string{`^rb_raise`, `^rb_exc_`, `^exc_`, `^rb_ec_tag`, `^rb_protect`, `setjmp`, `longjmp`, `^rb_ensure`, `^rb_rescue`},
		},
		{
			Category: CategoryMemory,
			Symbol:   []string{`^(__libc_)?(malloc|calloc|realloc|free)$`, `^_int_(malloc|free|realloc)`, `^ruby_x(malloc|calloc|realloc|free)`, `^objspace_x`, `^je_`, `^tc_`, `^mmap`, `^munmap`},
		},
		{
			Category: CategoryLibc,
			DSO:      []string{`(^|/)libc[.-]`, `(^|/)libm[.-]`, `(^|/)libpthread[.-]`, `(^|/)ld-linux`},
		},
		{
			Category: CategoryKernel,
			DSO:      []string{`^\[kernel`, `^\[vdso\]`},
			Symbol:   []string{`^entry_SYSCALL`, `^__x64_sys_`},
		},
	}
}

type compiledRule struct {
	category    string
	dso, symbol []*regexp.Regexp
}

// Rules is a compiled, ordered rule list.
type Rules struct {
	rules []compiledRule
}

// NewRules compiles rules. Earlier rules take priority.
func NewRules(rules []Rule) (*Rules, error) {
	rs := &Rules{}
	for i, r := range rules {
		if r.Category == "" {
			return nil, fmt.Errorf("rule %d has no category", i+1)
		}
		if len(r.DSO) == 0 && len(r.Symbol) == 0 {
			return nil, fmt.Errorf("rule %d (%s) has no patterns", i+1, r.Category)
		}
		cr := compiledRule{category: r.Category}
		for _, p := range r.DSO {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): %w", i+1, r.Category, err)
			}
			cr.dso = append(cr.dso, re)
		}
		for _, p := range r.Symbol {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): %w", i+1, r.Category, err)
			}
			cr.symbol = append(cr.symbol, re)
		}
		rs.rules = append(rs.rules, cr)
	}
	return rs, nil
}

var defaultRules = func() *Rules {
	rs, err := NewRules(DefaultRules())
	if err != nil {
		panic(err)
	}
	return rs
}()

// Default returns the compiled built-in rules.
func Default() *Rules { return defaultRules }

// Categorize returns the category of a sample under the built-in rules.
func Categorize(dso, sym string) string {
	return defaultRules.Categorize(dso, sym)
}

// Categorize returns the category of the first matching rule, or sym.
func (rs *Rules) Categorize(dso, sym string) string {
	for _, r := range rs.rules {
		for _, re := range r.dso {
			if re.MatchString(dso) {
				return r.category
			}
		}
		for _, re := range r.symbol {
			if re.MatchString(sym) {
				return r.category
			}
		}
	}
	return sym
}

// LoadRules reads extra rules from a TOML file of [[rule]] tables. They
// are tried before the built-in rules.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return ParseRules(string(data))
}

// ParseRules is like LoadRules, but parses TOML text.
func ParseRules(text string) (*Rules, error) {
	var file struct {
		Rule     []Rule `toml:"rule"`
		Defaults *bool  `toml:"defaults"`
	}
	md, err := toml.Decode(text, &file)
	if err != nil {
		return nil, fmt.Errorf("parse error in rules: %w", err)
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return nil, fmt.Errorf("unknown rules key %q", keys[0].String())
	}
	rules := file.Rule
	if file.Defaults == nil || *file.Defaults {
		rules = append(rules, DefaultRules()...)
	}
	logf("loaded %d rules (%d custom)", len(rules), len(file.Rule))
	return NewRules(rules)
}
