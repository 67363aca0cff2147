package corefile

import (
	"debug/elf"
	"errors"
	"sort"
)

type elfSymbol struct {
	name       string
	addr, size uint64
}

// symbolTable indexes the ELF symbols of every loaded object, relocated
// by the object's load bias. The first definition of a name wins.
type symbolTable struct {
	byName map[string]uint64
	byAddr []elfSymbol // sorted by addr
}

func (t *symbolTable) add(f *elf.File, bias uint64) {
	if t.byName == nil {
		t.byName = map[string]uint64{}
	}
	var all []elf.Symbol
	for _, load := range []func() ([]elf.Symbol, error){f.Symbols, f.DynamicSymbols} {
		syms, err := load()
		if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
			logf("reading ELF symbols: %v", err)
		}
		all = append(all, syms...)
	}
	for _, s := range all {
		if s.Name == "" || s.Value == 0 || s.Section == elf.SHN_UNDEF {
			continue
		}
		switch elf.ST_TYPE(s.Info) {
		case elf.STT_OBJECT, elf.STT_FUNC, elf.STT_NOTYPE:
		default:
			continue
		}
		if _, dup := t.byName[s.Name]; dup {
			continue
		}
		addr := s.Value + bias
		t.byName[s.Name] = addr
		t.byAddr = append(t.byAddr, elfSymbol{name: s.Name, addr: addr, size: s.Size})
	}
	sort.Slice(t.byAddr, func(i, k int) bool { return t.byAddr[i].addr < t.byAddr[k].addr })
}

func (t *symbolTable) len() int { return len(t.byName) }

// at finds the symbol covering addr. Symbols without a size only match
// their exact address.
func (t *symbolTable) at(addr uint64) (elfSymbol, bool) {
	k := sort.Search(len(t.byAddr), func(k int) bool {
		return addr < t.byAddr[k].addr
	})
	k--
	if k < 0 {
		return elfSymbol{}, false
	}
	s := t.byAddr[k]
	if addr == s.addr || addr < s.addr+s.size {
		return s, true
	}
	return elfSymbol{}, false
}

// LookupSymbol returns the run-time address of a global symbol.
func (d *DebugInfo) LookupSymbol(name string) (uint64, bool) {
	addr, ok := d.symbols.byName[name]
	return addr, ok
}

// SymbolAt returns the symbol containing addr and the offset into it.
func (d *DebugInfo) SymbolAt(addr uint64) (name string, offset uint64, ok bool) {
	s, ok := d.symbols.at(addr)
	if !ok {
		return "", 0, false
	}
	return s.name, addr - s.addr, true
}
