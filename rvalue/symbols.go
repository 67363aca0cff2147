package rvalue

import "fmt"

// SymbolName returns the name of the symbol with the given ID, looked up
// in the runtime's global symbol table.
func (in *Inspector) SymbolName(id uint64) (string, error) {
	x := &inspection{in: in, l: in.layout, opts: &in.cfg.Options}
	return x.symbolName(id)
}

func (x *inspection) symbolName(id uint64) (string, error) {
	sl := &x.l.Symbols
	if x.in.cfg.Symbols == nil {
		return "", fmt.Errorf("no symbol table to resolve %s", sl.Global)
	}
	global, ok := x.in.cfg.Symbols.LookupSymbol(sl.Global)
	if !ok {
		return "", &LayoutError{Name: sl.Global, Err: fmt.Errorf("symbol not found")}
	}
	if sl.EntryUnit == 0 || sl.EntrySize == 0 {
		return "", &LayoutError{Name: sl.Global, Err: fmt.Errorf("entry geometry is unset")}
	}
	serial := id
	if id > sl.LastOpID {
		serial = id >> sl.ScopeShift
	}
	ids, err := ReadUint64(x.in.mem, global+sl.IDsOffset)
	if err != nil {
		return "", err
	}
	chunk, err := x.arrayEntry(ids, serial/sl.EntryUnit)
	if err != nil {
		return "", fmt.Errorf("symbol id %#x: %w", id, err)
	}
	if chunk == x.l.Imm.Qnil {
		return "", fmt.Errorf("symbol id %#x is not registered", id)
	}
	fstr, err := x.arrayEntry(chunk, (serial%sl.EntryUnit)*sl.EntrySize)
	if err != nil {
		return "", fmt.Errorf("symbol id %#x: %w", id, err)
	}
	if _, ok := Classify(fstr, &x.l.Imm).(HeapRef); !ok {
		return "", fmt.Errorf("symbol id %#x has no name", id)
	}
	return x.stringAt(fstr)
}
