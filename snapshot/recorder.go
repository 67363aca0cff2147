package snapshot

// Recorder passes reads through to an underlying Memory and keeps a copy of
// every page touched. It is not safe for concurrent use.
type Recorder struct {
	mem  Memory
	syms SymbolTable
	snap *Snapshot
}

// NewRecorder records reads of mem. If mem also implements SymbolTable,
// successful symbol lookups are recorded as well.
func NewRecorder(mem Memory) *Recorder {
	r := &Recorder{mem: mem, snap: newSnapshot()}
	r.syms, _ = mem.(SymbolTable)
	return r
}

// ReadMemory implements Memory.
func (r *Recorder) ReadMemory(addr uint64, buf []byte) error {
	if err := r.mem.ReadMemory(addr, buf); err != nil {
		return err
	}
	end := addr + uint64(len(buf))
	for base := addr &^ (PageSize - 1); base < end; base += PageSize {
		if _, ok := r.snap.pages[base]; ok {
			continue
		}
		p := make([]byte, PageSize)
		if err := r.mem.ReadMemory(base, p); err != nil {
			// Only part of the page is mapped. Keep what the caller read;
			// the rest stays zero and is replayed as such.
			log.Debugf("partial page at 0x%x: %v", base, err)
			lo, hi := base, base+PageSize
			if lo < addr {
				lo = addr
			}
			if hi > end {
				hi = end
			}
			copy(p[lo-base:hi-base], buf[lo-addr:hi-addr])
		}
		r.snap.pages[base] = p
	}
	return nil
}

// LookupSymbol implements SymbolTable.
func (r *Recorder) LookupSymbol(name string) (uint64, bool) {
	if r.syms == nil {
		return 0, false
	}
	addr, ok := r.syms.LookupSymbol(name)
	if ok {
		r.snap.symbols[name] = addr
	}
	return addr, ok
}

// SetMeta records a metadata value.
func (r *Recorder) SetMeta(key, value string) {
	r.snap.meta[key] = value
}

// Snapshot returns the pages recorded so far. Later reads through r are
// added to the same snapshot.
func (r *Recorder) Snapshot() *Snapshot {
	return r.snap
}
