package corefile

import (
	"debug/elf"
	"fmt"
)

// Program describes the state of a process in a core file, together with
// the executable and shared libraries it was running.
type Program struct {
	DebugInfo

	Arch    string // "amd64" or "arm64"
	PID     uint64
	Command string // from NT_PRPSINFO, truncated by the kernel
	Args    string

	// Threads lists the OS threads in the order the kernel dumped them.
	// The first thread is the one that received the fatal signal.
	Threads []*OSThread

	// Auxv is the auxiliary vector, keyed by AT_* tag.
	Auxv map[uint64]uint64

	// Mappings lists the file-backed mappings from NT_FILE.
	Mappings []Mapping

	segments dataSegments // virtual memory mappings
	filemaps []*mmapFile  // the core and anonymous BSS mappings
}

// OSThread is a single thread from NT_PRSTATUS.
type OSThread struct {
	PID    uint64
	Signal int
	GPRegs map[string]uint64 // lowercase register name -> value
}

// OpenProgram loads a core file. objects names the executable and any
// shared libraries whose symbols and debug info should be available;
// the first is treated as the executable.
func OpenProgram(corePath string, objects ...string) (*Program, error) {
	p := &Program{}
	if err := p.open(corePath, objects); err != nil {
		p.Close()
		return nil, err
	}
	logf("loaded %s: %d threads, %d segments, %d symbols", corePath, len(p.Threads), len(p.segments), p.symbols.len())
	return p, nil
}

func (p *Program) open(corePath string, objects []string) error {
	coref, err := mmapOpen(corePath)
	if err != nil {
		return err
	}
	p.filemaps = append(p.filemaps, coref)
	if err := readELFCore(coref, p); err != nil {
		return fmt.Errorf("reading core %s: %w", corePath, err)
	}
	for i, path := range objects {
		if err := p.loadObject(path, i == 0); err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}
	return nil
}

func (p *Program) loadObject(path string, isExec bool) error {
	mmapf, f, err := p.openObject(path)
	if err != nil {
		return err
	}
	bias, err := p.loadBias(f, path, isExec)
	if err != nil {
		return err
	}
	if err := readELFObject(mmapf, f, p, bias); err != nil {
		return err
	}
	_, err = p.index(f, path, bias)
	return err
}

// loadBias finds where f was mapped. For a PIE executable, AT_ENTRY gives
// the bias directly; everything else is found through NT_FILE.
func (p *Program) loadBias(f *elf.File, path string, isExec bool) (uint64, error) {
	if entry, ok := p.Auxv[AT_ENTRY]; ok && isExec && f.Type == elf.ET_DYN {
		return entry - f.Entry, nil
	}
	return mappedBias(f, path, p.Mappings)
}

// Close unmaps every file backing p.
func (p *Program) Close() error {
	first := p.DebugInfo.Close()
	for _, f := range p.filemaps {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.filemaps = nil
	p.segments = nil
	return first
}

// ReadMemory copies len(buf) bytes at addr out of the core.
func (p *Program) ReadMemory(addr uint64, buf []byte) error {
	if err := p.segments.read(addr, buf); err != nil {
		return fmt.Errorf("core: %w", err)
	}
	return nil
}

// Register returns a register of the first thread. "pc" and "sp" work on
// every architecture.
func (p *Program) Register(name string) (uint64, bool) {
	if len(p.Threads) == 0 {
		return 0, false
	}
	if p.Arch == "amd64" {
		switch name {
		case "pc":
			name = "rip"
		case "sp":
			name = "rsp"
		case "fp":
			name = "rbp"
		}
	}
	v, ok := p.Threads[0].GPRegs[name]
	return v, ok
}

// Eval evaluates an address expression against p.
func (p *Program) Eval(expr string) (uint64, error) {
	return Eval(expr, p)
}
