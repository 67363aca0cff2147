// Package session opens an inspected Ruby address space (a core file, a
// stopped process or a recorded snapshot) and runs debugger commands
// against it. It is shared by the rbinspect and rbview commands.
package session

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/tombergan/rubycore/corefile"
	"github.com/tombergan/rubycore/liveproc"
	"github.com/tombergan/rubycore/rvalue"
	"github.com/tombergan/rubycore/snapshot"
)

// Snapshot metadata keys written by a recording session.
const (
	MetaSource    = "source"
	MetaLayout    = "layout"
	MetaRegisters = "registers"
)

// Config selects the inspected address space. Exactly one of Core, PID
// and Snapshot must be set.
type Config struct {
	Core     string
	PID      int
	Snapshot string
	// Objects are the executable and shared objects to read symbols and
	// debug info from. For a core, the first one is the executable.
	Objects []string
	// ABI names a TOML file that overrides the layout profile.
	ABI string
	// Record names a snapshot file that Close writes with every page
	// read during the session.
	Record  string
	Options rvalue.Options
}

// Session is one inspected address space and its Inspector.
// A Session is not safe for concurrent use.
type Session struct {
	Desc string

	mem    rvalue.Memory
	syms   rvalue.SymbolTable
	regs   map[string]uint64
	in     *rvalue.Inspector
	closer io.Closer

	rec    *snapshot.Recorder
	record string
}

// Open opens the address space named by cfg.
func Open(cfg Config) (*Session, error) {
	set := 0
	for _, ok := range []bool{cfg.Core != "", cfg.PID != 0, cfg.Snapshot != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, errors.New("exactly one of a core file, a pid or a snapshot must be given")
	}

	switch {
	case cfg.Core != "":
		p, err := corefile.OpenProgram(cfg.Core, cfg.Objects...)
		if err != nil {
			return nil, err
		}
		var src rvalue.LayoutSource
		if p.HasDWARF() {
			src = p
		}
		var regs map[string]uint64
		if len(p.Threads) > 0 {
			regs = p.Threads[0].GPRegs
		}
		desc := fmt.Sprintf("core %s (pid %d, %s)", cfg.Core, p.PID, p.Command)
		return newSession(desc, p, p, src, regs, p, nil, cfg)

	case cfg.PID != 0:
		p, err := liveproc.Attach(cfg.PID, cfg.Objects...)
		if err != nil {
			return nil, err
		}
		var src rvalue.LayoutSource
		if p.HasDWARF() {
			src = p
		}
		desc := fmt.Sprintf("process %d (%s)", p.PID, p.Exe)
		return newSession(desc, p, p, src, nil, p, nil, cfg)

	default:
		snap, err := snapshot.Open(cfg.Snapshot)
		if err != nil {
			return nil, err
		}
		return OpenSnapshot(snap, "snapshot "+cfg.Snapshot, cfg)
	}
}

// OpenSnapshot starts a session over snap. If snap was written by a
// recording session, its layout and registers are restored from the
// metadata. cfg's target fields are ignored.
func OpenSnapshot(snap *snapshot.Snapshot, desc string, cfg Config) (*Session, error) {
	var layout *rvalue.Layout
	if text := snap.Meta(MetaLayout); text != "" {
		l, err := rvalue.ParseLayout(text, nil)
		if err != nil {
			return nil, fmt.Errorf("snapshot layout: %w", err)
		}
		layout = l
	}
	regs, err := parseRegisters(snap.Meta(MetaRegisters))
	if err != nil {
		return nil, fmt.Errorf("snapshot registers: %w", err)
	}
	if src := snap.Meta(MetaSource); src != "" {
		desc += " of " + src
	}
	return newSession(desc, snap, snap, nil, regs, nil, layout, cfg)
}

func newSession(desc string, mem rvalue.Memory, syms rvalue.SymbolTable, src rvalue.LayoutSource,
	regs map[string]uint64, closer io.Closer, layout *rvalue.Layout, cfg Config) (*Session, error) {
	s := &Session{Desc: desc, mem: mem, syms: syms, regs: regs, closer: closer, record: cfg.Record}
	if cfg.Record != "" {
		s.rec = snapshot.NewRecorder(mem)
		s.mem, s.syms = s.rec, s.rec
	}
	if cfg.ABI != "" {
		l, err := rvalue.LoadLayoutFile(cfg.ABI, layout)
		if err != nil {
			s.closeTarget()
			return nil, err
		}
		layout = l
	}
	in, err := rvalue.NewInspector(s.mem, rvalue.Config{
		Layout:  layout,
		Source:  src,
		Symbols: s.syms,
		Options: cfg.Options,
	})
	if err != nil {
		s.closeTarget()
		return nil, err
	}
	s.in = in
	logf("opened %s", desc)
	return s, nil
}

// Inspector returns the session's Inspector.
func (s *Session) Inspector() *rvalue.Inspector { return s.in }

// ReadMemory implements corefile.Env.
func (s *Session) ReadMemory(addr uint64, buf []byte) error {
	return s.mem.ReadMemory(addr, buf)
}

// LookupSymbol implements corefile.Env.
func (s *Session) LookupSymbol(name string) (uint64, bool) {
	return s.syms.LookupSymbol(name)
}

var registerAliases = map[string]string{
	"pc": "rip",
	"sp": "rsp",
	"fp": "rbp",
}

// Register returns a register of the first thread, if the target has
// registers at all.
func (s *Session) Register(name string) (uint64, bool) {
	if v, ok := s.regs[name]; ok {
		return v, true
	}
	if alias, ok := registerAliases[name]; ok {
		v, ok := s.regs[alias]
		return v, ok
	}
	return 0, false
}

// Eval evaluates an address expression against the session.
func (s *Session) Eval(expr string) (uint64, error) {
	return corefile.Eval(expr, s)
}

// Close writes the recorded snapshot, if any, and releases the target.
func (s *Session) Close() error {
	var first error
	if s.rec != nil {
		first = s.writeRecord()
	}
	if err := s.closeTarget(); err != nil && first == nil {
		first = err
	}
	return first
}

func (s *Session) writeRecord() error {
	s.rec.SetMeta(MetaSource, s.Desc)
	var b strings.Builder
	if err := s.in.Layout().Encode(&b); err != nil {
		return fmt.Errorf("encoding layout: %w", err)
	}
	s.rec.SetMeta(MetaLayout, b.String())
	if len(s.regs) > 0 {
		s.rec.SetMeta(MetaRegisters, formatRegisters(s.regs))
	}
	snap := s.rec.Snapshot()
	if err := snap.WriteFile(s.record); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	logf("recorded %d pages to %s", snap.NumPages(), s.record)
	return nil
}

func (s *Session) closeTarget() error {
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	return c.Close()
}

func registerNames(regs map[string]uint64) []string {
	names := make([]string, 0, len(regs))
	for name := range regs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// formatRegisters encodes regs as "name=0xvalue" pairs separated by spaces.
func formatRegisters(regs map[string]uint64) string {
	var parts []string
	for _, name := range registerNames(regs) {
		parts = append(parts, fmt.Sprintf("%s=%#x", name, regs[name]))
	}
	return strings.Join(parts, " ")
}

func parseRegisters(text string) (map[string]uint64, error) {
	if text == "" {
		return nil, nil
	}
	regs := map[string]uint64{}
	for _, part := range strings.Fields(text) {
		name, value, ok := strings.Cut(part, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed register %q", part)
		}
		v, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
		regs[name] = v
	}
	return regs, nil
}
