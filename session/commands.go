package session

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tombergan/rubycore/rvalue"
)

// ErrQuit is returned by Run for the quit command.
var ErrQuit = errors.New("quit")

type command struct {
	name  string
	usage string
	help  string
	run   func(s *Session, w io.Writer, args string) error
}

var commands []command

func init() {
	commands = []command{
		{"rp", "rp <expr>", "inspect the VALUE that expr evaluates to", (*Session).cmdRP},
		{"rbasic", "rbasic <expr>", "show the RBasic flags and GC bitmap bits of a heap object", (*Session).cmdRBasic},
		{"heap_page", "heap_page <expr>", "show the header of the heap page containing an object", (*Session).cmdHeapPage},
		{"x", "x <expr> [n]", "dump n words of memory (default 4)", (*Session).cmdExamine},
		{"sym", "sym <name|expr>", "look up a symbol, or the symbol containing an address", (*Session).cmdSym},
		{"regs", "regs", "show the registers of the first thread", (*Session).cmdRegs},
		{"abi", "abi", "show the resolved layout in TOML", (*Session).cmdABI},
		{"reset", "reset", "recompute the layout from debug info", (*Session).cmdReset},
		{"help", "help", "show this list", (*Session).cmdHelp},
		{"quit", "quit", "exit", func(*Session, io.Writer, string) error { return ErrQuit }},
	}
}

func lookupCommand(name string) *command {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i]
		}
	}
	return nil
}

// Run executes one command line and writes its output to w. An empty line
// does nothing. Errors are the command's own; the session stays usable.
func (s *Session) Run(w io.Writer, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	name, args, _ := strings.Cut(line, " ")
	cmd := lookupCommand(name)
	if cmd == nil {
		return fmt.Errorf("unknown command %q (try help)", name)
	}
	verbosef("running %s %q", name, args)
	return cmd.run(s, w, strings.TrimSpace(args))
}

func (s *Session) eval(args string) (uint64, error) {
	if args == "" {
		return 0, errors.New("missing expression")
	}
	return s.Eval(args)
}

func (s *Session) heapAddr(args string) (uint64, error) {
	w, err := s.eval(args)
	if err != nil {
		return 0, err
	}
	ref, ok := s.in.Classify(w).(rvalue.HeapRef)
	if !ok {
		return 0, fmt.Errorf("0x%x is not a heap object", w)
	}
	return ref.Addr, nil
}

func (s *Session) cmdRP(w io.Writer, args string) error {
	v, err := s.eval(args)
	if err != nil {
		return err
	}
	// An unreadable object renders its own error.
	obj, _ := s.in.Inspect(v)
	return rvalue.Render(w, obj)
}

func (s *Session) cmdRBasic(w io.Writer, args string) error {
	addr, err := s.heapAddr(args)
	if err != nil {
		return err
	}
	h, err := s.in.ReadHeader(addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "addr:  0x%x\n", h.Addr)
	fmt.Fprintf(w, "type:  %v\n", h.Tag())
	fmt.Fprintf(w, "flags: 0x%x %s\n", h.Flags, strings.Join(h.FlagNames(s.in.Layout()), " "))
	fmt.Fprintf(w, "klass: 0x%x\n", h.Klass)
	bits, err := s.in.PageBits(addr)
	if err != nil {
		_, err = fmt.Fprintf(w, "bits:  <unavailable: %v>\n", err)
		return err
	}
	_, err = fmt.Fprintf(w, "bits:  %s (page 0x%x, slot %d)\n", bits.Letters(), bits.Page, bits.Index)
	return err
}

func (s *Session) cmdHeapPage(w io.Writer, args string) error {
	addr, err := s.eval(args)
	if err != nil {
		return err
	}
	info, err := s.in.PageInfo(addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "body:         0x%x\n", info.Body)
	fmt.Fprintf(w, "heap_page:    0x%x\n", info.Page)
	fmt.Fprintf(w, "slot_size:    %d\n", info.SlotSize)
	fmt.Fprintf(w, "total_slots:  %d\n", info.TotalSlots)
	fmt.Fprintf(w, "free_slots:   %d\n", info.FreeSlots)
	fmt.Fprintf(w, "final_slots:  %d\n", info.FinalSlots)
	fmt.Fprintf(w, "pinned_slots: %d\n", info.PinnedSlots)
	_, err = fmt.Fprintf(w, "start:        0x%x\n", info.Start)
	return err
}

const maxExamineWords = 4096

func (s *Session) cmdExamine(w io.Writer, args string) error {
	expr, n := args, uint64(4)
	if k := strings.LastIndexByte(args, ' '); k >= 0 {
		if count, err := strconv.ParseUint(args[k+1:], 0, 64); err == nil {
			if _, err := s.eval(strings.TrimSpace(args[:k])); err == nil {
				expr, n = strings.TrimSpace(args[:k]), count
			}
		}
	}
	if n == 0 || n > maxExamineWords {
		return fmt.Errorf("word count %d out of range 1..%d", n, maxExamineWords)
	}
	addr, err := s.eval(expr)
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		a := addr + i*8
		if i%2 == 0 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "0x%016x:", a)
		}
		v, err := rvalue.ReadUint64(s.mem, a)
		if err != nil {
			fmt.Fprintln(w)
			return err
		}
		fmt.Fprintf(w, " 0x%016x", v)
	}
	_, err = fmt.Fprintln(w)
	return err
}

// symbolizer is implemented by targets that can map addresses to symbols.
type symbolizer interface {
	SymbolAt(addr uint64) (name string, offset uint64, ok bool)
}

func (s *Session) cmdSym(w io.Writer, args string) error {
	if args == "" {
		return errors.New("missing symbol name")
	}
	if addr, ok := s.LookupSymbol(args); ok {
		_, err := fmt.Fprintf(w, "%s = 0x%x\n", args, addr)
		return err
	}
	addr, err := s.Eval(args)
	if err != nil {
		return fmt.Errorf("no symbol %q", args)
	}
	st, ok := s.closer.(symbolizer)
	if !ok {
		return fmt.Errorf("no symbol %q", args)
	}
	name, off, ok := st.SymbolAt(addr)
	if !ok {
		return fmt.Errorf("no symbol contains 0x%x", addr)
	}
	_, err = fmt.Fprintf(w, "0x%x = %s+0x%x\n", addr, name, off)
	return err
}

func (s *Session) cmdRegs(w io.Writer, args string) error {
	if len(s.regs) == 0 {
		return errors.New("target has no registers")
	}
	for _, name := range registerNames(s.regs) {
		if _, err := fmt.Fprintf(w, "%-7s 0x%016x\n", name, s.regs[name]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) cmdABI(w io.Writer, args string) error {
	return s.in.Layout().Encode(w)
}

func (s *Session) cmdReset(w io.Writer, args string) error {
	if err := s.in.Reset(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "using layout %s\n", s.in.Layout().Name)
	return err
}

func (s *Session) cmdHelp(w io.Writer, args string) error {
	for _, c := range commands {
		if _, err := fmt.Fprintf(w, "%-18s %s\n", c.usage, c.help); err != nil {
			return err
		}
	}
	return nil
}
