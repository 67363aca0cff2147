package rvalue

import (
	"encoding/binary"
	"fmt"
)

// Options bound how much of an object graph is decoded.
type Options struct {
	MaxStringBytes int  // string bytes read per object; default 1024
	MaxElements    int  // array, hash and struct members shown; default 16
	MaxDepth       int  // nesting depth of decoded children; default 2
	ShowBits       bool // annotate heap objects with their page bitmap bits
}

func (o *Options) setDefaults() {
	if o.MaxStringBytes <= 0 {
		o.MaxStringBytes = 1024
	}
	if o.MaxElements <= 0 {
		o.MaxElements = 16
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 2
	}
}

// Config describes how to construct an Inspector.
type Config struct {
	// Layout is the base profile. If nil, the profile is chosen from the
	// ruby_version symbol when Symbols is set, or Ruby34 otherwise.
	Layout *Layout
	// Source, if set, refines Layout from debug info.
	Source LayoutSource
	// Symbols, if set, resolves global symbols such as ruby_global_symbols.
	Symbols SymbolTable
	Options Options
}

// Inspector decodes VALUEs from one inspected address space.
// The only state it keeps is the resolved Layout. An Inspector is not
// safe for concurrent use.
type Inspector struct {
	mem    Memory
	cfg    Config
	layout *Layout
}

// NewInspector resolves the layout and returns an Inspector reading from mem.
func NewInspector(mem Memory, cfg Config) (*Inspector, error) {
	cfg.Options.setDefaults()
	in := &Inspector{mem: mem, cfg: cfg}
	if err := in.Reset(); err != nil {
		return nil, err
	}
	return in, nil
}

// Reset recomputes the Layout from the base profile and the layout source.
func (in *Inspector) Reset() error {
	base := in.cfg.Layout
	if base == nil {
		base = in.detectProfile()
	}
	l := base.Clone()
	if in.cfg.Source != nil {
		if err := refineLayout(l, in.cfg.Source); err != nil {
			return err
		}
	}
	if err := l.validate(); err != nil {
		return err
	}
	in.layout = l
	logf("using layout %s", l.Name)
	return nil
}

// detectProfile reads the ruby_version string from the target.
func (in *Inspector) detectProfile() *Layout {
	if in.cfg.Symbols != nil {
		if addr, ok := in.cfg.Symbols.LookupSymbol("ruby_version"); ok {
			// ruby_version is a const char[] in the data section.
			v, err := ReadCString(in.mem, addr, 32)
			if err == nil {
				return ProfileForVersion(v)
			}
			verbosef("cannot read ruby_version: %v", err)
		}
	}
	return Ruby34()
}

// Layout returns the resolved layout.
func (in *Inspector) Layout() *Layout { return in.layout }

// Options returns the decoding limits.
func (in *Inspector) Options() Options { return in.cfg.Options }

// Memory returns the memory the Inspector reads from.
func (in *Inspector) Memory() Memory { return in.mem }

// Classify decodes w with the Inspector's immediate encoding.
func (in *Inspector) Classify(w uint64) Variant {
	return Classify(w, &in.layout.Imm)
}

// ReadHeader reads the RBasic header at addr.
func (in *Inspector) ReadHeader(addr uint64) (Header, error) {
	var b [16]byte
	if err := readBytes(in.mem, addr, b[:]); err != nil {
		return Header{}, err
	}
	return Header{
		Addr:  addr,
		Flags: binary.LittleEndian.Uint64(b[0:8]),
		Klass: binary.LittleEndian.Uint64(b[8:16]),
		bits:  &in.layout.Flags,
	}, nil
}

// Inspect decodes the VALUE w. The returned Object is never nil. The error
// is non-nil only when w is a heap reference whose header cannot be read;
// the Object then carries the same error and renders it inline.
func (in *Inspector) Inspect(w uint64) (*Object, error) {
	x := &inspection{in: in, l: in.layout, opts: &in.cfg.Options}
	obj := x.inspect(w, 0)
	return obj, obj.Err
}

// inspection is the state of a single Inspect call.
type inspection struct {
	in   *Inspector
	l    *Layout
	opts *Options
}

func (x *inspection) inspect(w uint64, depth int) *Object {
	v := Classify(w, &x.l.Imm)
	obj := &Object{Word: w, Variant: v}
	switch v := v.(type) {
	case HeapRef:
		x.inspectHeap(obj, v.Addr, depth)
	case StaticSymbol:
		obj.Summary = v.String()
		if v.ID >= 128 {
			if name, err := x.symbolName(v.ID); err == nil {
				obj.Short = ":" + name
				obj.Summary = fmt.Sprintf("T_SYMBOL: (id %#x) :%s", v.ID, name)
			} else {
				obj.addErr("name", err)
			}
		} else {
			obj.Short = v.String()
		}
	default:
		obj.Summary = v.String()
	}
	return obj
}

// child decodes a nested VALUE, or returns only its address when the
// depth bound is reached.
func (x *inspection) child(w uint64, depth int) *Object {
	if depth > x.opts.MaxDepth {
		v := Classify(w, &x.l.Imm)
		if _, ok := v.(HeapRef); ok {
			return &Object{Word: w, Variant: v, Short: fmt.Sprintf("0x%x", w)}
		}
	}
	return x.inspect(w, depth)
}

func (x *inspection) inspectHeap(obj *Object, addr uint64, depth int) {
	h, err := x.in.ReadHeader(addr)
	if err != nil {
		obj.Err = err
		obj.Summary = unreadable(err)
		return
	}
	obj.Header = &h
	if x.opts.ShowBits {
		if bits, err := x.in.PageBits(addr); err == nil {
			obj.Bits = bits.Letters()
		} else {
			verbosef("no page bits for 0x%x: %v", addr, err)
		}
	}
	x.extract(obj, depth)
}

// word reads a VALUE-sized field of the object at off, recording a field
// error named name on failure.
func (x *inspection) word(obj *Object, name string, off uint64) (uint64, bool) {
	w, err := ReadUint64(x.in.mem, obj.Header.Addr+off)
	if err != nil {
		obj.addErr(name, err)
		return 0, false
	}
	return w, true
}

// value reads a VALUE field and adds it as a nested object.
func (x *inspection) value(obj *Object, name string, off uint64, depth int) *Object {
	w, ok := x.word(obj, name, off)
	if !ok {
		return nil
	}
	c := x.child(w, depth+1)
	obj.addValue(name, c)
	return c
}
