package corefile

import (
	"debug/elf"
	"errors"
	"fmt"
	"path/filepath"
)

// DebugInfo indexes the ELF symbols and DWARF of the objects a process
// had loaded. It implements symbol lookup and the layout queries of
// rvalue.LayoutSource.
type DebugInfo struct {
	// Objects lists the ELF objects loaded from disk, executable first.
	Objects []*Object

	symbols  symbolTable
	dwarf    dwarfIndex
	objfiles []*mmapFile
}

// Object is an ELF file whose segments were mapped into the process.
type Object struct {
	Path     string
	Bias     uint64 // load address minus link-time address
	HasDWARF bool
}

// Mapping is one file-backed memory mapping.
type Mapping struct {
	Start, End uint64
	Offset     uint64 // in bytes
	Path       string
}

// LoadMapped indexes the object at path, which must appear at file
// offset 0 in maps. It is used for live processes, whose mappings come
// from /proc/<pid>/maps.
func (d *DebugInfo) LoadMapped(path string, maps []Mapping) (*Object, error) {
	_, f, err := d.openObject(path)
	if err != nil {
		return nil, err
	}
	bias, err := mappedBias(f, path, maps)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d.index(f, path, bias)
}

func (d *DebugInfo) openObject(path string) (*mmapFile, *elf.File, error) {
	mmapf, err := mmapOpen(path)
	if err != nil {
		return nil, nil, err
	}
	d.objfiles = append(d.objfiles, mmapf)
	f, err := elf.NewFile(mmapf)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return mmapf, f, nil
}

func (d *DebugInfo) index(f *elf.File, path string, bias uint64) (*Object, error) {
	verbosef("indexing %s at bias 0x%x", path, bias)
	d.symbols.add(f, bias)
	obj := &Object{Path: path, Bias: bias}
	if dw, err := f.DWARF(); err != nil {
		logf("%s has no DWARF: %v", path, err)
	} else if err := d.dwarf.add(dw); err != nil {
		return nil, fmt.Errorf("%s: indexing DWARF: %w", path, err)
	} else {
		obj.HasDWARF = true
	}
	d.Objects = append(d.Objects, obj)
	return obj, nil
}

// HasDWARF reports whether any loaded object carried debug info.
func (d *DebugInfo) HasDWARF() bool {
	for _, o := range d.Objects {
		if o.HasDWARF {
			return true
		}
	}
	return false
}

// Close unmaps the object files.
func (d *DebugInfo) Close() error {
	var first error
	for _, f := range d.objfiles {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	d.objfiles = nil
	return first
}

// mappedBias finds the bias of f from the mapping of path at offset 0.
// Paths match exactly or by base name, since a core may have been taken
// on another machine.
func mappedBias(f *elf.File, path string, maps []Mapping) (uint64, error) {
	if f.Type == elf.ET_EXEC {
		return 0, nil
	}
	if f.Type != elf.ET_DYN {
		return 0, fmt.Errorf("unexpected ELF type %s", f.Type)
	}
	lo, ok := firstLoadVaddr(f)
	if !ok {
		return 0, errors.New("no PT_LOAD segments")
	}
	for _, m := range maps {
		if m.Offset == 0 && (m.Path == path || filepath.Base(m.Path) == filepath.Base(path)) {
			return m.Start - lo, nil
		}
	}
	return 0, fmt.Errorf("no mapping of %s", filepath.Base(path))
}
