package corefile

import (
	"debug/dwarf"
	"errors"
	"fmt"
	"strings"
)

// ErrNoDWARF is returned by layout queries when no loaded object has debug info.
var ErrNoDWARF = errors.New("no DWARF loaded")

type dwarfRef struct {
	data *dwarf.Data
	off  dwarf.Offset
}

// dwarfIndex maps C type and enumerator names to their DWARF entries
// across all loaded objects. The first complete definition of a name wins.
type dwarfIndex struct {
	structs     map[string]dwarfRef // struct and union tags
	typedefs    map[string]dwarfRef
	enumerators map[string]int64
	loaded      int
}

func (idx *dwarfIndex) add(d *dwarf.Data) error {
	if idx.structs == nil {
		idx.structs = map[string]dwarfRef{}
		idx.typedefs = map[string]dwarfRef{}
		idx.enumerators = map[string]int64{}
	}
	r := d.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			return err
		}
		if e == nil {
			break
		}
		switch e.Tag {
		case dwarf.TagStructType, dwarf.TagUnionType:
			name, _ := e.Val(dwarf.AttrName).(string)
			if name == "" || e.Val(dwarf.AttrDeclaration) != nil {
				continue
			}
			if _, dup := idx.structs[name]; !dup {
				idx.structs[name] = dwarfRef{d, e.Offset}
			}
		case dwarf.TagTypedef:
			name, _ := e.Val(dwarf.AttrName).(string)
			if _, dup := idx.typedefs[name]; name != "" && !dup {
				idx.typedefs[name] = dwarfRef{d, e.Offset}
			}
		case dwarf.TagEnumerator:
			name, _ := e.Val(dwarf.AttrName).(string)
			if _, dup := idx.enumerators[name]; name == "" || dup {
				continue
			}
			switch v := e.Val(dwarf.AttrConstValue).(type) {
			case int64:
				idx.enumerators[name] = v
			case uint64:
				idx.enumerators[name] = int64(v)
			}
		}
	}
	idx.loaded++
	verbosef("DWARF index: %d structs, %d typedefs, %d enumerators", len(idx.structs), len(idx.typedefs), len(idx.enumerators))
	return nil
}

// lookup resolves a named struct or union. Struct tags are tried before
// typedefs, and a typedef of an incomplete struct is resolved by tag.
func (idx *dwarfIndex) lookup(name string) (*dwarf.StructType, error) {
	if idx.loaded == 0 {
		return nil, ErrNoDWARF
	}
	ref, ok := idx.structs[name]
	if !ok {
		if ref, ok = idx.typedefs[name]; !ok {
			return nil, fmt.Errorf("type %s not found in DWARF", name)
		}
	}
	t, err := ref.data.Type(ref.off)
	if err != nil {
		return nil, fmt.Errorf("type %s: %w", name, err)
	}
	st, ok := underlyingStruct(t)
	if !ok {
		return nil, fmt.Errorf("type %s is %s, not a struct", name, t)
	}
	if st.Incomplete {
		if tag := st.StructName; tag != "" && tag != name {
			if _, ok := idx.structs[tag]; ok {
				return idx.lookup(tag)
			}
		}
		return nil, fmt.Errorf("type %s is incomplete", name)
	}
	return st, nil
}

func underlyingStruct(t dwarf.Type) (*dwarf.StructType, bool) {
	for {
		switch tt := t.(type) {
		case *dwarf.TypedefType:
			t = tt.Type
		case *dwarf.QualType:
			t = tt.Type
		case *dwarf.StructType:
			return tt, true
		default:
			return nil, false
		}
	}
}

// fieldByName finds a named field, looking through anonymous struct and
// union members. The returned offset is relative to st.
func fieldByName(st *dwarf.StructType, name string) (*dwarf.StructField, int64, bool) {
	for _, f := range st.Field {
		if f.Name == name {
			return f, f.ByteOffset, true
		}
	}
	for _, f := range st.Field {
		if f.Name != "" {
			continue
		}
		if inner, ok := underlyingStruct(f.Type); ok {
			if g, off, ok := fieldByName(inner, name); ok {
				return g, f.ByteOffset + off, true
			}
		}
	}
	return nil, 0, false
}

// StructFieldOffset returns the byte offset of a field. field may be a
// dotted path through nested members, such as "as.heap.ptr".
func (d *DebugInfo) StructFieldOffset(structName, field string) (uint64, error) {
	st, err := d.dwarf.lookup(structName)
	if err != nil {
		return 0, err
	}
	var off int64
	parts := strings.Split(field, ".")
	for i, name := range parts {
		f, foff, ok := fieldByName(st, name)
		if !ok {
			return 0, fmt.Errorf("%s has no field %s", structName, strings.Join(parts[:i+1], "."))
		}
		if f.BitSize != 0 {
			return 0, fmt.Errorf("%s.%s is a bit field", structName, field)
		}
		off += foff
		if i == len(parts)-1 {
			break
		}
		if st, ok = underlyingStruct(f.Type); !ok {
			return 0, fmt.Errorf("%s.%s is not a struct or union", structName, strings.Join(parts[:i+1], "."))
		}
	}
	return uint64(off), nil
}

// StructSize returns sizeof a struct or union.
func (d *DebugInfo) StructSize(structName string) (uint64, error) {
	st, err := d.dwarf.lookup(structName)
	if err != nil {
		return 0, err
	}
	return uint64(st.ByteSize), nil
}

// Enumerator returns the value of a C enum constant.
func (d *DebugInfo) Enumerator(name string) (int64, error) {
	if d.dwarf.loaded == 0 {
		return 0, ErrNoDWARF
	}
	v, ok := d.dwarf.enumerators[name]
	if !ok {
		return 0, fmt.Errorf("enumerator %s not found in DWARF", name)
	}
	return v, nil
}
