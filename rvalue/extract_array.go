package rvalue

import "fmt"

// arrayStorage returns the element pointer and length of the T_ARRAY h.
func (x *inspection) arrayStorage(h *Header) (ptr, n uint64, err error) {
	al := &x.l.Array
	if h.User(al.EmbedBit) {
		return h.Addr + al.EmbedOffset, h.userField(al.EmbedLenLo, al.EmbedLenHi), nil
	}
	if n, err = ReadUint64(x.in.mem, h.Addr+al.LenOffset); err != nil {
		return 0, 0, err
	}
	if ptr, err = ReadUint64(x.in.mem, h.Addr+al.PtrOffset); err != nil {
		return 0, 0, err
	}
	return ptr, n, nil
}

// arrayEntry reads element i of the T_ARRAY at addr.
func (x *inspection) arrayEntry(addr, i uint64) (uint64, error) {
	h, err := x.in.ReadHeader(addr)
	if err != nil {
		return 0, err
	}
	if h.Tag() != TArray {
		return 0, fmt.Errorf("0x%x is %v, not T_ARRAY", addr, h.Tag())
	}
	ptr, n, err := x.arrayStorage(&h)
	if err != nil {
		return 0, err
	}
	if i >= n {
		return 0, fmt.Errorf("index %d out of bounds for T_ARRAY 0x%x of length %d", i, addr, n)
	}
	return ReadUint64(x.in.mem, ptr+i*8)
}

func (x *inspection) extractArray(obj *Object, depth int) {
	h := obj.Header
	al := &x.l.Array
	ptr, n, err := x.arrayStorage(h)
	if err != nil {
		obj.summaryf("")
		obj.addErr("len", err)
		return
	}

	storage := ""
	switch {
	case h.User(al.EmbedBit):
		storage = " (embed)"
	case h.User(al.SharedBit):
		if root, ok := x.word(obj, "shared", al.AuxOffset); ok {
			storage = fmt.Sprintf(" (shared) shared=%016x", root)
		}
	default:
		if capa, ok := x.word(obj, "capa", al.AuxOffset); ok {
			storage = fmt.Sprintf(" (ownership) capa=%d", int64(capa))
		}
	}
	if n == 0 {
		storage += " {(empty)}"
	}
	obj.summaryf("len=%d%s", n, storage)
	obj.addText("len", "%d", n)
	obj.addText("ptr", "0x%x", ptr)

	ws, err := x.vector(ptr, n)
	if err != nil {
		obj.addErr("elements", err)
		obj.Short = fmt.Sprintf("[<%d elements>]", n)
		return
	}
	kids := x.elements(obj, ws, n, depth)
	obj.Short = joinInline("[", "]", inlines(kids), n)
}

func (x *inspection) extractStruct(obj *Object, depth int) {
	h := obj.Header
	sl := &x.l.Struct
	var ptr, n uint64
	storage := ""
	if n = h.userField(sl.EmbedLenLo, sl.EmbedLenHi); n != 0 {
		ptr = h.Addr + sl.EmbedOffset
		storage = " (embed)"
	} else {
		var ok bool
		if n, ok = x.word(obj, "len", sl.LenOffset); !ok {
			obj.summaryf("")
			return
		}
		if ptr, ok = x.word(obj, "ptr", sl.PtrOffset); !ok {
			obj.summaryf("len=%d", n)
			return
		}
	}
	obj.summaryf("len=%d%s", n, storage)
	obj.addText("klass", "0x%x", h.Klass)
	obj.addText("len", "%d", n)
	obj.addText("ptr", "0x%x", ptr)
	ws, err := x.vector(ptr, n)
	if err != nil {
		obj.addErr("members", err)
		return
	}
	kids := x.elements(obj, ws, n, depth)
	obj.Short = joinInline("#<struct ", ">", inlines(kids), n)
}

func inlines(objs []*Object) []string {
	s := make([]string, len(objs))
	for i, o := range objs {
		s[i] = o.Inline()
	}
	return s
}
