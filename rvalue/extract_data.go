package rvalue

import "fmt"

// maxTypeNameBytes bounds reads of rb_data_type_t.wrap_struct_name.
const maxTypeNameBytes = 128

func (x *inspection) extractRegexp(obj *Object, depth int) {
	fl := &x.l.Fields
	obj.Summary = "(Regex) ->src {"
	if src, ok := x.word(obj, "src", fl.RegexpSrc); ok {
		obj.Block = x.child(src, depth+1)
		obj.Short = "(Regex) " + obj.Block.Inline()
	}
	if p, ok := x.word(obj, "ptr", fl.RegexpPtr); ok {
		obj.addText("ptr", "0x%x", p)
	}
	if n, ok := x.word(obj, "usecnt", fl.RegexpUsecnt); ok {
		obj.addText("usecnt", "%d", n)
	}
}

func (x *inspection) extractMatch(obj *Object, depth int) {
	fl := &x.l.Fields
	obj.summaryf("")
	x.value(obj, "str", fl.MatchStr, depth)
	x.value(obj, "regexp", fl.MatchRegexp, depth)
}

func (x *inspection) extractData(obj *Object) {
	h := obj.Header
	dl := &x.l.Data
	var typed, embedded bool
	var typ uint64
	switch dl.Scheme {
	case DataSchemeTaggedType:
		w, ok := x.word(obj, "type", dl.TypeOffset)
		if !ok {
			obj.summaryf("")
			return
		}
		typed = w&1 != 0
		embedded = w&2 != 0
		typ = w &^ 3
	default:
		flag, ok := x.word(obj, "typed_flag", dl.TypedFlagOffset)
		if !ok {
			obj.summaryf("")
			return
		}
		typed = flag&1 != 0 && flag <= 3
		embedded = flag&2 != 0
		if typed {
			if typ, ok = x.word(obj, "type", dl.TypeOffset); !ok {
				obj.summaryf("")
				return
			}
		}
	}

	if !typed {
		obj.summaryf("")
		for _, f := range []struct {
			name string
			off  uint64
		}{{"dmark", dl.DmarkOffset}, {"dfree", dl.DfreeOffset}, {"data", dl.DataOffset}} {
			if w, ok := x.word(obj, f.name, f.off); ok {
				obj.addText(f.name, "0x%x", w)
			}
		}
		return
	}

	name := ""
	if p, err := ReadUint64(x.in.mem, typ+dl.WrapStructNameOffset); err != nil {
		obj.addErr("wrap_struct_name", err)
	} else if name, err = ReadCString(x.in.mem, p, maxTypeNameBytes); err != nil {
		obj.addErr("wrap_struct_name", err)
	}
	// The summary carries no flag info for typed data.
	obj.Summary = "T_DATA: " + name
	obj.Short = fmt.Sprintf("#<%s 0x%x>", name, h.Addr)
	obj.addText("type", "0x%x", typ)
	if embedded {
		obj.addText("data", "0x%x (embed)", h.Addr+dl.EmbeddedDataOffset)
	} else if d, ok := x.word(obj, "data", dl.TypedDataOffset); ok {
		obj.addText("data", "0x%x", d)
	}
}

func (x *inspection) extractSymbol(obj *Object) {
	fl := &x.l.Fields
	id, ok := x.word(obj, "id", fl.SymbolID)
	if !ok {
		obj.summaryf("")
		return
	}
	fstr, ok := x.word(obj, "fstr", fl.SymbolFstr)
	if !ok {
		obj.summaryf("(ID)0x%x", id)
		return
	}
	name, err := x.stringAt(fstr)
	if err != nil {
		obj.summaryf("(ID)0x%x", id)
		obj.addErr("fstr", err)
		return
	}
	obj.summaryf("(ID)0x%x %q", id, name)
	obj.Short = ":" + name
	obj.addText("fstr", "0x%x", fstr)
}

func (x *inspection) extractObject(obj *Object) {
	h := obj.Header
	fl := &x.l.Fields
	shape := h.Flags >> fl.ObjectShapeShift
	if h.User(fl.ObjectEmbedBit) {
		obj.summaryf("(embed) shape_id=%d", shape)
		obj.addText("ivars", "0x%x", h.Addr+fl.ObjectIvptr)
	} else {
		obj.summaryf("shape_id=%d", shape)
		if p, ok := x.word(obj, "ivptr", fl.ObjectIvptr); ok {
			obj.addText("ivptr", "0x%x", p)
		}
	}
	obj.addText("klass", "0x%x", h.Klass)
}

func (x *inspection) extractClass(obj *Object) {
	h := obj.Header
	fl := &x.l.Fields
	if h.Tag() != TIClass && h.User(fl.ClassSingletonBit) {
		obj.summaryf("(singleton)")
	} else {
		obj.summaryf("")
	}
	obj.addText("klass", "0x%x", h.Klass)
	if super, ok := x.word(obj, "super", fl.ClassSuper); ok {
		obj.addText("super", "0x%x", super)
	}
}

func (x *inspection) extractFile(obj *Object) {
	fl := &x.l.Fields
	fptr, ok := x.word(obj, "fptr", fl.FileFptr)
	if !ok {
		obj.summaryf("")
		return
	}
	obj.addText("fptr", "0x%x", fptr)
	if fptr == 0 {
		obj.summaryf("(closed)")
		return
	}
	fd, err := ReadUint32(x.in.mem, fptr+fl.IOFd)
	if err != nil {
		obj.summaryf("")
		obj.addErr("fd", err)
		return
	}
	obj.summaryf("fd=%d", int32(fd))
}

func (x *inspection) extractImemo(obj *Object) {
	n, name := x.l.Imemo.name(obj.Header.Flags)
	obj.summaryf("imemo_%s", name)
	obj.addText("imemo_type", "%d", n)
}

func (x *inspection) extractNode(obj *Object) {
	n, name := x.l.Node.name(obj.Header.Flags)
	obj.summaryf("%s", name)
	obj.addText("nd_type", "%d", n)
}

func (x *inspection) extractZombie(obj *Object) {
	fl := &x.l.Fields
	obj.summaryf("")
	for _, f := range []struct {
		name string
		off  uint64
	}{{"next", fl.ZombieNext}, {"dfree", fl.ZombieDfree}, {"data", fl.ZombieData}} {
		if w, ok := x.word(obj, f.name, f.off); ok {
			obj.addText(f.name, "0x%x", w)
		}
	}
}

func (x *inspection) extractMoved(obj *Object) {
	dst, ok := x.word(obj, "destination", x.l.Fields.MovedDestination)
	if !ok {
		obj.summaryf("")
		return
	}
	obj.summaryf("-> 0x%x", dst)
	obj.addText("destination", "0x%x", dst)
}
