package rvalue

import (
	"fmt"
	"strconv"
)

// rstring is the decoded storage of a T_STRING.
type rstring struct {
	len       uint64
	ptr       uint64
	embedded  bool
	content   []byte
	truncated bool
}

// readRString reads the length and at most max bytes of content.
func (x *inspection) readRString(h *Header, max int) (rstring, error) {
	sl := &x.l.String
	var s rstring
	n, err := ReadUint64(x.in.mem, h.Addr+sl.LenOffset)
	if err != nil {
		return s, err
	}
	s.len = n
	if h.User(sl.NoEmbed) {
		if s.ptr, err = ReadUint64(x.in.mem, h.Addr+sl.PtrOffset); err != nil {
			return s, err
		}
	} else {
		s.embedded = true
		s.ptr = h.Addr + sl.EmbedOffset
	}
	want := n
	if want > uint64(max) {
		want = uint64(max)
		s.truncated = true
	}
	if want > 0 {
		s.content = make([]byte, want)
		if err := readBytes(x.in.mem, s.ptr, s.content); err != nil {
			return s, err
		}
	}
	return s, nil
}

// quote formats string content the way nested strings are shown.
func (s *rstring) quote() string {
	q := strconv.Quote(string(s.content))
	if s.truncated {
		q += "..."
	}
	return q
}

// stringAt reads the content of the T_STRING at addr, for names.
func (x *inspection) stringAt(addr uint64) (string, error) {
	h, err := x.in.ReadHeader(addr)
	if err != nil {
		return "", err
	}
	if h.Tag() != TString {
		return "", fmt.Errorf("0x%x is %v, not T_STRING", addr, h.Tag())
	}
	s, err := x.readRString(&h, x.opts.MaxStringBytes)
	if err != nil {
		return "", err
	}
	return string(s.content), nil
}

func (x *inspection) extractString(obj *Object) {
	h := obj.Header
	sl := &x.l.String
	prefix := ""
	if h.User(sl.ChilledBit) {
		prefix += "[CHILLED] "
	}
	if idx, name, ok := sl.encodingName(h.Flags, &x.l.Flags); ok {
		prefix += "[" + name + "] "
	} else {
		prefix += fmt.Sprintf("[enc=%d] ", idx)
	}

	s, err := x.readRString(h, x.opts.MaxStringBytes)
	if err != nil {
		obj.summaryf("%s", prefix)
		obj.addErr("content", err)
		return
	}
	if s.len == 0 {
		obj.summaryf("%s(empty)", prefix)
		obj.Short = `""`
	} else {
		obj.summaryf("%s%s", prefix, s.quote())
		obj.Short = s.quote()
	}
	obj.addText("len", "%d", s.len)
	obj.addText("ptr", "0x%x", s.ptr)
	if s.embedded {
		return
	}
	aux, ok := x.word(obj, "aux", sl.AuxOffset)
	if !ok {
		return
	}
	if h.User(sl.SharedBit) {
		obj.addText("shared", "0x%x", aux)
	} else {
		obj.addText("capa", "%d", int64(aux))
	}
}
