package rvalue

import (
	"encoding/binary"
	"fmt"
)

// arTableCapa is the number of pairs in an ar_table.
const arTableCapa = 8

// stDeletedHash marks a deleted st_table entry.
const stDeletedHash = ^uint64(0)

func (x *inspection) extractHash(obj *Object, depth int) {
	h := obj.Header
	hl := &x.l.Hash
	table := h.Addr + hl.TableOffset

	var (
		kind      string
		size      uint64
		pairsAddr uint64
		slots     uint64
		stride    uint64
		keyOff    uint64
		valOff    uint64
		deleted   func(entry []byte) bool
	)
	if h.User(hl.STTableBit) {
		kind = "st_table"
		var ok bool
		if size, ok = x.word(obj, "num_entries", hl.TableOffset+hl.STNumEntries); !ok {
			obj.summaryf("(%s)", kind)
			return
		}
		start, ok1 := x.word(obj, "entries_start", hl.TableOffset+hl.STEntriesStart)
		bound, ok2 := x.word(obj, "entries_bound", hl.TableOffset+hl.STEntriesBound)
		entries, ok3 := x.word(obj, "entries", hl.TableOffset+hl.STEntries)
		if !ok1 || !ok2 || !ok3 || bound < start {
			obj.summaryf("(%s) size=%d", kind, size)
			return
		}
		pairsAddr = entries + start*hl.STEntrySize
		slots = bound - start
		stride = hl.STEntrySize
		keyOff = hl.STEntryKeyOffset
		valOff = hl.STEntryValOffset
		deleted = func(e []byte) bool { return binary.LittleEndian.Uint64(e) == stDeletedHash }
	} else {
		kind = "ar_table"
		size = h.userField(hl.ARSizeLo, hl.ARSizeHi)
		slots = h.userField(hl.ARBoundLo, hl.ARBoundHi)
		if slots > arTableCapa {
			slots = arTableCapa
		}
		pairsAddr = table + hl.ARPairsOffset
		stride = 16
		keyOff = 0
		valOff = 8
		qundef := x.l.Imm.Qundef
		deleted = func(e []byte) bool { return binary.LittleEndian.Uint64(e) == qundef }
	}
	obj.summaryf("(%s) size=%d", kind, size)
	obj.addText("size", "%d", size)
	if ifnone, ok := x.word(obj, "ifnone", hl.IfnoneOffset); ok && ifnone != x.l.Imm.Qnil {
		obj.addValue("ifnone", x.child(ifnone, depth+1))
	}
	if size == 0 {
		obj.Short = "{}"
		return
	}

	// Scan the live slots, skipping deleted entries, until enough pairs
	// are collected.
	max := uint64(x.opts.MaxElements)
	var shown []string
	var live uint64
	entry := make([]byte, stride)
	for i := uint64(0); i < slots && live < max; i++ {
		if err := readBytes(x.in.mem, pairsAddr+i*stride, entry); err != nil {
			obj.addErr(fmt.Sprintf("entry %d", i), err)
			break
		}
		if deleted(entry) {
			continue
		}
		k := x.child(binary.LittleEndian.Uint64(entry[keyOff:]), depth+1)
		v := x.child(binary.LittleEndian.Uint64(entry[valOff:]), depth+1)
		obj.Fields = append(obj.Fields, Field{Key: k, Value: v})
		shown = append(shown, k.Inline()+" => "+v.Inline())
		live++
	}
	if size > live {
		obj.Fields = append(obj.Fields, Field{Name: fmt.Sprintf("... %d more", size-live)})
	}
	obj.Short = joinInline("{", "}", shown, size)
}
