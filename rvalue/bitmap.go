package rvalue

import "fmt"

// PageBits are the GC bitmap bits of one heap slot.
type PageBits struct {
	Page  uint64 // struct heap_page
	Index uint64 // slot number within the page

	WBUnprotected bool
	Marked        bool
	Uncollectible bool
	Marking       bool
	Remembered    bool
	Pinned        bool
}

// Letters formats the bits as "[LMPRU]", with a space for each clear bit.
func (b PageBits) Letters() string {
	letter := func(set bool, c byte) byte {
		if set {
			return c
		}
		return ' '
	}
	return string([]byte{
		'[',
		letter(b.Uncollectible, 'L'),
		letter(b.Marked, 'M'),
		letter(b.Pinned, 'P'),
		letter(b.Marking, 'R'),
		letter(b.WBUnprotected, 'U'),
		']',
	})
}

// PageInfo is the header of a heap page.
type PageInfo struct {
	Body        uint64 // aligned page body containing the object
	Page        uint64 // struct heap_page
	SlotSize    uint16
	TotalSlots  uint16
	FreeSlots   uint16
	FinalSlots  uint16
	PinnedSlots uint16
	Start       uint64
}

// pageOf returns the heap_page address for the object at addr.
func (in *Inspector) pageOf(addr uint64) (body, page uint64, err error) {
	pl := &in.layout.Page
	body = addr &^ (uint64(1)<<pl.AlignLog - 1)
	page, err = ReadUint64(in.mem, body)
	if err != nil {
		return 0, 0, fmt.Errorf("reading page header of 0x%x: %w", addr, err)
	}
	if page == 0 {
		return 0, 0, fmt.Errorf("0x%x is not in a heap page", addr)
	}
	return body, page, nil
}

// PageBits reads the bitmap bits for the slot at addr.
func (in *Inspector) PageBits(addr uint64) (PageBits, error) {
	pl := &in.layout.Page
	_, page, err := in.pageOf(addr)
	if err != nil {
		return PageBits{}, err
	}
	idx := (addr & (uint64(1)<<pl.AlignLog - 1)) / pl.BaseSlotSize
	word := (idx / pl.BitsPerWord) * 8
	mask := uint64(1) << (idx % pl.BitsPerWord)
	b := PageBits{Page: page, Index: idx}
	for _, plane := range []struct {
		off uint64
		dst *bool
	}{
		{pl.WBUnprotected, &b.WBUnprotected},
		{pl.Mark, &b.Marked},
		{pl.Uncollectible, &b.Uncollectible},
		{pl.Marking, &b.Marking},
		{pl.Remembered, &b.Remembered},
		{pl.Pinned, &b.Pinned},
	} {
		w, err := ReadUint64(in.mem, page+plane.off+word)
		if err != nil {
			return PageBits{}, err
		}
		*plane.dst = w&mask != 0
	}
	return b, nil
}

// PageInfo reads the header of the heap page containing addr.
func (in *Inspector) PageInfo(addr uint64) (PageInfo, error) {
	pl := &in.layout.Page
	body, page, err := in.pageOf(addr)
	if err != nil {
		return PageInfo{}, err
	}
	info := PageInfo{Body: body, Page: page}
	for _, f := range []struct {
		off uint64
		dst *uint16
	}{
		{pl.SlotSize, &info.SlotSize},
		{pl.TotalSlots, &info.TotalSlots},
		{pl.FreeSlots, &info.FreeSlots},
		{pl.FinalSlots, &info.FinalSlots},
		{pl.PinnedSlots, &info.PinnedSlots},
	} {
		v, err := ReadUint16(in.mem, page+f.off)
		if err != nil {
			return PageInfo{}, err
		}
		*f.dst = v
	}
	if info.Start, err = ReadUint64(in.mem, page+pl.Start); err != nil {
		return PageInfo{}, err
	}
	return info, nil
}
