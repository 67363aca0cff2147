package corefile

import (
	"fmt"
	"sort"
)

// dataSegment is a run of target memory backed by bytes of a mapped file.
// Guard pages and other unreadable mappings are kept so that a read of them
// says "not readable" rather than "not mapped".
type dataSegment struct {
	addr     uint64
	data     []byte
	file     string
	readable bool
}

func (s dataSegment) end() uint64 { return s.addr + uint64(len(s.data)) }

func (s dataSegment) String() string {
	mode := "-"
	if s.readable {
		mode = "r"
	}
	return fmt.Sprintf("[0x%x,0x%x) %s %s", s.addr, s.end(), mode, s.file)
}

// dataSegments is sorted by addr and never overlaps.
type dataSegments []dataSegment

// lookup returns the index of the segment holding addr.
func (ss dataSegments) lookup(addr uint64) (int, bool) {
	i := sort.Search(len(ss), func(i int) bool { return ss[i].end() > addr })
	if i < len(ss) && ss[i].addr <= addr {
		return i, true
	}
	return i, false
}

// read fills buf from consecutive segments starting at addr.
func (ss dataSegments) read(addr uint64, buf []byte) error {
	for len(buf) > 0 {
		i, ok := ss.lookup(addr)
		if !ok {
			return fmt.Errorf("address 0x%x is not mapped", addr)
		}
		s := ss[i]
		if !s.readable {
			return fmt.Errorf("address 0x%x is not readable", addr)
		}
		n := copy(buf, s.data[addr-s.addr:])
		buf = buf[n:]
		addr += uint64(n)
	}
	return nil
}

// insert maps [addr, addr+size). Parts already covered by a segment keep
// their old contents, so whatever was inserted first wins; newSegment is
// called once for every uncovered gap.
func (ss *dataSegments) insert(addr, size uint64, newSegment func(addr, size uint64) (dataSegment, error)) error {
	end := addr + size
	if end < addr {
		return fmt.Errorf("segment at 0x%x of size 0x%x wraps around", addr, size)
	}
	var added dataSegments
	i, _ := ss.lookup(addr)
	for addr < end {
		gapEnd := end
		if i < len(*ss) {
			next := (*ss)[i]
			if next.addr <= addr {
				addr = next.end()
				i++
				continue
			}
			gapEnd = min(gapEnd, next.addr)
		}
		s, err := newSegment(addr, gapEnd-addr)
		if err != nil {
			return err
		}
		verbosef("mapping %s", s)
		added = append(added, s)
		addr = gapEnd
	}
	if len(added) == 0 {
		return nil
	}
	*ss = append(*ss, added...)
	sort.Slice(*ss, func(i, k int) bool { return (*ss)[i].addr < (*ss)[k].addr })
	return nil
}
