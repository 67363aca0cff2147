package liveproc

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/tombergan/rubycore/corefile"
)

// Mapping is one line of /proc/<pid>/maps.
type Mapping struct {
	Start, End uint64
	Perms      string // e.g. "r-xp"
	Offset     uint64
	Inode      uint64
	Path       string // empty for anonymous mappings
}

func (m Mapping) Readable() bool { return len(m.Perms) > 0 && m.Perms[0] == 'r' }

func (m Mapping) contains(addr uint64) bool { return m.Start <= addr && addr < m.End }

// ParseMaps parses the format of /proc/<pid>/maps. The result is sorted
// by start address.
func ParseMaps(r io.Reader) ([]Mapping, error) {
	var maps []Mapping
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for lineno := 1; sc.Scan(); lineno++ {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		m, err := parseMapsLine(line)
		if err != nil {
			return nil, fmt.Errorf("maps line %d: %w", lineno, err)
		}
		maps = append(maps, m)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.Slice(maps, func(i, k int) bool { return maps[i].Start < maps[k].Start })
	return maps, nil
}

func parseMapsLine(line string) (Mapping, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return Mapping{}, fmt.Errorf("malformed line %q", line)
	}
	var m Mapping
	lo, hi, ok := strings.Cut(fields[0], "-")
	if !ok {
		return Mapping{}, fmt.Errorf("malformed range %q", fields[0])
	}
	var err error
	if m.Start, err = strconv.ParseUint(lo, 16, 64); err != nil {
		return Mapping{}, fmt.Errorf("malformed range %q", fields[0])
	}
	if m.End, err = strconv.ParseUint(hi, 16, 64); err != nil || m.End < m.Start {
		return Mapping{}, fmt.Errorf("malformed range %q", fields[0])
	}
	m.Perms = fields[1]
	if m.Offset, err = strconv.ParseUint(fields[2], 16, 64); err != nil {
		return Mapping{}, fmt.Errorf("malformed offset %q", fields[2])
	}
	if m.Inode, err = strconv.ParseUint(fields[4], 10, 64); err != nil {
		return Mapping{}, fmt.Errorf("malformed inode %q", fields[4])
	}
	m.Path = strings.Join(fields[5:], " ")
	return m, nil
}

// fileMappings converts the file-backed mappings for symbol loading.
func fileMappings(maps []Mapping) []corefile.Mapping {
	var out []corefile.Mapping
	for _, m := range maps {
		if m.Inode == 0 || m.Path == "" {
			continue
		}
		out = append(out, corefile.Mapping{Start: m.Start, End: m.End, Offset: m.Offset, Path: m.Path})
	}
	return out
}
