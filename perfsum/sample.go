package perfsum

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Sample is one profiling event.
type Sample struct {
	Comm   string
	PID    string
	DSO    string
	Symbol string
	Cycles uint64
}

// sampleLine matches the default "perf script" line:
//
//	<comm> <pid>[/<tid>] <time>: <period> <event>: <addr> <symbol>+<offset> (<dso>)
var sampleLine = regexp.MustCompile(
	`^\s*(.+?)\s+(\d+)(?:/\d+)?\s+(?:\[\d+\]\s+)?[\d.]+:\s+(\d+)\s+\S+:\s+[0-9a-fA-F]+\s+(.+?)\s+\((.*)\)\s*$`)

// symbolOffset is the "+0x1f" suffix perf appends to symbols.
var symbolOffset = regexp.MustCompile(`\+0x[0-9a-fA-F]+$`)

// ParseLine parses one line of "perf script" output. The boolean is false
// for lines that are not samples, such as headers and call-chain entries.
func ParseLine(line string) (Sample, bool) {
	m := sampleLine.FindStringSubmatch(line)
	if m == nil {
		return Sample{}, false
	}
	cycles, err := strconv.ParseUint(m[3], 10, 64)
	if err != nil {
		return Sample{}, false
	}
	return Sample{
		Comm:   m[1],
		PID:    m[2],
		Cycles: cycles,
		Symbol: symbolOffset.ReplaceAllString(m[4], ""),
		DSO:    m[5],
	}, true
}

// ReadSamples calls fn for every sample in r and returns how many lines
// were skipped.
func ReadSamples(r io.Reader, fn func(Sample)) (skipped int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for lineno := 1; sc.Scan(); lineno++ {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		s, ok := ParseLine(line)
		if !ok {
			skipped++
			verbosef("line %d is not a sample: %q", lineno, line)
			continue
		}
		fn(s)
	}
	if err := sc.Err(); err != nil {
		return skipped, fmt.Errorf("reading samples: %w", err)
	}
	return skipped, nil
}
