package perfsum

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sort"
)

// Aggregator totals sample cycles per category and per (DSO, symbol) pair.
type Aggregator struct {
	rules   *Rules
	total   uint64
	samples int
	cats    map[string]*categoryTotal
}

type symbolKey struct {
	dso, symbol string
}

type categoryTotal struct {
	cycles uint64
	syms   map[symbolKey]uint64
}

// CategoryTotal is one ranked line of a report.
type CategoryTotal struct {
	Name    string
	Cycles  uint64
	Ratio   float64 // percent of all cycles
	Symbols []SymbolTotal
}

// SymbolTotal is one symbol within a category.
type SymbolTotal struct {
	DSO    string
	Symbol string
	Cycles uint64
	Ratio  float64 // percent of all cycles
}

// NewAggregator returns an empty Aggregator. If rules is nil the
// built-in rules are used.
func NewAggregator(rules *Rules) *Aggregator {
	if rules == nil {
		rules = Default()
	}
	return &Aggregator{rules: rules, cats: map[string]*categoryTotal{}}
}

// Add accounts for one sample.
func (a *Aggregator) Add(s Sample) {
	name := a.rules.Categorize(s.DSO, s.Symbol)
	c := a.cats[name]
	if c == nil {
		c = &categoryTotal{syms: map[symbolKey]uint64{}}
		a.cats[name] = c
	}
	c.cycles += s.Cycles
	c.syms[symbolKey{s.DSO, s.Symbol}] += s.Cycles
	a.total += s.Cycles
	a.samples++
}

// Total returns the cycles of all samples added so far.
func (a *Aggregator) Total() uint64 { return a.total }

// Samples returns the number of samples added so far.
func (a *Aggregator) Samples() int { return a.samples }

func ratio(n, total uint64) float64 {
	return float64(n) / float64(total) * 100
}

// Categories returns the categories ranked by cycles, most first, with
// each category's symbols ranked the same way. Ties are broken by name
// so the order is deterministic. It returns nil if no cycles were seen.
func (a *Aggregator) Categories() []CategoryTotal {
	if a.total == 0 {
		return nil
	}
	out := make([]CategoryTotal, 0, len(a.cats))
	for name, c := range a.cats {
		ct := CategoryTotal{Name: name, Cycles: c.cycles, Ratio: ratio(c.cycles, a.total)}
		for k, n := range c.syms {
			ct.Symbols = append(ct.Symbols, SymbolTotal{DSO: k.dso, Symbol: k.symbol, Cycles: n, Ratio: ratio(n, a.total)})
		}
		sort.Slice(ct.Symbols, func(i, k int) bool {
			x, y := ct.Symbols[i], ct.Symbols[k]
			if x.Cycles != y.Cycles {
				return x.Cycles > y.Cycles
			}
			if x.Symbol != y.Symbol {
				return x.Symbol < y.Symbol
			}
			return x.DSO < y.DSO
		})
		out = append(out, ct)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Cycles != out[k].Cycles {
			return out[i].Cycles > out[k].Cycles
		}
		return out[i].Name < out[k].Name
	})
	return out
}

// Report writes the ranked categories, then the ranked symbols of each
// category. Nothing is written if no cycles were seen.
func (a *Aggregator) Report(w io.Writer) error {
	cats := a.Categories()
	if cats == nil {
		return nil
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d samples, %d cycles\n\n", a.samples, a.total)
	fmt.Fprintf(bw, "%8s %14s  %s\n", "ratio", "cycles", "category")
	for _, c := range cats {
		fmt.Fprintf(bw, "%7.2f%% %14d  %s\n", c.Ratio, c.Cycles, c.Name)
	}
	for _, c := range cats {
		fmt.Fprintf(bw, "\n%s:\n", c.Name)
		width := 0
		for _, s := range c.Symbols {
			if n := len(filepath.Base(s.DSO)); n > width {
				width = n
			}
		}
		for _, s := range c.Symbols {
			fmt.Fprintf(bw, "%7.2f%% %14d  %-*s  %s\n", s.Ratio, s.Cycles, width, filepath.Base(s.DSO), s.Symbol)
		}
	}
	return bw.Flush()
}
