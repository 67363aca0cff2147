// Package perfsum summarizes sampled CPU profiles of a Ruby process by
// where the time went: GC, the interpreter loop, method dispatch, string
// handling and so on.
//
// Samples come from the text output of "perf script". Each sample is put
// in a category by an ordered list of rules over its DSO and symbol; the
// first rule that matches wins, and a sample that matches nothing is its
// own category, named by its symbol. Report prints the categories ranked
// by cycles, then the symbols ranked within each category.
package perfsum
