// rbperf summarizes "perf script" output from a Ruby process by category.
//
//	perf record -e cycles -p PID -- sleep 10
//	perf script | rbperf
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/tombergan/rubycore/perfsum"
)

var (
	rulesFile  = flag.String("rules", "", "TOML file with extra category rules")
	debugLevel = flag.Int("debuglevel", 0, "debug verbosity level")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: rbperf [flags] [perf-script-output]\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	commonlog.Configure(*debugLevel, nil)

	var in io.Reader = os.Stdin
	switch flag.NArg() {
	case 0:
	case 1:
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			fatalf("%v", err)
		}
		defer f.Close()
		in = f
	default:
		usage()
	}

	rules := perfsum.Default()
	if *rulesFile != "" {
		var err error
		if rules, err = perfsum.LoadRules(*rulesFile); err != nil {
			fatalf("%v", err)
		}
	}

	agg := perfsum.NewAggregator(rules)
	skipped, err := perfsum.ReadSamples(in, agg.Add)
	if err != nil {
		fatalf("%v", err)
	}
	if agg.Samples() == 0 {
		fmt.Fprintf(os.Stderr, "rbperf: no samples found (%d lines skipped)\n", skipped)
		return
	}
	if err := agg.Report(os.Stdout); err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "rbperf: "+format+"\n", args...)
	os.Exit(1)
}
