// rbinspect is an interactive inspector for the objects of a Ruby process,
// read from a core file, a stopped process or a recorded snapshot.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/term"

	"github.com/tombergan/rubycore/rvalue"
	"github.com/tombergan/rubycore/session"
)

var (
	coreFile     = flag.String("core", "", "core file to inspect")
	pid          = flag.Int("pid", 0, "stopped process to inspect")
	snapshotFile = flag.String("snapshot", "", "recorded snapshot to inspect")
	command      = flag.String("c", "", "run the given commands, separated by ';', and exit")
	recordFile   = flag.String("record", "", "write every page read to this snapshot file on exit")
	abiFile      = flag.String("abi", "", "TOML file overriding the layout profile")
	maxString    = flag.Int("maxstring", 0, "string bytes shown per object (0 means the default)")
	maxElements  = flag.Int("maxelems", 0, "array, hash and struct members shown (0 means the default)")
	maxDepth     = flag.Int("depth", 0, "nesting depth of decoded children (0 means the default)")
	showBits     = flag.Bool("bits", false, "show GC bitmap bits of heap objects")
	debugLevel   = flag.Int("debuglevel", 0, "debug verbosity level")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: rbinspect (-core file | -pid n | -snapshot file) [flags] [executable [shared objects...]]\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	commonlog.Configure(*debugLevel, nil)

	s, err := session.Open(session.Config{
		Core:     *coreFile,
		PID:      *pid,
		Snapshot: *snapshotFile,
		Objects:  flag.Args(),
		ABI:      *abiFile,
		Record:   *recordFile,
		Options: rvalue.Options{
			MaxStringBytes: *maxString,
			MaxElements:    *maxElements,
			MaxDepth:       *maxDepth,
			ShowBits:       *showBits,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rbinspect: %v\n", err)
		os.Exit(1)
	}

	if *command != "" {
		for _, line := range strings.Split(*command, ";") {
			if execute(s, os.Stdout, line) {
				break
			}
		}
	} else {
		fmt.Fprintf(os.Stderr, "Loaded %s. Type help for commands.\n", s.Desc)
		if err := repl(s); err != nil {
			fmt.Fprintf(os.Stderr, "rbinspect: %v\n", err)
		}
	}
	if err := s.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "rbinspect: %v\n", err)
		os.Exit(1)
	}
}

// execute runs one command line and reports whether the session should end.
func execute(s *session.Session, w io.Writer, line string) bool {
	err := s.Run(w, line)
	if errors.Is(err, session.ErrQuit) {
		return true
	}
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
	}
	return false
}

// repl reads commands from stdin until quit or EOF. A terminal gets line
// editing and history.
func repl(s *session.Session) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			if execute(s, os.Stdout, sc.Text()) {
				return nil
			}
		}
		return sc.Err()
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("cannot set raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "(rb) ")
	if w, h, err := term.GetSize(fd); err == nil {
		t.SetSize(w, h)
	}
	for {
		line, err := t.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if execute(s, t, line) {
			return nil
		}
	}
}
