package liveproc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/unix"

	"github.com/tombergan/rubycore/corefile"
)

// Process reads the memory of a live process. The process should be
// stopped (for example with SIGSTOP) while it is inspected; a running
// process can be read, but objects may change between reads.
type Process struct {
	corefile.DebugInfo

	PID int
	Exe string // resolved /proc/<pid>/exe

	maps []Mapping
}

// Attach opens pid for reading. objects names the executable and shared
// libraries to load symbols and DWARF from; if empty, the executable and
// any mapped libruby are used.
func Attach(pid int, objects ...string) (*Process, error) {
	p := &Process{PID: pid}
	if _, err := os.Stat(p.procPath("")); err != nil {
		return nil, errors.New(
			"attach failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpAttach),
			errors.WithMeta(errMetaPIDKey, strconv.Itoa(pid)),
			errors.WithWrap(errors.From(ErrNoProcess, errors.WithWrap(err))),
		)
	}
	if exe, err := os.Readlink(p.procPath("exe")); err == nil {
		p.Exe = strings.TrimSuffix(exe, " (deleted)")
	}
	if err := p.Refresh(); err != nil {
		return nil, err
	}
	if state, err := p.State(); err == nil && state != 'T' && state != 't' {
		printf("process %d is running (state %c); reads may be inconsistent", pid, state)
	}

	auto := len(objects) == 0
	if auto {
		objects = p.defaultObjects()
	}
	cmaps := fileMappings(p.maps)
	for _, path := range objects {
		if _, err := p.LoadMapped(path, cmaps); err != nil {
			if auto {
				logf("skipping %s: %v", path, err)
				continue
			}
			p.Close()
			return nil, errors.New(
				"attach failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpAttach),
				errors.WithMeta(errMetaObjectKey, path),
				errors.WithWrap(err),
			)
		}
	}
	logf("attached to %d (%s): %d mappings, %d objects", pid, p.Exe, len(p.maps), len(p.Objects))
	return p, nil
}

func (p *Process) procPath(name string) string {
	return filepath.Join("/proc", strconv.Itoa(p.PID), name)
}

// defaultObjects returns the executable and any mapped libruby.
func (p *Process) defaultObjects() []string {
	var objs []string
	if p.Exe != "" {
		objs = append(objs, p.Exe)
	}
	seen := map[string]bool{p.Exe: true}
	for _, m := range p.maps {
		if m.Offset == 0 && strings.HasPrefix(filepath.Base(m.Path), "libruby") && !seen[m.Path] {
			seen[m.Path] = true
			objs = append(objs, m.Path)
		}
	}
	return objs
}

// Refresh rereads /proc/<pid>/maps.
func (p *Process) Refresh() error {
	f, err := os.Open(p.procPath("maps"))
	if err != nil {
		return errors.New(
			"reading maps failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpMaps),
			errors.WithMeta(errMetaPIDKey, strconv.Itoa(p.PID)),
			errors.WithWrap(err),
		)
	}
	defer f.Close()
	maps, err := ParseMaps(f)
	if err != nil {
		return errors.New(
			"reading maps failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpMaps),
			errors.WithWrap(err),
		)
	}
	p.maps = maps
	return nil
}

// Mappings returns the mappings read by the last Refresh.
func (p *Process) Mappings() []Mapping { return p.maps }

// State returns the one-letter state from /proc/<pid>/stat.
func (p *Process) State() (byte, error) {
	b, err := os.ReadFile(p.procPath("stat"))
	if err != nil {
		return 0, err
	}
	// The command name is in parentheses and may itself contain ") ".
	k := strings.LastIndexByte(string(b), ')')
	if k < 0 || k+2 >= len(b) {
		return 0, fmt.Errorf("malformed stat %q", b)
	}
	return b[k+2], nil
}

// checkRange verifies that [addr, addr+n) lies in readable mappings.
func (p *Process) checkRange(addr uint64, n int) error {
	end := addr + uint64(n)
	for addr < end {
		k := sort.Search(len(p.maps), func(k int) bool { return addr < p.maps[k].End })
		if k == len(p.maps) || !p.maps[k].contains(addr) {
			return errors.From(ErrNotMapped)
		}
		if !p.maps[k].Readable() {
			return errors.From(ErrNotReadable)
		}
		addr = p.maps[k].End
	}
	return nil
}

// ReadMemory reads len(buf) bytes at addr with process_vm_readv.
func (p *Process) ReadMemory(addr uint64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	fail := func(err error) error {
		return errors.New(
			"read failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpRead),
			errors.WithMeta(errMetaAddrKey, fmt.Sprintf("0x%x", addr)),
			errors.WithWrap(err),
		)
	}
	if err := p.checkRange(addr, len(buf)); err != nil {
		return fail(err)
	}
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	n, err := unix.ProcessVMReadv(p.PID, local, remote, 0)
	if err != nil {
		return fail(err)
	}
	if n != len(buf) {
		verbosef("process_vm_readv(0x%x) read %d of %d bytes", addr, n, len(buf))
		return fail(errors.From(ErrShortRead))
	}
	return nil
}
