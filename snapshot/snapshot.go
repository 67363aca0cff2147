// Package snapshot records the memory reads of an inspection session and
// replays them later without the original process or core file.
//
// A snapshot is a set of fixed-size pages plus the global symbols that were
// looked up, encoded as CBOR. Snapshots are also used to build test fixtures:
// see Builder.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
)

// PageSize is the granularity of recorded memory.
const PageSize = 4096

// formatVersion is bumped when the encoding changes incompatibly.
const formatVersion = 1

var log = commonlog.GetLogger("rubycore.snapshot")

// ErrNotRecorded is returned for reads of memory that is not in the snapshot.
var ErrNotRecorded = errors.New("memory not recorded in snapshot")

// Memory is the read interface snapshots record and replay.
type Memory interface {
	ReadMemory(addr uint64, buf []byte) error
}

// SymbolTable resolves global symbol names to addresses.
type SymbolTable interface {
	LookupSymbol(name string) (uint64, bool)
}

// Snapshot is an immutable recorded address space.
// It implements Memory and SymbolTable.
type Snapshot struct {
	pages   map[uint64][]byte
	symbols map[string]uint64
	meta    map[string]string
}

type file struct {
	Version  int               `cbor:"1,keyasint"`
	PageSize uint64            `cbor:"2,keyasint"`
	Pages    []page            `cbor:"3,keyasint"`
	Symbols  map[string]uint64 `cbor:"4,keyasint,omitempty"`
	Meta     map[string]string `cbor:"5,keyasint,omitempty"`
}

type page struct {
	Addr uint64 `cbor:"1,keyasint"`
	Data []byte `cbor:"2,keyasint"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// ReadMemory implements Memory.
func (s *Snapshot) ReadMemory(addr uint64, buf []byte) error {
	for done := 0; done < len(buf); {
		a := addr + uint64(done)
		base := a &^ (PageSize - 1)
		p, ok := s.pages[base]
		if !ok {
			return fmt.Errorf("0x%x: %w", a, ErrNotRecorded)
		}
		done += copy(buf[done:], p[a-base:])
	}
	return nil
}

// LookupSymbol implements SymbolTable.
func (s *Snapshot) LookupSymbol(name string) (uint64, bool) {
	addr, ok := s.symbols[name]
	return addr, ok
}

// Meta returns the metadata value for key, such as "ruby_version".
func (s *Snapshot) Meta(key string) string {
	return s.meta[key]
}

// NumPages returns the number of recorded pages.
func (s *Snapshot) NumPages() int {
	return len(s.pages)
}

// Encode writes s to w as CBOR.
func (s *Snapshot) Encode(w io.Writer) error {
	f := file{
		Version:  formatVersion,
		PageSize: PageSize,
		Symbols:  s.symbols,
		Meta:     s.meta,
	}
	for addr, data := range s.pages {
		f.Pages = append(f.Pages, page{Addr: addr, Data: data})
	}
	sort.Slice(f.Pages, func(i, k int) bool { return f.Pages[i].Addr < f.Pages[k].Addr })
	data, err := encMode.Marshal(&f)
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// WriteFile encodes s to the named file.
func (s *Snapshot) WriteFile(path string) error {
	fd, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Encode(fd); err != nil {
		fd.Close()
		return err
	}
	if err := fd.Close(); err != nil {
		return err
	}
	log.Infof("wrote %d pages to %s", len(s.pages), path)
	return nil
}

// Decode reads a snapshot encoded by Encode.
func Decode(data []byte) (*Snapshot, error) {
	var f file
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	if f.Version != formatVersion {
		return nil, fmt.Errorf("snapshot: unsupported format version %d", f.Version)
	}
	if f.PageSize != PageSize {
		return nil, fmt.Errorf("snapshot: unsupported page size %d", f.PageSize)
	}
	s := newSnapshot()
	for _, p := range f.Pages {
		if p.Addr%PageSize != 0 || len(p.Data) != PageSize {
			return nil, fmt.Errorf("snapshot: malformed page at 0x%x (%d bytes)", p.Addr, len(p.Data))
		}
		s.pages[p.Addr] = p.Data
	}
	for k, v := range f.Symbols {
		s.symbols[k] = v
	}
	for k, v := range f.Meta {
		s.meta[k] = v
	}
	return s, nil
}

// Open reads a snapshot file.
func Open(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Infof("loaded %d pages from %s", len(s.pages), path)
	return s, nil
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		pages:   map[uint64][]byte{},
		symbols: map[string]uint64{},
		meta:    map[string]string{},
	}
}
