package snapshot

import "encoding/binary"

// DefaultBase is where Builder starts allocating.
const DefaultBase = 0x7f0000000000

// Builder constructs a Snapshot by hand, for tests and examples.
// Pages that were never written read as unrecorded.
type Builder struct {
	snap *Snapshot
	next uint64
}

// NewBuilder returns a Builder that allocates upwards from DefaultBase.
func NewBuilder() *Builder {
	return &Builder{snap: newSnapshot(), next: DefaultBase}
}

// Alloc reserves n zeroed bytes aligned to 8 and returns their address.
func (b *Builder) Alloc(n uint64) uint64 {
	return b.AllocAligned(n, 8)
}

// AllocAligned reserves n zeroed bytes aligned to align, which must be a
// power of two.
func (b *Builder) AllocAligned(n, align uint64) uint64 {
	addr := (b.next + align - 1) &^ (align - 1)
	b.next = addr + n
	b.Write(addr, make([]byte, n))
	return addr
}

// Write copies data into the snapshot at addr.
func (b *Builder) Write(addr uint64, data []byte) {
	for done := 0; done < len(data); {
		a := addr + uint64(done)
		base := a &^ (PageSize - 1)
		p, ok := b.snap.pages[base]
		if !ok {
			p = make([]byte, PageSize)
			b.snap.pages[base] = p
		}
		done += copy(p[a-base:], data[done:])
	}
}

// PutUint64 writes a little-endian word at addr.
func (b *Builder) PutUint64(addr, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	b.Write(addr, buf[:])
}

// PutUint32 writes a little-endian 32-bit integer at addr.
func (b *Builder) PutUint32(addr uint64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.Write(addr, buf[:])
}

// PutUint16 writes a little-endian 16-bit integer at addr.
func (b *Builder) PutUint16(addr uint64, v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	b.Write(addr, buf[:])
}

// CString allocates a NUL-terminated copy of s.
func (b *Builder) CString(s string) uint64 {
	addr := b.Alloc(uint64(len(s)) + 1)
	b.Write(addr, []byte(s))
	return addr
}

// Symbol defines a global symbol.
func (b *Builder) Symbol(name string, addr uint64) {
	b.snap.symbols[name] = addr
}

// SetMeta records a metadata value.
func (b *Builder) SetMeta(key, value string) {
	b.snap.meta[key] = value
}

// Snapshot returns the snapshot built so far. The Builder may continue to
// be used; later writes are visible through the returned Snapshot.
func (b *Builder) Snapshot() *Snapshot {
	return b.snap
}
