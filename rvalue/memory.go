package rvalue

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Memory reads bytes from the address space of the inspected process.
// ReadMemory must fill buf completely or return an error.
type Memory interface {
	ReadMemory(addr uint64, buf []byte) error
}

// LayoutSource answers type-layout queries, typically from DWARF.
// Each method returns an error when the name is not known.
type LayoutSource interface {
	StructFieldOffset(structName, field string) (uint64, error)
	StructSize(structName string) (uint64, error)
	Enumerator(name string) (int64, error)
}

// SymbolTable resolves global symbol names to addresses.
type SymbolTable interface {
	LookupSymbol(name string) (uint64, bool)
}

// MemoryAccessError is returned when a read of the inspected memory fails.
type MemoryAccessError struct {
	Addr uint64
	Size int
	Err  error
}

func (e *MemoryAccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot access memory at 0x%x (%d bytes): %v", e.Addr, e.Size, e.Err)
	}
	return fmt.Sprintf("cannot access memory at 0x%x (%d bytes)", e.Addr, e.Size)
}

func (e *MemoryAccessError) Unwrap() error { return e.Err }

// LayoutError is returned when type metadata cannot be resolved.
type LayoutError struct {
	Name string // struct, field or enumerator name
	Err  error
}

func (e *LayoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot resolve layout of %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("cannot resolve layout of %s", e.Name)
}

func (e *LayoutError) Unwrap() error { return e.Err }

// ErrNil is returned when asked to dereference a NULL pointer.
var ErrNil = errors.New("nil pointer")

// IsMemoryAccessError reports whether err is or wraps a *MemoryAccessError.
func IsMemoryAccessError(err error) bool {
	var mae *MemoryAccessError
	return errors.As(err, &mae)
}

// readBytes reads len(buf) bytes at addr, wrapping failures in *MemoryAccessError.
func readBytes(mem Memory, addr uint64, buf []byte) error {
	if addr == 0 {
		return &MemoryAccessError{Addr: addr, Size: len(buf), Err: ErrNil}
	}
	if err := mem.ReadMemory(addr, buf); err != nil {
		var mae *MemoryAccessError
		if errors.As(err, &mae) {
			return err
		}
		return &MemoryAccessError{Addr: addr, Size: len(buf), Err: err}
	}
	return nil
}

// ReadUint64 reads a little-endian word.
func ReadUint64(mem Memory, addr uint64) (uint64, error) {
	var b [8]byte
	if err := readBytes(mem, addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// ReadUint32 reads a little-endian 32-bit integer.
func ReadUint32(mem Memory, addr uint64) (uint32, error) {
	var b [4]byte
	if err := readBytes(mem, addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// ReadUint16 reads a little-endian 16-bit integer.
func ReadUint16(mem Memory, addr uint64) (uint16, error) {
	var b [2]byte
	if err := readBytes(mem, addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

// ReadCString reads a NUL-terminated string of at most max bytes.
// The result is truncated at max bytes when no NUL is found.
func ReadCString(mem Memory, addr uint64, max int) (string, error) {
	const chunk = 64
	var out []byte
	for len(out) < max {
		n := chunk
		if rem := max - len(out); rem < n {
			n = rem
		}
		buf := make([]byte, n)
		if err := readBytes(mem, addr+uint64(len(out)), buf); err != nil {
			if n == 1 {
				return "", err
			}
			// The string may end just before an unmapped page.
			return readCStringSlow(mem, addr, max)
		}
		for i, c := range buf {
			if c == 0 {
				return string(append(out, buf[:i]...)), nil
			}
		}
		out = append(out, buf...)
	}
	return string(out), nil
}

func readCStringSlow(mem Memory, addr uint64, max int) (string, error) {
	var out []byte
	var b [1]byte
	for len(out) < max {
		if err := readBytes(mem, addr+uint64(len(out)), b[:]); err != nil {
			return "", err
		}
		if b[0] == 0 {
			break
		}
		out = append(out, b[0])
	}
	return string(out), nil
}
