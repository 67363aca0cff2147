package corefile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile is a file mapped read-only. Segments of a Program slice its
// bytes directly, so it must stay mapped until the Program is closed.
type mmapFile struct {
	name string
	data []byte
}

func mmapOpen(name string) (*mmapFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	m := &mmapFile{name: name}
	switch size := fi.Size(); {
	case size == 0:
		m.data = []byte{}
	case size != int64(int(size)):
		return nil, fmt.Errorf("%s: file too large to map (%d bytes)", name, size)
	default:
		if m.data, err = unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED); err != nil {
			return nil, fmt.Errorf("mmap %s: %w", name, err)
		}
	}
	return m, nil
}

// mmapZero maps size zero bytes, for BSS.
func mmapZero(size uint64) (*mmapFile, error) {
	if size != uint64(int(size)) || int(size) <= 0 {
		return nil, fmt.Errorf("bad anonymous mapping size 0x%x", size)
	}
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap of 0x%x zero bytes: %w", size, err)
	}
	return &mmapFile{name: "[bss]", data: data}, nil
}

func (m *mmapFile) Name() string { return m.name }

// ReadAt lets debug/elf parse the mapping.
func (m *mmapFile) ReadAt(p []byte, off int64) (int, error) {
	if m.data == nil {
		return 0, errors.New("read of closed mapping")
	}
	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// bytes returns n bytes at off without copying.
func (m *mmapFile) bytes(off, n uint64) ([]byte, error) {
	if end := off + n; end >= off && end <= uint64(len(m.data)) {
		return m.data[off:end:end], nil
	}
	return nil, fmt.Errorf("%s: range [0x%x,+0x%x) is beyond the end of the file", m.name, off, n)
}

func (m *mmapFile) Close() error {
	data := m.data
	m.data = nil
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}
