package corefile

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
)

// readELFCore loads the memory segments and notes of a core file.
func readELFCore(mmapf *mmapFile, p *Program) error {
	f, err := elf.NewFile(mmapf)
	if err != nil {
		return err
	}
	if f.Type != elf.ET_CORE {
		return fmt.Errorf("%s is not a core file (type %s)", mmapf.Name(), f.Type)
	}
	arch, err := elfArch(f)
	if err != nil {
		return err
	}
	p.Arch = arch
	verbosef("ReadELF: arch=%s", arch)

	if err := readELFSegments(mmapf, f, p, 0, true); err != nil {
		return err
	}
	return readELFCoreNotes(f, p)
}

// readELFObject loads an executable or shared library whose segments
// were mapped at bias in the core's address space. Segments already
// present in the core take priority.
func readELFObject(mmapf *mmapFile, f *elf.File, p *Program, bias uint64) error {
	arch, err := elfArch(f)
	if err != nil {
		return err
	}
	if arch != p.Arch {
		return fmt.Errorf("mismatched machine types: core is %s, %s is %s", p.Arch, mmapf.Name(), arch)
	}
	return readELFSegments(mmapf, f, p, bias, false)
}

func elfArch(f *elf.File) (string, error) {
	if f.Class != elf.ELFCLASS64 {
		return "", fmt.Errorf("unsupported ELF class %s", f.Class)
	}
	if f.Data != elf.ELFDATA2LSB {
		return "", fmt.Errorf("unsupported ELF byte order %s", f.Data)
	}
	switch f.OSABI {
	case elf.ELFOSABI_LINUX, elf.ELFOSABI_NONE:
	default:
		return "", fmt.Errorf("unsupported ELF OS type %s", f.OSABI)
	}
	switch f.Machine {
	case elf.EM_X86_64:
		return "amd64", nil
	case elf.EM_AARCH64:
		return "arm64", nil
	}
	return "", fmt.Errorf("unsupported ELF machine type %s", f.Machine)
}

// readELFSegments maps the PT_LOAD segments of f, shifted by bias, into p.
// Core segments are inserted first, so a core's dumped bytes always win
// over the file contents of an object.
func readELFSegments(mmapf *mmapFile, f *elf.File, p *Program, bias uint64, isCoreFile bool) error {
	var loads []elf.ProgHeader
	for _, ph := range f.Progs {
		if ph.Type != elf.PT_LOAD || ph.Memsz == 0 {
			continue
		}
		if ph.Memsz < ph.Filesz {
			return fmt.Errorf("%s: PT_LOAD at 0x%x has memsz < filesz", mmapf.Name(), ph.Vaddr)
		}
		loads = append(loads, ph.ProgHeader)
	}
	sort.Slice(loads, func(i, k int) bool { return loads[i].Vaddr < loads[k].Vaddr })

	for _, ph := range loads {
		vaddr := ph.Vaddr + bias
		readable := ph.Flags&elf.PF_R != 0
		verbosef("%s: PT_LOAD [0x%x,+0x%x) file 0x%x flags %s", mmapf.Name(), vaddr, ph.Memsz, ph.Filesz, ph.Flags)
		err := p.segments.insert(vaddr, ph.Filesz, func(addr, size uint64) (dataSegment, error) {
			data, err := mmapf.bytes(ph.Off+(addr-vaddr), size)
			if err != nil {
				return dataSegment{}, err
			}
			return dataSegment{addr: addr, data: data, file: mmapf.Name(), readable: readable}, nil
		})
		if err != nil {
			return err
		}
		// In a core, memsz > filesz marks memory the kernel did not dump
		// (usually file-backed text), which an object fills in later. In an
		// object it is BSS.
		if isCoreFile || ph.Memsz == ph.Filesz {
			continue
		}
		err = p.segments.insert(vaddr+ph.Filesz, ph.Memsz-ph.Filesz, func(addr, size uint64) (dataSegment, error) {
			bss, err := mmapZero(size)
			if err != nil {
				return dataSegment{}, err
			}
			p.filemaps = append(p.filemaps, bss)
			return dataSegment{addr: addr, data: bss.data, file: bss.name, readable: readable}, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// firstLoadVaddr is the page-aligned address of the lowest PT_LOAD segment.
func firstLoadVaddr(f *elf.File) (uint64, bool) {
	found := false
	var lo uint64
	for _, ph := range f.Progs {
		if ph.Type != elf.PT_LOAD {
			continue
		}
		if !found || ph.Vaddr-ph.Off < lo {
			lo = ph.Vaddr - ph.Off
			found = true
		}
	}
	return lo, found
}

// Parsing ELF notes. Only the Linux note structs are supported.

// See /usr/include/linux/elf.h.
const (
	elf_nt_prstatus = 1
	elf_nt_prpsinfo = 3
	elf_nt_auxv     = 6
	elf_nt_file     = 0x46494c45
)

// Auxiliary vector tags, from /usr/include/elf.h.
const (
	AT_PHDR  = 3
	AT_BASE  = 7
	AT_ENTRY = 9
)

type elfNote struct {
	Namesz uint32
	Descsz uint32
	Ntype  uint32
}

// See /usr/include/linux/elfcore.h.
type elfLinuxPsinfo64 struct {
	State  uint8 // numeric process state
	Sname  byte  // process state as a character
	Zombie uint8
	Nice   int8
	_      uint32
	Flag   uint64
	Uid    uint32
	Gid    uint32
	Pid    uint32
	Ppid   uint32
	Pgrp   uint32
	Sid    uint32
	Fname  [16]byte // file name, truncated, usually no directory
	Psargs [80]byte // executable args, truncated
}

type elfLinuxSiginfo struct {
	Signo int32
	Code  int32
	Errno int32
}

type elfLinuxTimeval64 struct {
	Sec  int64
	Usec int64
}

// elfLinuxPrstatusHeader is the part of elf_prstatus before the registers.
type elfLinuxPrstatusHeader struct {
	Siginfo elfLinuxSiginfo // info about the current signal
	Cursig  uint16          // current signal
	_       uint16
	Sigpend uint64 // set of pending signals
	Sighold uint64 // set of held signals
	Pid     uint32
	Ppid    uint32
	Pgrp    uint32
	Sid     uint32
	Utime   elfLinuxTimeval64 // user time
	Stime   elfLinuxTimeval64 // system time
	Cutime  elfLinuxTimeval64 // cumulative user time
	Cstime  elfLinuxTimeval64 // cumulative system time
}

type elfLinuxPrstatusAMD64 struct {
	elfLinuxPrstatusHeader
	Reg     elfLinuxRegsAMD64
	Fpvalid int32
	_       int32
}

type elfLinuxPrstatusARM64 struct {
	elfLinuxPrstatusHeader
	Reg     elfLinuxRegsARM64
	Fpvalid int32
	_       int32
}

// See linux's arch/x86/include/uapi/asm/ptrace.h.
type elfLinuxRegsAMD64 struct {
	R15      uint64
	R14      uint64
	R13      uint64
	R12      uint64
	Rbp      uint64
	Rbx      uint64
	R11      uint64
	R10      uint64
	R9       uint64
	R8       uint64
	Rax      uint64
	Rcx      uint64
	Rdx      uint64
	Rsi      uint64
	Rdi      uint64
	Orig_rax uint64
	Rip      uint64
	Cs       uint64
	Rflags   uint64
	Rsp      uint64
	Ss       uint64
	Fs_base  uint64
	Gs_base  uint64
	Ds       uint64
	Es       uint64
	Fs       uint64
	Gs       uint64
}

// See linux's arch/arm64/include/uapi/asm/ptrace.h (struct user_pt_regs).
type elfLinuxRegsARM64 struct {
	X      [31]uint64
	Sp     uint64
	Pc     uint64
	Pstate uint64
}

// readELFCoreNotes fills in the threads, process info, auxv and file
// mappings of p from the PT_NOTE segments of a core.
func readELFCoreNotes(f *elf.File, p *Program) error {
	for _, ph := range f.Progs {
		if ph.Type != elf.PT_NOTE {
			continue
		}
		buf, err := io.ReadAll(ph.Open())
		if err != nil {
			return fmt.Errorf("reading PT_NOTE at offset 0x%x: %w", ph.Off, err)
		}
		for len(buf) > 0 {
			var note elfNote
			if err := binary.Read(bytes.NewReader(buf), f.ByteOrder, &note); err != nil {
				return fmt.Errorf("truncated note header in PT_NOTE at offset 0x%x", ph.Off)
			}
			// Name and desc are each padded to 4 bytes.
			descOff := 12 + align4(uint64(note.Namesz))
			next := descOff + align4(uint64(note.Descsz))
			if next > uint64(len(buf)) {
				return fmt.Errorf("note type %d overruns PT_NOTE at offset 0x%x", note.Ntype, ph.Off)
			}
			desc := buf[descOff : descOff+uint64(note.Descsz)]
			buf = buf[next:]
			verbosef("note type %d, %d bytes", note.Ntype, len(desc))
			if err := p.addNote(note.Ntype, desc, f.ByteOrder); err != nil {
				return err
			}
		}
	}
	verbosef("found %d threads", len(p.Threads))
	return nil
}

func align4(n uint64) uint64 { return (n + 3) &^ 3 }

func (p *Program) addNote(ntype uint32, desc []byte, order binary.ByteOrder) error {
	switch ntype {
	case elf_nt_prstatus:
		var (
			hdr  elfLinuxPrstatusHeader
			regs map[string]uint64
		)
		switch p.Arch {
		case "amd64":
			var st elfLinuxPrstatusAMD64
			if err := decodeNote(desc, order, &st, "prstatus"); err != nil {
				return err
			}
			hdr, regs = st.elfLinuxPrstatusHeader, structRegs(reflect.ValueOf(st.Reg))
		case "arm64":
			var st elfLinuxPrstatusARM64
			if err := decodeNote(desc, order, &st, "prstatus"); err != nil {
				return err
			}
			hdr, regs = st.elfLinuxPrstatusHeader, arm64Regs(st.Reg)
		}
		p.Threads = append(p.Threads, &OSThread{
			PID:    uint64(hdr.Pid),
			Signal: int(hdr.Cursig),
			GPRegs: regs,
		})
	case elf_nt_prpsinfo:
		var ps elfLinuxPsinfo64
		if err := decodeNote(desc, order, &ps, "psinfo"); err != nil {
			return err
		}
		p.PID = uint64(ps.Pid)
		p.Command = cstring(ps.Fname[:])
		p.Args = strings.TrimSpace(cstring(ps.Psargs[:]))
		verbosef("process %d: command=%q args=%q", p.PID, p.Command, p.Args)
	case elf_nt_auxv:
		p.Auxv = parseAuxv(desc, order)
	case elf_nt_file:
		m, err := parseFileNote(desc, order)
		if err != nil {
			return err
		}
		p.Mappings = m
	}
	return nil
}

// decodeNote decodes the fixed-size prefix of desc into v.
func decodeNote(desc []byte, order binary.ByteOrder, v interface{}, what string) error {
	if want := binary.Size(v); len(desc) < want {
		return fmt.Errorf("%s note is %d bytes, want at least %d", what, len(desc), want)
	}
	return binary.Read(bytes.NewReader(desc), order, v)
}

// structRegs maps each field of a register struct to its lowercased name.
func structRegs(regs reflect.Value) map[string]uint64 {
	m := map[string]uint64{}
	for k := 0; k < regs.Type().NumField(); k++ {
		m[strings.ToLower(regs.Type().Field(k).Name)] = regs.Field(k).Uint()
	}
	return m
}

func arm64Regs(r elfLinuxRegsARM64) map[string]uint64 {
	m := map[string]uint64{
		"sp":     r.Sp,
		"pc":     r.Pc,
		"pstate": r.Pstate,
		"fp":     r.X[29],
		"lr":     r.X[30],
	}
	for i, v := range r.X {
		m[fmt.Sprintf("x%d", i)] = v
	}
	return m
}

func parseAuxv(desc []byte, order binary.ByteOrder) map[uint64]uint64 {
	auxv := map[uint64]uint64{}
	for len(desc) >= 16 {
		tag, val := order.Uint64(desc), order.Uint64(desc[8:])
		desc = desc[16:]
		if tag == 0 {
			break
		}
		auxv[tag] = val
	}
	return auxv
}

// parseFileNote decodes NT_FILE: count, page size, count (start, end,
// page offset) triples, then count NUL-terminated paths.
func parseFileNote(desc []byte, order binary.ByteOrder) ([]Mapping, error) {
	if len(desc) < 16 {
		return nil, fmt.Errorf("NT_FILE note is too short (%d bytes)", len(desc))
	}
	count, pageSize := order.Uint64(desc), order.Uint64(desc[8:])
	desc = desc[16:]
	if count > uint64(len(desc))/24 {
		return nil, fmt.Errorf("NT_FILE note claims %d entries in %d bytes", count, len(desc))
	}
	m := make([]Mapping, count)
	for i := range m {
		m[i].Start = order.Uint64(desc)
		m[i].End = order.Uint64(desc[8:])
		m[i].Offset = order.Uint64(desc[16:]) * pageSize
		desc = desc[24:]
	}
	for i := range m {
		k := bytes.IndexByte(desc, 0)
		if k < 0 {
			return nil, fmt.Errorf("NT_FILE note has %d of %d paths", i, count)
		}
		m[i].Path = string(desc[:k])
		desc = desc[k+1:]
	}
	return m, nil
}

func cstring(b []byte) string {
	if k := bytes.IndexByte(b, 0); k >= 0 {
		return string(b[:k])
	}
	return string(b)
}
