// Package corefile implements access to processes contained in Linux ELF
// core dump files.
//
// A Program combines a core file with the executable and shared libraries
// the process was running. Memory is served from the core's PT_LOAD
// segments, with segments the kernel did not dump (usually read-only text
// and data) filled in from the object files at their load bias. The bias
// of a position-independent executable comes from AT_ENTRY in the
// auxiliary vector; shared libraries are located through the NT_FILE
// mapping list.
//
// Program implements the three collaborators an rvalue.Inspector needs:
// ReadMemory, the DWARF layout queries StructFieldOffset, StructSize and
// Enumerator, and LookupSymbol over the ELF symbol tables. Eval parses
// the address expressions accepted by the rbinspect commands.
//
// Only 64-bit little-endian cores for amd64 and arm64 are supported.
// Core files are mapped read-only and are never modified.
package corefile
