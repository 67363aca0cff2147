// Package liveproc reads the memory of a live Linux process, for
// inspecting a Ruby process that has been stopped in place rather than
// dumped to a core file.
//
// Reads use process_vm_readv(2), which needs the same permissions as
// ptrace attach. Addresses are checked against /proc/<pid>/maps first so
// that a bad pointer is reported as ErrNotMapped instead of EFAULT.
// Nothing in this package writes to the target.
package liveproc
