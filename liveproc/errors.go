package liveproc

import (
	"github.com/brickingsoft/errors"
)

var (
	ErrNoProcess   = errors.Define("no such process")
	ErrNotMapped   = errors.Define("address is not mapped")
	ErrNotReadable = errors.Define("address is not readable")
	ErrShortRead   = errors.Define("short read")
)

func IsNotMapped(err error) bool {
	return errors.Is(err, ErrNotMapped)
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "liveproc"
)

const (
	errMetaOpKey     = "op"
	errMetaOpAttach  = "attach"
	errMetaOpMaps    = "maps"
	errMetaOpRead    = "read"
	errMetaAddrKey   = "addr"
	errMetaPIDKey    = "pid"
	errMetaObjectKey = "object"
)
