//go:build windows

package shmregion

import (
    "errors"

    "go.uber.org/zap"
)

// LockSize mirrors the Unix build's constant so callers can share code that
// merely references the size.
const LockSize = 64

// ErrUnsupportedPlatform is returned by every constructor on Windows: the
// shared backend depends on POSIX mmap semantics (MAP_SHARED over a regular
// file under /dev/shm or a temp directory) that this module does not
// reimplement for Windows (spec §6.3/§6.4 explicitly allows a stub).
var ErrUnsupportedPlatform = errors.New("shmregion: shared cache backend not supported on windows")

// Params mirrors the Unix build's constructor parameters.
type Params struct {
    Strategy     uint32
    Capacity     uint32
    MaxKeySize   uint32
    MaxValueSize uint32
    TTLNanos     uint64
}

// Region is an empty placeholder on Windows; no instance is ever
// constructed since every constructor below returns ErrUnsupportedPlatform.
type Region struct{}

func (r *Region) Header() *Header { return nil }

func Create(name string, p Params, log *zap.Logger) (*Region, error) {
    return nil, ErrUnsupportedPlatform
}

func Open(name string) (*Region, error) {
    return nil, ErrUnsupportedPlatform
}

func CreateOrOpen(name string, p Params, log *zap.Logger) (*Region, error) {
    return nil, ErrUnsupportedPlatform
}

func (r *Region) Close() error  { return nil }
func (r *Region) Unlink() error { return nil }
