package shmseqlock

import (
    "sync/atomic"
    "unsafe"
)

// AddUint64At performs a relaxed atomic fetch-add on the uint64 at byte
// offset off within buf and returns the new value. Used for the header's
// hits/misses/oversize_skips counters, which spec §4.5 requires to bypass
// the seqlock entirely.
func AddUint64At(buf []byte, off uint64, delta uint64) uint64 {
    ptr := (*uint64)(unsafe.Pointer(&buf[off]))
    return atomic.AddUint64(ptr, delta)
}

// LoadUint64At atomically loads the uint64 at byte offset off within buf.
func LoadUint64At(buf []byte, off uint64) uint64 {
    ptr := (*uint64)(unsafe.Pointer(&buf[off]))
    return atomic.LoadUint64(ptr)
}
