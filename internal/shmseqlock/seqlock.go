// Package shmseqlock implements the cross-process seqlock: a TTAS
// (test-and-test-and-set) spinlock for writers plus an odd/even sequence
// counter that lets readers proceed lock-free and merely detect — and
// retry past — a writer that raced them.
//
// The lock occupies a dedicated 64-byte cache line, separate from the data
// region, matching spec §4.5 and §6.3 ("a second mapping of one cache-line
// holds the seqlock").
//
// © 2025 warp-cache authors. MIT License.
package shmseqlock

import (
    "runtime"
    "sync/atomic"
    "unsafe"
)

// Size is the fixed byte size of the lock cache line: seq (u64) at offset
// 0, write_lock (u32) at offset 8, the rest reserved.
const Size = 64

// Lock is a view over a 64-byte shared-memory cache line holding the
// seqlock state. Multiple Lock values constructed over the same underlying
// bytes (in-process or across processes via mmap) observe and serialize
// against each other correctly.
type Lock struct {
    seq       *uint64
    writeLock *uint32
}

// New constructs a Lock over buf, which must be at least Size bytes and,
// for a fresh region, zero-filled (seq=0, write_lock=0 — unlocked, even).
func New(buf []byte) *Lock {
    if len(buf) < Size {
        panic("shmseqlock: buffer smaller than lock size")
    }
    return &Lock{
        seq:       (*uint64)(unsafe.Pointer(&buf[0])),
        writeLock: (*uint32)(unsafe.Pointer(&buf[8])),
    }
}

// ReadBegin spins until no writer is active (seq even) and returns the
// observed sequence number for a subsequent ReadValidate.
func (l *Lock) ReadBegin() uint64 {
    for {
        seq := atomic.LoadUint64(l.seq)
        if seq&1 == 0 {
            return seq
        }
        runtime.Gosched()
    }
}

// ReadValidate reports whether no writer committed between the matching
// ReadBegin and now. The data reads the caller performed in between must
// happen-before this check; atomic.LoadUint64 carries that ordering on
// every architecture Go supports, so no separate fence call is needed here
// (unlike the C/Rust original, which issues one explicitly).
func (l *Lock) ReadValidate(seq uint64) bool {
    return atomic.LoadUint64(l.seq) == seq
}

// WriteLock spins (TTAS: test the lock word before attempting the CAS, to
// avoid needless cache-line ping-pong under contention) until it acquires
// the writer spinlock, then bumps seq to odd to signal "writer active".
func (l *Lock) WriteLock() {
    for {
        for atomic.LoadUint32(l.writeLock) != 0 {
            runtime.Gosched()
        }
        if atomic.CompareAndSwapUint32(l.writeLock, 0, 1) {
            break
        }
    }
    prev := atomic.LoadUint64(l.seq)
    atomic.StoreUint64(l.seq, prev+1)
}

// WriteUnlock bumps seq back to even (data now visible to readers) and
// releases the writer spinlock.
func (l *Lock) WriteUnlock() {
    prev := atomic.LoadUint64(l.seq)
    atomic.StoreUint64(l.seq, prev+1)
    atomic.StoreUint32(l.writeLock, 0)
}
