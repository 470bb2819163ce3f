// Package shmregion implements the fixed binary layout of the cross-process
// cache region (header, bucket array, slot slab) and the mmap lifecycle that
// creates, opens, and recreates the two backing files that hold it.
//
// Layout is position-independent and process-relocatable: every reference
// between structures is a 32-bit slot/bucket index, never a pointer, so the
// same bytes are valid at whatever address each process happens to map them.
//
// © 2025 warp-cache authors. MIT License.
package shmregion

import (
    "unsafe"

    "github.com/toloco/warp-cache/internal/unsafehelpers"
)

// Magic stamped at the start of every region; mismatch forces recreation.
var Magic = [8]byte{'F', 'C', 'A', 'C', 'H', 'E', '0', '1'}

// HeaderSize is the fixed size, in bytes, of the region header.
const HeaderSize = 256

// SlotNone / BucketEmpty are the sentinel index values terminating the
// order list, free list, and bucket-empty marker respectively.
const (
    SlotNone    int32 = -1
    BucketEmpty int32 = -1
)

// BucketSize is the fixed size, in bytes, of one hash-table bucket.
const BucketSize = 16

// SlotHeaderSize is the fixed size, in bytes, of the per-slot header that
// precedes each slot's key/value data area.
const SlotHeaderSize = 64

// Strategy IDs stored in Header.Strategy, matching spec §4.4's dispatch
// table order.
const (
    StrategyLRU  uint32 = 0
    StrategyMRU  uint32 = 1
    StrategyFIFO uint32 = 2
    StrategyLFU  uint32 = 3
)

// Header is the first HeaderSize bytes of a region. Field order groups
// 8-byte values first, then 4-byte values, to avoid implicit compiler
// padding so the Go layout matches the wire format byte-for-byte.
type Header struct {
    Magic         [8]byte
    TTLNanos      uint64
    Hits          uint64
    Misses        uint64
    OversizeSkips uint64

    Version       uint32
    Strategy      uint32
    Capacity      uint32
    HTCapacity    uint32
    SlotSize      uint32
    MaxKeySize    uint32
    MaxValueSize  uint32
    CurrentSize   uint32
    ListHead      int32
    ListTail      int32
    FreeHead      int32
    reserved      int32

    _pad [168]byte
}

// Bucket is one entry in the open-addressed hash index.
type Bucket struct {
    Hash      uint64
    SlotIndex int32
    _pad      uint32
}

// SlotHeader is the fixed-stride header at the start of every slab slot,
// immediately followed by MaxKeySize bytes of key data then MaxValueSize
// bytes of value data.
type SlotHeader struct {
    KeyHash        uint64
    CreatedAtNanos uint64
    Frequency      uint64
    UniqueID       uint64

    Occupied uint32
    KeyLen   uint32
    ValueLen uint32
    Prev     int32
    Next     int32

    _pad [12]byte
}

func init() {
    if unsafe.Sizeof(Header{}) != HeaderSize {
        panic("shmregion: Header size mismatch")
    }
    if unsafe.Sizeof(Bucket{}) != BucketSize {
        panic("shmregion: Bucket size mismatch")
    }
    if unsafe.Sizeof(SlotHeader{}) != SlotHeaderSize {
        panic("shmregion: SlotHeader size mismatch")
    }
}

// NextPow2 rounds n up to the next power of two.
func NextPow2(n uint32) uint32 {
    return unsafehelpers.NextPow2(n)
}

// SlotStride returns the total per-slot byte size: header + key + value.
func SlotStride(maxKeySize, maxValueSize uint32) uint32 {
    return SlotHeaderSize + maxKeySize + maxValueSize
}

// HTCapacityFor returns the power-of-two bucket count sized so the hash
// table's load factor never exceeds 0.5.
func HTCapacityFor(capacity uint32) uint32 {
    return NextPow2(2 * capacity)
}

// HTOffset is the byte offset of the bucket array from the region start.
func HTOffset() uint64 {
    return HeaderSize
}

// SlabOffset is the byte offset of the slot slab from the region start.
func SlabOffset(htCapacity uint32) uint64 {
    return HeaderSize + uint64(htCapacity)*BucketSize
}

// RegionSize computes the total mmap size for the given parameters.
func RegionSize(capacity, htCapacity, slotSize uint32) uint64 {
    return HeaderSize + uint64(htCapacity)*BucketSize + uint64(capacity)*uint64(slotSize)
}
