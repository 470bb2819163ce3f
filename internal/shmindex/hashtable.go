// Package shmindex implements the open-addressed, linear-probe hash index
// that maps a 64-bit key hash to a slot index inside a shmregion-laid-out
// region. All operations work directly on raw region bytes at caller-
// supplied offsets so they have no dependency on how the region was
// obtained (mmap'd file, anonymous mapping, or — in tests — a plain slice).
//
// © 2025 warp-cache authors. MIT License.
package shmindex

import (
    "unsafe"

    "github.com/toloco/warp-cache/internal/shmregion"
)

func bucketAt(data []byte, htBase uint64, i uint32) *shmregion.Bucket {
    off := htBase + uint64(i)*shmregion.BucketSize
    return (*shmregion.Bucket)(unsafe.Pointer(&data[off]))
}

func slotAt(data []byte, slabBase uint64, slotSize uint32, i int32) *shmregion.SlotHeader {
    off := slabBase + uint64(i)*uint64(slotSize)
    return (*shmregion.SlotHeader)(unsafe.Pointer(&data[off]))
}

func slotKeyBytes(data []byte, slabBase uint64, slotSize uint32, i int32, keyLen uint32) []byte {
    off := slabBase + uint64(i)*uint64(slotSize) + shmregion.SlotHeaderSize
    return data[off : off+uint64(keyLen)]
}

func slotValueBytes(data []byte, slabBase uint64, slotSize uint32, i int32, keyLen, valueLen uint32) []byte {
    off := slabBase + uint64(i)*uint64(slotSize) + shmregion.SlotHeaderSize + uint64(keyLen)
    return data[off : off+uint64(valueLen)]
}

// Lookup probes the hash table for keyHash/keyBytes, returning the matching
// slot index. Bounded by htCapacity probes (spec §4.3).
func Lookup(data []byte, htBase, slabBase uint64, htCapacity, slotSize uint32, keyHash uint64, keyBytes []byte) (int32, bool) {
    mask := htCapacity - 1
    idx := uint32(keyHash) & mask

    for i := uint32(0); i < htCapacity; i++ {
        b := bucketAt(data, htBase, idx)
        if b.SlotIndex == shmregion.BucketEmpty {
            return 0, false
        }
        if b.Hash == keyHash {
            slot := slotAt(data, slabBase, slotSize, b.SlotIndex)
            if slot.Occupied != 0 && slot.KeyLen == uint32(len(keyBytes)) {
                stored := slotKeyBytes(data, slabBase, slotSize, b.SlotIndex, slot.KeyLen)
                if bytesEqual(stored, keyBytes) {
                    return b.SlotIndex, true
                }
            }
        }
        idx = (idx + 1) & mask
    }
    return 0, false
}

// Insert writes {keyHash, slotIndex} into the first empty bucket on the
// probe chain from keyHash's ideal position. The caller guarantees the key
// isn't already present (spec §4.3).
func Insert(data []byte, htBase uint64, htCapacity uint32, keyHash uint64, slotIndex int32) {
    mask := htCapacity - 1
    idx := uint32(keyHash) & mask

    for i := uint32(0); i < htCapacity; i++ {
        b := bucketAt(data, htBase, idx)
        if b.SlotIndex == shmregion.BucketEmpty {
            b.Hash = keyHash
            b.SlotIndex = slotIndex
            return
        }
        idx = (idx + 1) & mask
    }
    // Table full — cannot happen given the 2x-capacity / 0.5-load-factor
    // invariant the engine maintains (spec §3 Invariants #4).
    panic("shmindex: hash table is full")
}

// Remove deletes the entry matching keyHash/keyBytes using backward-shift
// deletion (spec §4.3), preserving the linear-probing invariant for every
// other entry.
func Remove(data []byte, htBase, slabBase uint64, htCapacity, slotSize uint32, keyHash uint64, keyBytes []byte) bool {
    mask := htCapacity - 1
    idx := uint32(keyHash) & mask

    var removeIdx uint32
    found := false
    for i := uint32(0); i < htCapacity; i++ {
        b := bucketAt(data, htBase, idx)
        if b.SlotIndex == shmregion.BucketEmpty {
            return false
        }
        if b.Hash == keyHash {
            slot := slotAt(data, slabBase, slotSize, b.SlotIndex)
            if slot.KeyLen == uint32(len(keyBytes)) {
                stored := slotKeyBytes(data, slabBase, slotSize, b.SlotIndex, slot.KeyLen)
                if bytesEqual(stored, keyBytes) {
                    removeIdx = idx
                    found = true
                    break
                }
            }
        }
        idx = (idx + 1) & mask
    }
    if !found {
        return false
    }

    empty := removeIdx
    j := (empty + 1) & mask

    for {
        bj := bucketAt(data, htBase, j)
        if bj.SlotIndex == shmregion.BucketEmpty {
            break
        }
        ideal := uint32(bj.Hash) & mask

        var shouldMove bool
        if empty <= j {
            shouldMove = ideal <= empty || ideal > j
        } else {
            shouldMove = ideal <= empty && ideal > j
        }

        if shouldMove {
            dst := bucketAt(data, htBase, empty)
            dst.Hash = bj.Hash
            dst.SlotIndex = bj.SlotIndex
            empty = j
        }

        j = (j + 1) & mask
    }

    final := bucketAt(data, htBase, empty)
    final.Hash = 0
    final.SlotIndex = shmregion.BucketEmpty
    return true
}

// Clear resets every bucket to empty.
func Clear(data []byte, htBase uint64, htCapacity uint32) {
    for i := uint32(0); i < htCapacity; i++ {
        b := bucketAt(data, htBase, i)
        b.Hash = 0
        b.SlotIndex = shmregion.BucketEmpty
    }
}

// CheckedKind classifies the result of a bounds-checked lookup.
type CheckedKind int

const (
    CheckedMiss CheckedKind = iota
    CheckedHit
    CheckedExpired
)

// CheckedResult is the outcome of LookupChecked: on CheckedHit, Value holds
// a private copy of the slot's value bytes; on CheckedHit or CheckedExpired,
// SlotIndex names the slot an optimistic caller must re-verify before acting
// on it under the write lock.
type CheckedResult struct {
    Kind      CheckedKind
    SlotIndex int32
    Value     []byte
}

// LookupChecked mirrors Lookup but additionally bounds-checks slot_index and
// key_len+value_len against capacity/maxDataSize before dereferencing them,
// and applies the TTL check — required for the optimistic (seqlock) read
// path, where a concurrent writer can leave the index briefly inconsistent;
// a bounds violation here is treated as a miss and left for the seqlock
// retry to resolve (spec §4.3, §4.6).
func LookupChecked(
    data []byte, htBase, slabBase uint64,
    htCapacity, slotSize, capacity uint32, maxDataSize int,
    keyHash uint64, keyBytes []byte,
    ttlNanos uint64, nowNanos uint64,
) CheckedResult {
    mask := htCapacity - 1
    idx := uint32(keyHash) & mask

    for i := uint32(0); i < htCapacity; i++ {
        b := bucketAt(data, htBase, idx)
        if b.SlotIndex == shmregion.BucketEmpty {
            return CheckedResult{Kind: CheckedMiss}
        }
        if b.Hash == keyHash {
            slotIndex := b.SlotIndex
            if slotIndex < 0 || uint32(slotIndex) >= capacity {
                return CheckedResult{Kind: CheckedMiss}
            }
            slot := slotAt(data, slabBase, slotSize, slotIndex)
            if slot.Occupied != 0 && slot.KeyLen == uint32(len(keyBytes)) {
                keyLen := slot.KeyLen
                valueLen := slot.ValueLen
                if int(keyLen)+int(valueLen) > maxDataSize {
                    return CheckedResult{Kind: CheckedMiss}
                }
                stored := slotKeyBytes(data, slabBase, slotSize, slotIndex, keyLen)
                if bytesEqual(stored, keyBytes) {
                    if ttlNanos > 0 {
                        age := nowNanos - slot.CreatedAtNanos
                        if nowNanos < slot.CreatedAtNanos {
                            age = 0
                        }
                        if age > ttlNanos {
                            return CheckedResult{Kind: CheckedExpired, SlotIndex: slotIndex}
                        }
                    }
                    valueBytes := slotValueBytes(data, slabBase, slotSize, slotIndex, keyLen, valueLen)
                    value := make([]byte, len(valueBytes))
                    copy(value, valueBytes)
                    return CheckedResult{Kind: CheckedHit, SlotIndex: slotIndex, Value: value}
                }
            }
        }
        idx = (idx + 1) & mask
    }
    return CheckedResult{Kind: CheckedMiss}
}

func bytesEqual(a, b []byte) bool {
    if len(a) != len(b) {
        return false
    }
    for i := range a {
        if a[i] != b[i] {
            return false
        }
    }
    return true
}
