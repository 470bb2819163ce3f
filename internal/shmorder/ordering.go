// Package shmorder implements the intrusive doubly-linked eviction-order
// list threaded through each slot's Prev/Next fields, and the per-policy
// dispatch table (LRU, MRU, FIFO, LFU) that drives it on insert and access.
//
// The list is intrusive by slot index, not by pointer: indices are 32-bit
// and position-independent across processes (spec §9), so the same
// operations work whether the caller holds an mmap'd region or — in tests —
// a plain byte slice shaped like one.
//
// © 2025 warp-cache authors. MIT License.
package shmorder

import (
    "unsafe"

    "github.com/toloco/warp-cache/internal/shmregion"
)

func slotAt(data []byte, slabBase uint64, slotSize uint32, i int32) *shmregion.SlotHeader {
    off := slabBase + uint64(i)*uint64(slotSize)
    return (*shmregion.SlotHeader)(unsafe.Pointer(&data[off]))
}

// ListRemove unlinks slot index from the order list in O(1), clearing its
// own Prev/Next pointers.
func ListRemove(h *shmregion.Header, data []byte, slabBase uint64, slotSize uint32, index int32) {
    s := slotAt(data, slabBase, slotSize, index)
    prev, next := s.Prev, s.Next

    if prev != shmregion.SlotNone {
        slotAt(data, slabBase, slotSize, prev).Next = next
    } else {
        h.ListHead = next
    }
    if next != shmregion.SlotNone {
        slotAt(data, slabBase, slotSize, next).Prev = prev
    } else {
        h.ListTail = prev
    }

    s.Prev = shmregion.SlotNone
    s.Next = shmregion.SlotNone
}

// ListPushTail appends slot index as the new tail (most-recent position).
func ListPushTail(h *shmregion.Header, data []byte, slabBase uint64, slotSize uint32, index int32) {
    s := slotAt(data, slabBase, slotSize, index)
    s.Prev = h.ListTail
    s.Next = shmregion.SlotNone

    if h.ListTail != shmregion.SlotNone {
        slotAt(data, slabBase, slotSize, h.ListTail).Next = index
    } else {
        h.ListHead = index
    }
    h.ListTail = index
}

// ListMoveToTail is the LRU/MRU "touch": remove then push-tail.
func ListMoveToTail(h *shmregion.Header, data []byte, slabBase uint64, slotSize uint32, index int32) {
    ListRemove(h, data, slabBase, slotSize, index)
    ListPushTail(h, data, slabBase, slotSize, index)
}

// InsertSortedLFU inserts slot index into its sorted position by ascending
// (frequency, unique_id), scanning from the tail (highest frequency)
// backward — the common case for a freshly-bumped or freshly-inserted entry
// is to land near the tail.
func InsertSortedLFU(h *shmregion.Header, data []byte, slabBase uint64, slotSize uint32, index int32) {
    newSlot := slotAt(data, slabBase, slotSize, index)
    newFreq, newUID := newSlot.Frequency, newSlot.UniqueID

    cursor := h.ListTail
    for cursor != shmregion.SlotNone {
        cs := slotAt(data, slabBase, slotSize, cursor)
        if cs.Frequency < newFreq || (cs.Frequency == newFreq && cs.UniqueID <= newUID) {
            s := slotAt(data, slabBase, slotSize, index)
            s.Prev = cursor
            s.Next = slotAt(data, slabBase, slotSize, cursor).Next

            if s.Next != shmregion.SlotNone {
                slotAt(data, slabBase, slotSize, s.Next).Prev = index
            } else {
                h.ListTail = index
            }
            slotAt(data, slabBase, slotSize, cursor).Next = index
            return
        }
        cursor = cs.Prev
    }

    // No cursor qualified — insert at head.
    s := slotAt(data, slabBase, slotSize, index)
    s.Prev = shmregion.SlotNone
    s.Next = h.ListHead

    if h.ListHead != shmregion.SlotNone {
        slotAt(data, slabBase, slotSize, h.ListHead).Prev = index
    } else {
        h.ListTail = index
    }
    h.ListHead = index
}

// EvictCandidate returns the slot to evict for the given strategy, or
// SlotNone if the list is empty. LRU/FIFO/LFU evict from the head; MRU
// evicts from the tail (spec §4.4).
func EvictCandidate(h *shmregion.Header, strategy uint32) int32 {
    switch strategy {
    case shmregion.StrategyMRU:
        return h.ListTail
    default:
        return h.ListHead
    }
}

// OnAccess applies the strategy's touch behavior: LRU/MRU move to tail,
// FIFO is a no-op, LFU increments frequency and repositions.
func OnAccess(h *shmregion.Header, data []byte, slabBase uint64, slotSize uint32, index int32, strategy uint32) {
    switch strategy {
    case shmregion.StrategyLRU, shmregion.StrategyMRU:
        ListMoveToTail(h, data, slabBase, slotSize, index)
    case shmregion.StrategyFIFO:
        // insertion order preserved — no reordering on access.
    case shmregion.StrategyLFU:
        s := slotAt(data, slabBase, slotSize, index)
        s.Frequency++
        ListRemove(h, data, slabBase, slotSize, index)
        InsertSortedLFU(h, data, slabBase, slotSize, index)
    }
}

// OnInsert adds a freshly-allocated slot to the order list: LRU/MRU/FIFO
// append to the tail; LFU inserts sorted (frequency starts at 0, so new
// entries land near the head).
func OnInsert(h *shmregion.Header, data []byte, slabBase uint64, slotSize uint32, index int32, strategy uint32) {
    switch strategy {
    case shmregion.StrategyLFU:
        InsertSortedLFU(h, data, slabBase, slotSize, index)
    default:
        ListPushTail(h, data, slabBase, slotSize, index)
    }
}
