package shmorder

import (
    "testing"

    "github.com/toloco/warp-cache/internal/shmregion"
)

const testSlotSize = shmregion.SlotHeaderSize

func newTestSlab(n int32) (*shmregion.Header, []byte) {
    h := &shmregion.Header{ListHead: shmregion.SlotNone, ListTail: shmregion.SlotNone}
    data := make([]byte, int(n)*testSlotSize)
    for i := int32(0); i < n; i++ {
        s := slotAt(data, 0, testSlotSize, i)
        s.Prev = shmregion.SlotNone
        s.Next = shmregion.SlotNone
        s.UniqueID = uint64(i)
    }
    return h, data
}

func forwardOrder(h *shmregion.Header, data []byte) []int32 {
    var out []int32
    for i := h.ListHead; i != shmregion.SlotNone; {
        out = append(out, i)
        i = slotAt(data, 0, testSlotSize, i).Next
    }
    return out
}

func equalIndices(a, b []int32) bool {
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

func TestListPushTailAppendsInOrder(t *testing.T) {
    h, data := newTestSlab(3)
    ListPushTail(h, data, 0, testSlotSize, 0)
    ListPushTail(h, data, 0, testSlotSize, 1)

    if got := forwardOrder(h, data); !equalIndices(got, []int32{0, 1}) {
        t.Fatalf("order = %v; want [0 1]", got)
    }
    if h.ListHead != 0 || h.ListTail != 1 {
        t.Fatalf("head/tail = %d/%d; want 0/1", h.ListHead, h.ListTail)
    }
}

func TestListMoveToTail(t *testing.T) {
    h, data := newTestSlab(3)
    ListPushTail(h, data, 0, testSlotSize, 0)
    ListPushTail(h, data, 0, testSlotSize, 1)
    ListPushTail(h, data, 0, testSlotSize, 2)

    ListMoveToTail(h, data, 0, testSlotSize, 0)

    if got := forwardOrder(h, data); !equalIndices(got, []int32{1, 2, 0}) {
        t.Fatalf("order = %v; want [1 2 0]", got)
    }
}

func TestListRemoveMiddle(t *testing.T) {
    h, data := newTestSlab(3)
    ListPushTail(h, data, 0, testSlotSize, 0)
    ListPushTail(h, data, 0, testSlotSize, 1)
    ListPushTail(h, data, 0, testSlotSize, 2)

    ListRemove(h, data, 0, testSlotSize, 1)

    if got := forwardOrder(h, data); !equalIndices(got, []int32{0, 2}) {
        t.Fatalf("order = %v; want [0 2]", got)
    }
    if h.ListTail != 2 {
        t.Fatalf("tail = %d; want 2", h.ListTail)
    }
}

// TestInsertSortedLFUTieBreak mirrors spec §8 invariant 5: the order list is
// monotone non-decreasing in (frequency, unique_id).
func TestInsertSortedLFUTieBreak(t *testing.T) {
    h, data := newTestSlab(3)
    slotAt(data, 0, testSlotSize, 0).Frequency = 0
    slotAt(data, 0, testSlotSize, 1).Frequency = 0
    slotAt(data, 0, testSlotSize, 2).Frequency = 1

    InsertSortedLFU(h, data, 0, testSlotSize, 0)
    InsertSortedLFU(h, data, 0, testSlotSize, 1)
    InsertSortedLFU(h, data, 0, testSlotSize, 2)

    if got := forwardOrder(h, data); !equalIndices(got, []int32{0, 1, 2}) {
        t.Fatalf("order = %v; want [0 1 2] (ascending frequency, then unique_id)", got)
    }
}

func TestEvictCandidateLRUAndFIFOEvictFromHead(t *testing.T) {
    h, data := newTestSlab(2)
    ListPushTail(h, data, 0, testSlotSize, 0)
    ListPushTail(h, data, 0, testSlotSize, 1)

    if got := EvictCandidate(h, shmregion.StrategyLRU); got != 0 {
        t.Fatalf("LRU candidate = %d; want 0", got)
    }
    if got := EvictCandidate(h, shmregion.StrategyFIFO); got != 0 {
        t.Fatalf("FIFO candidate = %d; want 0", got)
    }
}

func TestEvictCandidateMRUEvictsFromTail(t *testing.T) {
    h, data := newTestSlab(2)
    ListPushTail(h, data, 0, testSlotSize, 0)
    ListPushTail(h, data, 0, testSlotSize, 1)

    if got := EvictCandidate(h, shmregion.StrategyMRU); got != 1 {
        t.Fatalf("MRU candidate = %d; want 1", got)
    }
}

func TestEvictCandidateEmptyListReturnsNone(t *testing.T) {
    h, _ := newTestSlab(0)
    if got := EvictCandidate(h, shmregion.StrategyLRU); got != shmregion.SlotNone {
        t.Fatalf("candidate = %d; want SlotNone", got)
    }
}

func TestOnAccessFIFOIsNoOp(t *testing.T) {
    h, data := newTestSlab(2)
    ListPushTail(h, data, 0, testSlotSize, 0)
    ListPushTail(h, data, 0, testSlotSize, 1)

    OnAccess(h, data, 0, testSlotSize, 0, shmregion.StrategyFIFO)

    if got := forwardOrder(h, data); !equalIndices(got, []int32{0, 1}) {
        t.Fatalf("order after FIFO on_access = %v; want unchanged [0 1]", got)
    }
}

func TestOnAccessLFUBumpsFrequencyAndRepositions(t *testing.T) {
    h, data := newTestSlab(2)
    InsertSortedLFU(h, data, 0, testSlotSize, 0)
    InsertSortedLFU(h, data, 0, testSlotSize, 1)

    OnAccess(h, data, 0, testSlotSize, 0, shmregion.StrategyLFU)

    if slotAt(data, 0, testSlotSize, 0).Frequency != 1 {
        t.Fatalf("slot 0 frequency = %d; want 1", slotAt(data, 0, testSlotSize, 0).Frequency)
    }
    if got := forwardOrder(h, data); !equalIndices(got, []int32{1, 0}) {
        t.Fatalf("order after bump = %v; want [1 0]", got)
    }
}

func TestOnInsertLFUInsertsSorted(t *testing.T) {
    h, data := newTestSlab(2)
    slotAt(data, 0, testSlotSize, 0).Frequency = 5
    OnInsert(h, data, 0, testSlotSize, 0, shmregion.StrategyLFU)
    OnInsert(h, data, 0, testSlotSize, 1, shmregion.StrategyLFU) // frequency 0, lands before slot 0

    if got := forwardOrder(h, data); !equalIndices(got, []int32{1, 0}) {
        t.Fatalf("order = %v; want [1 0]", got)
    }
}

func TestOnInsertLRUAppendsTail(t *testing.T) {
    h, data := newTestSlab(2)
    OnInsert(h, data, 0, testSlotSize, 0, shmregion.StrategyLRU)
    OnInsert(h, data, 0, testSlotSize, 1, shmregion.StrategyLRU)

    if got := forwardOrder(h, data); !equalIndices(got, []int32{0, 1}) {
        t.Fatalf("order = %v; want [0 1]", got)
    }
}
