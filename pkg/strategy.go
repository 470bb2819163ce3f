package cache

// strategy.go implements the in-process eviction-order list: an intrusive
// doubly linked list of *node[K,V] plus a per-policy dispatch table for
// LRU, MRU, FIFO, and LFU. It mirrors internal/shmorder's slot-index list
// one-for-one, but threaded through real pointers instead of 32-bit slot
// indices, since the in-process backend never leaves process memory.
//
// © 2025 arena-cache authors. MIT License.

// policy identifies the eviction strategy in force for one engine.
type policy uint8

const (
    policyLRU policy = iota
    policyMRU
    policyFIFO
    policyLFU
)

// node is one entry in both the key->node index (a plain Go map, unlike the
// shared backend's open-addressed table) and the order list.
type node[K comparable, V any] struct {
    key       K
    value     V
    createdAt int64 // UnixNano; TTL is measured against this
    frequency uint64
    uniqueID  uint64
    prev      *node[K, V]
    next      *node[K, V]
}

// orderList is the intrusive doubly linked list threading every live node,
// in the order the active policy cares about.
type orderList[K comparable, V any] struct {
    head *node[K, V]
    tail *node[K, V]
}

func (l *orderList[K, V]) remove(n *node[K, V]) {
    if n.prev != nil {
        n.prev.next = n.next
    } else {
        l.head = n.next
    }
    if n.next != nil {
        n.next.prev = n.prev
    } else {
        l.tail = n.prev
    }
    n.prev = nil
    n.next = nil
}

func (l *orderList[K, V]) pushTail(n *node[K, V]) {
    n.prev = l.tail
    n.next = nil
    if l.tail != nil {
        l.tail.next = n
    } else {
        l.head = n
    }
    l.tail = n
}

func (l *orderList[K, V]) moveToTail(n *node[K, V]) {
    l.remove(n)
    l.pushTail(n)
}

// insertSortedLFU inserts n into its sorted position by ascending
// (frequency, unique_id), scanning from the tail backward — mirrors
// internal/shmorder.InsertSortedLFU's tie-break exactly.
func (l *orderList[K, V]) insertSortedLFU(n *node[K, V]) {
    cursor := l.tail
    for cursor != nil {
        if cursor.frequency < n.frequency || (cursor.frequency == n.frequency && cursor.uniqueID <= n.uniqueID) {
            n.prev = cursor
            n.next = cursor.next
            if n.next != nil {
                n.next.prev = n
            } else {
                l.tail = n
            }
            cursor.next = n
            return
        }
        cursor = cursor.prev
    }

    n.prev = nil
    n.next = l.head
    if l.head != nil {
        l.head.prev = n
    } else {
        l.tail = n
    }
    l.head = n
}

// evictCandidate returns the node the active policy would remove next, or
// nil if the list is empty. LRU/FIFO/LFU evict from the head; MRU evicts
// from the tail.
func evictCandidate[K comparable, V any](l *orderList[K, V], p policy) *node[K, V] {
    if p == policyMRU {
        return l.tail
    }
    return l.head
}

// onAccess applies the policy's touch behavior on a hit: LRU/MRU move to
// tail, FIFO is a no-op (insertion order is permanent), LFU bumps frequency
// and repositions.
func onAccess[K comparable, V any](l *orderList[K, V], n *node[K, V], p policy) {
    switch p {
    case policyLRU, policyMRU:
        l.moveToTail(n)
    case policyFIFO:
        // no-op
    case policyLFU:
        n.frequency++
        l.remove(n)
        l.insertSortedLFU(n)
    }
}

// onInsert adds a freshly-created node to the list: LRU/MRU/FIFO append to
// the tail; LFU inserts sorted (frequency starts at 0, landing near head).
func onInsert[K comparable, V any](l *orderList[K, V], n *node[K, V], p policy) {
    if p == policyLFU {
        l.insertSortedLFU(n)
    } else {
        l.pushTail(n)
    }
}
