//go:build !windows

// Package shmcache glues the region layout (internal/shmregion), hash index
// (internal/shmindex), eviction order list (internal/shmorder), and seqlock
// (internal/shmseqlock) into the cross-process cache engine described by
// spec §4.6: optimistic-read-then-conditional-write-lock Get (FIFO hits skip
// the write lock; expired entries take it under every policy),
// free-list-first/evict-on-full Insert, and a Clear
// that rebuilds the free list from scratch.
//
// © 2025 warp-cache authors. MIT License.
package shmcache

import (
    "fmt"
    "unsafe"

    "go.uber.org/zap"
    "golang.org/x/sys/unix"

    "github.com/toloco/warp-cache/internal/shmindex"
    "github.com/toloco/warp-cache/internal/shmorder"
    "github.com/toloco/warp-cache/internal/shmregion"
    "github.com/toloco/warp-cache/internal/shmseqlock"
)

// Header byte offsets for the atomic stat counters — see the field order of
// internal/shmregion.Header for the authoritative layout.
const (
    offHits          = 16
    offMisses        = 24
    offOversizeSkips = 32
)

// MetricsSink receives per-operation counts. A nil sink disables metrics
// entirely (the zero value of Config leaves Metrics nil and every call
// below nil-checks it).
type MetricsSink interface {
    IncHit()
    IncMiss()
    IncEvict()
    IncOversizeSkip()
}

// Config bundles the construction parameters for a shared cache, mirroring
// spec §6.2's construction-parameter table plus the ambient logger/metrics
// wiring.
type Config struct {
    Name         string
    Strategy     uint32
    Capacity     uint32
    MaxKeySize   uint32
    MaxValueSize uint32
    TTLNanos     uint64
    Logger       *zap.Logger
    Metrics      MetricsSink
}

// Cache is one process's attachment to a named shared-memory cache. Several
// Cache values in the same or different processes may point at the same
// underlying region; all mutation goes through the seqlock, so Cache is
// safe for concurrent use by multiple goroutines within one process too.
type Cache struct {
    region *shmregion.Region
    lock   *shmseqlock.Lock

    nextUniqueID uint64

    log     *zap.Logger
    metrics MetricsSink
}

// Info mirrors spec §6.1's info operation, extended with OversizeSkips per
// §6.1's "info for the shared backend additionally exposes oversize_skips".
type Info struct {
    Hits          uint64
    Misses        uint64
    MaxSize       uint32
    CurrentSize   uint32
    OversizeSkips uint64
}

func regionParams(c Config) shmregion.Params {
    return shmregion.Params{
        Strategy:     c.Strategy,
        Capacity:     c.Capacity,
        MaxKeySize:   c.MaxKeySize,
        MaxValueSize: c.MaxValueSize,
        TTLNanos:     c.TTLNanos,
    }
}

func newCache(region *shmregion.Region, cfg Config) *Cache {
    log := cfg.Logger
    if log == nil {
        log = zap.NewNop()
    }
    return &Cache{
        region:  region,
        lock:    shmseqlock.New(region.Lock),
        log:     log,
        metrics: cfg.Metrics,
    }
}

// Create makes a brand-new named shared cache; existing backing files of the
// same name are truncated and reinitialized, not reused (spec §6.4: creation
// I/O errors surface as "cannot create shared cache").
func Create(cfg Config) (*Cache, error) {
    region, err := shmregion.Create(cfg.Name, regionParams(cfg), cfg.Logger)
    if err != nil {
        return nil, fmt.Errorf("shmcache: cannot create shared cache: %w", err)
    }
    return newCache(region, cfg), nil
}

// Open attaches to an already-existing named shared cache without
// validating its parameters.
func Open(name string, logger *zap.Logger) (*Cache, error) {
    region, err := shmregion.Open(name)
    if err != nil {
        return nil, fmt.Errorf("shmcache: cannot open shared cache: %w", err)
    }
    return newCache(region, Config{Logger: logger}), nil
}

// CreateOrOpen attaches to the named region, recreating it destructively if
// its on-disk parameters don't match cfg (spec §3 Lifecycle, §9).
func CreateOrOpen(cfg Config) (*Cache, error) {
    region, err := shmregion.CreateOrOpen(cfg.Name, regionParams(cfg), cfg.Logger)
    if err != nil {
        return nil, fmt.Errorf("shmcache: cannot create shared cache: %w", err)
    }
    return newCache(region, cfg), nil
}

func (c *Cache) header() *shmregion.Header { return c.region.Header() }

func (c *Cache) htBase() uint64 { return shmregion.HTOffset() }

func (c *Cache) slabBase() uint64 { return shmregion.SlabOffset(c.header().HTCapacity) }

// IsOversize reports whether keyBytes/valueBytes exceed the slab's
// per-slot reservations (spec §4.6): such calls are never cached, but the
// call itself still executes — callers increment RecordOversizeSkip.
func (c *Cache) IsOversize(keyBytes, valueBytes []byte) bool {
    h := c.header()
    return uint32(len(keyBytes)) > h.MaxKeySize || uint32(len(valueBytes)) > h.MaxValueSize
}

// RecordOversizeSkip bumps the oversize_skips counter, lock-free.
func (c *Cache) RecordOversizeSkip() {
    shmseqlock.AddUint64At(c.region.Data, offOversizeSkips, 1)
    if c.metrics != nil {
        c.metrics.IncOversizeSkip()
    }
}

// currentTimeNanos returns CLOCK_MONOTONIC nanoseconds — the same clock
// the original Linux implementation reads via libc::clock_gettime, and
// crucially one whose epoch (system boot) is shared across processes on
// one host, unlike Go's per-process monotonic reading embedded in
// time.Time, which can't be extracted as a bare comparable integer.
func currentTimeNanos() uint64 {
    var ts unix.Timespec
    if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
        return 0
    }
    return uint64(ts.Sec)*1_000_000_000 + uint64(ts.Nsec)
}

// Get looks up key_hash/key_bytes (spec §4.6's get). Readers take the
// lock-free optimistic path first; only a hit under a policy that needs an
// ordering update (anything but FIFO) or an expired entry takes the brief
// write lock.
func (c *Cache) Get(keyHash uint64, keyBytes []byte) (value []byte, hit bool) {
    result := c.getOptimistic(keyHash, keyBytes)

    switch result.Kind {
    case shmindex.CheckedHit:
        strategy := c.header().Strategy
        if strategy != shmregion.StrategyFIFO {
            c.lock.WriteLock()
            slotSize := c.header().SlotSize
            slot := slotAt(c.region.Data, c.slabBase(), slotSize, result.SlotIndex)
            if slot.Occupied != 0 && slot.KeyHash == keyHash {
                shmorder.OnAccess(c.header(), c.region.Data, c.slabBase(), slotSize, result.SlotIndex, strategy)
            }
            c.lock.WriteUnlock()
        }
        shmseqlock.AddUint64At(c.region.Data, offHits, 1)
        if c.metrics != nil {
            c.metrics.IncHit()
        }
        return result.Value, true

    case shmindex.CheckedExpired:
        c.lock.WriteLock()
        slotSize := c.header().SlotSize
        slot := slotAt(c.region.Data, c.slabBase(), slotSize, result.SlotIndex)
        if slot.Occupied != 0 && slot.KeyHash == keyHash {
            stored := keyBytesOf(c.region.Data, c.slabBase(), slotSize, result.SlotIndex, slot.KeyLen)
            if bytesEqual(stored, keyBytes) {
                c.removeSlotLocked(result.SlotIndex, keyBytes)
            }
        }
        c.lock.WriteUnlock()
        shmseqlock.AddUint64At(c.region.Data, offMisses, 1)
        if c.metrics != nil {
            c.metrics.IncMiss()
        }
        return nil, false

    default: // CheckedMiss
        shmseqlock.AddUint64At(c.region.Data, offMisses, 1)
        if c.metrics != nil {
            c.metrics.IncMiss()
        }
        return nil, false
    }
}

func (c *Cache) getOptimistic(keyHash uint64, keyBytes []byte) shmindex.CheckedResult {
    for {
        seq := c.lock.ReadBegin()

        h := c.header()
        htCapacity := h.HTCapacity
        slotSize := h.SlotSize
        capacity := h.Capacity
        ttlNanos := h.TTLNanos
        maxDataSize := int(h.MaxKeySize + h.MaxValueSize)

        result := shmindex.LookupChecked(
            c.region.Data, c.htBase(), c.slabBase(),
            htCapacity, slotSize, capacity, maxDataSize,
            keyHash, keyBytes, ttlNanos, currentTimeNanos(),
        )

        if c.lock.ReadValidate(seq) {
            return result
        }
        // A writer raced the read — retry.
    }
}

// Insert writes key_bytes -> value_bytes (spec §4.6's insert): overwrite in
// place if the key exists, else allocate a slot (free list first, else
// evict) and populate it.
func (c *Cache) Insert(keyHash uint64, keyBytes, valueBytes []byte) {
    c.lock.WriteLock()
    c.insertLocked(keyHash, keyBytes, valueBytes)
    c.lock.WriteUnlock()
}

func (c *Cache) insertLocked(keyHash uint64, keyBytes, valueBytes []byte) {
    h := c.header()
    htCap := h.HTCapacity
    slotSize := h.SlotSize
    strategy := h.Strategy
    capacity := h.Capacity

    if existing, ok := shmindex.Lookup(c.region.Data, c.htBase(), c.slabBase(), htCap, slotSize, keyHash, keyBytes); ok {
        slot := slotAt(c.region.Data, c.slabBase(), slotSize, existing)
        slot.ValueLen = uint32(len(valueBytes))
        slot.CreatedAtNanos = currentTimeNanos()
        copy(valueBytesOf(c.region.Data, c.slabBase(), slotSize, existing, slot.KeyLen, slot.ValueLen), valueBytes)
        shmorder.OnAccess(h, c.region.Data, c.slabBase(), slotSize, existing, strategy)
        return
    }

    var slotIdx int32
    if h.FreeHead != shmregion.SlotNone {
        slotIdx = h.FreeHead
        freeSlot := slotAt(c.region.Data, c.slabBase(), slotSize, slotIdx)
        h.FreeHead = freeSlot.Next
    } else if h.CurrentSize >= capacity {
        evictIdx := shmorder.EvictCandidate(h, strategy)
        if evictIdx == shmregion.SlotNone {
            return
        }
        evictSlot := slotAt(c.region.Data, c.slabBase(), slotSize, evictIdx)
        evictKey := keyBytesOf(c.region.Data, c.slabBase(), slotSize, evictIdx, evictSlot.KeyLen)
        evictKeyCopy := append([]byte(nil), evictKey...)

        shmindex.Remove(c.region.Data, c.htBase(), c.slabBase(), htCap, slotSize, evictSlot.KeyHash, evictKeyCopy)
        shmorder.ListRemove(h, c.region.Data, c.slabBase(), slotSize, evictIdx)
        h.CurrentSize--
        if c.metrics != nil {
            c.metrics.IncEvict()
        }
        slotIdx = evictIdx
    } else {
        return
    }

    slot := slotAt(c.region.Data, c.slabBase(), slotSize, slotIdx)
    slot.Occupied = 1
    slot.KeyHash = keyHash
    slot.KeyLen = uint32(len(keyBytes))
    slot.ValueLen = uint32(len(valueBytes))
    slot.CreatedAtNanos = currentTimeNanos()
    slot.Frequency = 0
    slot.Prev = shmregion.SlotNone
    slot.Next = shmregion.SlotNone
    slot.UniqueID = c.nextUniqueID
    c.nextUniqueID++

    copy(keyBytesOf(c.region.Data, c.slabBase(), slotSize, slotIdx, slot.KeyLen), keyBytes)
    copy(valueBytesOf(c.region.Data, c.slabBase(), slotSize, slotIdx, slot.KeyLen, slot.ValueLen), valueBytes)

    shmindex.Insert(c.region.Data, c.htBase(), htCap, keyHash, slotIdx)
    shmorder.OnInsert(h, c.region.Data, c.slabBase(), slotSize, slotIdx, strategy)
    h.CurrentSize++
}

func (c *Cache) removeSlotLocked(slotIdx int32, keyBytes []byte) {
    h := c.header()
    htCap := h.HTCapacity
    slotSize := h.SlotSize

    slot := slotAt(c.region.Data, c.slabBase(), slotSize, slotIdx)
    keyHash := slot.KeyHash

    shmindex.Remove(c.region.Data, c.htBase(), c.slabBase(), htCap, slotSize, keyHash, keyBytes)
    shmorder.ListRemove(h, c.region.Data, c.slabBase(), slotSize, slotIdx)

    slot = slotAt(c.region.Data, c.slabBase(), slotSize, slotIdx)
    slot.Occupied = 0
    slot.Next = h.FreeHead
    slot.Prev = shmregion.SlotNone
    h.FreeHead = slotIdx
    h.CurrentSize--
}

// Clear empties the cache: hash table, order list, free list, and counters
// all reset to their post-creation state (spec §4.6's clear).
func (c *Cache) Clear() {
    c.lock.WriteLock()
    c.clearLocked()
    c.lock.WriteUnlock()
}

func (c *Cache) clearLocked() {
    h := c.header()
    htCap := h.HTCapacity
    slotSize := h.SlotSize
    capacity := h.Capacity

    shmindex.Clear(c.region.Data, c.htBase(), htCap)

    for i := uint32(0); i < capacity; i++ {
        slot := slotAt(c.region.Data, c.slabBase(), slotSize, int32(i))
        slot.Occupied = 0
        slot.Prev = shmregion.SlotNone
        if i+1 < capacity {
            slot.Next = int32(i + 1)
        } else {
            slot.Next = shmregion.SlotNone
        }
    }

    h.CurrentSize = 0
    h.ListHead = shmregion.SlotNone
    h.ListTail = shmregion.SlotNone
    h.FreeHead = 0

    // Clear sets the counters rather than incrementing them, so it writes
    // them directly instead of going through AddUint64At.
    *(*uint64)(unsafe.Pointer(&c.region.Data[offHits])) = 0
    *(*uint64)(unsafe.Pointer(&c.region.Data[offMisses])) = 0
    *(*uint64)(unsafe.Pointer(&c.region.Data[offOversizeSkips])) = 0
}

// Info reports the counters and sizing spec §6.1 requires.
func (c *Cache) Info() Info {
    h := c.header()
    return Info{
        Hits:          shmseqlock.LoadUint64At(c.region.Data, offHits),
        Misses:        shmseqlock.LoadUint64At(c.region.Data, offMisses),
        MaxSize:       h.Capacity,
        CurrentSize:   h.CurrentSize,
        OversizeSkips: shmseqlock.LoadUint64At(c.region.Data, offOversizeSkips),
    }
}

// Close detaches from the region without removing its backing files (spec
// §9: "detach on drop unmaps but does not unlink").
func (c *Cache) Close() error {
    return c.region.Close()
}

// Unlink removes the region's backing files from disk (spec §9's documented
// gap — nothing auto-unlinks a region; callers that want that must call
// this explicitly).
func (c *Cache) Unlink() error {
    return c.region.Unlink()
}

func slotAt(data []byte, slabBase uint64, slotSize uint32, i int32) *shmregion.SlotHeader {
    off := slabBase + uint64(i)*uint64(slotSize)
    return (*shmregion.SlotHeader)(unsafe.Pointer(&data[off]))
}

func keyBytesOf(data []byte, slabBase uint64, slotSize uint32, i int32, keyLen uint32) []byte {
    off := slabBase + uint64(i)*uint64(slotSize) + shmregion.SlotHeaderSize
    return data[off : off+uint64(keyLen)]
}

func valueBytesOf(data []byte, slabBase uint64, slotSize uint32, i int32, keyLen, valueLen uint32) []byte {
    off := slabBase + uint64(i)*uint64(slotSize) + shmregion.SlotHeaderSize + uint64(keyLen)
    return data[off : off+uint64(valueLen)]
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
