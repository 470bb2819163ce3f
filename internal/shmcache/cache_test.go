//go:build !windows

package shmcache

import (
    "fmt"
    "testing"
    "time"

    "github.com/toloco/warp-cache/internal/shmregion"
)

func hashOf(key string) uint64 {
    var h uint64 = 1469598103934665603
    for i := 0; i < len(key); i++ {
        h ^= uint64(key[i])
        h *= 1099511628211
    }
    return h
}

func newTestCache(t *testing.T, strategy uint32, capacity uint32, ttlNanos uint64) *Cache {
    t.Helper()
    name := fmt.Sprintf("warpcache-test-%s-%d", t.Name(), time.Now().UnixNano())
    cfg := Config{
        Name:         name,
        Strategy:     strategy,
        Capacity:     capacity,
        MaxKeySize:   64,
        MaxValueSize: 64,
        TTLNanos:     ttlNanos,
    }
    c, err := Create(cfg)
    if err != nil {
        t.Fatalf("Create: %v", err)
    }
    t.Cleanup(func() {
        c.Unlink()
        c.Close()
    })
    return c
}

func TestInsertAndGetHit(t *testing.T) {
    c := newTestCache(t, shmregion.StrategyLRU, 4, 0)
    c.Insert(hashOf("a"), []byte("a"), []byte("value-a"))

    value, hit := c.Get(hashOf("a"), []byte("a"))
    if !hit {
        t.Fatalf("expected hit")
    }
    if string(value) != "value-a" {
        t.Fatalf("got %q, want value-a", value)
    }
}

func TestGetMiss(t *testing.T) {
    c := newTestCache(t, shmregion.StrategyLRU, 4, 0)
    _, hit := c.Get(hashOf("missing"), []byte("missing"))
    if hit {
        t.Fatalf("expected miss")
    }
    info := c.Info()
    if info.Misses != 1 {
        t.Fatalf("expected 1 miss, got %d", info.Misses)
    }
}

func TestUpdateInPlace(t *testing.T) {
    c := newTestCache(t, shmregion.StrategyLRU, 4, 0)
    c.Insert(hashOf("a"), []byte("a"), []byte("v1"))
    c.Insert(hashOf("a"), []byte("a"), []byte("v2-longer"))

    value, hit := c.Get(hashOf("a"), []byte("a"))
    if !hit || string(value) != "v2-longer" {
        t.Fatalf("got (%q, %v), want (v2-longer, true)", value, hit)
    }
    if info := c.Info(); info.CurrentSize != 1 {
        t.Fatalf("expected current_size 1 after update-in-place, got %d", info.CurrentSize)
    }
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
    c := newTestCache(t, shmregion.StrategyLRU, 2, 0)
    c.Insert(hashOf("a"), []byte("a"), []byte("1"))
    c.Insert(hashOf("b"), []byte("b"), []byte("2"))

    // touch "a" so "b" becomes the least-recently-used entry.
    c.Get(hashOf("a"), []byte("a"))

    c.Insert(hashOf("c"), []byte("c"), []byte("3"))

    if _, hit := c.Get(hashOf("b"), []byte("b")); hit {
        t.Fatalf("expected b evicted")
    }
    if _, hit := c.Get(hashOf("a"), []byte("a")); !hit {
        t.Fatalf("expected a still present")
    }
    if _, hit := c.Get(hashOf("c"), []byte("c")); !hit {
        t.Fatalf("expected c present")
    }
}

func TestFIFOEvictsInsertionOrderRegardlessOfAccess(t *testing.T) {
    c := newTestCache(t, shmregion.StrategyFIFO, 2, 0)
    c.Insert(hashOf("a"), []byte("a"), []byte("1"))
    c.Insert(hashOf("b"), []byte("b"), []byte("2"))

    // FIFO: access never affects eviction order.
    c.Get(hashOf("a"), []byte("a"))

    c.Insert(hashOf("c"), []byte("c"), []byte("3"))

    if _, hit := c.Get(hashOf("a"), []byte("a")); hit {
        t.Fatalf("expected a evicted (first inserted)")
    }
    if _, hit := c.Get(hashOf("b"), []byte("b")); !hit {
        t.Fatalf("expected b still present")
    }
}

func TestMRUEvictsMostRecentlyUsed(t *testing.T) {
    c := newTestCache(t, shmregion.StrategyMRU, 2, 0)
    c.Insert(hashOf("a"), []byte("a"), []byte("1"))
    c.Insert(hashOf("b"), []byte("b"), []byte("2"))

    // touch "b" so it becomes the most-recently-used entry.
    c.Get(hashOf("b"), []byte("b"))

    c.Insert(hashOf("c"), []byte("c"), []byte("3"))

    if _, hit := c.Get(hashOf("b"), []byte("b")); hit {
        t.Fatalf("expected b evicted (most recently used)")
    }
    if _, hit := c.Get(hashOf("a"), []byte("a")); !hit {
        t.Fatalf("expected a still present")
    }
}

func TestLFUEvictsLeastFrequentlyUsed(t *testing.T) {
    c := newTestCache(t, shmregion.StrategyLFU, 2, 0)
    c.Insert(hashOf("a"), []byte("a"), []byte("1"))
    c.Insert(hashOf("b"), []byte("b"), []byte("2"))

    c.Get(hashOf("a"), []byte("a"))
    c.Get(hashOf("a"), []byte("a"))

    c.Insert(hashOf("c"), []byte("c"), []byte("3"))

    if _, hit := c.Get(hashOf("b"), []byte("b")); hit {
        t.Fatalf("expected b evicted (fewer accesses)")
    }
    if _, hit := c.Get(hashOf("a"), []byte("a")); !hit {
        t.Fatalf("expected a still present")
    }
}

func TestTTLExpiry(t *testing.T) {
    c := newTestCache(t, shmregion.StrategyLRU, 4, 1) // 1ns TTL
    c.Insert(hashOf("a"), []byte("a"), []byte("1"))
    time.Sleep(time.Millisecond)

    if _, hit := c.Get(hashOf("a"), []byte("a")); hit {
        t.Fatalf("expected expired entry to miss")
    }
    if info := c.Info(); info.CurrentSize != 0 {
        t.Fatalf("expected expired entry removed, current_size=%d", info.CurrentSize)
    }
}

func TestClearResetsEverything(t *testing.T) {
    c := newTestCache(t, shmregion.StrategyLRU, 4, 0)
    c.Insert(hashOf("a"), []byte("a"), []byte("1"))
    c.Insert(hashOf("b"), []byte("b"), []byte("2"))
    c.Get(hashOf("a"), []byte("a"))
    c.Get(hashOf("missing"), []byte("missing"))

    c.Clear()

    info := c.Info()
    if info.CurrentSize != 0 || info.Hits != 0 || info.Misses != 0 {
        t.Fatalf("expected all counters reset, got %+v", info)
    }
    if _, hit := c.Get(hashOf("a"), []byte("a")); hit {
        t.Fatalf("expected a gone after clear")
    }

    // the region must still be usable after clear.
    c.Insert(hashOf("a"), []byte("a"), []byte("new"))
    if value, hit := c.Get(hashOf("a"), []byte("a")); !hit || string(value) != "new" {
        t.Fatalf("expected insert after clear to work, got (%q, %v)", value, hit)
    }
}

func TestIsOversize(t *testing.T) {
    c := newTestCache(t, shmregion.StrategyLRU, 4, 0)
    bigValue := make([]byte, 1000)
    if !c.IsOversize([]byte("a"), bigValue) {
        t.Fatalf("expected oversize value to be flagged")
    }
    if c.IsOversize([]byte("a"), []byte("small")) {
        t.Fatalf("expected small value to not be flagged")
    }
}

func TestCreateOrOpenReattachesSameData(t *testing.T) {
    name := fmt.Sprintf("warpcache-test-reattach-%d", time.Now().UnixNano())
    cfg := Config{Name: name, Strategy: shmregion.StrategyLRU, Capacity: 4, MaxKeySize: 64, MaxValueSize: 64}

    c1, err := CreateOrOpen(cfg)
    if err != nil {
        t.Fatalf("CreateOrOpen (create): %v", err)
    }
    c1.Insert(hashOf("a"), []byte("a"), []byte("1"))
    c1.Close()

    c2, err := CreateOrOpen(cfg)
    if err != nil {
        t.Fatalf("CreateOrOpen (reattach): %v", err)
    }
    defer func() {
        c2.Unlink()
        c2.Close()
    }()

    if value, hit := c2.Get(hashOf("a"), []byte("a")); !hit || string(value) != "1" {
        t.Fatalf("expected reattached region to retain data, got (%q, %v)", value, hit)
    }
}

func TestCreateOrOpenRecreatesOnParamMismatch(t *testing.T) {
    name := fmt.Sprintf("warpcache-test-mismatch-%d", time.Now().UnixNano())
    c1, err := CreateOrOpen(Config{Name: name, Strategy: shmregion.StrategyLRU, Capacity: 4, MaxKeySize: 64, MaxValueSize: 64})
    if err != nil {
        t.Fatalf("CreateOrOpen (create): %v", err)
    }
    c1.Insert(hashOf("a"), []byte("a"), []byte("1"))
    c1.Close()

    c2, err := CreateOrOpen(Config{Name: name, Strategy: shmregion.StrategyLRU, Capacity: 8, MaxKeySize: 64, MaxValueSize: 64})
    if err != nil {
        t.Fatalf("CreateOrOpen (mismatch): %v", err)
    }
    defer func() {
        c2.Unlink()
        c2.Close()
    }()

    if _, hit := c2.Get(hashOf("a"), []byte("a")); hit {
        t.Fatalf("expected destructive recreation to drop prior data")
    }
}
