package cache

import (
    "context"
    "errors"
    "sync"
    "sync/atomic"
    "testing"
    "time"
)

func TestCachedCallLoadsOnMiss(t *testing.T) {
    var calls atomic.Int32
    loader := func(ctx context.Context, key string) (string, error) {
        calls.Add(1)
        return "loaded:" + key, nil
    }
    c, err := New[string, string](LRU, 10, time.Minute, loader)
    if err != nil {
        t.Fatalf("New: %v", err)
    }

    v, err := c.Call(context.Background(), "a")
    if err != nil || v != "loaded:a" {
        t.Fatalf("Call = %v, %v; want loaded:a, nil", v, err)
    }
    if calls.Load() != 1 {
        t.Fatalf("calls = %d; want 1", calls.Load())
    }

    // Second call is a cache hit; loader must not run again.
    v, err = c.Call(context.Background(), "a")
    if err != nil || v != "loaded:a" {
        t.Fatalf("Call (hit) = %v, %v; want loaded:a, nil", v, err)
    }
    if calls.Load() != 1 {
        t.Fatalf("calls after hit = %d; want 1", calls.Load())
    }
}

func TestCachedCallPropagatesLoaderError(t *testing.T) {
    wantErr := errors.New("boom")
    loader := func(ctx context.Context, key string) (string, error) {
        return "", wantErr
    }
    c, err := New[string, string](LRU, 10, time.Minute, loader)
    if err != nil {
        t.Fatalf("New: %v", err)
    }

    _, err = c.Call(context.Background(), "a")
    if !errors.Is(err, wantErr) {
        t.Fatalf("err = %v; want %v", err, wantErr)
    }
    if _, ok := c.Get("a"); ok {
        t.Fatalf("expected failed load to not populate the cache")
    }
}

func TestCachedCallDedupesConcurrentMisses(t *testing.T) {
    var calls atomic.Int32
    release := make(chan struct{})
    loader := func(ctx context.Context, key string) (string, error) {
        calls.Add(1)
        <-release
        return "v", nil
    }
    c, err := New[string, string](LRU, 10, time.Minute, loader)
    if err != nil {
        t.Fatalf("New: %v", err)
    }

    const n = 8
    var wg sync.WaitGroup
    wg.Add(n)
    for i := 0; i < n; i++ {
        go func() {
            defer wg.Done()
            v, err := c.Call(context.Background(), "a")
            if err != nil || v != "v" {
                t.Errorf("Call = %v, %v; want v, nil", v, err)
            }
        }()
    }

    time.Sleep(10 * time.Millisecond)
    close(release)
    wg.Wait()

    if calls.Load() != 1 {
        t.Fatalf("calls = %d; want 1 (singleflight dedupe)", calls.Load())
    }
}

func TestCachedSetBypassesLoader(t *testing.T) {
    loader := func(ctx context.Context, key string) (int, error) {
        t.Fatalf("loader should not run when Set pre-populates the key")
        return 0, nil
    }
    c, err := New[string, int](LRU, 10, time.Minute, loader)
    if err != nil {
        t.Fatalf("New: %v", err)
    }

    c.Set("a", 42)
    v, ok := c.Get("a")
    if !ok || v != 42 {
        t.Fatalf("Get(a) = %v, %v; want 42, true", v, ok)
    }
}

func TestCachedClearEmptiesCacheAndStats(t *testing.T) {
    loader := func(ctx context.Context, key string) (int, error) { return 0, nil }
    c, err := New[string, int](LRU, 10, time.Minute, loader)
    if err != nil {
        t.Fatalf("New: %v", err)
    }
    c.Set("a", 1)
    c.Get("a")
    c.Clear()

    info := c.Info()
    if info.Hits != 0 || info.Misses != 0 || info.CurrentSize != 0 {
        t.Fatalf("Info after Clear = %+v; want all zero", info)
    }
    if _, ok := c.Get("a"); ok {
        t.Fatalf("expected empty cache after Clear")
    }
}

func TestCachedInfoReportsSizeAndCounters(t *testing.T) {
    loader := func(ctx context.Context, key string) (int, error) { return 0, nil }
    c, err := New[string, int](LRU, 10, time.Minute, loader)
    if err != nil {
        t.Fatalf("New: %v", err)
    }
    c.Set("a", 1)
    c.Set("b", 2)
    c.Get("a")
    c.Get("missing")

    info := c.Info()
    if info.MaxSize != 10 {
        t.Fatalf("MaxSize = %d; want 10", info.MaxSize)
    }
    if info.CurrentSize != 2 {
        t.Fatalf("CurrentSize = %d; want 2", info.CurrentSize)
    }
    if info.Hits != 1 || info.Misses != 1 {
        t.Fatalf("Hits/Misses = %d/%d; want 1/1", info.Hits, info.Misses)
    }
}

func TestNewRejectsInvalidConstructionParams(t *testing.T) {
    loader := func(ctx context.Context, key string) (int, error) { return 0, nil }
    if _, err := New[string, int](LRU, 0, time.Minute, loader); err == nil {
        t.Fatalf("expected error for zero capacity")
    }
    if _, err := New[string, int](LRU, 10, -time.Second, loader); err == nil {
        t.Fatalf("expected error for negative ttl")
    }
}
