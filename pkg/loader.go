package cache

// loader.go implements the *singleflight*‑based de‑duplication layer used by
// Cached[K,V].Call and SharedCached[K,V].Call on a miss. The goal is to
// prevent a thundering‑herd when many goroutines request the same missing
// key simultaneously: only one loader function executes, the rest wait for
// its result.
//
// We wrap x/sync/singleflight in a generic helper so that:
//   • keys remain strongly typed (K comparable) yet singleflight still needs a
//     string key → we use the 64‑bit hash already computed by the caller.
//   • the public LoaderFunc[K,V] signature stays convenient.
//
// © 2025 arena-cache authors. MIT License.

import (
    "context"
    "strconv"

    "golang.org/x/sync/singleflight"
)

// LoaderFunc is declared in loaderfunc.go (public).  Re‑using it here.

type loaderGroup[K comparable, V any] struct {
    g singleflight.Group
}

func newLoaderGroup[K comparable, V any]() *loaderGroup[K, V] {
    return &loaderGroup[K, V]{}
}

// load executes fn exactly once for the given key hash across all goroutines.
// Every waiter receives the same Value / error.  The returned boolean `shared`
// follows the semantics of x/sync/singleflight (true when another goroutine
// already ran the function).
func (lg *loaderGroup[K, V]) load(
    ctx context.Context,
    keyHash uint64,
    key K,
    fn LoaderFunc[K, V],
) (val V, err error, shared bool) {
    k := strconv.FormatUint(keyHash, 16)
    res, err, shared := lg.g.Do(k, func() (any, error) {
        return fn(ctx, key)
    })
    if err != nil {
        return val, err, shared
    }
    if ctx.Err() != nil {
        return val, ctx.Err(), shared
    }
    return res.(V), nil, shared
}
