package cache

// loaderfunc.go defines LoaderFunc – the user‑supplied callback that produces a
// value when Cached.Call or SharedCached.Call misses.  It lives in its own
// file and is shared by cache.go and loader.go.
//
// • The function must be **pure** and side‑effect free with regard to the
//   cache itself: it MUST NOT call Set or re‑enter the same cache it
//   serves, otherwise deadlock or inconsistent state may occur.
// • It should honour the provided context for cancellation and deadlines.
// • If the loader returns an error, the value is not stored in the cache and
//   the error is propagated to the caller of Call.
//
// K – key type, comparable (same as Cache).
// V – value type.
//
// © 2025 arena-cache authors. MIT License.

import "context"

// LoaderFunc is invoked by Call when a key is absent. Implementations
// should return the value to cache or an error.  The same LoaderFunc instance
// may be invoked concurrently by different keys; it must therefore be
// thread‑safe.

type LoaderFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)
