package cache

// cache.go implements the callable wrapper (C8): Cached[K,V] wraps the
// in-process engine, SharedCached[K,V] wraps the cross-process shmcache
// engine and adds the tagged-codec (§4.1) key/value serialization the
// shared backend needs. Both derive their cache key from the caller-
// supplied K directly — Go's static generics already give the canonical,
// strongly-typed key spec.md's dynamic-language callable wrapper has to
// derive at runtime from *args/**kwargs.
//
// © 2025 arena-cache authors. MIT License.

import (
    "bytes"
    "context"
    "encoding/gob"
    "fmt"
    "hash/fnv"
    "hash/maphash"
    "reflect"
    "runtime"
    "time"

    "github.com/toloco/warp-cache/internal/codec"
    "github.com/toloco/warp-cache/internal/shmcache"
)

// Info mirrors spec §6.1's info operation.
type Info struct {
    Hits          uint64
    Misses        uint64
    MaxSize       uint32
    CurrentSize   uint32
    OversizeSkips uint64
}

// OpaqueCodec serializes values the tagged codec (internal/codec) cannot
// represent directly — anything beyond nil/bool/integers representable in
// int64/float64/string/[]byte/tuples of the above. The default
// implementation uses encoding/gob; callers needing a different wire
// format supply their own via WithCodec.
type OpaqueCodec interface {
    Encode(v any) ([]byte, error)
    Decode(data []byte, out any) error
}

type gobCodec struct{}

func (gobCodec) Encode(v any) ([]byte, error) {
    var buf bytes.Buffer
    if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
        return nil, err
    }
    return buf.Bytes(), nil
}

func (gobCodec) Decode(data []byte, out any) error {
    return gob.NewDecoder(bytes.NewReader(data)).Decode(out)
}

/*
   ---------------- Cached[K,V]: in-process backend ----------------
*/

// Cached wraps a loader function with an in-process cache (C7): a hit
// returns the cached value, a miss calls the loader exactly once per key
// even under concurrent callers (singleflight dedupe) and installs the
// result.
type Cached[K comparable, V any] struct {
    engine *engine[K, V]
    loader *loaderGroup[K, V]
    fn     LoaderFunc[K, V]
    seed   maphash.Seed
}

// New constructs an in-process cached callable.
func New[K comparable, V any](strategy Strategy, maxSize int, ttl time.Duration, fn LoaderFunc[K, V], opts ...Option[K, V]) (*Cached[K, V], error) {
    cfg := defaultConfig[K, V](strategy, maxSize, ttl)
    if err := applyOptions(cfg, opts); err != nil {
        return nil, err
    }

    metrics := newMetricsSink("inprocess", cfg.registry)
    ejectCb := cfg.ejectCb

    eng := newEngine[K, V](cfg.strategy.toPolicy(), cfg.maxSize, cfg.ttl, metrics, func(k K, v V) {
        if ejectCb != nil {
            ejectCb(k, v)
        }
    })

    return &Cached[K, V]{
        engine: eng,
        loader: newLoaderGroup[K, V](),
        fn:     fn,
        seed:   maphash.MakeSeed(),
    }, nil
}

func (c *Cached[K, V]) hash(key K) uint64 {
    var h maphash.Hash
    h.SetSeed(c.seed)
    switch k := any(key).(type) {
    case string:
        h.WriteString(k)
    case []byte:
        h.Write(k)
    default:
        fmt.Fprintf(&h, "%v", k)
    }
    return h.Sum64()
}

// Call returns the cached value for key, computing and installing it via fn
// on a miss. Concurrent callers racing the same missing key share one
// execution of fn (golang.org/x/sync/singleflight).
func (c *Cached[K, V]) Call(ctx context.Context, key K) (V, error) {
    if value, ok := c.engine.get(key); ok {
        return value, nil
    }

    keyHash := c.hash(key)
    value, err, _ := c.loader.load(ctx, keyHash, key, c.fn)
    if err != nil {
        var zero V
        return zero, err
    }

    c.engine.set(key, value)
    return value, nil
}

// Get performs a cache-only lookup.
func (c *Cached[K, V]) Get(key K) (V, bool) {
    return c.engine.get(key)
}

// Set stores value for key directly, bypassing the loader.
func (c *Cached[K, V]) Set(key K, value V) {
    c.engine.set(key, value)
}

// Clear empties the cache: strategy state, access log, and statistics.
func (c *Cached[K, V]) Clear() {
    c.engine.clear()
}

// Info reports hit/miss/size counters.
func (c *Cached[K, V]) Info() Info {
    hits, misses, _ := c.engine.stats()
    return Info{
        Hits:        hits,
        Misses:      misses,
        MaxSize:     uint32(c.engine.capacity),
        CurrentSize: uint32(c.engine.len()),
    }
}

/*
   ---------------- SharedCached[K,V]: cross-process backend ----------------
*/

// SharedCached wraps a loader function with a cross-process cache (C6):
// keys and values are serialized via the tagged codec (falling back to
// OpaqueCodec) and stored in a named mmap'd region other processes can
// attach to.
type SharedCached[K comparable, V any] struct {
    shared *shmcache.Cache
    loader *loaderGroup[K, V]
    fn     LoaderFunc[K, V]
    codec  OpaqueCodec
    seed   maphash.Seed
}

// NewShared constructs a shared-memory cached callable. If cfg's region
// name is unset, one is derived deterministically from fn's stable
// identity (package path + function name).
func NewShared[K comparable, V any](strategy Strategy, maxSize int, ttl time.Duration, fn LoaderFunc[K, V], opts ...Option[K, V]) (*SharedCached[K, V], error) {
    cfg := defaultConfig[K, V](strategy, maxSize, ttl)
    if err := applyOptions(cfg, opts); err != nil {
        return nil, err
    }

    name := cfg.regionName
    if name == "" {
        name = deriveRegionName(fn)
    }

    metrics := newMetricsSink("shared", cfg.registry)

    var ttlNanos uint64
    if cfg.ttl > 0 {
        ttlNanos = uint64(cfg.ttl.Nanoseconds())
    }

    sc, err := shmcache.CreateOrOpen(shmcache.Config{
        Name:         name,
        Strategy:     uint32(cfg.strategy),
        Capacity:     uint32(cfg.maxSize),
        MaxKeySize:   cfg.maxKeySize,
        MaxValueSize: cfg.maxValueSize,
        TTLNanos:     ttlNanos,
        Logger:       cfg.logger,
        Metrics:      sharedMetricsAdapter{sink: metrics},
    })
    if err != nil {
        return nil, err
    }

    return &SharedCached[K, V]{
        shared: sc,
        loader: newLoaderGroup[K, V](),
        fn:     fn,
        codec:  cfg.codec,
        seed:   maphash.MakeSeed(),
    }, nil
}

// deriveRegionName hashes fn's stable package-qualified name to a
// filesystem-safe suffix, per spec §4.8.
func deriveRegionName[K comparable, V any](fn LoaderFunc[K, V]) string {
    name := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
    h := fnv.New64a()
    h.Write([]byte(name))
    return fmt.Sprintf("warpcache-%016x", h.Sum64())
}

func (s *SharedCached[K, V]) encodeKey(key K) (uint64, []byte, error) {
    raw, ok := codec.Serialize(any(key))
    if !ok {
        enc, err := s.codec.Encode(key)
        if err != nil {
            return 0, nil, err
        }
        raw = codec.WrapOpaque(enc)
    }
    h := fnv.New64a()
    h.Write(raw)
    return h.Sum64(), raw, nil
}

func (s *SharedCached[K, V]) encodeValue(value V) ([]byte, error) {
    raw, ok := codec.Serialize(any(value))
    if ok {
        return raw, nil
    }
    enc, err := s.codec.Encode(value)
    if err != nil {
        return nil, err
    }
    return codec.WrapOpaque(enc), nil
}

func (s *SharedCached[K, V]) decodeValue(data []byte) (V, error) {
    var zero V
    decoded, opaque, err := codec.Deserialize(data)
    if err != nil {
        return zero, err
    }
    if opaque {
        var out V
        if err := s.codec.Decode(data[1:], &out); err != nil {
            return zero, err
        }
        return out, nil
    }
    v, ok := decoded.(V)
    if !ok {
        return zero, fmt.Errorf("cache: decoded value type %T does not match %T", decoded, zero)
    }
    return v, nil
}

// Call returns the cached value for key, computing and installing it via fn
// on a miss or an oversize key/value (which is never cached, per spec
// §4.6's is_oversize rule).
func (s *SharedCached[K, V]) Call(ctx context.Context, key K) (V, error) {
    keyHash, keyBytes, err := s.encodeKey(key)
    if err != nil {
        var zero V
        return zero, err
    }

    if valueBytes, hit := s.shared.Get(keyHash, keyBytes); hit {
        return s.decodeValue(valueBytes)
    }

    value, err, _ := s.loader.load(ctx, keyHash, key, s.fn)
    if err != nil {
        var zero V
        return zero, err
    }

    valueBytes, err := s.encodeValue(value)
    if err != nil {
        return value, err
    }
    if s.shared.IsOversize(keyBytes, valueBytes) {
        s.shared.RecordOversizeSkip()
        return value, nil
    }
    s.shared.Insert(keyHash, keyBytes, valueBytes)
    return value, nil
}

// Get performs a cache-only lookup.
func (s *SharedCached[K, V]) Get(key K) (V, bool) {
    var zero V
    keyHash, keyBytes, err := s.encodeKey(key)
    if err != nil {
        return zero, false
    }
    valueBytes, hit := s.shared.Get(keyHash, keyBytes)
    if !hit {
        return zero, false
    }
    value, err := s.decodeValue(valueBytes)
    if err != nil {
        return zero, false
    }
    return value, true
}

// Set stores value for key directly, bypassing the loader.
func (s *SharedCached[K, V]) Set(key K, value V) error {
    keyHash, keyBytes, err := s.encodeKey(key)
    if err != nil {
        return err
    }
    valueBytes, err := s.encodeValue(value)
    if err != nil {
        return err
    }
    if s.shared.IsOversize(keyBytes, valueBytes) {
        s.shared.RecordOversizeSkip()
        return nil
    }
    s.shared.Insert(keyHash, keyBytes, valueBytes)
    return nil
}

// Clear empties the shared region.
func (s *SharedCached[K, V]) Clear() {
    s.shared.Clear()
}

// Info reports hit/miss/size/oversize_skips counters.
func (s *SharedCached[K, V]) Info() Info {
    info := s.shared.Info()
    return Info{
        Hits:          info.Hits,
        Misses:        info.Misses,
        MaxSize:       info.MaxSize,
        CurrentSize:   info.CurrentSize,
        OversizeSkips: info.OversizeSkips,
    }
}

// Close detaches from the shared region without removing its backing
// files.
func (s *SharedCached[K, V]) Close() error {
    return s.shared.Close()
}

// Unlink removes the shared region's backing files from disk.
func (s *SharedCached[K, V]) Unlink() error {
    return s.shared.Unlink()
}
