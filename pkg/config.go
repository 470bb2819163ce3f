package cache

// config.go defines the internal configuration object and the set of
// functional options passed to New[K,V] / NewShared[K,V]. A generic Option
// is used so that callbacks retain full type-safety with respect to the
// concrete key/value types chosen by the caller.
//
// Design notes
// ------------
// - All fields are initialized with sensible defaults in defaultConfig().
// - Options never allocate unless strictly necessary — they just capture
//   pointers to external objects (registry, logger, codec).
// - The struct is hidden from the public API: callers only influence
//   behavior via Option[K,V]. This guarantees forward compatibility.
//
// © 2025 arena-cache authors. MIT License.

import (
    "errors"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "go.uber.org/zap"
)

// Strategy selects the eviction policy, matching spec §6.2's numeric
// encoding (0 LRU / 1 MRU / 2 FIFO / 3 LFU).
type Strategy uint8

const (
    LRU Strategy = iota
    MRU
    FIFO
    LFU
)

func (s Strategy) toPolicy() policy { return policy(s) }

// EjectCallback is invoked when an item is evicted due to capacity
// pressure. TTL expiry is not considered an eviction for this purpose — the
// callback runs in the calling goroutine and must not block.
type EjectCallback[K comparable, V any] func(key K, val V)

// Option is the functional option passed to New / NewShared.
type Option[K comparable, V any] func(*config[K, V])

// config bundles every knob that influences cache behavior.
type config[K comparable, V any] struct {
    strategy     Strategy
    maxSize      int
    ttl          time.Duration
    maxKeySize   uint32
    maxValueSize uint32
    regionName   string

    registry *prometheus.Registry
    logger   *zap.Logger
    ejectCb  EjectCallback[K, V]
    codec    OpaqueCodec
}

func defaultConfig[K comparable, V any](strategy Strategy, maxSize int, ttl time.Duration) *config[K, V] {
    return &config[K, V]{
        strategy:     strategy,
        maxSize:      maxSize,
        ttl:          ttl,
        maxKeySize:   512,
        maxValueSize: 4096,
        logger:       zap.NewNop(),
        codec:        gobCodec{},
    }
}

/*
   ---------------- Functional options exposed to users ----------------
*/

// WithMetrics enables Prometheus metrics collection for the cache instance.
// Passing nil disables metrics (default).
func WithMetrics[K comparable, V any](reg *prometheus.Registry) Option[K, V] {
    return func(c *config[K, V]) {
        c.registry = reg
    }
}

// WithLogger plugs an external zap.Logger. The cache never logs on the hot
// path; only construction and region-recreation events are emitted.
func WithLogger[K comparable, V any](l *zap.Logger) Option[K, V] {
    return func(c *config[K, V]) {
        if l != nil {
            c.logger = l
        }
    }
}

// WithEjectCallback registers a function invoked whenever an item is
// evicted due to capacity pressure. The callback runs in the calling
// goroutine and must not block.
func WithEjectCallback[K comparable, V any](cb EjectCallback[K, V]) Option[K, V] {
    return func(c *config[K, V]) {
        c.ejectCb = cb
    }
}

// WithMaxKeySize overrides the shared backend's per-slot key reservation
// (bytes). Ignored by the in-process backend.
func WithMaxKeySize[K comparable, V any](n uint32) Option[K, V] {
    return func(c *config[K, V]) {
        c.maxKeySize = n
    }
}

// WithMaxValueSize overrides the shared backend's per-slot value
// reservation (bytes). Ignored by the in-process backend.
func WithMaxValueSize[K comparable, V any](n uint32) Option[K, V] {
    return func(c *config[K, V]) {
        c.maxValueSize = n
    }
}

// WithRegionName overrides the shared backend's derived region name.
// Ignored by the in-process backend.
func WithRegionName[K comparable, V any](name string) Option[K, V] {
    return func(c *config[K, V]) {
        c.regionName = name
    }
}

// WithCodec overrides the fallback opaque-value serializer used when a
// key or value cannot be represented by the tagged codec (§4.1). The
// default is a gob-based codec.
func WithCodec[K comparable, V any](codec OpaqueCodec) Option[K, V] {
    return func(c *config[K, V]) {
        if codec != nil {
            c.codec = codec
        }
    }
}

/*
   ---------------- Helper: apply options & validate ----------------
*/

func applyOptions[K comparable, V any](cfg *config[K, V], opts []Option[K, V]) error {
    for _, opt := range opts {
        opt(cfg)
    }

    if cfg.maxSize <= 0 {
        return errInvalidCap
    }
    if cfg.ttl < 0 {
        return errInvalidTTL
    }
    if cfg.strategy > LFU {
        return errInvalidStrategy
    }
    return nil
}

/*
   ---------------- Error values ----------------
*/

var (
    errInvalidCap      = errors.New("max_size must be > 0")
    errInvalidTTL      = errors.New("ttl must be >= 0")
    errInvalidStrategy = errors.New("unknown strategy")
)
