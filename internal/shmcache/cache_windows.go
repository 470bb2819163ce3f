//go:build windows

package shmcache

import (
    "go.uber.org/zap"

    "github.com/toloco/warp-cache/internal/shmregion"
)

// MetricsSink mirrors the Unix build's interface so callers compile
// unconditionally.
type MetricsSink interface {
    IncHit()
    IncMiss()
    IncEvict()
    IncOversizeSkip()
}

// Config mirrors the Unix build's construction parameters.
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

// Info mirrors the Unix build's info structure.
type Info struct {
    Hits          uint64
    Misses        uint64
    MaxSize       uint32
    CurrentSize   uint32
    OversizeSkips uint64
}

// Cache is an empty placeholder on Windows; the shared backend is
// unsupported there (see shmregion.ErrUnsupportedPlatform).
type Cache struct{}

func Create(cfg Config) (*Cache, error) {
    return nil, shmregion.ErrUnsupportedPlatform
}

func Open(name string, logger *zap.Logger) (*Cache, error) {
    return nil, shmregion.ErrUnsupportedPlatform
}

func CreateOrOpen(cfg Config) (*Cache, error) {
    return nil, shmregion.ErrUnsupportedPlatform
}

func (c *Cache) IsOversize(keyBytes, valueBytes []byte) bool { return false }
func (c *Cache) RecordOversizeSkip()                         {}
func (c *Cache) Get(keyHash uint64, keyBytes []byte) ([]byte, bool) {
    return nil, false
}
func (c *Cache) Insert(keyHash uint64, keyBytes, valueBytes []byte) {}
func (c *Cache) Clear()                                             {}
func (c *Cache) Info() Info                                         { return Info{} }
func (c *Cache) Close() error                                       { return nil }
func (c *Cache) Unlink() error                                      { return nil }
