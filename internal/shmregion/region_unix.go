//go:build !windows

package shmregion

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "runtime"
    "unsafe"

    "go.uber.org/zap"
    "golang.org/x/sys/unix"
)

// LockSize is the fixed size, in bytes, of the seqlock cache line kept in
// the companion ".lock" file.
const LockSize = 64

// ErrBadMagic is returned by Open when an existing region's header doesn't
// carry the expected magic bytes.
var ErrBadMagic = errors.New("shmregion: bad magic")

// Region owns the two memory mappings (data + lock) backing one shared
// cache: the data mapping holds the header, bucket array, and slot slab;
// the lock mapping holds the seqlock cache line.
type Region struct {
    Data []byte
    Lock []byte

    dataFile *os.File
    lockFile *os.File

    dataPath string
    lockPath string

    log *zap.Logger
}

// Params bundles a region's construction parameters. On reattach Strategy,
// Capacity, MaxKeySize and MaxValueSize must match the existing header, and a
// mismatch forces destructive recreation (spec §3 Lifecycle); TTLNanos is not
// compared, and a reattached region keeps the TTL stored in its header.
type Params struct {
    Strategy     uint32
    Capacity     uint32
    MaxKeySize   uint32
    MaxValueSize uint32
    TTLNanos     uint64
}

func shmDir() string {
    if runtime.GOOS == "linux" {
        return "/dev/shm"
    }
    return filepath.Join(os.TempDir(), "warpcache")
}

// Header returns the region's header as a typed view over the mapped bytes.
func (r *Region) Header() *Header {
    return (*Header)(unsafe.Pointer(&r.Data[0]))
}

// BasePtr returns the raw base address of the data mapping.
func (r *Region) BasePtr() unsafe.Pointer {
    return unsafe.Pointer(&r.Data[0])
}

// Create makes a brand-new region, zero-filling it, stamping the magic and
// parameters, chaining every slot into the free list, and initializing the
// seqlock cache line to its rest state (seq=0, write_lock=0).
func Create(name string, p Params, log *zap.Logger) (*Region, error) {
    if log == nil {
        log = zap.NewNop()
    }
    dir := shmDir()
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return nil, fmt.Errorf("shmregion: cannot create shared cache: %w", err)
    }

    slotSize := SlotStride(p.MaxKeySize, p.MaxValueSize)
    htCapacity := HTCapacityFor(p.Capacity)
    totalSize := RegionSize(p.Capacity, htCapacity, slotSize)

    dataPath := filepath.Join(dir, name+".data")
    lockPath := filepath.Join(dir, name+".lock")

    dataFile, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
    if err != nil {
        return nil, fmt.Errorf("shmregion: cannot create shared cache: %w", err)
    }
    if err := dataFile.Truncate(int64(totalSize)); err != nil {
        dataFile.Close()
        return nil, fmt.Errorf("shmregion: cannot create shared cache: %w", err)
    }

    lockFile, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
    if err != nil {
        dataFile.Close()
        return nil, fmt.Errorf("shmregion: cannot create shared cache: %w", err)
    }
    if err := lockFile.Truncate(LockSize); err != nil {
        dataFile.Close()
        lockFile.Close()
        return nil, fmt.Errorf("shmregion: cannot create shared cache: %w", err)
    }

    data, err := unix.Mmap(int(dataFile.Fd()), 0, int(totalSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
    if err != nil {
        dataFile.Close()
        lockFile.Close()
        return nil, fmt.Errorf("shmregion: cannot create shared cache: %w", err)
    }
    lockBytes, err := unix.Mmap(int(lockFile.Fd()), 0, LockSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
    if err != nil {
        unix.Munmap(data)
        dataFile.Close()
        lockFile.Close()
        return nil, fmt.Errorf("shmregion: cannot create shared cache: %w", err)
    }

    for i := range data {
        data[i] = 0
    }
    for i := range lockBytes {
        lockBytes[i] = 0
    }

    r := &Region{
        Data:     data,
        Lock:     lockBytes,
        dataFile: dataFile,
        lockFile: lockFile,
        dataPath: dataPath,
        lockPath: lockPath,
        log:      log,
    }

    h := r.Header()
    h.Magic = Magic
    h.Version = 1
    h.Strategy = p.Strategy
    h.Capacity = p.Capacity
    h.HTCapacity = htCapacity
    h.SlotSize = slotSize
    h.MaxKeySize = p.MaxKeySize
    h.MaxValueSize = p.MaxValueSize
    h.TTLNanos = p.TTLNanos
    h.CurrentSize = 0
    h.ListHead = SlotNone
    h.ListTail = SlotNone
    h.FreeHead = 0

    htBase := HTOffset()
    for i := uint32(0); i < htCapacity; i++ {
        b := (*Bucket)(unsafe.Pointer(&data[htBase+uint64(i)*BucketSize]))
        b.Hash = 0
        b.SlotIndex = BucketEmpty
    }

    slabBase := SlabOffset(htCapacity)
    for i := uint32(0); i < p.Capacity; i++ {
        s := (*SlotHeader)(unsafe.Pointer(&data[slabBase+uint64(i)*uint64(slotSize)]))
        s.Occupied = 0
        s.Prev = SlotNone
        if i+1 < p.Capacity {
            s.Next = int32(i + 1)
        } else {
            s.Next = SlotNone
        }
    }

    log.Debug("shmregion: created region", zap.String("name", name), zap.Uint64("bytes", totalSize))
    return r, nil
}

// Open attaches to an already-existing region by name without validating
// its parameters; callers that need parameter validation should use
// CreateOrOpen.
func Open(name string) (*Region, error) {
    dir := shmDir()
    return openPaths(filepath.Join(dir, name+".data"), filepath.Join(dir, name+".lock"))
}

func openPaths(dataPath, lockPath string) (*Region, error) {
    dataFile, err := os.OpenFile(dataPath, os.O_RDWR, 0o644)
    if err != nil {
        return nil, fmt.Errorf("shmregion: cannot open shared cache: %w", err)
    }
    lockFile, err := os.OpenFile(lockPath, os.O_RDWR, 0o644)
    if err != nil {
        dataFile.Close()
        return nil, fmt.Errorf("shmregion: cannot open shared cache: %w", err)
    }

    fi, err := dataFile.Stat()
    if err != nil {
        dataFile.Close()
        lockFile.Close()
        return nil, fmt.Errorf("shmregion: cannot open shared cache: %w", err)
    }

    data, err := unix.Mmap(int(dataFile.Fd()), 0, int(fi.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
    if err != nil {
        dataFile.Close()
        lockFile.Close()
        return nil, fmt.Errorf("shmregion: cannot open shared cache: %w", err)
    }
    lockBytes, err := unix.Mmap(int(lockFile.Fd()), 0, LockSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
    if err != nil {
        unix.Munmap(data)
        dataFile.Close()
        lockFile.Close()
        return nil, fmt.Errorf("shmregion: cannot open shared cache: %w", err)
    }

    r := &Region{
        Data:     data,
        Lock:     lockBytes,
        dataFile: dataFile,
        lockFile: lockFile,
        dataPath: dataPath,
        lockPath: lockPath,
        log:      zap.NewNop(),
    }

    if r.Header().Magic != Magic {
        r.Close()
        return nil, ErrBadMagic
    }
    return r, nil
}

// CreateOrOpen opens an existing region if its on-disk header matches p's
// strategy, capacity, and key/value sizes (TTL is not compared),
// recreating destructively otherwise (spec §3, §9: parameter mismatch is a
// format-mismatch error handled by discarding prior contents).
func CreateOrOpen(name string, p Params, log *zap.Logger) (*Region, error) {
    if log == nil {
        log = zap.NewNop()
    }
    dir := shmDir()
    dataPath := filepath.Join(dir, name+".data")
    lockPath := filepath.Join(dir, name+".lock")

    if _, err := os.Stat(dataPath); err == nil {
        if _, err := os.Stat(lockPath); err == nil {
            region, err := openPaths(dataPath, lockPath)
            if err == nil {
                h := region.Header()
                if h.Capacity == p.Capacity && h.Strategy == p.Strategy &&
                    h.MaxKeySize == p.MaxKeySize && h.MaxValueSize == p.MaxValueSize {
                    region.log = log
                    return region, nil
                }
                log.Warn("shmregion: parameter mismatch, recreating destructively", zap.String("name", name))
                region.Close()
            }
        }
    }

    return Create(name, p, log)
}

// Close unmaps both mappings and closes the backing file descriptors. The
// backing files are left on disk (detach does not unlink; see Unlink).
func (r *Region) Close() error {
    var firstErr error
    if r.Data != nil {
        if err := unix.Munmap(r.Data); err != nil && firstErr == nil {
            firstErr = err
        }
        r.Data = nil
    }
    if r.Lock != nil {
        if err := unix.Munmap(r.Lock); err != nil && firstErr == nil {
            firstErr = err
        }
        r.Lock = nil
    }
    if r.dataFile != nil {
        r.dataFile.Close()
    }
    if r.lockFile != nil {
        r.lockFile.Close()
    }
    return firstErr
}

// Unlink removes the backing files from disk. Per spec §9, a region is
// never auto-unlinked on detach; callers opt in explicitly.
func (r *Region) Unlink() error {
    err1 := os.Remove(r.dataPath)
    err2 := os.Remove(r.lockPath)
    if err1 != nil && !os.IsNotExist(err1) {
        return err1
    }
    if err2 != nil && !os.IsNotExist(err2) {
        return err2
    }
    return nil
}
