//go:build !windows

package shmregion

import (
    "testing"
    "time"
)

func testParams() Params {
    return Params{Strategy: StrategyLRU, Capacity: 4, MaxKeySize: 32, MaxValueSize: 64}
}

func testRegionName(t *testing.T) string {
    return "shmregion-test-" + t.Name() + "-" + time.Now().UTC().Format("20060102T150405.000000000")
}

func TestCreateInitializesHeaderAndFreeList(t *testing.T) {
    name := testRegionName(t)
    r, err := Create(name, testParams(), nil)
    if err != nil {
        t.Fatalf("Create: %v", err)
    }
    defer func() {
        r.Close()
        r.Unlink()
    }()

    h := r.Header()
    if h.Magic != Magic {
        t.Fatalf("Magic = %v; want %v", h.Magic, Magic)
    }
    if h.Capacity != 4 || h.Strategy != StrategyLRU {
        t.Fatalf("Capacity/Strategy = %d/%d; want 4/%d", h.Capacity, h.Strategy, StrategyLRU)
    }
    if h.ListHead != SlotNone || h.ListTail != SlotNone {
        t.Fatalf("ListHead/ListTail = %d/%d; want SlotNone", h.ListHead, h.ListTail)
    }
    if h.FreeHead != 0 {
        t.Fatalf("FreeHead = %d; want 0", h.FreeHead)
    }
}

func TestOpenAttachesToExistingRegion(t *testing.T) {
    name := testRegionName(t)
    r1, err := Create(name, testParams(), nil)
    if err != nil {
        t.Fatalf("Create: %v", err)
    }
    defer func() {
        r1.Unlink()
    }()
    r1.Header().CurrentSize = 3
    r1.Close()

    r2, err := Open(name)
    if err != nil {
        t.Fatalf("Open: %v", err)
    }
    defer r2.Close()

    if r2.Header().CurrentSize != 3 {
        t.Fatalf("CurrentSize = %d; want 3 (attached to same data)", r2.Header().CurrentSize)
    }
}

func TestOpenMissingRegionFails(t *testing.T) {
    if _, err := Open("shmregion-test-does-not-exist"); err == nil {
        t.Fatalf("expected error opening a nonexistent region")
    }
}

func TestCreateOrOpenReattachesOnMatchingParams(t *testing.T) {
    name := testRegionName(t)
    params := testParams()

    r1, err := CreateOrOpen(name, params, nil)
    if err != nil {
        t.Fatalf("CreateOrOpen (create): %v", err)
    }
    defer func() {
        r1.Unlink()
    }()
    r1.Header().CurrentSize = 2
    r1.Close()

    r2, err := CreateOrOpen(name, params, nil)
    if err != nil {
        t.Fatalf("CreateOrOpen (reattach): %v", err)
    }
    defer r2.Close()

    if r2.Header().CurrentSize != 2 {
        t.Fatalf("CurrentSize = %d; want 2 (reattached, not recreated)", r2.Header().CurrentSize)
    }
}

func TestCreateOrOpenRecreatesOnParamMismatch(t *testing.T) {
    name := testRegionName(t)
    params := testParams()

    r1, err := CreateOrOpen(name, params, nil)
    if err != nil {
        t.Fatalf("CreateOrOpen (create): %v", err)
    }
    r1.Header().CurrentSize = 2
    r1.Close()

    mismatched := params
    mismatched.Capacity = 8
    r2, err := CreateOrOpen(name, mismatched, nil)
    if err != nil {
        t.Fatalf("CreateOrOpen (recreate): %v", err)
    }
    defer func() {
        r2.Close()
        r2.Unlink()
    }()

    if r2.Header().CurrentSize != 0 {
        t.Fatalf("CurrentSize = %d; want 0 (destructively recreated)", r2.Header().CurrentSize)
    }
    if r2.Header().Capacity != 8 {
        t.Fatalf("Capacity = %d; want 8", r2.Header().Capacity)
    }
}

func TestUnlinkRemovesBackingFiles(t *testing.T) {
    name := testRegionName(t)
    r, err := Create(name, testParams(), nil)
    if err != nil {
        t.Fatalf("Create: %v", err)
    }
    r.Close()

    if err := r.Unlink(); err != nil {
        t.Fatalf("Unlink: %v", err)
    }
    if _, err := Open(name); err == nil {
        t.Fatalf("expected Open to fail after Unlink")
    }
}
