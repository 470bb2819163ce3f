package main

// flags.go parses the inspector's command-line flags into an options
// struct consumed by main().
//
// © 2025 arena-cache authors. MIT License.

import (
    "flag"
    "time"
)

type options struct {
    target   string
    json     bool
    watch    bool
    interval time.Duration

    heapProfile      string
    goroutineProfile string

    version bool
}

func parseFlags() *options {
    opts := &options{}

    flag.StringVar(&opts.target, "target", "http://localhost:6060", "base URL of the target cache service")
    flag.BoolVar(&opts.json, "json", false, "print the snapshot as JSON instead of a pretty summary")
    flag.BoolVar(&opts.watch, "watch", false, "poll the target repeatedly at -interval")
    flag.DurationVar(&opts.interval, "interval", 2*time.Second, "polling interval when -watch is set")
    flag.StringVar(&opts.heapProfile, "heap-profile", "", "download /debug/pprof/heap to this path and exit")
    flag.StringVar(&opts.goroutineProfile, "goroutine-profile", "", "download /debug/pprof/goroutine to this path and exit")
    flag.BoolVar(&opts.version, "version", false, "print the inspector's version and exit")

    flag.Parse()
    return opts
}
