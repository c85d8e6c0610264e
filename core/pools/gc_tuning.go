package pools

import (
	"runtime"
	"runtime/debug"
	"time"
)

// GCConfig holds GC tuning parameters. Zero fields leave the runtime
// setting alone.
type GCConfig struct {
	// Percent sets the garbage collection target percentage (GOGC).
	Percent int

	// MemoryLimit sets the soft memory limit in bytes (GOMEMLIMIT).
	MemoryLimit int64
}

// ApplyGCConfig applies cfg and returns a func that puts back exactly the
// settings it replaced, including a disabled collector (GOGC=off).
func ApplyGCConfig(cfg GCConfig) (restore func()) {
	var undo []func()
	if cfg.Percent > 0 {
		prev := debug.SetGCPercent(cfg.Percent)
		undo = append(undo, func() { debug.SetGCPercent(prev) })
	}
	if cfg.MemoryLimit > 0 {
		prev := debug.SetMemoryLimit(cfg.MemoryLimit)
		undo = append(undo, func() { debug.SetMemoryLimit(prev) })
	}
	return func() {
		for _, f := range undo {
			f()
		}
	}
}

// GCStats holds garbage collection statistics
type GCStats struct {
	NumGC        uint32        `json:"num_gc"`
	PauseTotal   time.Duration `json:"pause_total_ns"`
	LastPause    time.Duration `json:"last_pause_ns"`
	HeapAlloc    uint64        `json:"heap_alloc"`
	Sys          uint64        `json:"sys"`
	NumGoroutine int           `json:"goroutines"`
}

// GetGCStats returns current GC statistics
func GetGCStats() GCStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := GCStats{
		NumGC:        ms.NumGC,
		PauseTotal:   time.Duration(ms.PauseTotalNs),
		HeapAlloc:    ms.HeapAlloc,
		Sys:          ms.Sys,
		NumGoroutine: runtime.NumGoroutine(),
	}
	if ms.NumGC > 0 {
		stats.LastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])
	}
	return stats
}
