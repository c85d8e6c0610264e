package core

import (
	"encoding/json"
	"fmt"

	"github.com/searchktools/tinyweb/core/pools"
)

// Stats is a snapshot of the engine's counters.
type Stats struct {
	Accepted uint64                `json:"accepted"`
	Dropped  uint64                `json:"accept_errors"`
	Pool     pools.ThreadPoolStats `json:"pool"`
	Loads    []int64               `json:"loads"`
	Buffers  pools.BufferStats     `json:"buffers"`
	GC       pools.GCStats         `json:"gc"`
}

// Stats returns the current counters. Before Serve only the buffer and GC
// statistics are populated.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	pool, acc := e.pool, e.acc
	e.mu.Unlock()

	stats := Stats{Buffers: pools.GetBufferStats(), GC: pools.GetGCStats()}
	if acc != nil {
		stats.Accepted = acc.accepted.Load()
		stats.Dropped = acc.dropped.Load()
	}
	if pool != nil {
		stats.Pool = pool.Stats()
		stats.Loads = pool.Loads()
	}
	return stats
}

// StatsJSON returns Stats as indented JSON.
func (e *Engine) StatsJSON() string {
	data, _ := json.MarshalIndent(e.Stats(), "", "  ")
	return string(data)
}

// StatsText returns Stats as human-readable text.
func (e *Engine) StatsText() string {
	s := e.Stats()
	return fmt.Sprintf(`Engine Statistics
=================

Connections:
  Accepted:      %d
  Accept errors: %d

Thread Pool:
  Workers:    %d
  Dispatched: %d
  Completed:  %d
  In flight:  %d
  Loads:      %v

Output Buffers:
  Gets:    %d
  Puts:    %d
  Dropped: %d

Runtime:
  GC cycles:  %d
  Heap:       %d bytes
  Goroutines: %d
`,
		s.Accepted, s.Dropped,
		s.Pool.NumWorkers, s.Pool.Dispatched, s.Pool.Completed, s.Pool.InFlight, s.Loads,
		s.Buffers.Gets, s.Buffers.Puts, s.Buffers.Dropped,
		s.GC.NumGC, s.GC.HeapAlloc, s.GC.NumGoroutine,
	)
}
