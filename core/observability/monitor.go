// Package observability records per-route handler latencies and errors.
package observability

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// BucketBounds are the upper bounds of the latency histogram buckets. A
// final bucket counts everything slower.
var BucketBounds = []time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	5 * time.Second,
	10 * time.Second,
}

// Monitor aggregates handler outcomes by route. It is safe for concurrent
// use; recording is lock-free once a route has been seen.
type Monitor struct {
	routes sync.Map // route -> *routeMetrics
	total  atomic.Uint64
}

type routeMetrics struct {
	count   atomic.Uint64
	errors  atomic.Uint64
	total   atomic.Uint64
	min     atomic.Uint64
	max     atomic.Uint64
	buckets [10]atomic.Uint64
}

// NewMonitor returns an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Record adds one handler run for route.
func (m *Monitor) Record(route string, d time.Duration, err error) {
	val, _ := m.routes.LoadOrStore(route, &routeMetrics{})
	rm := val.(*routeMetrics)

	ns := uint64(max(d, 0))
	rm.count.Add(1)
	if err != nil {
		rm.errors.Add(1)
	}
	rm.total.Add(ns)
	storeMin(&rm.min, ns)
	storeMax(&rm.max, ns)

	idx, found := slices.BinarySearch(BucketBounds, d)
	if found {
		idx++
	}
	rm.buckets[idx].Add(1)
	m.total.Add(1)
}

func storeMin(v *atomic.Uint64, d uint64) {
	for {
		cur := v.Load()
		if cur != 0 && d >= cur {
			return
		}
		if v.CompareAndSwap(cur, d) {
			return
		}
	}
}

func storeMax(v *atomic.Uint64, d uint64) {
	for {
		cur := v.Load()
		if d <= cur || v.CompareAndSwap(cur, d) {
			return
		}
	}
}

// Total returns the number of runs recorded across all routes.
func (m *Monitor) Total() uint64 { return m.total.Load() }

// RouteStats is a snapshot of one route's metrics.
type RouteStats struct {
	Route   string        `json:"route"`
	Count   uint64        `json:"count"`
	Errors  uint64        `json:"errors"`
	Avg     time.Duration `json:"avg_ns"`
	Min     time.Duration `json:"min_ns"`
	Max     time.Duration `json:"max_ns"`
	Buckets []uint64      `json:"buckets"`
}

// ErrorRate is Errors over Count, or zero for an unused route.
func (s RouteStats) ErrorRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Count)
}

// Snapshot returns the metrics of every route seen so far, sorted by route.
func (m *Monitor) Snapshot() []RouteStats {
	var out []RouteStats
	m.routes.Range(func(key, value any) bool {
		rm := value.(*routeMetrics)
		s := RouteStats{
			Route:   key.(string),
			Count:   rm.count.Load(),
			Errors:  rm.errors.Load(),
			Min:     time.Duration(rm.min.Load()),
			Max:     time.Duration(rm.max.Load()),
			Buckets: make([]uint64, len(rm.buckets)),
		}
		for i := range rm.buckets {
			s.Buckets[i] = rm.buckets[i].Load()
		}
		if s.Count > 0 {
			s.Avg = time.Duration(rm.total.Load() / s.Count)
		}
		out = append(out, s)
		return true
	})
	slices.SortFunc(out, func(a, b RouteStats) int { return strings.Compare(a.Route, b.Route) })
	return out
}

// Report renders Snapshot as a human-readable table.
func (m *Monitor) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %8s %8s %12s %12s %12s\n", "route", "count", "errors", "avg", "min", "max")
	for _, s := range m.Snapshot() {
		fmt.Fprintf(&b, "%-24s %8d %8d %12v %12v %12v\n", s.Route, s.Count, s.Errors, s.Avg, s.Min, s.Max)
	}
	return b.String()
}
