package future

import (
	"slices"
	"sync/atomic"
)

// Set multiplexes a dynamic collection of futures sharing a result type.
//
// Poll resolves with the result of the first ready entry in collection
// order and removes that entry, shifting the ones behind it forward. Entries
// near the front win ties. Each entry carries its own waker, so a poll only
// re-polls entries that were woken since their last poll; newly pushed
// entries count as woken.
//
// A Set is owned by one goroutine; only the entry wakers may be invoked
// from elsewhere.
type Set[T any] struct {
	entries []*entry[T]
	outer   atomic.Pointer[wakerBox]
}

type wakerBox struct{ w Waker }

type entry[T any] struct {
	set   *Set[T]
	f     Future[T]
	woken atomic.Bool
}

// Wake marks the entry for re-polling and wakes whoever polls the set.
func (e *entry[T]) Wake() {
	e.woken.Store(true)
	if b := e.set.outer.Load(); b != nil {
		b.w.Wake()
	}
}

// Push appends f to the end of the collection.
func (s *Set[T]) Push(f Future[T]) {
	e := &entry[T]{set: s, f: f}
	e.woken.Store(true)
	s.entries = append(s.entries, e)
}

// Len returns the number of pending entries.
func (s *Set[T]) Len() int { return len(s.entries) }

// Poll polls woken entries from the front and returns the first result.
func (s *Set[T]) Poll(w Waker) (T, bool) {
	s.outer.Store(&wakerBox{w: w})
	for i := 0; i < len(s.entries); i++ {
		e := s.entries[i]
		if !e.woken.Swap(false) {
			continue
		}
		if v, ok := e.f.Poll(e); ok {
			s.entries = slices.Delete(s.entries, i, i+1)
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Drain removes and returns every pending future, in collection order.
func (s *Set[T]) Drain() []Future[T] {
	out := make([]Future[T], len(s.entries))
	for i, e := range s.entries {
		out[i] = e.f
	}
	s.entries = nil
	return out
}
