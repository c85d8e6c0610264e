// Package future implements the poll-based task primitives the engine is
// built on: futures, wakers, a multiplexing task set and a blocking driver.
package future

// Waker marks a suspended future as eligible to be polled again.
// Wake may be called from any goroutine, any number of times.
type Waker interface {
	Wake()
}

// WakerFunc adapts a plain function to a Waker.
type WakerFunc func()

// Wake calls f.
func (f WakerFunc) Wake() { f() }

// Future is a suspendable computation producing a T.
//
// Poll returns the value and true once the computation is complete. When it
// returns false the future must already have arranged for w to be woken when
// polling again could make progress. A completed future must not be polled
// again.
type Future[T any] interface {
	Poll(w Waker) (T, bool)
}

// Func adapts a poll function to a Future.
type Func[T any] func(w Waker) (T, bool)

// Poll calls f.
func (f Func[T]) Poll(w Waker) (T, bool) { return f(w) }

// Ready returns a future that completes immediately with v.
func Ready[T any](v T) Future[T] {
	return Func[T](func(Waker) (T, bool) { return v, true })
}

// Map returns a future that completes with fn applied to the result of f.
func Map[T, U any](f Future[T], fn func(T) U) Future[U] {
	return Func[U](func(w Waker) (U, bool) {
		v, ok := f.Poll(w)
		if !ok {
			var zero U
			return zero, false
		}
		return fn(v), true
	})
}

// Then runs f and, once it completes, the future built by next from its
// result.
func Then[T, U any](f Future[T], next func(T) Future[U]) Future[U] {
	var second Future[U]
	return Func[U](func(w Waker) (U, bool) {
		if second == nil {
			v, ok := f.Poll(w)
			if !ok {
				var zero U
				return zero, false
			}
			second = next(v)
		}
		return second.Poll(w)
	})
}
