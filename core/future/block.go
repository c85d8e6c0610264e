package future

import "context"

// Parker is a Waker that unblocks a single parked goroutine. Wakes that
// arrive while nobody is parked are remembered, at most one at a time.
type Parker struct {
	ch chan struct{}
}

// NewParker returns a ready to use Parker.
func NewParker() *Parker {
	return &Parker{ch: make(chan struct{}, 1)}
}

// Wake unparks the owner, or makes its next Park return immediately.
func (p *Parker) Wake() {
	select {
	case p.ch <- struct{}{}:
	default:
	}
}

// C returns the channel that receives a value on every wake.
func (p *Parker) C() <-chan struct{} { return p.ch }

// BlockOn drives f to completion on the calling goroutine, parking between
// polls. It returns ctx.Err() if ctx is done before f completes; f is then
// left unfinished.
func BlockOn[T any](ctx context.Context, f Future[T]) (T, error) {
	p := NewParker()
	for {
		if v, ok := f.Poll(p); ok {
			return v, nil
		}
		select {
		case <-p.ch:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}
