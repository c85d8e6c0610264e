//go:build unix

// Package poller is the reactor device: it watches file descriptors for
// readiness and invokes the waker registered for each (fd, direction) pair
// exactly once per registration.
package poller

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/searchktools/tinyweb/core/future"
)

// ErrClosed is returned when registering with a poller that has shut down.
var ErrClosed = errors.New("poller: closed")

// Direction selects the readiness a binding waits for.
type Direction uint8

const (
	Readable Direction = iota
	Writable
)

func (d Direction) String() string {
	if d == Writable {
		return "writable"
	}
	return "readable"
}

// readyEvent is one readiness report from the device.
type readyEvent struct {
	fd    int
	read  bool
	write bool
}

// device is the OS multiplexer behind a Poller. Interest is one-shot: after
// an fd reports, it stays silent until update is called again.
type device interface {
	update(fd int, read, write, added bool) error
	remove(fd int) error
	wait(events []readyEvent) (int, error)
	wake() error
	close() error
}

type fdState struct {
	wakers [2]future.Waker
	added  bool
}

// Poller owns one device and a goroutine that turns readiness into wakes.
type Poller struct {
	dev    device
	log    *zap.Logger
	mu     sync.Mutex
	fds    map[int]*fdState
	closed bool
	done   chan struct{}
}

// maxWaitFailures consecutive wait errors shut the poller down.
const maxWaitFailures = 8

// New creates a Poller and starts its dispatch goroutine.
func New(log *zap.Logger) (*Poller, error) {
	dev, err := newDevice()
	if err != nil {
		return nil, errors.Wrap(err, "poller: create device")
	}
	return start(dev, log), nil
}

func start(dev device, log *zap.Logger) *Poller {
	p := &Poller{
		dev:  dev,
		log:  log.Named("poller"),
		fds:  make(map[int]*fdState, 1024),
		done: make(chan struct{}),
	}
	go p.run()
	return p
}

// Bind returns a binding for fd in direction dir. The binding does not own
// the descriptor; it must be released before the descriptor is closed.
func (p *Poller) Bind(fd int, dir Direction) *Binding {
	return &Binding{p: p, fd: fd, dir: dir}
}

func (p *Poller) register(fd int, dir Direction, w future.Waker) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	st, ok := p.fds[fd]
	if !ok {
		st = &fdState{}
		p.fds[fd] = st
	}
	st.wakers[dir] = w
	if err := p.dev.update(fd, st.wakers[Readable] != nil, st.wakers[Writable] != nil, st.added); err != nil {
		st.wakers[dir] = nil
		return errors.Wrapf(err, "poller: arm fd %d %s", fd, dir)
	}
	st.added = true
	return nil
}

func (p *Poller) release(fd int, dir Direction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.fds[fd]
	if !ok {
		return nil
	}
	st.wakers[dir] = nil
	if st.wakers[Readable] == nil && st.wakers[Writable] == nil {
		delete(p.fds, fd)
		if st.added && !p.closed {
			return errors.Wrapf(p.dev.remove(fd), "poller: remove fd %d", fd)
		}
		return nil
	}
	if p.closed {
		return nil
	}
	return errors.Wrapf(p.dev.update(fd, st.wakers[Readable] != nil, st.wakers[Writable] != nil, st.added),
		"poller: rearm fd %d", fd)
}

func (p *Poller) run() {
	defer close(p.done)
	events := make([]readyEvent, 1024)
	var fire []future.Waker
	failures := 0
	for {
		n, err := p.dev.wait(events)
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		if err != nil {
			p.mu.Unlock()
			failures++
			if failures >= maxWaitFailures {
				p.log.Error("wait failed, shutting down", zap.Error(err), zap.Int("attempts", failures))
				p.fail()
				return
			}
			p.log.Warn("wait failed", zap.Error(err), zap.Int("attempt", failures))
			time.Sleep(min(time.Millisecond<<failures, 100*time.Millisecond))
			continue
		}
		failures = 0
		fire = fire[:0]
		for _, ev := range events[:n] {
			fire = p.collect(ev, fire)
		}
		p.mu.Unlock()

		for i, w := range fire {
			w.Wake()
			fire[i] = nil
		}
	}
}

// collect takes the wakers an event satisfies and re-arms whatever interest
// remains on the descriptor. Called with p.mu held.
func (p *Poller) collect(ev readyEvent, fire []future.Waker) []future.Waker {
	st, ok := p.fds[ev.fd]
	if !ok {
		return fire
	}
	if ev.read && st.wakers[Readable] != nil {
		fire = append(fire, st.wakers[Readable])
		st.wakers[Readable] = nil
	}
	if ev.write && st.wakers[Writable] != nil {
		fire = append(fire, st.wakers[Writable])
		st.wakers[Writable] = nil
	}
	if st.wakers[Readable] != nil || st.wakers[Writable] != nil {
		if err := p.dev.update(ev.fd, st.wakers[Readable] != nil, st.wakers[Writable] != nil, st.added); err != nil {
			p.log.Warn("rearm failed", zap.Int("fd", ev.fd), zap.Error(err))
		}
	}
	return fire
}

// Close stops the dispatch goroutine and wakes every registered waker so
// suspended tasks observe ErrClosed on their next registration.
func (p *Poller) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	pending := p.closeLocked()
	p.mu.Unlock()

	if err := p.dev.wake(); err != nil {
		return errors.Wrap(err, "poller: interrupt wait")
	}
	<-p.done
	for _, w := range pending {
		w.Wake()
	}
	return errors.Wrap(p.dev.close(), "poller: close device")
}

// fail shuts the poller down from the dispatch goroutine after the device
// stopped working.
func (p *Poller) fail() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	pending := p.closeLocked()
	p.mu.Unlock()

	for _, w := range pending {
		w.Wake()
	}
	if err := p.dev.close(); err != nil {
		p.log.Warn("close device", zap.Error(err))
	}
}

// closeLocked marks the poller closed and takes every registered waker.
// Called with p.mu held.
func (p *Poller) closeLocked() []future.Waker {
	p.closed = true
	var pending []future.Waker
	for fd, st := range p.fds {
		for _, w := range st.wakers {
			if w != nil {
				pending = append(pending, w)
			}
		}
		delete(p.fds, fd)
	}
	return pending
}

// Binding is a (fd, direction) registration slot. At most one waker is held;
// each Register replaces the previous one.
type Binding struct {
	p        *Poller
	fd       int
	dir      Direction
	released bool
}

// Register arms the binding so w is woken once the fd is ready.
func (b *Binding) Register(w future.Waker) error {
	if b.released {
		panic("poller: register on released binding")
	}
	return b.p.register(b.fd, b.dir, w)
}

// Release drops any registered waker. It is safe to call more than once.
func (b *Binding) Release() error {
	if b.released {
		return nil
	}
	b.released = true
	return b.p.release(b.fd, b.dir)
}

// Fd returns the watched descriptor.
func (b *Binding) Fd() int { return b.fd }
