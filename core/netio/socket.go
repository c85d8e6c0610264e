//go:build unix

// Package netio holds non-blocking sockets and the futures that read from
// and write to them under readiness notifications.
package netio

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/searchktools/tinyweb/core/poller"
)

// ErrPeerClosed reports that the peer closed before sending anything.
var ErrPeerClosed = errors.New("netio: peer closed connection")

// OpError is a transport failure on one socket.
type OpError struct {
	Op  string
	Fd  int
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("netio: %s fd %d: %v", e.Op, e.Fd, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opError(op string, fd int, err error) error {
	return &OpError{Op: op, Fd: fd, Err: err}
}

// IsWouldBlock reports whether err is the non-error "try again later".
func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// Socket is a non-blocking descriptor with a single owner. Bindings taken
// through Bind are released by Close before the descriptor is closed.
type Socket struct {
	fd       int
	bindings []*poller.Binding
	closed   bool
}

// NewSocket takes ownership of fd. The caller must already have put it in
// non-blocking mode.
func NewSocket(fd int) *Socket {
	return &Socket{fd: fd}
}

// Fd returns the raw descriptor.
func (s *Socket) Fd() int { return s.fd }

// Bind creates a readiness binding on this socket and tracks it for Close.
func (s *Socket) Bind(p *poller.Poller, dir poller.Direction) *poller.Binding {
	if s.closed {
		panic("netio: bind on closed socket")
	}
	b := p.Bind(s.fd, dir)
	s.bindings = append(s.bindings, b)
	return b
}

// Close releases all bindings, then closes the descriptor. Subsequent calls
// are no-ops.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs error
	for _, b := range s.bindings {
		errs = errors.CombineErrors(errs, b.Release())
	}
	s.bindings = nil
	if err := unix.Close(s.fd); err != nil {
		errs = errors.CombineErrors(errs, opError("close", s.fd, err))
	}
	return errs
}

func (s *Socket) read(p []byte) (int, error) {
	for {
		n, err := unix.Read(s.fd, p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func (s *Socket) write(p []byte) (int, error) {
	for {
		n, err := unix.Write(s.fd, p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}
