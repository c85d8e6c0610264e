//go:build unix

package netio

import (
	"net"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Listener is a non-blocking TCP listening socket.
type Listener struct {
	ln   *net.TCPListener
	sock *Socket
}

// Listen binds addr and returns a listener whose descriptor is ready for
// use with a poller.
func Listen(addr string) (*Listener, error) {
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "netio: resolve %s", addr)
	}
	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return nil, errors.Wrapf(err, "netio: listen %s", addr)
	}

	// File hands back a duplicate outside the Go netpoller. Dup once more so
	// the descriptor we own is not tied to the *os.File finalizer.
	file, err := ln.File()
	if err != nil {
		ln.Close()
		return nil, errors.Wrap(err, "netio: listener descriptor")
	}
	fd, err := unix.Dup(int(file.Fd()))
	file.Close()
	if err != nil {
		ln.Close()
		return nil, errors.Wrap(err, "netio: dup listener descriptor")
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		ln.Close()
		return nil, errors.Wrap(err, "netio: set listener non-blocking")
	}
	return &Listener{ln: ln, sock: NewSocket(fd)}, nil
}

// Socket returns the listening socket, for binding to a poller.
func (l *Listener) Socket() *Socket { return l.sock }

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept takes one pending connection. It returns a would-block error (see
// IsWouldBlock) when none is pending.
func (l *Listener) Accept() (*Socket, error) {
	for {
		nfd, _, err := unix.Accept(l.sock.fd)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}
		unix.CloseOnExec(nfd)
		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			return nil, opError("set non-blocking", nfd, err)
		}
		// Disable Nagle's algorithm; responses are written in one go.
		_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		return NewSocket(nfd), nil
	}
}

// IsTransientAccept reports accept failures that affect one attempt, not
// the listener: aborted handshakes and descriptor or memory exhaustion.
func IsTransientAccept(err error) bool {
	for _, errno := range []unix.Errno{unix.ECONNABORTED, unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM, unix.EPROTO} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// Close closes both the duplicated descriptor and the original listener.
func (l *Listener) Close() error {
	var errs error
	if err := l.sock.Close(); err != nil {
		errs = errors.CombineErrors(errs, err)
	}
	if err := l.ln.Close(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "netio: close listener"))
	}
	return errs
}
