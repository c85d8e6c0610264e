//go:build unix

package netio

import (
	"io"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/searchktools/tinyweb/core/future"
	"github.com/searchktools/tinyweb/core/poller"
	"github.com/searchktools/tinyweb/core/pools"
)

// ReadChunk is the size of a single read. A read returning fewer bytes is
// taken as the end of the currently available data.
const ReadChunk = 512

type readUntilShort struct {
	sock *Socket
	b    *poller.Binding
	buf  *[]byte
}

// ReadUntilShort appends data from s to *buf until a read comes back short.
// A zero-byte read ends the read as well and yields ErrPeerClosed if
// nothing was read at all.
func ReadUntilShort(s *Socket, b *poller.Binding, buf *[]byte) future.Future[error] {
	return &readUntilShort{sock: s, b: b, buf: buf}
}

func (r *readUntilShort) Poll(w future.Waker) (error, bool) {
	chunk := pools.GetBytes(ReadChunk)
	defer pools.PutBytes(chunk)

	for {
		n, err := r.sock.read(chunk)
		switch {
		case err == nil && n > 0:
			*r.buf = append(*r.buf, chunk[:n]...)
			if n < ReadChunk {
				return nil, true
			}
		case err == nil:
			if len(*r.buf) == 0 {
				return ErrPeerClosed, true
			}
			return nil, true
		case IsWouldBlock(err):
			if err := r.b.Register(w); err != nil {
				return err, true
			}
			return nil, false
		default:
			return opError("read", r.sock.fd, err), true
		}
	}
}

type writeAll struct {
	sock *Socket
	b    *poller.Binding
	data []byte
}

// WriteAll writes every byte of data to s, resuming partial writes.
func WriteAll(s *Socket, b *poller.Binding, data []byte) future.Future[error] {
	return &writeAll{sock: s, b: b, data: data}
}

func (wa *writeAll) Poll(w future.Waker) (error, bool) {
	for len(wa.data) > 0 {
		n, err := wa.sock.write(wa.data)
		switch {
		case err == nil && n > 0:
			wa.data = wa.data[n:]
		case err == nil:
			return opError("write", wa.sock.fd, io.ErrShortWrite), true
		case IsWouldBlock(err):
			if err := wa.b.Register(w); err != nil {
				return err, true
			}
			return nil, false
		default:
			return opError("write", wa.sock.fd, err), true
		}
	}
	return nil, true
}

type flush struct {
	sock *Socket
	b    *poller.Binding
}

// Flush pushes any segments the kernel is still holding back onto the
// wire. Setting TCP_NODELAY forces out data queued by Nagle's algorithm;
// sockets that are not TCP have nothing to flush.
func Flush(s *Socket, b *poller.Binding) future.Future[error] {
	return &flush{sock: s, b: b}
}

func (f *flush) Poll(w future.Waker) (error, bool) {
	err := unix.SetsockoptInt(f.sock.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	switch {
	case err == nil:
		return nil, true
	case IsWouldBlock(err):
		if err := f.b.Register(w); err != nil {
			return err, true
		}
		return nil, false
	case errors.Is(err, unix.ENOPROTOOPT), errors.Is(err, unix.EOPNOTSUPP), errors.Is(err, unix.EINVAL):
		return nil, true
	default:
		return opError("flush", f.sock.fd, err), true
	}
}
