package http

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/searchktools/tinyweb/core/codec"
	"github.com/searchktools/tinyweb/core/future"
	"github.com/searchktools/tinyweb/core/netio"
	"github.com/searchktools/tinyweb/core/poller"
	"github.com/searchktools/tinyweb/core/pools"
)

// ErrStreamBusy is returned by Send when another operation holds the
// stream. Streams are not safe for concurrent use.
var ErrStreamBusy = errors.New("http: stream used concurrently")

// Handler produces the body of a registered route. The status line and
// headers are already pending on the stream; the handler pushes the body
// and sends it.
type Handler func(s *Stream) future.Future[error]

// Respond adapts a synchronous body writer to a Handler. fn pushes output;
// everything pushed is sent once it returns nil.
func Respond(fn func(s *Stream) error) Handler {
	return func(s *Stream) future.Future[error] {
		if err := fn(s); err != nil {
			return future.Ready(err)
		}
		return s.Send()
	}
}

// Encoded returns a Handler that sends the value produced by fn, encoded
// with c.
func Encoded(c codec.Codec, fn func() (any, error)) Handler {
	return Respond(func(s *Stream) error {
		v, err := fn()
		if err != nil {
			return err
		}
		data, err := c.Encode(v)
		if err != nil {
			return errors.Wrapf(err, "http: encode %s body", c.Name())
		}
		s.PushData(data)
		return nil
	})
}

// output is the connection's pending response and the write side of its
// socket.
type output struct {
	sock *netio.Socket
	wb   *poller.Binding
	buf  *[]byte
}

func newOutput(sock *netio.Socket, p *poller.Poller) *output {
	return &output{
		sock: sock,
		wb:   sock.Bind(p, poller.Writable),
		buf:  pools.AcquireBuffer(pools.SmallBufferSize),
	}
}

func (o *output) pushStr(text string) { *o.buf = append(*o.buf, text...) }

func (o *output) pushData(data []byte) { *o.buf = append(*o.buf, data...) }

func (o *output) pending() int { return len(*o.buf) }

// send writes everything pending, flushes, and empties the buffer.
func (o *output) send() future.Future[error] {
	return future.Then(netio.WriteAll(o.sock, o.wb, *o.buf), func(err error) future.Future[error] {
		if err != nil {
			return future.Ready(err)
		}
		return future.Map(netio.Flush(o.sock, o.wb), func(err error) error {
			if err == nil {
				*o.buf = (*o.buf)[:0]
			}
			return err
		})
	})
}

func (o *output) release() {
	pools.ReleaseBuffer(o.buf)
	o.buf = nil
}

// Stream is the handle a Handler writes its response through.
//
// Every operation takes exclusive hold of the underlying connection for its
// duration, including a Send across its suspensions. Overlapping use is a
// programming error: Send reports ErrStreamBusy and the Push methods panic.
type Stream struct {
	busy atomic.Bool
	out  *output
}

func newStream(out *output) *Stream {
	return &Stream{out: out}
}

func (s *Stream) acquire(op string) *output {
	if !s.busy.CompareAndSwap(false, true) {
		panic("http: " + op + " on a stream that is in use")
	}
	if s.out == nil {
		s.busy.Store(false)
		panic("http: " + op + " on a stream whose handler has returned")
	}
	return s.out
}

// PushStr appends UTF-8 text to the pending output.
func (s *Stream) PushStr(text string) {
	out := s.acquire("PushStr")
	defer s.busy.Store(false)
	out.pushStr(text)
}

// PushData appends raw bytes to the pending output.
func (s *Stream) PushData(data []byte) {
	out := s.acquire("PushData")
	defer s.busy.Store(false)
	out.pushData(data)
}

// Send writes and flushes all pending output. The returned error reports a
// transport failure, after which the connection is unusable.
func (s *Stream) Send() future.Future[error] {
	return &sendFuture{s: s}
}

type sendFuture struct {
	s     *Stream
	inner future.Future[error]
}

func (f *sendFuture) Poll(w future.Waker) (error, bool) {
	if f.inner == nil {
		if !f.s.busy.CompareAndSwap(false, true) {
			return ErrStreamBusy, true
		}
		if f.s.out == nil {
			f.s.busy.Store(false)
			return errors.New("http: send on a stream whose handler has returned"), true
		}
		f.inner = f.s.out.send()
	}
	err, ok := f.inner.Poll(w)
	if !ok {
		return nil, false
	}
	f.s.busy.Store(false)
	return err, true
}

// detach takes the output back from the handler's stream.
func (s *Stream) detach() (*output, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrStreamBusy
	}
	out := s.out
	s.out = nil
	s.busy.Store(false)
	return out, nil
}
