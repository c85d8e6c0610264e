//go:build unix

package netio

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"github.com/searchktools/tinyweb/core/future"
	"github.com/searchktools/tinyweb/core/poller"
)

func socketPair(t *testing.T) (*Socket, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	s := NewSocket(fds[0])
	t.Cleanup(func() {
		s.Close()
		unix.Close(fds[1])
	})
	return s, fds[1]
}

func newPoller(t *testing.T) *poller.Poller {
	t.Helper()
	p, err := poller.New(zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestReadUntilShort(t *testing.T) {
	p := newPoller(t)
	s, peer := socketPair(t)

	_, err := unix.Write(peer, []byte("GET / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	var buf []byte
	err, ok := ReadUntilShort(s, s.Bind(p, poller.Readable), &buf).Poll(future.NewParker())
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, "GET / HTTP/1.1\r\n\r\n", string(buf))
}

func TestReadUntilShortWaitsAfterFullChunk(t *testing.T) {
	p := newPoller(t)
	s, peer := socketPair(t)
	full := bytes.Repeat([]byte("a"), ReadChunk)
	_, err := unix.Write(peer, full)
	require.NoError(t, err)

	var buf []byte
	read := ReadUntilShort(s, s.Bind(p, poller.Readable), &buf)
	parker := future.NewParker()
	_, ok := read.Poll(parker)
	require.False(t, ok, "a full chunk is not the end of the data")
	assert.Len(t, buf, ReadChunk)

	_, err = unix.Write(peer, []byte("bc"))
	require.NoError(t, err)
	select {
	case <-parker.C():
	case <-time.After(2 * time.Second):
		t.Fatal("no wake after more data arrived")
	}
	err, ok = read.Poll(parker)
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, string(full)+"bc", string(buf))
}

func TestReadUntilShortPeerClosed(t *testing.T) {
	p := newPoller(t)
	s, peer := socketPair(t)
	require.NoError(t, unix.Shutdown(peer, unix.SHUT_WR))

	var buf []byte
	err, ok := ReadUntilShort(s, s.Bind(p, poller.Readable), &buf).Poll(future.NewParker())
	require.True(t, ok)
	assert.ErrorIs(t, err, ErrPeerClosed)
}

func TestWriteAllResumesPartialWrites(t *testing.T) {
	p := newPoller(t)
	s, peer := socketPair(t)
	require.NoError(t, unix.SetsockoptInt(s.Fd(), unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))

	data := bytes.Repeat([]byte("0123456789"), 100_000)
	received := make(chan []byte, 1)
	go func() {
		var got []byte
		chunk := make([]byte, 64<<10)
		for len(got) < len(data) {
			n, err := unix.Read(peer, chunk)
			if err != nil || n == 0 {
				break
			}
			got = append(got, chunk[:n]...)
		}
		received <- got
	}()

	ctx := t.Context()
	err, berr := future.BlockOn(ctx, WriteAll(s, s.Bind(p, poller.Writable), data))
	require.NoError(t, berr)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, <-received))
}

func TestWriteAllReportsOpError(t *testing.T) {
	p := newPoller(t)
	s, peer := socketPair(t)
	require.NoError(t, unix.Close(peer))

	err, ok := WriteAll(s, s.Bind(p, poller.Writable), []byte("x")).Poll(future.NewParker())
	require.True(t, ok)
	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "write", opErr.Op)
	assert.ErrorIs(t, err, unix.EPIPE)
}

func TestFlushOnNonTCPSocket(t *testing.T) {
	p := newPoller(t)
	s, _ := socketPair(t)
	err, ok := Flush(s, s.Bind(p, poller.Writable)).Poll(future.NewParker())
	require.True(t, ok)
	assert.NoError(t, err)
}

func TestSocketCloseReleasesBindings(t *testing.T) {
	p := newPoller(t)
	s, _ := socketPair(t)
	rb := s.Bind(p, poller.Readable)
	require.NoError(t, rb.Register(future.NewParker()))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Panics(t, func() { rb.Register(future.NewParker()) })
	assert.Panics(t, func() { s.Bind(p, poller.Writable) })
}

func TestListenerAccept(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = ln.Accept()
	require.True(t, IsWouldBlock(err), "got %v", err)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	var s *Socket
	require.Eventually(t, func() bool {
		s, err = ln.Accept()
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
	defer s.Close()

	nodelay, err := unix.GetsockoptInt(s.Fd(), unix.IPPROTO_TCP, unix.TCP_NODELAY)
	require.NoError(t, err)
	assert.Equal(t, 1, nodelay)
	flags, err := unix.FcntlInt(uintptr(s.Fd()), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.O_NONBLOCK)
}

func TestIsTransientAccept(t *testing.T) {
	assert.True(t, IsTransientAccept(unix.ECONNABORTED))
	assert.True(t, IsTransientAccept(errors.Wrap(unix.EMFILE, "accept")))
	assert.False(t, IsTransientAccept(unix.EBADF))
	assert.False(t, IsTransientAccept(nil))
}
