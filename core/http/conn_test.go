package http

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"github.com/searchktools/tinyweb/core/codec"
	"github.com/searchktools/tinyweb/core/future"
	"github.com/searchktools/tinyweb/core/netio"
	"github.com/searchktools/tinyweb/core/poller"
	"github.com/searchktools/tinyweb/core/router"
	"github.com/searchktools/tinyweb/core/static"
)

const htmlType = "text/html; charset=utf-8"

type harness struct {
	t      *testing.T
	poller *poller.Poller
	server int
	client int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	p, err := poller.New(zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	t.Cleanup(func() { unix.Close(fds[1]) })
	return &harness{t: t, poller: p, server: fds[0], client: fds[1]}
}

func (h *harness) conn(site *Site) *Conn {
	return NewConn(netio.NewSocket(h.server), h.poller, site, zaptest.NewLogger(h.t))
}

func (h *harness) send(request string) {
	_, err := unix.Write(h.client, []byte(request))
	require.NoError(h.t, err)
}

func (h *harness) run(c *Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := future.BlockOn[struct{}](ctx, c)
	require.NoError(h.t, err)
}

// response reads until the server side has closed.
func (h *harness) response() string {
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(h.client, buf)
		require.NoError(h.t, err)
		if n == 0 {
			return string(out)
		}
		out = append(out, buf[:n]...)
	}
}

func (h *harness) roundTrip(site *Site, request string) string {
	h.send(request)
	h.run(h.conn(site))
	return h.response()
}

func newSite(t *testing.T, files map[string]string, routes func(b *router.Builder[Handler])) *Site {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	b := router.NewBuilder[Handler]()
	if routes != nil {
		routes(b)
	}
	return &Site{Routes: b.Build(), Root: static.NewRoot(dir)}
}

func TestServeIndex(t *testing.T) {
	site := newSite(t, map[string]string{"index.html": "<h1>hi</h1>"}, nil)
	got := newHarness(t).roundTrip(site, "GET / HTTP/1.1\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 200 OK\nContent-Type: "+htmlType+"\r\n\r\n<h1>hi</h1>", got)
}

func TestServeIndexMissing(t *testing.T) {
	site := newSite(t, map[string]string{"404.html": "nope"}, nil)
	got := newHarness(t).roundTrip(site, "GET / HTTP/1.1\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 404 NOT FOUND\nContent-Type: "+htmlType+"\r\n\r\nnope", got)
}

func TestServeStaticPage(t *testing.T) {
	site := newSite(t, map[string]string{"about.html": "about us"}, nil)
	got := newHarness(t).roundTrip(site, "GET /about.html HTTP/1.1\r\nHost: x\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 200 OK\nContent-Type: "+htmlType+"\r\n\r\nabout us", got)
}

func TestServeNotFound(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		body  string
	}{
		{"custom page", map[string]string{"404.html": "<p>missing</p>"}, "<p>missing</p>"},
		{"fallback text", nil, "404 NOT FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := newSite(t, tt.files, nil)
			got := newHarness(t).roundTrip(site, "GET /nothing HTTP/1.1\r\n\r\n")
			assert.Equal(t, "HTTP/1.1 404 NOT FOUND\nContent-Type: "+htmlType+"\r\n\r\n"+tt.body, got)
		})
	}
}

func TestServeRoute(t *testing.T) {
	site := newSite(t, map[string]string{"api": "static file must lose"}, func(b *router.Builder[Handler]) {
		require.NoError(t, b.Add("/api", "application/json", Respond(func(s *Stream) error {
			s.PushStr("{}")
			return nil
		})))
	})
	got := newHarness(t).roundTrip(site, "GET /api HTTP/1.1\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 200 OK\nContent-Type: application/json\r\n\r\n{}", got)
}

func TestServeEncodedRoute(t *testing.T) {
	site := newSite(t, nil, func(b *router.Builder[Handler]) {
		c := codec.JSON{}
		require.NoError(t, b.Add("/status", c.ContentType(), Encoded(c, func() (any, error) {
			return map[string]string{"status": "ok"}, nil
		})))
	})
	got := newHarness(t).roundTrip(site, "GET /status HTTP/1.1\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 200 OK\nContent-Type: application/json\r\n\r\n{\"status\":\"ok\"}", got)
}

func TestHandlerMultipleSends(t *testing.T) {
	site := newSite(t, nil, func(b *router.Builder[Handler]) {
		require.NoError(t, b.Add("/chunks", "text/plain", func(s *Stream) future.Future[error] {
			s.PushStr("one,")
			return future.Then(s.Send(), func(err error) future.Future[error] {
				if err != nil {
					return future.Ready(err)
				}
				s.PushStr("two")
				return s.Send()
			})
		}))
	})
	got := newHarness(t).roundTrip(site, "GET /chunks HTTP/1.1\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 200 OK\nContent-Type: text/plain\r\n\r\none,two", got)
}

func TestHandlerPendingOutputIsFlushed(t *testing.T) {
	site := newSite(t, nil, func(b *router.Builder[Handler]) {
		require.NoError(t, b.Add("/lazy", "", func(s *Stream) future.Future[error] {
			s.PushStr("late")
			return future.Ready[error](nil)
		}))
	})
	got := newHarness(t).roundTrip(site, "GET /lazy HTTP/1.1\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 200 OK\nContent-Type: "+htmlType+"\r\n\r\nlate", got)
}

func TestHandlerFailureClosesConnection(t *testing.T) {
	site := newSite(t, nil, func(b *router.Builder[Handler]) {
		require.NoError(t, b.Add("/fail", "", Respond(func(s *Stream) error {
			s.PushStr("partial")
			return errors.New("backend down")
		})))
	})
	got := newHarness(t).roundTrip(site, "GET /fail HTTP/1.1\r\n\r\n")
	assert.Empty(t, got)
}

func TestMalformedRequestsGetNoResponse(t *testing.T) {
	site := newSite(t, map[string]string{"index.html": "home"}, nil)
	for name, req := range map[string]string{
		"post":           "POST / HTTP/1.1\r\n\r\n",
		"lowercase get":  "get / HTTP/1.1\r\n\r\n",
		"no path space":  "GET /",
		"http/1.0":       "GET / HTTP/1.0\r\n\r\n",
		"bare newline":   "GET / HTTP/1.1\n\n",
		"invalid utf-8":  "GET /\xff\xfe HTTP/1.1\r\n\r\n",
		"missing method": "/ HTTP/1.1\r\n\r\n",
	} {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, newHarness(t).roundTrip(site, req))
		})
	}
}

func TestPeerClosedBeforeRequest(t *testing.T) {
	site := newSite(t, nil, nil)
	h := newHarness(t)
	require.NoError(t, unix.Shutdown(h.client, unix.SHUT_WR))
	h.run(h.conn(site))
	assert.Empty(t, h.response())
}

func TestRequestArrivesLater(t *testing.T) {
	site := newSite(t, map[string]string{"index.html": "later"}, nil)
	h := newHarness(t)
	go func() {
		time.Sleep(20 * time.Millisecond)
		h.send("GET / HTTP/1.1\r\n\r\n")
	}()
	h.run(h.conn(site))
	assert.Equal(t, "HTTP/1.1 200 OK\nContent-Type: "+htmlType+"\r\n\r\nlater", h.response())
}

func TestAbortClosesSocket(t *testing.T) {
	site := newSite(t, nil, nil)
	h := newHarness(t)
	c := h.conn(site)

	_, ok := c.Poll(future.NewParker())
	require.False(t, ok)
	c.Abort()
	c.Abort()

	assert.Empty(t, h.response())
	_, ok = c.Poll(future.NewParker())
	assert.True(t, ok)
}
