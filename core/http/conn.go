// Package http serves the GET-only HTTP/1.1 subset: it parses a request
// line, routes it to a handler or the static root, and writes the response.
package http

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/searchktools/tinyweb/core/future"
	"github.com/searchktools/tinyweb/core/netio"
	"github.com/searchktools/tinyweb/core/poller"
	"github.com/searchktools/tinyweb/core/router"
	"github.com/searchktools/tinyweb/core/static"
)

// Site is the read-only routing state shared by every connection.
type Site struct {
	Routes *router.Table[Handler]
	Root   static.Root
}

type connState uint8

const (
	stateAwaitHeader connState = iota
	stateSending
	stateHandler
	stateDone
)

// Conn drives one connection from its first read to close. It is an
// executor job: polling it advances through the states, and Abort closes
// the socket wherever it stands.
type Conn struct {
	state   connState
	sock    *netio.Socket
	poller  *poller.Poller
	rb      *poller.Binding
	site    *Site
	log     *zap.Logger
	buf     []byte
	out     *output
	stream  *Stream
	pending future.Future[error]
}

// NewConn takes ownership of sock and starts by reading the request.
func NewConn(sock *netio.Socket, p *poller.Poller, site *Site, log *zap.Logger) *Conn {
	c := &Conn{
		sock:   sock,
		poller: p,
		site:   site,
		log:    log.With(zap.Int("fd", sock.Fd())),
	}
	c.rb = sock.Bind(p, poller.Readable)
	c.pending = netio.ReadUntilShort(sock, c.rb, &c.buf)
	return c
}

// Poll advances the connection. It completes exactly once, whichever way
// the connection ends.
func (c *Conn) Poll(w future.Waker) (struct{}, bool) {
	for {
		switch c.state {
		case stateAwaitHeader:
			err, ok := c.pending.Poll(w)
			if !ok {
				return struct{}{}, false
			}
			if rerr := c.rb.Release(); rerr != nil {
				c.log.Warn("release read binding", zap.Error(rerr))
			}
			if err != nil {
				c.logFailure("read request", err)
				return c.finish()
			}
			if !c.route() {
				return c.finish()
			}

		case stateSending:
			err, ok := c.pending.Poll(w)
			if !ok {
				return struct{}{}, false
			}
			if err != nil {
				c.logFailure("send response", err)
			}
			return c.finish()

		case stateHandler:
			err, ok := c.pending.Poll(w)
			if !ok {
				return struct{}{}, false
			}
			if err != nil {
				c.logFailure("handler", err)
				return c.finish()
			}
			if _, derr := c.stream.detach(); derr != nil {
				c.log.Error("handler returned with a send in flight", zap.Error(derr))
				return c.finish()
			}
			if c.out.pending() == 0 {
				return c.finish()
			}
			c.pending = c.out.send()
			c.state = stateSending

		case stateDone:
			return struct{}{}, true
		}
	}
}

// route validates the request line and picks the response. It returns
// false when the connection is to be dropped without a response.
func (c *Conn) route() bool {
	path, err := ParseRequestLine(c.buf)
	if err != nil {
		c.log.Debug("malformed request", zap.Error(err))
		return false
	}
	c.log.Debug("request", zap.String("path", path))

	c.out = newOutput(c.sock, c.poller)
	if path == "/" {
		body, err := c.site.Root.Index()
		c.serveStatic(body, err)
		return true
	}
	if r, ok := c.site.Routes.Lookup(path); ok {
		*c.out.buf = appendHead(*c.out.buf, statusOK, r.ContentType)
		c.stream = newStream(c.out)
		c.pending = r.Handler(c.stream)
		if c.pending == nil {
			c.log.Error("handler returned no future", zap.String("path", path))
			return false
		}
		c.state = stateHandler
		return true
	}
	body, err := c.site.Root.Page(path)
	c.serveStatic(body, err)
	return true
}

// serveStatic queues a static page, or the 404 page when the lookup
// failed, and starts sending it.
func (c *Conn) serveStatic(body []byte, err error) {
	status := statusOK
	if err != nil {
		status = statusNotFound
		body = c.site.Root.NotFound()
	}
	*c.out.buf = appendHead(*c.out.buf, status, router.DefaultContentType)
	c.out.pushData(body)
	c.pending = c.out.send()
	c.state = stateSending
}

func (c *Conn) logFailure(what string, err error) {
	if errors.Is(err, netio.ErrPeerClosed) {
		c.log.Debug(what, zap.Error(err))
		return
	}
	c.log.Warn(what, zap.Error(err))
}

func (c *Conn) finish() (struct{}, bool) {
	c.close()
	return struct{}{}, true
}

// Abort closes the connection without finishing the response.
func (c *Conn) Abort() {
	if c.state != stateDone {
		c.log.Debug("aborted")
	}
	c.close()
}

func (c *Conn) close() {
	if c.state == stateDone {
		return
	}
	c.state = stateDone
	if err := c.sock.Close(); err != nil {
		c.log.Warn("close", zap.Error(err))
	}
	if c.out != nil {
		c.out.release()
	}
}
