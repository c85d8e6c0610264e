// Package core is the embedded HTTP engine: route registration, the
// acceptor, and the serve loop that ties the poller, the thread pool and
// the connection handler together.
package core

import (
	"context"
	"net"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/searchktools/tinyweb/core/codec"
	"github.com/searchktools/tinyweb/core/future"
	"github.com/searchktools/tinyweb/core/http"
	"github.com/searchktools/tinyweb/core/middleware"
	"github.com/searchktools/tinyweb/core/netio"
	"github.com/searchktools/tinyweb/core/poller"
	"github.com/searchktools/tinyweb/core/pools"
	"github.com/searchktools/tinyweb/core/router"
	"github.com/searchktools/tinyweb/core/static"
)

// ErrServing is returned when routes are changed, or Serve is called,
// after the engine has started serving.
var ErrServing = errors.New("core: engine is already serving")

// Engine serves a static root plus registered handlers. Register routes,
// then call Serve or ListenAndServe once.
type Engine struct {
	log  *zap.Logger
	root static.Root

	mu      sync.Mutex
	routes  *router.Builder[http.Handler]
	mws     *middleware.Pipeline
	serving bool
	addr    net.Addr
	pool    *pools.ThreadPool
	acc     *acceptor
	ready   chan struct{}
}

// NewEngine returns an engine serving static pages from root.
func NewEngine(root string, log *zap.Logger) *Engine {
	return &Engine{
		log:    log.Named("engine"),
		root:   static.NewRoot(root),
		routes: router.NewBuilder[http.Handler](),
		mws:    middleware.NewPipeline(),
		ready:  make(chan struct{}),
	}
}

// Handle registers h for path with the default content type.
func (e *Engine) Handle(path string, h http.Handler) error {
	return e.HandleWithType(path, h, "")
}

// HandleWithType registers h for path, answered with contentType.
func (e *Engine) HandleWithType(path string, h http.Handler, contentType string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.serving {
		return errors.Wrapf(ErrServing, "register %s", path)
	}
	return e.routes.Add(path, contentType, h)
}

// Use appends middlewares that wrap every route handler, whenever the
// route was registered. The first middleware added is the outermost.
func (e *Engine) Use(mws ...middleware.Middleware) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.serving {
		return errors.Wrap(ErrServing, "add middleware")
	}
	for _, mw := range mws {
		e.mws.Use(mw)
	}
	return nil
}

// HandleEncoded registers a route whose body is the value returned by fn,
// encoded with c and labelled with its content type.
func (e *Engine) HandleEncoded(path string, c codec.Codec, fn func() (any, error)) error {
	return e.HandleWithType(path, http.Encoded(c, fn), c.ContentType())
}

// Addr returns the listening address once serving has started, else nil.
func (e *Engine) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addr
}

// Ready is closed once the engine accepts connections.
func (e *Engine) Ready() <-chan struct{} { return e.ready }

// ListenAndServe listens on addr and serves until ctx is done.
func (e *Engine) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := netio.Listen(addr)
	if err != nil {
		return err
	}
	return e.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or accepting fails,
// then stops the workers, aborting connections still in flight. It takes
// ownership of ln. Shutdown through ctx returns nil.
func (e *Engine) Serve(ctx context.Context, ln *netio.Listener) error {
	site, err := e.start(ln)
	if err != nil {
		ln.Close()
		return err
	}

	p, err := poller.New(e.log)
	if err != nil {
		ln.Close()
		return err
	}
	pool := pools.NewThreadPool(e.log)
	acc := newAcceptor(ln, p, pool, site, e.log)

	e.mu.Lock()
	e.pool, e.acc = pool, acc
	e.mu.Unlock()
	close(e.ready)

	e.log.Info("serving",
		zap.Stringer("addr", ln.Addr()),
		zap.String("root", e.root.Dir()),
		zap.Strings("routes", site.Routes.Paths()),
		zap.Int("workers", pools.NumWorkers),
	)

	// BlockOn fails only once ctx is done, which is the normal way out.
	acceptErr, _ := future.BlockOn[error](ctx, acc)
	acc.stop()

	pool.Close()
	if cerr := ln.Close(); cerr != nil {
		e.log.Warn("close listener", zap.Error(cerr))
	}
	if cerr := p.Close(); cerr != nil {
		e.log.Warn("close poller", zap.Error(cerr))
	}

	if acceptErr != nil {
		e.log.Error("accept loop failed", zap.Error(acceptErr))
		return acceptErr
	}
	e.log.Info("stopped", zap.Uint64("accepted", acc.accepted.Load()))
	return nil
}

// start freezes the route table, applies the middlewares, and marks the
// engine as serving.
func (e *Engine) start(ln *netio.Listener) (*http.Site, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.serving {
		return nil, ErrServing
	}
	e.serving = true
	e.addr = ln.Addr()

	routes := e.routes.Build()
	if e.mws.Len() > 0 {
		routes = routes.Wrap(func(r router.Route[http.Handler]) http.Handler {
			return e.mws.Wrap(r.Path, r.Handler)
		})
	}
	return &http.Site{Routes: routes, Root: e.root}, nil
}
