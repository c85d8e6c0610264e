package core

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/searchktools/tinyweb/core/future"
	"github.com/searchktools/tinyweb/core/http"
	"github.com/searchktools/tinyweb/core/netio"
	"github.com/searchktools/tinyweb/core/poller"
	"github.com/searchktools/tinyweb/core/pools"
)

// acceptor drains the listener each time it becomes readable and hands
// every new connection to the thread pool. It completes only on failure.
type acceptor struct {
	ln      *netio.Listener
	rb      *poller.Binding
	poller  *poller.Poller
	pool    *pools.ThreadPool
	site    *http.Site
	log     *zap.Logger
	connLog *zap.Logger

	accepted atomic.Uint64
	dropped  atomic.Uint64

	// delay is the current backoff after a transient accept error; zero
	// while accepts succeed. Only the polling goroutine touches it.
	delay time.Duration
	timer *time.Timer
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

func newAcceptor(ln *netio.Listener, p *poller.Poller, pool *pools.ThreadPool, site *http.Site, log *zap.Logger) *acceptor {
	return &acceptor{
		ln:      ln,
		rb:      ln.Socket().Bind(p, poller.Readable),
		poller:  p,
		pool:    pool,
		site:    site,
		log:     log.Named("acceptor"),
		connLog: log.Named("conn"),
	}
}

func (a *acceptor) Poll(w future.Waker) (error, bool) {
	for {
		sock, err := a.ln.Accept()
		switch {
		case err == nil:
			a.delay = 0
			a.accepted.Add(1)
			conn := http.NewConn(sock, a.poller, a.site, a.connLog)
			if _, err := a.pool.Dispatch(conn); err != nil {
				return errors.Wrap(err, "core: dispatch connection"), true
			}
			continue
		case netio.IsWouldBlock(err):
			a.delay = 0
		case netio.IsTransientAccept(err):
			// The listener stays readable while the connection is queued,
			// so re-arming now would spin. Wait out the delay instead.
			a.dropped.Add(1)
			a.backoff(w, err)
			return nil, false
		default:
			return errors.Wrap(err, "core: accept"), true
		}

		if err := a.rb.Register(w); err != nil {
			return errors.Wrap(err, "core: wait for connections"), true
		}
		return nil, false
	}
}

// backoff schedules w after a doubling delay capped at maxAcceptDelay. The
// warning is logged once per step, so at most once a second at the cap.
func (a *acceptor) backoff(w future.Waker, err error) {
	if a.delay == 0 {
		a.delay = minAcceptDelay
	} else if a.delay < maxAcceptDelay {
		a.delay = min(a.delay*2, maxAcceptDelay)
	}
	a.log.Warn("accept failed, retrying",
		zap.Error(err),
		zap.Duration("delay", a.delay),
		zap.Uint64("dropped", a.dropped.Load()),
	)
	a.timer = time.AfterFunc(a.delay, w.Wake)
}

// stop cancels a pending backoff wake.
func (a *acceptor) stop() {
	if a.timer != nil {
		a.timer.Stop()
	}
}
