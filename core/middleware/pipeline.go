// Package middleware wraps route handlers with cross-cutting behavior.
package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/searchktools/tinyweb/core/future"
	"github.com/searchktools/tinyweb/core/http"
	"github.com/searchktools/tinyweb/core/observability"
)

var (
	ErrPanic       = errors.New("middleware: handler panicked")
	ErrRateLimited = errors.New("middleware: rate limit exceeded")
)

// Middleware wraps next, the handler registered for route.
type Middleware func(route string, next http.Handler) http.Handler

// Pipeline is an ordered list of middlewares. The first one added is the
// outermost.
type Pipeline struct {
	mws []Middleware
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{mws: make([]Middleware, 0, 8)}
}

// Use adds a middleware to the pipeline
func (p *Pipeline) Use(mw Middleware) *Pipeline {
	p.mws = append(p.mws, mw)
	return p
}

// Len returns the number of middlewares.
func (p *Pipeline) Len() int { return len(p.mws) }

// Wrap applies the pipeline to h.
func (p *Pipeline) Wrap(route string, h http.Handler) http.Handler {
	for i := len(p.mws) - 1; i >= 0; i-- {
		h = p.mws[i](route, h)
	}
	return h
}

// observe calls done with the outcome of f once it completes.
func observe(f future.Future[error], done func(error)) future.Future[error] {
	return future.Map(f, func(err error) error {
		done(err)
		return err
	})
}

// Recovery turns a panicking handler, whether it panics when called or
// while being polled, into a handler error for its connection.
func Recovery(log *zap.Logger) Middleware {
	return func(route string, next http.Handler) http.Handler {
		return func(s *http.Stream) (f future.Future[error]) {
			defer func() {
				if v := recover(); v != nil {
					f = future.Ready(panicked(log, route, v))
				}
			}()
			return &recovered{f: next(s), route: route, log: log}
		}
	}
}

type recovered struct {
	f     future.Future[error]
	route string
	log   *zap.Logger
}

func (r *recovered) Poll(w future.Waker) (err error, ok bool) {
	defer func() {
		if v := recover(); v != nil {
			err, ok = panicked(r.log, r.route, v), true
		}
	}()
	return r.f.Poll(w)
}

func panicked(log *zap.Logger, route string, v any) error {
	log.Error("handler panicked", zap.String("route", route), zap.String("panic", fmt.Sprint(v)))
	return errors.Wrapf(ErrPanic, "%s: %v", route, v)
}

// Logger logs each handler run with its duration, at debug on success and
// at warn on failure.
func Logger(log *zap.Logger) Middleware {
	return func(route string, next http.Handler) http.Handler {
		return func(s *http.Stream) future.Future[error] {
			start := time.Now()
			return observe(next(s), func(err error) {
				fields := []zap.Field{zap.String("route", route), zap.Duration("took", time.Since(start))}
				if err != nil {
					log.Warn("handler failed", append(fields, zap.Error(err))...)
					return
				}
				log.Debug("handled", fields...)
			})
		}
	}
}

// Metrics records every handler run in m.
func Metrics(m *observability.Monitor) Middleware {
	return func(route string, next http.Handler) http.Handler {
		return func(s *http.Stream) future.Future[error] {
			start := time.Now()
			return observe(next(s), func(err error) {
				m.Record(route, time.Since(start), err)
			})
		}
	}
}

// RateLimiter allows requestsPerSecond handler runs per route each second.
// Requests over the limit fail with ErrRateLimited, so their connection is
// closed without a response.
func RateLimiter(requestsPerSecond int) Middleware {
	return rateLimiter(requestsPerSecond, time.Now)
}

func rateLimiter(requestsPerSecond int, now func() time.Time) Middleware {
	return func(route string, next http.Handler) http.Handler {
		var (
			mu         sync.Mutex
			tokens     = requestsPerSecond
			lastRefill = now()
		)
		return func(s *http.Stream) future.Future[error] {
			mu.Lock()
			if t := now(); t.Sub(lastRefill) >= time.Second {
				tokens = requestsPerSecond
				lastRefill = t
			}
			allowed := tokens > 0
			if allowed {
				tokens--
			}
			mu.Unlock()

			if !allowed {
				return future.Ready(errors.Wrapf(ErrRateLimited, "%s", route))
			}
			return next(s)
		}
	}
}
