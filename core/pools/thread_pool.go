package pools

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/searchktools/tinyweb/core/executor"
)

// NumWorkers is the fixed size of the engine's thread pool.
const NumWorkers = 4

// ErrPoolClosed is returned when dispatching to a pool that has shut down.
var ErrPoolClosed = errors.New("pools: thread pool closed")

// ThreadPool runs one cooperative executor loop per worker thread and hands
// each new job to the least loaded worker.
type ThreadPool struct {
	workers []*worker
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool

	// Statistics
	stats struct {
		dispatched atomic.Uint64
		completed  atomic.Uint64
	}
}

// worker is the pool's handle on one thread.
type worker struct {
	id      int
	tasks   atomic.Int64
	mailbox *executor.Mailbox
	done    chan struct{}
}

// NewThreadPool starts the engine's fixed set of workers.
func NewThreadPool(log *zap.Logger) *ThreadPool {
	return newThreadPool(NumWorkers, log)
}

func newThreadPool(n int, log *zap.Logger) *ThreadPool {
	pool := &ThreadPool{
		workers: make([]*worker, n),
		log:     log.Named("pool"),
	}
	for i := range pool.workers {
		w := &worker{
			id:      i,
			mailbox: executor.NewMailbox(),
			done:    make(chan struct{}),
		}
		pool.workers[i] = w
		go pool.run(w)
	}
	return pool
}

// run is the body of one worker thread.
func (p *ThreadPool) run(w *worker) {
	// Each loop stays on its own OS thread for its whole life.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	log := p.log.Named("worker").With(zap.Int("worker", w.id))
	loop := executor.NewLoop(w.mailbox, func() { p.finish(w, log) }, log)
	log.Debug("worker started")
	loop.Run()
	log.Debug("worker stopped")
}

func (p *ThreadPool) finish(w *worker, log *zap.Logger) {
	p.stats.completed.Add(1)
	if n := w.tasks.Add(-1); n < 0 {
		log.DPanic("task counter went negative", zap.Int64("tasks", n))
	}
}

// Dispatch sends job to the worker with the fewest tasks in flight, the
// lowest index winning ties, and returns that worker's index. The counter
// is a load estimate: concurrent dispatches may pick the same worker.
func (p *ThreadPool) Dispatch(job executor.Job) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		job.Abort()
		return -1, ErrPoolClosed
	}

	target := p.workers[0]
	least := target.tasks.Load()
	for _, w := range p.workers[1:] {
		if n := w.tasks.Load(); n < least {
			target, least = w, n
		}
	}

	target.tasks.Add(1)
	p.stats.dispatched.Add(1)
	target.mailbox.Send(executor.NewJob(job))
	return target.id, nil
}

// Loads returns each worker's current task count, in worker order.
func (p *ThreadPool) Loads() []int64 {
	out := make([]int64, len(p.workers))
	for i, w := range p.workers {
		out[i] = w.tasks.Load()
	}
	return out
}

// Close sends Terminate to every worker and waits until all of them have
// exited. Jobs still in flight are aborted by their loops.
func (p *ThreadPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, w := range p.workers {
		w.mailbox.Send(executor.Terminate())
	}
	p.mu.Unlock()

	for _, w := range p.workers {
		<-w.done
	}
	p.log.Info("thread pool stopped", zap.Uint64("dispatched", p.stats.dispatched.Load()))
}

// Stats returns pool statistics
func (p *ThreadPool) Stats() ThreadPoolStats {
	dispatched := p.stats.dispatched.Load()
	completed := p.stats.completed.Load()
	return ThreadPoolStats{
		NumWorkers: len(p.workers),
		Dispatched: dispatched,
		Completed:  completed,
		InFlight:   dispatched - completed,
	}
}

// ThreadPoolStats contains pool statistics
type ThreadPoolStats struct {
	NumWorkers int
	Dispatched uint64
	Completed  uint64
	InFlight   uint64
}
