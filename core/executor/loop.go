package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/searchktools/tinyweb/core/future"
)

type signalKind uint8

const (
	// signalQuit ends the loop.
	signalQuit signalKind = iota
	// signalNewTask carries a job to start polling.
	signalNewTask
	// signalOldTask reports that a job finished.
	signalOldTask
)

// signal is what every future inside one loop resolves to.
type signal struct {
	kind signalKind
	job  Job
}

// Loop multiplexes one "receive next message" future with every job in
// flight on this worker.
type Loop struct {
	mb     *Mailbox
	tasks  future.Set[signal]
	onDone func()
	log    *zap.Logger
	jobs   int
}

// NewLoop builds a loop reading from mb. onDone runs once for every job
// that leaves the loop, completed or aborted.
func NewLoop(mb *Mailbox, onDone func(), log *zap.Logger) *Loop {
	l := &Loop{mb: mb, onDone: onDone, log: log}
	l.tasks.Push(l.recv())
	return l
}

func (l *Loop) recv() future.Future[signal] {
	return future.Map(l.mb.Recv(), func(m Message) signal {
		if m.IsTerminate() {
			return signal{kind: signalQuit}
		}
		return signal{kind: signalNewTask, job: m.Job()}
	})
}

// Poll advances the loop; it completes only after Terminate was received.
func (l *Loop) Poll(w future.Waker) (struct{}, bool) {
	for {
		sig, ok := l.tasks.Poll(w)
		if !ok {
			return struct{}{}, false
		}
		switch sig.kind {
		case signalNewTask:
			// The receive future that produced sig is gone; re-arm first.
			l.tasks.Push(l.recv())
			l.tasks.Push(&guarded{job: sig.job, log: l.log})
			l.jobs++
		case signalOldTask:
			l.jobs--
			l.onDone()
		case signalQuit:
			l.abortAll()
			return struct{}{}, true
		}
	}
}

// abortAll closes every job still pending so no socket outlives the loop.
func (l *Loop) abortAll() {
	for _, f := range l.tasks.Drain() {
		g, ok := f.(*guarded)
		if !ok {
			continue
		}
		g.abort()
		l.jobs--
		l.onDone()
	}
	if l.jobs != 0 {
		l.log.DPanic("job count out of balance at shutdown", zap.Int("jobs", l.jobs))
	}
}

// Run drives the loop on the calling goroutine until it quits.
func (l *Loop) Run() {
	_, _ = future.BlockOn[struct{}](context.Background(), l)
}

// guarded runs a job and turns its completion, or a panic while polling
// it, into signalOldTask.
type guarded struct {
	job  Job
	log  *zap.Logger
	done bool
}

func (g *guarded) Poll(w future.Waker) (sig signal, ready bool) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("job panicked", zap.String("panic", fmt.Sprint(r)))
			g.abort()
			sig, ready = signal{kind: signalOldTask}, true
		}
	}()
	if _, ok := g.job.Poll(w); ok {
		g.done = true
		return signal{kind: signalOldTask}, true
	}
	return signal{}, false
}

func (g *guarded) abort() {
	if g.done {
		return
	}
	g.done = true
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("job abort panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	g.job.Abort()
}
