package executor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/searchktools/tinyweb/core/future"
)

// testJob completes once released and records aborts.
type testJob struct {
	mu       sync.Mutex
	released bool
	waker    future.Waker
	aborted  atomic.Bool
	panics   bool
}

func (j *testJob) Poll(w future.Waker) (struct{}, bool) {
	if j.panics {
		panic("boom")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.released {
		return struct{}{}, true
	}
	j.waker = w
	return struct{}{}, false
}

func (j *testJob) Abort() { j.aborted.Store(true) }

func (j *testJob) release() {
	j.mu.Lock()
	j.released = true
	w := j.waker
	j.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}

func startLoop(t *testing.T) (*Mailbox, *atomic.Int64, chan struct{}) {
	t.Helper()
	mb := NewMailbox()
	var done atomic.Int64
	exited := make(chan struct{})
	l := NewLoop(mb, func() { done.Add(1) }, zaptest.NewLogger(t))
	go func() {
		defer close(exited)
		l.Run()
	}()
	return mb, &done, exited
}

func waitExit(t *testing.T, exited chan struct{}) {
	t.Helper()
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
	}
}

func TestMailboxFIFO(t *testing.T) {
	mb := NewMailbox()
	a, b := &testJob{}, &testJob{}
	mb.Send(NewJob(a))
	mb.Send(NewJob(b))
	mb.Send(Terminate())
	require.Equal(t, 3, mb.Len())

	recv := mb.Recv()
	m, ok := recv.Poll(future.NewParker())
	require.True(t, ok)
	assert.Same(t, a, m.Job())

	m, _ = recv.Poll(future.NewParker())
	assert.Same(t, b, m.Job())

	m, _ = recv.Poll(future.NewParker())
	assert.True(t, m.IsTerminate())
	assert.Nil(t, m.Job())
}

func TestMailboxWakesReceiver(t *testing.T) {
	mb := NewMailbox()
	p := future.NewParker()
	_, ok := mb.Recv().Poll(p)
	require.False(t, ok)

	mb.Send(Terminate())
	select {
	case <-p.C():
	default:
		t.Fatal("send did not wake the receiver")
	}
}

func TestLoopRunsJobsAndCountsCompletion(t *testing.T) {
	mb, done, exited := startLoop(t)

	jobs := []*testJob{{}, {}, {}}
	for _, j := range jobs {
		mb.Send(NewJob(j))
	}
	for _, j := range jobs {
		j.release()
	}
	require.Eventually(t, func() bool { return done.Load() == 3 }, 2*time.Second, time.Millisecond)

	mb.Send(Terminate())
	waitExit(t, exited)
	for _, j := range jobs {
		assert.False(t, j.aborted.Load())
	}
}

func TestLoopAbortsPendingOnTerminate(t *testing.T) {
	mb, done, exited := startLoop(t)

	finished, stuck := &testJob{}, &testJob{}
	mb.Send(NewJob(finished))
	mb.Send(NewJob(stuck))
	finished.release()
	require.Eventually(t, func() bool { return done.Load() == 1 }, 2*time.Second, time.Millisecond)

	mb.Send(Terminate())
	waitExit(t, exited)

	assert.True(t, stuck.aborted.Load())
	assert.False(t, finished.aborted.Load())
	assert.Equal(t, int64(2), done.Load())
}

func TestLoopContainsPanickingJob(t *testing.T) {
	mb, done, exited := startLoop(t)

	bad := &testJob{panics: true}
	mb.Send(NewJob(bad))
	require.Eventually(t, func() bool { return done.Load() == 1 }, 2*time.Second, time.Millisecond)
	assert.True(t, bad.aborted.Load())

	good := &testJob{}
	mb.Send(NewJob(good))
	good.release()
	require.Eventually(t, func() bool { return done.Load() == 2 }, 2*time.Second, time.Millisecond)

	mb.Send(Terminate())
	waitExit(t, exited)
}
