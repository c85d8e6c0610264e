// Package executor runs the per-thread cooperative loop that multiplexes a
// worker's connection tasks with the receipt of new ones.
package executor

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/searchktools/tinyweb/core/future"
)

// Job is one connection's task. Abort closes it down without running it to
// completion; it is called at most once, and never after the job completed.
type Job interface {
	future.Future[struct{}]
	Abort()
}

type messageKind uint8

const (
	kindNewJob messageKind = iota
	kindTerminate
)

// Message is what a pool sends to a worker.
type Message struct {
	kind messageKind
	job  Job
}

// NewJob wraps a job for delivery.
func NewJob(j Job) Message { return Message{kind: kindNewJob, job: j} }

// Terminate asks the receiving loop to quit.
func Terminate() Message { return Message{kind: kindTerminate} }

// IsTerminate reports whether m is a Terminate message.
func (m Message) IsTerminate() bool { return m.kind == kindTerminate }

// Job returns the carried job, nil for Terminate.
func (m Message) Job() Job { return m.job }

// Mailbox is an unbounded multi-producer, single-consumer channel whose
// receive side is a future.
type Mailbox struct {
	mu    sync.Mutex
	q     *queue.Queue
	waker future.Waker
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{q: queue.New()}
}

// Send enqueues m and wakes a suspended receiver. It never blocks.
func (mb *Mailbox) Send(m Message) {
	mb.mu.Lock()
	mb.q.Add(m)
	w := mb.waker
	mb.waker = nil
	mb.mu.Unlock()

	if w != nil {
		w.Wake()
	}
}

// Len returns the number of queued messages.
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.q.Length()
}

// Recv returns a future resolving with the next message.
func (mb *Mailbox) Recv() future.Future[Message] {
	return future.Func[Message](mb.poll)
}

func (mb *Mailbox) poll(w future.Waker) (Message, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.q.Length() > 0 {
		return mb.q.Remove().(Message), true
	}
	mb.waker = w
	return Message{}, false
}
