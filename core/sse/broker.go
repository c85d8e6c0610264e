package sse

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/searchktools/tinyweb/core/future"
)

// DefaultBufferSize is the number of undelivered events a client may hold
// before the broker drops it.
const DefaultBufferSize = 100

var (
	ErrTooManyClients = errors.New("sse: max clients reached")
	ErrBrokerClosed   = errors.New("sse: broker closed")
)

// Client is one subscription. Events are buffered until the connection
// takes them with Next.
type Client struct {
	id    uint64
	limit int

	mu     sync.Mutex
	events *queue.Queue
	waker  future.Waker
	closed bool
}

func newClient(id uint64, limit int) *Client {
	return &Client{id: id, limit: limit, events: queue.New()}
}

// ID returns the broker-assigned client id.
func (c *Client) ID() uint64 { return c.id }

// deliver queues ev. It reports false when the buffer is full.
func (c *Client) deliver(ev *Event) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return true
	}
	if c.events.Length() >= c.limit {
		c.mu.Unlock()
		return false
	}
	c.events.Add(ev)
	w := c.waker
	c.waker = nil
	c.mu.Unlock()

	if w != nil {
		w.Wake()
	}
	return true
}

// Next resolves to the next event, or to nil once the client is closed
// and its buffer drained.
func (c *Client) Next() future.Future[*Event] {
	return future.Func[*Event](c.poll)
}

func (c *Client) poll(w future.Waker) (*Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events.Length() > 0 {
		return c.events.Remove().(*Event), true
	}
	if c.closed {
		return nil, true
	}
	c.waker = w
	return nil, false
}

func (c *Client) close() {
	c.mu.Lock()
	c.closed = true
	w := c.waker
	c.waker = nil
	c.mu.Unlock()

	if w != nil {
		w.Wake()
	}
}

// Broker fans published events out to every subscribed client.
type Broker struct {
	log        *zap.Logger
	maxClients int
	bufferSize int

	mu      sync.RWMutex
	clients map[uint64]*Client
	nextID  uint64
	closed  bool

	eventID atomic.Uint64
	stop    chan struct{}

	// Statistics
	stats struct {
		totalClients atomic.Uint64
		published    atomic.Uint64
		dropped      atomic.Uint64
	}
}

// NewBroker creates a broker. A positive keepaliveInterval sends a comment
// event that often, so writes to dead connections fail and end them, and a
// subscriber that stopped draining is dropped once its buffer fills. With a
// zero interval nothing reclaims a subscriber whose connection went away
// silently; it stays until the next publishes fill its buffer or Close.
func NewBroker(maxClients int, keepaliveInterval time.Duration, log *zap.Logger) *Broker {
	if maxClients <= 0 {
		maxClients = 10000
	}
	b := &Broker{
		log:        log.Named("sse"),
		maxClients: maxClients,
		bufferSize: DefaultBufferSize,
		clients:    make(map[uint64]*Client),
		stop:       make(chan struct{}),
	}
	if keepaliveInterval > 0 {
		go b.keepalive(keepaliveInterval)
	}
	return b
}

func (b *Broker) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case t := <-ticker.C:
			b.Publish(&Event{Comment: "keepalive " + strconv.FormatInt(t.Unix(), 10)})
		}
	}
}

// Subscribe registers a new client.
func (b *Broker) Subscribe() (*Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	if len(b.clients) >= b.maxClients {
		return nil, errors.Wrapf(ErrTooManyClients, "%d", b.maxClients)
	}
	b.nextID++
	c := newClient(b.nextID, b.bufferSize)
	b.clients[c.id] = c
	b.stats.totalClients.Add(1)
	return c, nil
}

// Unsubscribe removes c and closes it.
func (b *Broker) Unsubscribe(c *Client) {
	b.mu.Lock()
	delete(b.clients, c.id)
	b.mu.Unlock()
	c.close()
}

// Publish delivers event to every client. Clients whose buffer is full are
// dropped.
func (b *Broker) Publish(event *Event) {
	b.mu.RLock()
	var full []*Client
	for _, c := range b.clients {
		if !c.deliver(event) {
			full = append(full, c)
		}
	}
	b.mu.RUnlock()
	b.stats.published.Add(1)

	for _, c := range full {
		b.stats.dropped.Add(1)
		b.log.Debug("dropping slow client", zap.Uint64("client", c.id))
		b.Unsubscribe(c)
	}
}

// Send publishes a data event with the next sequential id.
func (b *Broker) Send(eventType, data string) {
	id := b.eventID.Add(1)
	b.Publish(&Event{ID: strconv.FormatUint(id, 10), Event: eventType, Data: data})
}

// ClientCount returns the number of subscribed clients.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close stops the keepalive and closes every client; their streams end
// once buffered events are written.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	clients := b.clients
	b.clients = make(map[uint64]*Client)
	b.mu.Unlock()

	close(b.stop)
	for _, c := range clients {
		c.close()
	}
}

// Stats returns broker statistics
func (b *Broker) Stats() BrokerStats {
	return BrokerStats{
		TotalClients:   b.stats.totalClients.Load(),
		CurrentClients: b.ClientCount(),
		Published:      b.stats.published.Load(),
		Dropped:        b.stats.dropped.Load(),
	}
}

// BrokerStats contains broker statistics
type BrokerStats struct {
	TotalClients   uint64 `json:"total_clients"`
	CurrentClients int    `json:"current_clients"`
	Published      uint64 `json:"messages_sent"`
	Dropped        uint64 `json:"clients_dropped"`
}
