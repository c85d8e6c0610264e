package sse

import (
	"strconv"

	"github.com/searchktools/tinyweb/core/future"
	"github.com/searchktools/tinyweb/core/http"
)

// Handler streams b's events to each connection until the broker closes
// the subscription or a write fails. Register it with ContentType.
//
// A connection aborted while waiting stays subscribed until its buffer
// fills and the broker drops it.
func Handler(b *Broker) http.Handler {
	return func(s *http.Stream) future.Future[error] {
		c, err := b.Subscribe()
		if err != nil {
			return future.Ready(err)
		}
		s.PushData(FormatEvent(&Event{
			Event: "connected",
			Data:  "client_id:" + strconv.FormatUint(c.ID(), 10),
		}))
		return &pump{b: b, c: c, s: s, send: s.Send()}
	}
}

// pump alternates between sending what is pending and waiting for the next
// event.
type pump struct {
	b    *Broker
	c    *Client
	s    *http.Stream
	send future.Future[error]
	next future.Future[*Event]
}

func (p *pump) Poll(w future.Waker) (error, bool) {
	for {
		if p.send != nil {
			err, ok := p.send.Poll(w)
			if !ok {
				return nil, false
			}
			p.send = nil
			if err != nil {
				p.b.Unsubscribe(p.c)
				return err, true
			}
		}

		if p.next == nil {
			p.next = p.c.Next()
		}
		ev, ok := p.next.Poll(w)
		if !ok {
			return nil, false
		}
		p.next = nil
		if ev == nil {
			return nil, true
		}
		p.s.PushData(FormatEvent(ev))
		p.send = p.s.Send()
	}
}
