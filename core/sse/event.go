// Package sse publishes Server-Sent Events to subscribed connections.
package sse

import (
	"strconv"
	"strings"
)

// ContentType is the media type of an event stream.
const ContentType = "text/event-stream"

// Event represents a Server-Sent Event
type Event struct {
	ID      string
	Event   string
	Data    string
	Retry   int    // milliseconds
	Comment string // sent as a ':' line, ignored by clients
}

// FormatEvent encodes event in the text/event-stream wire format. Each
// line of Data becomes its own data field.
func FormatEvent(event *Event) []byte {
	return AppendEvent(nil, event)
}

// AppendEvent appends the encoding of event to buf.
func AppendEvent(buf []byte, event *Event) []byte {
	if event.Comment != "" {
		for line := range strings.Lines(event.Comment) {
			buf = appendField(buf, "", strings.TrimRight(line, "\r\n"))
		}
	}
	if event.ID != "" {
		buf = appendField(buf, "id", event.ID)
	}
	if event.Event != "" {
		buf = appendField(buf, "event", event.Event)
	}
	if event.Retry > 0 {
		buf = appendField(buf, "retry", strconv.Itoa(event.Retry))
	}
	if event.Data != "" {
		for line := range strings.Lines(event.Data) {
			buf = appendField(buf, "data", strings.TrimRight(line, "\r\n"))
		}
	}
	return append(buf, '\n')
}

func appendField(buf []byte, name, value string) []byte {
	buf = append(buf, name...)
	buf = append(buf, ": "...)
	buf = append(buf, value...)
	return append(buf, '\n')
}
