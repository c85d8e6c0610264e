package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRequestLine(t *testing.T) {
	tests := []struct {
		in   string
		path string
		err  error
	}{
		{"GET / HTTP/1.1\r\n", "/", nil},
		{"GET /a/b.html HTTP/1.1\r\nHost: x\r\n\r\n", "/a/b.html", nil},
		{"GET /caf\xc3\xa9 HTTP/1.1\r\n", "/café", nil},
		{"GET  HTTP/1.1\r\n", "", nil},
		{"", "", ErrNotGet},
		{"GE", "", ErrNotGet},
		{"HEAD / HTTP/1.1\r\n", "", ErrNotGet},
		{"GET /", "", ErrMissingPath},
		{"GET /x HTTP/1.1", "", ErrMissingProto},
		{"GET /x HTTP/2\r\n", "", ErrMissingProto},
		{"GET /x  HTTP/1.1\r\n", "", ErrMissingProto},
		{"GET /\x80 HTTP/1.1\r\n", "", ErrPathEncoding},
	}
	for _, tt := range tests {
		path, err := ParseRequestLine([]byte(tt.in))
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err, "%q", tt.in)
			continue
		}
		assert.NoError(t, err, "%q", tt.in)
		assert.Equal(t, tt.path, path)
	}
}
