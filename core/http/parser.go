package http

import (
	"bytes"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

var (
	ErrNotGet       = errors.New("http: request does not start with GET")
	ErrMissingPath  = errors.New("http: no space after request path")
	ErrMissingProto = errors.New("http: request line does not end in HTTP/1.1")
	ErrPathEncoding = errors.New("http: request path is not valid UTF-8")
)

var (
	methodGet = []byte("GET ")
	protoLine = []byte("HTTP/1.1\r\n")
)

// ParseRequestLine extracts the path from a "GET <path> HTTP/1.1\r\n"
// request line at the start of data. Whatever follows the line is ignored.
func ParseRequestLine(data []byte) (string, error) {
	if !bytes.HasPrefix(data, methodGet) {
		return "", ErrNotGet
	}

	rest := data[len(methodGet):]
	sp := bytes.IndexByte(rest, ' ')
	if sp == -1 {
		return "", ErrMissingPath
	}
	path := rest[:sp]

	if !bytes.HasPrefix(rest[sp+1:], protoLine) {
		return "", ErrMissingProto
	}
	if !utf8.Valid(path) {
		return "", ErrPathEncoding
	}
	return string(path), nil
}
