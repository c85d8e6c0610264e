package http

// Status lines. The line ends in a bare '\n' while the header block ends
// in "\r\n\r\n"; clients of this server depend on these exact bytes.
const (
	statusOK       = "HTTP/1.1 200 OK\n"
	statusNotFound = "HTTP/1.1 404 NOT FOUND\n"
)

// appendHead appends the status line, the Content-Type header and the
// blank line that precedes the body.
func appendHead(buf []byte, status, contentType string) []byte {
	buf = append(buf, status...)
	buf = append(buf, "Content-Type: "...)
	buf = append(buf, contentType...)
	return append(buf, "\r\n\r\n"...)
}
