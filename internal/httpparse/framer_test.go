package httpparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLengthContentLength(t *testing.T) {
	req := "POST /x HTTP/1.1\r\nContent-Length: 4\r\n\r\nABCD"
	assert.Equal(t, len(req), RequestLength([]byte(req)))

	truncated := req[:len(req)-1]
	assert.Equal(t, 0, RequestLength([]byte(truncated)))
}

func TestRequestLengthNoBody(t *testing.T) {
	req := "GET / HTTP/1.1\r\nHost: x\r\n\r\n"
	assert.Equal(t, len(req), RequestLength([]byte(req)))
}

func TestRequestLengthNegativeContentLength(t *testing.T) {
	req := "POST /x HTTP/1.1\r\nContent-Length: -5\r\n\r\n"
	assert.Equal(t, len(req), RequestLength([]byte(req)))
}

func TestRequestLengthChunkedEmpty(t *testing.T) {
	req := "POST /x HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n0\r\n\r\n"
	assert.Equal(t, len(req), RequestLength([]byte(req)))
}

func TestRequestLengthChunkedWithData(t *testing.T) {
	req := "POST /x HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nABCD\r\n0\r\n\r\n"
	assert.Equal(t, len(req), RequestLength([]byte(req)))

	truncated := req[:len(req)-3]
	assert.Equal(t, 0, RequestLength([]byte(truncated)))
}

func TestRequestLengthIncompleteHeaders(t *testing.T) {
	req := "GET / HTTP/1.1\r\nHost: x\r\n"
	assert.Equal(t, 0, RequestLength([]byte(req)))
}

func TestRequestLengthReturnsSameOnLongerPrefix(t *testing.T) {
	req := "GET / HTTP/1.1\r\nHost: x\r\n\r\n"
	extra := req + "GET / HTTP/1.1\r\n\r\n"
	assert.Equal(t, len(req), RequestLength([]byte(extra)))
}

func TestParseHeadersCaseInsensitiveAndLastWins(t *testing.T) {
	req := "GET /a HTTP/1.1\r\nHost: one\r\nHOST: two\r\nX-Foo:   bar  \r\n\r\n"
	parsed, err := Parse([]byte(req))
	require.NoError(t, err)
	assert.Equal(t, "two", parsed.Headers.Get("host"))
	assert.Equal(t, "bar  ", parsed.Headers.Get("x-foo"))
}

func TestParseRequestLineWithQuery(t *testing.T) {
	method, path, query, version, ok := ParseRequestLine("GET /a/b?x=1&y=2 HTTP/1.1")
	require.True(t, ok)
	assert.Equal(t, "GET", method)
	assert.Equal(t, "/a/b", path)
	assert.Equal(t, "x=1&y=2", query)
	assert.Equal(t, "HTTP/1.1", version)
}

func TestParseChunkedBodyDecoded(t *testing.T) {
	req := "POST /x HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nABCD\r\n3\r\nEFG\r\n0\r\n\r\n"
	parsed, err := Parse([]byte(req))
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFG", string(parsed.Body))
}

func TestErrorResponseHasExpectedShape(t *testing.T) {
	resp := ErrorResponse(404, "not found")
	s := string(resp)
	assert.Contains(t, s, "HTTP/1.1 404 Not Found\r\n")
	assert.Contains(t, s, "Content-Type: text/html\r\n")
	assert.Contains(t, s, "Connection: close\r\n")
	assert.Contains(t, s, "not found")
}
