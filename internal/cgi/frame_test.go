package cgi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameChildFailedIsA500(t *testing.T) {
	resp := Frame([]byte("whatever"), true)
	assert.Contains(t, string(resp), "500 Internal Server Error")
}

func TestFrameVerbatimWhenAlreadyHTTP(t *testing.T) {
	out := []byte("HTTP/1.1 302 Found\r\nLocation: /x\r\n\r\n")
	resp := Frame(out, false)
	assert.Equal(t, out, resp)
}

func TestFrameSynthesizesContentLength(t *testing.T) {
	out := []byte("Content-Type: text/plain\r\n\r\nhello")
	resp := Frame(out, false)
	s := string(resp)
	assert.Contains(t, s, "HTTP/1.1 200 OK\r\n")
	assert.Contains(t, s, "Content-Length: 5\r\n")
	assert.Contains(t, s, "hello")
}

func TestFramePreservesExistingContentLength(t *testing.T) {
	out := []byte("Content-Length: 3\r\n\r\nabc")
	resp := Frame(out, false)
	s := string(resp)
	assert.Equal(t, 1, countOccurrences(s, "Content-Length:"))
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}
