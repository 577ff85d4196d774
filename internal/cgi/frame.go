package cgi

import (
	"bytes"
	"fmt"

	"github.com/webserv/webserv/internal/httpparse"
)

// probeWindow bounds how much of the CGI output is scanned for an
// existing Content-Length header, per spec.md §4.4 "Output framing".
const probeWindow = 1024

// Frame turns raw CGI child output into a full HTTP response, per
// spec.md §4.4 "Output framing":
//
//   - a nonzero exit or signal always becomes a 500
//   - output already starting with "HTTP/" is used verbatim
//   - otherwise "HTTP/1.1 200 OK\r\n" is prepended, and a
//     Content-Length header is synthesized unless one is already
//     present in the first 1 KiB of output
func Frame(output []byte, childFailed bool) []byte {
	if childFailed {
		return httpparse.ErrorResponse(500, "CGI script failed")
	}

	if bytes.HasPrefix(output, []byte("HTTP/")) {
		return output
	}

	head := output
	if len(head) > probeWindow {
		head = head[:probeWindow]
	}
	if hasContentLength(head) {
		return append([]byte("HTTP/1.1 200 OK\r\n"), output...)
	}

	boundary := headerBodyBoundary(output)
	bodyLen := len(output) - boundary
	return []byte(fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\n%s", bodyLen, output))
}

// TimeoutResponse is the canned response sent when a CGI session
// exceeds its wall-clock deadline (spec.md §4.4 "Timeout").
func TimeoutResponse() []byte {
	return httpparse.ErrorResponse(508, "CGI script timed out")
}

func hasContentLength(head []byte) bool {
	return bytes.Contains(bytes.ToLower(head), []byte("content-length:"))
}

// headerBodyBoundary locates the CRLFCRLF or LFLF split between CGI
// headers and body. If neither is found the whole output is treated as
// body (no headers emitted by the script).
func headerBodyBoundary(output []byte) int {
	if idx := bytes.Index(output, []byte("\r\n\r\n")); idx >= 0 {
		return idx + 4
	}
	if idx := bytes.Index(output, []byte("\n\n")); idx >= 0 {
		return idx + 2
	}
	return 0
}
