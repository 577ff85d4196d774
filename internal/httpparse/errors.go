package httpparse

import (
	"fmt"
)

// statusText is the fixed set of canonical status lines this server
// emits, per spec.md §6 "Wire protocol".
var statusText = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	413: "Payload Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	508: "Loop Detected",
}

// StatusText returns the reason phrase for code, or "Error" if unknown.
func StatusText(code int) string {
	if t, ok := statusText[code]; ok {
		return t
	}
	return "Error"
}

// ErrorBody renders the canned HTML body used for error responses,
// lifted verbatim in shape from the original implementation's
// HttpParser::buildErrorResponse.
func ErrorBody(code int, message string) []byte {
	text := StatusText(code)
	body := fmt.Sprintf(
		"<!DOCTYPE html>\n<html>\n<head><title>%d %s</title></head>\n"+
			"<body>\n<h1>%d %s</h1>\n<p>%s</p>\n"+
			"<hr><p><small>webserv</small></p>\n</body>\n</html>",
		code, text, code, text, message)
	return []byte(body)
}

// ErrorResponse builds a full canned HTTP response for the given status
// code: text/html content type, explicit Content-Length, and
// Connection: close, per spec.md §4.1 "Error-response builder".
func ErrorResponse(code int, message string) []byte {
	body := ErrorBody(code, message)
	head := fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: text/html\r\nContent-Length: %d\r\nConnection: close\r\n\r\n",
		code, StatusText(code), len(body))
	return append([]byte(head), body...)
}
