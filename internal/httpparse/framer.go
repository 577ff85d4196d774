// Package httpparse implements the HTTP/1.1 request-framing state
// machine from spec.md §4.1: given a byte buffer, decide whether it
// holds one complete request, split it into headers and body, and
// build the canned error responses the dispatcher falls back on.
package httpparse

import (
	"bytes"
	"strconv"
	"strings"
)

const crlfcrlf = "\r\n\r\n"

// maxLineLength bounds an individual request or header line; lines
// longer than this are rejected before the request is ever considered
// "framed" (supplemental to spec.md, grounded in the original
// implementation's fixed-size read buffer).
const maxLineLength = 8 * 1024

// Headers holds the parsed header block of a request: keys are
// lower-cased, duplicate keys keep the last value written (spec.md
// §4.1 Header parser).
type Headers map[string]string

// Get looks up a header by name, case-insensitively.
func (h Headers) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Request is a fully framed HTTP/1.1 request: request line, headers,
// and (already length/chunk-resolved) body.
type Request struct {
	Method  string
	Path    string
	Query   string
	Version string
	Headers Headers
	Body    []byte
}

// RequestLength inspects buf and returns 0 if it does not yet contain a
// complete request, -1 if it already contains a request or header line
// longer than maxLineLength (the caller should reject it with 400 rather
// than keep buffering), or the number of bytes the complete request
// (headers plus body) occupies otherwise. This is the framer's core
// contract from spec.md §4.1, supplemented per SPEC_FULL.md §4.1.
func RequestLength(buf []byte) int {
	headerEnd := bytes.Index(buf, []byte(crlfcrlf))
	if headerEnd < 0 {
		if overlongLine(buf) {
			return -1
		}
		return 0
	}

	headersEnd := headerEnd // index of the CRLF that ends the last header line
	headerBlock := buf[:headersEnd]

	if overlongLine(headerBlock) {
		return -1
	}

	headers := parseHeaders(headerBlock)
	bodyStart := headerEnd + len(crlfcrlf)

	if isChunked(headers) {
		rest := buf[bodyStart:]
		end := findChunkedTerminator(rest)
		if end < 0 {
			return 0
		}
		return bodyStart + end
	}

	length := contentLength(headers)
	total := bodyStart + length
	if len(buf) < total {
		return 0
	}
	return total
}

// overlongLine reports whether any line in buf (request line or header
// line, '\n'-delimited) exceeds maxLineLength bytes, including a final
// line with no terminator yet seen — it can only grow, so there is no
// point waiting for more input before rejecting it.
func overlongLine(buf []byte) bool {
	start := 0
	for {
		idx := bytes.IndexByte(buf[start:], '\n')
		if idx < 0 {
			return len(buf)-start > maxLineLength
		}
		if idx > maxLineLength {
			return true
		}
		start += idx + 1
	}
}

// contentLength reads Content-Length from headers, per spec.md §4.1 rule
// 2: negative values are treated as zero, absence means no body (0).
func contentLength(h Headers) int {
	v := h.Get("content-length")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// isChunked reports whether Transfer-Encoding names the "chunked" token,
// matching case-insensitively per spec.md §4.1 rule 1.
func isChunked(h Headers) bool {
	v := strings.ToLower(h.Get("transfer-encoding"))
	if v == "" {
		return false
	}
	for _, tok := range strings.Split(v, ",") {
		if strings.TrimSpace(tok) == "chunked" {
			return true
		}
	}
	return false
}

// findChunkedTerminator scans for the end of a chunked body starting at
// the first byte after the header block, and returns the number of
// bytes (relative to that start) the chunked body occupies, terminator
// included, or -1 if not yet complete. It recognizes the canonical
// "\r\n0\r\n\r\n" sequence, a lenient "\n0\n\n" fallback, and an
// immediate "0\r\n\r\n" for an empty body, per spec.md §4.1 rule 1.
func findChunkedTerminator(buf []byte) int {
	if idx := bytes.Index(buf, []byte("0\r\n\r\n")); idx == 0 {
		return len("0\r\n\r\n")
	}
	if idx := bytes.Index(buf, []byte("\r\n0\r\n\r\n")); idx >= 0 {
		return idx + len("\r\n0\r\n\r\n")
	}
	if idx := bytes.Index(buf, []byte("\n0\n\n")); idx >= 0 {
		return idx + len("\n0\n\n")
	}
	return -1
}

// parseHeaders parses a header block (no terminating CRLFCRLF, per the
// resolved Open Question in spec.md §9: headers parse with the blank
// line stripped). headerBlock starts with the request line, which is
// skipped; the remaining lines are parsed as headers.
func parseHeaders(headerBlock []byte) Headers {
	h := make(Headers)
	lines := splitLines(headerBlock)
	if len(lines) == 0 {
		return h
	}
	// first line is the request line; skip it here, callers that need
	// it use ParseRequestLine separately.
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		key := strings.ToLower(line[:colon])
		val := strings.TrimLeft(line[colon+1:], " \t")
		h[key] = val
	}
	return h
}

// splitLines splits on bare "\n" and trims a trailing "\r" from each
// line, tolerating either line-ending style.
func splitLines(b []byte) []string {
	raw := strings.Split(string(b), "\n")
	out := make([]string, len(raw))
	for i, l := range raw {
		out[i] = strings.TrimSuffix(l, "\r")
	}
	return out
}

// ParseRequestLine parses the first line of buf ("METHOD PATH VERSION").
func ParseRequestLine(line string) (method, path, query, version string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", "", "", "", false
	}
	method, rawPath, version := fields[0], fields[1], fields[2]
	path = rawPath
	if idx := strings.IndexByte(rawPath, '?'); idx >= 0 {
		path = rawPath[:idx]
		query = rawPath[idx+1:]
	}
	return method, path, query, version, true
}

// Parse frames and fully parses a single request occupying the first n
// bytes of buf, where n == RequestLength(buf). The body is decoded from
// chunked form if applicable.
func Parse(buf []byte) (*Request, error) {
	headerEnd := bytes.Index(buf, []byte(crlfcrlf))
	if headerEnd < 0 {
		return nil, errIncomplete
	}
	headerBlock := buf[:headerEnd]
	lines := splitLines(headerBlock)
	if len(lines) == 0 {
		return nil, errIncomplete
	}

	method, path, query, version, ok := ParseRequestLine(lines[0])
	if !ok {
		return nil, errMalformed
	}

	headers := parseHeaders(headerBlock)
	bodyStart := headerEnd + len(crlfcrlf)

	var body []byte
	if isChunked(headers) {
		rest := buf[bodyStart:]
		end := findChunkedTerminator(rest)
		if end < 0 {
			return nil, errIncomplete
		}
		decoded, err := DecodeChunked(rest[:end])
		if err != nil {
			return nil, err
		}
		body = decoded
	} else {
		n := contentLength(headers)
		if bodyStart+n > len(buf) {
			return nil, errIncomplete
		}
		body = buf[bodyStart : bodyStart+n]
	}

	return &Request{
		Method:  method,
		Path:    path,
		Query:   query,
		Version: version,
		Headers: headers,
		Body:    body,
	}, nil
}
