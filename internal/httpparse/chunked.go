package httpparse

import (
	"bytes"
	"errors"
	"strconv"
)

var (
	errIncomplete = errors.New("httpparse: incomplete request")
	errMalformed  = errors.New("httpparse: malformed request")
)

// DecodeChunked decodes a chunked-transfer body (the chunk size/data
// sequence, including its terminating zero-length chunk) into a flat
// byte string, per spec.md §4.1 "Chunked decoder". It tolerates a bare
// "\n" as a line terminator in addition to "\r\n".
func DecodeChunked(buf []byte) ([]byte, error) {
	var out []byte
	pos := 0

	for {
		lineEnd, lineLen := indexLineEnd(buf[pos:])
		if lineEnd < 0 {
			return nil, errMalformed
		}
		sizeLine := bytes.TrimSpace(buf[pos : pos+lineEnd])
		// strip a chunk-extension, if present (";" onward).
		if idx := bytes.IndexByte(sizeLine, ';'); idx >= 0 {
			sizeLine = sizeLine[:idx]
		}
		size, err := strconv.ParseInt(string(sizeLine), 16, 64)
		if err != nil || size < 0 {
			return nil, errMalformed
		}
		pos += lineEnd + lineLen

		if size == 0 {
			return out, nil
		}

		if pos+int(size) > len(buf) {
			return nil, errMalformed
		}
		out = append(out, buf[pos:pos+int(size)]...)
		pos += int(size)

		// consume the chunk's trailing line terminator
		termEnd, termLen := indexLineEnd(buf[pos:])
		if termEnd != 0 {
			return nil, errMalformed
		}
		pos += termLen
	}
}

// EncodeChunked encodes body as a single chunk followed by the
// terminating zero-length chunk, for round-trip tests and for any
// future caller that needs to produce a chunked body.
func EncodeChunked(body []byte) []byte {
	if len(body) == 0 {
		return []byte("0\r\n\r\n")
	}
	var buf bytes.Buffer
	buf.WriteString(strconv.FormatInt(int64(len(body)), 16))
	buf.WriteString("\r\n")
	buf.Write(body)
	buf.WriteString("\r\n0\r\n\r\n")
	return buf.Bytes()
}

// indexLineEnd finds the offset of the next line terminator in buf,
// returning the offset of the terminator's start and its length (1 for
// a bare "\n", 2 for "\r\n"), or (-1, 0) if none is found.
func indexLineEnd(buf []byte) (int, int) {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		return -1, 0
	}
	if idx > 0 && buf[idx-1] == '\r' {
		return idx - 1, 2
	}
	return idx, 1
}
