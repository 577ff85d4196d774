// Package util holds the small, dependency-free building blocks used
// throughout the server: byte-size parsing, filesystem path
// sanitization, and extension-to-MIME-type mapping (spec.md §2
// "Utilities").
package util

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSize parses an nginx-style size string such as "5k", "50m" or
// "1g" into a byte count. A bare integer is interpreted as bytes. The
// suffix is case-insensitive; k/m/g multiply by 1024, 1024², 1024³
// respectively, matching nginx's client_max_body_size convention (not
// go-humanize's decimal/"B"-suffixed format, which doesn't accept the
// bare single-letter suffixes this grammar uses).
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	mult := int64(1)
	last := s[len(s)-1]
	switch last {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: negative", s)
	}
	return n * mult, nil
}
