// Package routing implements the location resolver from spec.md §4.2:
// given a server, a request path, and a method, pick the Location that
// governs the request and compute the effective filesystem root.
package routing

import (
	"strings"

	"github.com/webserv/webserv/config"
	"github.com/webserv/webserv/internal/util"
)

// Resolve selects the Location that should handle (path, method) within
// srv, applying the literal, idiosyncratic tie-break policy from
// spec.md §4.2: suffix beats prefix when both allow the method, and
// when neither allows it, suffix still wins over prefix before falling
// back to "no location". This is deliberately NOT standardized to
// longest-match-wins (spec.md §9 Design Notes).
func Resolve(srv *config.Server, path, method string) *config.Location {
	var suffixMatch, prefixMatch *config.Location
	longestPrefix := -1

	for _, loc := range srv.Locations {
		if loc.IsSuffix() {
			if strings.HasSuffix(path, loc.Suffix()) {
				suffixMatch = loc // later patterns overwrite earlier ones
			}
			continue
		}
		if strings.HasPrefix(path, loc.Pattern) && len(loc.Pattern) > longestPrefix {
			prefixMatch = loc
			longestPrefix = len(loc.Pattern)
		}
	}

	switch {
	case suffixMatch != nil && suffixMatch.Allows(method):
		return suffixMatch
	case prefixMatch != nil && prefixMatch.Allows(method):
		return prefixMatch
	case suffixMatch != nil:
		return suffixMatch
	case prefixMatch != nil:
		return prefixMatch
	default:
		return nil
	}
}

// EffectiveRoot returns the filesystem root to resolve path against:
// the matched location's root override if set, else the server's root.
func EffectiveRoot(srv *config.Server, loc *config.Location) string {
	if loc != nil && loc.Root != "" {
		return loc.Root
	}
	return srv.Root
}

// EffectiveIndex returns the index filename to use: the matched
// location's override if set, else the server's.
func EffectiveIndex(srv *config.Server, loc *config.Location) string {
	if loc != nil && loc.Index != "" {
		return loc.Index
	}
	return srv.Index
}

// Target computes the filesystem path a request maps to: the effective
// root joined with the sanitized request path, per spec.md §4.2.
func Target(srv *config.Server, loc *config.Location, path string) string {
	root := EffectiveRoot(srv, loc)
	return strings.TrimRight(root, "/") + util.SanitizePath(path)
}

// SelectServer picks which virtual server on a shared listener should
// handle a request, by matching the Host header against server_name.
// spec.md's routing resolver (§4.2) takes "the virtual server record"
// as already given; it doesn't say how to pick among several server
// blocks bound to the same address. We resolve that open point the way
// nginx does: exact server_name match wins, and the first server block
// declared for that address is the default when nothing matches.
func SelectServer(servers []*config.Server, hostHeader string) *config.Server {
	if len(servers) == 0 {
		return nil
	}
	host := hostHeader
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	for _, srv := range servers {
		if strings.EqualFold(srv.Name, host) {
			return srv
		}
	}
	return servers[0]
}
