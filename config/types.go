// Package config parses the nginx-style declarative configuration file
// that describes one or more virtual servers, and validates the result
// against the invariants the rest of the server depends on.
package config

import "fmt"

// Config is the top-level parsed and validated configuration: the
// ordered list of virtual servers declared by the file.
type Config struct {
	Servers []*Server
}

// Server is one `server { ... }` block.
type Server struct {
	Host       string // bind host; "" means unspecified (0.0.0.0)
	Port       int    // bind port, 1-65535
	Name       string // server_name
	Root       string // document root
	Index      string // default index filename
	MaxSize    int64  // parsed max request body size in bytes; 0 = unlimited
	ErrorPages map[int]string
	Locations  []*Location
}

// Addr returns the dial/listen address for this server, e.g. "0.0.0.0:8080".
func (s *Server) Addr() string {
	host := s.Host
	if host == "" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, s.Port)
}

// Location is one `location <pattern> { ... }` block scoped to a Server.
type Location struct {
	Pattern       string // "/images" (prefix) or "*.py" (suffix)
	Root          string // override root, "" = inherit server root
	Index         string // override index, "" = inherit server index
	Methods       map[string]bool
	CGIExtensions []string
	UploadDir     string
	Autoindex     bool

	HasRedirect  bool
	RedirectCode int
	RedirectURL  string
}

// IsSuffix reports whether the location's pattern is an extension
// wildcard (`*.ext`) rather than a path prefix.
func (l *Location) IsSuffix() bool {
	return len(l.Pattern) > 0 && l.Pattern[0] == '*'
}

// Suffix returns the literal suffix to match against, for a wildcard
// location pattern (the pattern with its leading '*' stripped).
func (l *Location) Suffix() string {
	if !l.IsSuffix() {
		return ""
	}
	return l.Pattern[1:]
}

// Allows reports whether method is permitted by this location. An
// empty method set rejects every method, matching spec.md §4.2.
func (l *Location) Allows(method string) bool {
	return l.Methods[method]
}

// EffectiveRoot returns the document root to resolve filesystem paths
// against for this location: its own override if set, else the server's.
func (l *Location) EffectiveRoot(s *Server) string {
	if l.Root != "" {
		return l.Root
	}
	return s.Root
}

// EffectiveIndex returns the index filename to resolve against for this
// location: its own override if set, else the server's.
func (l *Location) EffectiveIndex(s *Server) string {
	if l.Index != "" {
		return l.Index
	}
	return s.Index
}
