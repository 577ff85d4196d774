package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/webserv/webserv/internal/util"
)

// parser turns a token stream into a *Config. It is a straightforward
// recursive-descent parser over the nginx-style block grammar from
// spec.md §6: `server { ... location <pattern> { ... } }`, directives
// terminated by ';'.
type parser struct {
	filename string
	lex      lexer
	unused   bool
}

func newParser(filename string, r *os.File) *parser {
	p := &parser{filename: filename}
	p.lex.load(filename, r)
	return p
}

// next loads the next token and reports whether one was available.
func (p *parser) next() bool {
	if p.unused {
		p.unused = false
		return true
	}
	return p.lex.next()
}

// back un-reads the current token so the next call to next() returns it
// again. Only one token of pushback is supported.
func (p *parser) back() {
	p.unused = true
}

func (p *parser) tkn() string { return p.lex.token.text }
func (p *parser) line() int   { return p.lex.token.line }

func (p *parser) syntaxErr(expected string) error {
	return p.errf("unexpected token %q, expecting %q", p.tkn(), expected)
}

func (p *parser) errf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s:%d: %s", p.filename, p.line(), msg)
}

// expect consumes the next token and requires it to equal text.
func (p *parser) expect(text string) error {
	if !p.next() {
		return p.errf("unexpected end of file, expecting %q", text)
	}
	if p.tkn() != text {
		return p.syntaxErr(text)
	}
	return nil
}

// args reads tokens up to (not including) the terminating ';' and
// returns them as a slice of words. The ';' is consumed.
func (p *parser) args() ([]string, error) {
	var out []string
	for {
		if !p.next() {
			return nil, p.errf("unexpected end of file, expecting ';'")
		}
		if p.tkn() == ";" {
			return out, nil
		}
		if p.tkn() == "{" || p.tkn() == "}" {
			return nil, p.syntaxErr(";")
		}
		out = append(out, p.tkn())
	}
}

// parse consumes the entire file and returns the resulting Config.
func (p *parser) parse() (*Config, error) {
	cfg := &Config{}
	for p.next() {
		if p.tkn() != "server" {
			return nil, p.syntaxErr("server")
		}
		srv, err := p.parseServer()
		if err != nil {
			return nil, err
		}
		cfg.Servers = append(cfg.Servers, srv)
	}
	return cfg, nil
}

func (p *parser) parseServer() (*Server, error) {
	srv := &Server{ErrorPages: make(map[int]string)}

	if err := p.expect("{"); err != nil {
		return nil, err
	}

	for {
		if !p.next() {
			return nil, p.errf("unexpected end of file, expecting '}'")
		}
		if p.tkn() == "}" {
			return srv, nil
		}

		directive := p.tkn()
		switch directive {
		case "location":
			loc, err := p.parseLocation()
			if err != nil {
				return nil, err
			}
			srv.Locations = append(srv.Locations, loc)
			continue
		}

		vals, err := p.args()
		if err != nil {
			return nil, err
		}

		switch directive {
		case "listen":
			if len(vals) != 1 {
				return nil, p.errf("listen: expected exactly one address")
			}
			host, port, err := splitHostPort(vals[0])
			if err != nil {
				return nil, p.errf("listen: %v", err)
			}
			srv.Host, srv.Port = host, port
		case "host":
			if len(vals) != 1 {
				return nil, p.errf("host: expected exactly one value")
			}
			srv.Host = vals[0]
		case "server_name":
			if len(vals) != 1 {
				return nil, p.errf("server_name: expected exactly one value")
			}
			srv.Name = vals[0]
		case "root":
			if len(vals) != 1 {
				return nil, p.errf("root: expected exactly one value")
			}
			srv.Root = vals[0]
		case "index":
			if len(vals) != 1 {
				return nil, p.errf("index: expected exactly one value")
			}
			srv.Index = vals[0]
		case "max_size":
			if len(vals) != 1 {
				return nil, p.errf("max_size: expected exactly one value")
			}
			n, err := util.ParseSize(vals[0])
			if err != nil {
				return nil, p.errf("max_size: %v", err)
			}
			srv.MaxSize = n
		case "error_page":
			if len(vals) != 2 {
				return nil, p.errf("error_page: expected a status code and a path")
			}
			code, err := strconv.Atoi(vals[0])
			if err != nil {
				return nil, p.errf("error_page: invalid status code %q", vals[0])
			}
			srv.ErrorPages[code] = vals[1]
		default:
			return nil, p.errf("unknown server directive %q", directive)
		}
	}
}

func (p *parser) parseLocation() (*Location, error) {
	if !p.next() {
		return nil, p.errf("location: expected a pattern")
	}
	loc := &Location{Pattern: p.tkn(), Methods: make(map[string]bool)}

	if err := p.expect("{"); err != nil {
		return nil, err
	}

	for {
		if !p.next() {
			return nil, p.errf("unexpected end of file, expecting '}'")
		}
		if p.tkn() == "}" {
			return loc, nil
		}

		directive := p.tkn()
		vals, err := p.args()
		if err != nil {
			return nil, err
		}

		switch directive {
		case "methods":
			if len(vals) == 0 {
				return nil, p.errf("methods: expected at least one method")
			}
			for _, m := range vals {
				loc.Methods[strings.ToUpper(m)] = true
			}
		case "root":
			if len(vals) != 1 {
				return nil, p.errf("root: expected exactly one value")
			}
			loc.Root = vals[0]
		case "index":
			if len(vals) != 1 {
				return nil, p.errf("index: expected exactly one value")
			}
			loc.Index = vals[0]
		case "autoindex":
			if len(vals) != 1 {
				return nil, p.errf("autoindex: expected 'on' or 'off'")
			}
			loc.Autoindex = vals[0] == "on"
		case "cgi_extension":
			if len(vals) == 0 {
				return nil, p.errf("cgi_extension: expected at least one extension")
			}
			loc.CGIExtensions = append(loc.CGIExtensions, vals...)
		case "upload_path":
			if len(vals) != 1 {
				return nil, p.errf("upload_path: expected exactly one value")
			}
			loc.UploadDir = vals[0]
		case "return":
			if len(vals) != 2 {
				return nil, p.errf("return: expected a status code and a URL")
			}
			code, err := strconv.Atoi(vals[0])
			if err != nil {
				return nil, p.errf("return: invalid status code %q", vals[0])
			}
			loc.HasRedirect = true
			loc.RedirectCode = code
			loc.RedirectURL = vals[1]
		default:
			return nil, p.errf("unknown location directive %q", directive)
		}
	}
}

// splitHostPort parses the `listen` directive's argument, which may be a
// bare port, a "host:port" pair.
func splitHostPort(val string) (host string, port int, err error) {
	if idx := strings.LastIndex(val, ":"); idx >= 0 {
		host = val[:idx]
		port, err = strconv.Atoi(val[idx+1:])
		return host, port, err
	}
	port, err = strconv.Atoi(val)
	return "", port, err
}
