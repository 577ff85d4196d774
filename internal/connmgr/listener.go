package connmgr

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/webserv/webserv/config"
)

// Listener is one bound, non-blocking, listening socket, along with the
// virtual servers sharing its address (spec.md's routing.SelectServer
// picks among them once a request names a Host).
type Listener struct {
	FD      int
	Addr    string
	Servers []*config.Server
}

// newListeners builds one raw, non-blocking listening socket per
// distinct bind address in cfg, grouping virtual servers that share an
// address. Built directly on golang.org/x/sys/unix rather than net.Listen
// since the event loop needs the raw descriptor for epoll registration.
func newListeners(cfg *config.Config) ([]*Listener, error) {
	byAddr := make(map[string]*Listener)
	var order []string

	for _, srv := range cfg.Servers {
		addr := srv.Addr()
		l, ok := byAddr[addr]
		if !ok {
			l = &Listener{Addr: addr}
			byAddr[addr] = l
			order = append(order, addr)
		}
		l.Servers = append(l.Servers, srv)
	}

	listeners := make([]*Listener, 0, len(order))
	for _, addr := range order {
		l := byAddr[addr]
		fd, err := bindListen(addr)
		if err != nil {
			for _, prior := range listeners {
				_ = unix.Close(prior.FD)
			}
			return nil, fmt.Errorf("connmgr: listen on %s: %w", addr, err)
		}
		l.FD = fd
		listeners = append(listeners, l)
	}
	return listeners, nil
}

// bindListen creates a non-blocking IPv4 TCP socket bound and listening
// on addr ("host:port").
func bindListen(addr string) (int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return -1, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return -1, fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}

	sa := &unix.SockaddrInet4{Port: port}
	ip := net.ParseIP(host)
	if host == "" || host == "0.0.0.0" {
		ip = net.IPv4zero
	}
	ip4 := ip.To4()
	if ip4 == nil {
		unix.Close(fd)
		return -1, fmt.Errorf("invalid ipv4 bind host %q", host)
	}
	copy(sa.Addr[:], ip4)

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}
