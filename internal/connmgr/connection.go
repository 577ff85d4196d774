package connmgr

import (
	"time"

	"github.com/google/uuid"

	"github.com/webserv/webserv/config"
	"github.com/webserv/webserv/internal/cgi"
)

// maxRequestsPerConnection bounds how many requests one connection may
// serve before the loop forces it closed, per spec.md §3 "Connection".
const maxRequestsPerConnection = 1000

// idleTimeout is the receive-side deadline spec.md §5 "Cancellation and
// timeouts" requires connections to be subject to.
const idleTimeout = 60 * time.Second

// Connection is one accepted socket, owned exclusively by the event
// loop (spec.md §3 "Connection", §3 "Ownership").
type Connection struct {
	ID      string
	FD      int
	Servers []*config.Server // every virtual server bound to this connection's listener address

	RecvBuf []byte
	SendBuf []byte

	RequestCount   int
	CloseWhenDrain bool
	IdleDeadline   time.Time

	CGI *cgi.Session
}

// NewConnection wraps a freshly accepted socket. servers is the set of
// virtual servers sharing the listener's bind address; which one
// handles a given request is resolved per-request from its Host header
// (routing.SelectServer), since several server blocks can share one
// address (spec.md §4.2 SelectServer open point).
func NewConnection(fd int, servers []*config.Server) *Connection {
	return &Connection{
		ID:           uuid.NewString(),
		FD:           fd,
		Servers:      servers,
		IdleDeadline: time.Now().Add(idleTimeout),
	}
}

// Expired reports whether the connection's idle deadline has passed.
func (c *Connection) Expired(now time.Time) bool {
	return now.After(c.IdleDeadline)
}

// Touch refreshes the idle deadline after activity.
func (c *Connection) Touch() {
	c.IdleDeadline = time.Now().Add(idleTimeout)
}

// ShouldClose reports whether this connection has served enough
// requests that it must close regardless of keep-alive headers.
func (c *Connection) ShouldClose() bool {
	return c.RequestCount >= maxRequestsPerConnection
}

// Enqueue appends bytes to the send buffer, never blocking dispatch
// (spec.md §4.5 "Backpressure").
func (c *Connection) Enqueue(b []byte) {
	c.SendBuf = append(c.SendBuf, b...)
}
