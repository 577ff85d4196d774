// Package connmgr implements the single-threaded, readiness-multiplexed
// event loop from spec.md §4.5: one epoll set over listener sockets,
// connection sockets, and CGI pipe read-ends, with no goroutine-per-
// connection model and no mutexes (spec.md §5 "Scheduling model").
//
// The raw socket and epoll plumbing is grounded in the teacher's
// listen_unix.go / listen_linux.go (golang.org/x/sys/unix usage for
// socket options), generalized here from net.Listener wrapping to a
// fully non-blocking, descriptor-level loop the spec requires.
package connmgr

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/webserv/webserv/config"
	"github.com/webserv/webserv/internal/cgi"
	"github.com/webserv/webserv/internal/dispatch"
	"github.com/webserv/webserv/internal/httpparse"
	"github.com/webserv/webserv/internal/routing"
)

// maxConnections is the soft cap on concurrent connections from
// spec.md §5 "FD budget".
const maxConnections = 800

// acceptBurst bounds how many connections one listener will accept per
// loop iteration, per spec.md §4.5 step 1.
const acceptBurst = 64

// pollTimeout is the readiness-wait cap from spec.md §4.5 "Loop shape".
const pollTimeout = 1 * time.Second

// readScratchSize is the size of the per-readiness scratch read buffer.
const readScratchSize = 64 * 1024

// Loop is the event loop: it owns every listener, connection, and CGI
// session exclusively (spec.md §3 "Ownership", §5 "Shared resources").
type Loop struct {
	log       *zap.Logger
	cfg       *config.Config
	listeners []*Listener
	epfd      int

	conns map[int]*Connection // keyed by connection FD
	cgis  map[int]*Connection // keyed by CGI pipe FD, points back to owner

	connSem      *semaphore.Weighted
	acceptLimit  *rate.Limiter
	shuttingDown atomic.Bool
}

// New builds a Loop bound to every address cfg's servers declare.
func New(cfg *config.Config, log *zap.Logger) (*Loop, error) {
	listeners, err := newListeners(cfg)
	if err != nil {
		return nil, err
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("connmgr: epoll_create1: %w", err)
	}

	l := &Loop{
		log:         log,
		cfg:         cfg,
		listeners:   listeners,
		epfd:        epfd,
		conns:       make(map[int]*Connection),
		cgis:        make(map[int]*Connection),
		connSem:     semaphore.NewWeighted(maxConnections),
		acceptLimit: rate.NewLimiter(rate.Limit(acceptBurst*4), acceptBurst),
	}

	for _, ln := range listeners {
		if err := l.epollAdd(ln.FD); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Shutdown sets the loop's shutdown flag; it is safe to call from a
// signal handler goroutine since it only ever stores to an atomic.Bool
// the loop polls once per iteration (spec.md §5: "no atomics beyond the
// single process-wide shutdown flag").
func (l *Loop) Shutdown() {
	l.shuttingDown.Store(true)
}

// Run executes the loop until Shutdown is called or ctx is cancelled.
// It never returns an error from a single iteration's transient I/O
// failures; those are logged and the affected descriptor is closed.
func (l *Loop) Run(ctx context.Context) error {
	defer l.closeAll()

	events := make([]unix.EpollEvent, 256)
	for {
		if l.shuttingDown.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := unix.EpollWait(l.epfd, events, int(pollTimeout/time.Millisecond))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("connmgr: epoll_wait: %w", err)
		}

		var toClose []int
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch {
			case l.isListener(fd):
				l.handleAccept(fd)
			case l.isCGIPipe(fd):
				l.handleCGIReadable(fd, events[i].Events, &toClose)
			default:
				l.handleConnReadable(fd, events[i].Events, &toClose)
			}
		}

		l.checkCGITimeouts(&toClose)
		l.checkIdleConnections(&toClose)
		l.flushWritable(&toClose)
		l.closeConnections(toClose)
	}
}

func (l *Loop) isListener(fd int) bool {
	for _, ln := range l.listeners {
		if ln.FD == fd {
			return true
		}
	}
	return false
}

func (l *Loop) isCGIPipe(fd int) bool {
	_, ok := l.cgis[fd]
	return ok
}

// handleAccept accepts a bounded burst of new connections on a ready
// listener, per spec.md §4.5 step 1.
func (l *Loop) handleAccept(lnFD int) {
	var ln *Listener
	for _, candidate := range l.listeners {
		if candidate.FD == lnFD {
			ln = candidate
			break
		}
	}
	if ln == nil {
		return
	}

	for i := 0; i < acceptBurst; i++ {
		if !l.acceptLimit.Allow() {
			return
		}
		if !l.connSem.TryAcquire(1) {
			return // soft cap reached; leave remaining conns in the kernel backlog
		}

		fd, _, err := unix.Accept(lnFD)
		if err != nil {
			l.connSem.Release(1)
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			l.log.Warn("accept failed", zap.Error(err))
			return
		}
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fd)
			l.connSem.Release(1)
			continue
		}

		conn := NewConnection(fd, ln.Servers)
		l.conns[fd] = conn
		if err := l.epollAdd(fd); err != nil {
			l.log.Warn("epoll_ctl add conn failed", zap.Error(err))
			delete(l.conns, fd)
			unix.Close(fd)
			l.connSem.Release(1)
			continue
		}
		l.log.Debug("accepted connection", zap.String("conn", conn.ID), zap.Int("fd", fd), zap.String("listener", ln.Addr))
	}
}

// handleConnReadable services one readable (and/or writable) connection
// socket, per spec.md §4.5 step 2.
func (l *Loop) handleConnReadable(fd int, evMask uint32, toClose *[]int) {
	conn, ok := l.conns[fd]
	if !ok {
		return
	}

	if evMask&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		*toClose = append(*toClose, fd)
		return
	}

	scratch := make([]byte, readScratchSize)
	n, err := unix.Read(fd, scratch)
	if n > 0 {
		conn.RecvBuf = append(conn.RecvBuf, scratch[:n]...)
		conn.Touch()
	}
	if n == 0 || (err != nil && !errors.Is(err, unix.EAGAIN)) {
		*toClose = append(*toClose, fd)
		return
	}

	l.drainPipelinedRequests(conn)
}

// drainPipelinedRequests repeatedly probes the receive buffer for
// complete requests, dispatching each one before consuming more input,
// per spec.md §4.5 step 2 and §5 "Ordering guarantees". A CGI session
// started for this connection suspends further draining: the CGI
// response is appended to SendBuf only once the child is reaped
// (finishCGI), so starting the next buffered request now would let its
// response reach the wire ahead of the CGI response still in flight.
// finishCGI resumes draining once that response is enqueued.
func (l *Loop) drainPipelinedRequests(conn *Connection) {
	for {
		if conn.CGI != nil {
			return
		}

		n := httpparse.RequestLength(conn.RecvBuf)
		if n < 0 {
			conn.Enqueue(httpparse.ErrorResponse(400, "request line or header too long"))
			conn.CloseWhenDrain = true
			return
		}
		if n == 0 {
			return
		}
		reqBytes := conn.RecvBuf[:n]
		conn.RecvBuf = conn.RecvBuf[n:]

		req, err := httpparse.Parse(reqBytes)
		if err != nil {
			conn.Enqueue(httpparse.ErrorResponse(400, "malformed request"))
			conn.CloseWhenDrain = true
			return
		}

		conn.RequestCount++
		srv := routing.SelectServer(conn.Servers, req.Headers.Get("host"))
		result := dispatch.Dispatch(srv, req)
		conn.Enqueue(result.Response)

		if result.StartCGI != nil {
			l.startCGI(conn, result.StartCGI)
			if !result.KeepAlive || conn.ShouldClose() {
				conn.CloseWhenDrain = true
			}
			return
		}

		if !result.KeepAlive || conn.ShouldClose() {
			conn.CloseWhenDrain = true
			return
		}
	}
}

func (l *Loop) startCGI(conn *Connection, req *cgi.Request) {
	session, err := cgi.Start(*req)
	if err != nil {
		l.log.Warn("cgi start failed", zap.String("script", req.ScriptPath), zap.Error(err))
		conn.Enqueue(httpparse.ErrorResponse(500, "could not start CGI"))
		return
	}
	conn.CGI = session
	l.cgis[int(session.ReadFD.Fd())] = conn
	_ = l.epollAdd(int(session.ReadFD.Fd()))
	l.log.Debug("cgi session started", zap.String("script", req.ScriptPath), zap.String("session", session.ID))
}

// handleCGIReadable drains a ready CGI pipe, per spec.md §4.5 step 3.
func (l *Loop) handleCGIReadable(fd int, evMask uint32, toClose *[]int) {
	conn, ok := l.cgis[fd]
	if !ok || conn.CGI == nil {
		return
	}
	if err := conn.CGI.Poll(); err != nil {
		l.finishCGI(conn, fd)
		return
	}

	// check for EOF: Poll returns nil both when the pipe is merely empty
	// for now and when the read hits EOF, so the EOF signal is the
	// EPOLLHUP epoll reports once the child's end of the pipe is closed.
	// Poll has already drained everything buffered, so the session can be
	// reaped and its response framed.
	if evMask&unix.EPOLLHUP != 0 {
		l.finishCGI(conn, fd)
	}
}

func (l *Loop) finishCGI(conn *Connection, fd int) {
	output, failed := conn.CGI.Finish()
	if failed {
		l.log.Warn("cgi child exited with error", zap.String("session", conn.CGI.ID))
	} else {
		l.log.Debug("cgi session finished", zap.String("session", conn.CGI.ID), zap.Int("bytes", len(output)))
	}
	conn.Enqueue(cgi.Frame(output, failed))
	delete(l.cgis, fd)
	_ = l.epollDel(fd)
	conn.CGI = nil

	// the CGI response is now in place on SendBuf in request order; any
	// requests pipelined behind it while the session was in flight can
	// resume draining.
	if !conn.CloseWhenDrain {
		l.drainPipelinedRequests(conn)
	}
}

// checkCGITimeouts enforces the 5-second wall-clock deadline from
// spec.md §4.4 "Timeout".
func (l *Loop) checkCGITimeouts(toClose *[]int) {
	now := time.Now()
	for fd, conn := range l.cgis {
		if conn.CGI != nil && conn.CGI.Expired(now) {
			l.log.Warn("cgi session timed out", zap.String("session", conn.CGI.ID))
			conn.CGI.State = cgi.FinishedTimeout
			conn.CGI.Kill()
			conn.Enqueue(cgi.TimeoutResponse())
			delete(l.cgis, fd)
			_ = l.epollDel(fd)
			conn.CGI = nil
			conn.CloseWhenDrain = true
		}
	}
}

// checkIdleConnections enforces each connection's absolute idle
// deadline, per spec.md §3 "Connection" and §5 "Cancellation and
// timeouts": a connection that has sent nothing since its last Touch
// for idleTimeout is queued for close, its CGI session (if any) killed
// along with it in closeConnections.
func (l *Loop) checkIdleConnections(toClose *[]int) {
	now := time.Now()
	for fd, conn := range l.conns {
		if conn.Expired(now) {
			*toClose = append(*toClose, fd)
		}
	}
}

// flushWritable drains send buffers opportunistically, per spec.md
// §4.5 step 4.
func (l *Loop) flushWritable(toClose *[]int) {
	for fd, conn := range l.conns {
		if len(conn.SendBuf) == 0 {
			continue
		}
		n, err := unix.Write(fd, conn.SendBuf)
		if n > 0 {
			conn.SendBuf = conn.SendBuf[n:]
		}
		if err != nil && !errors.Is(err, unix.EAGAIN) {
			*toClose = append(*toClose, fd)
			continue
		}
		if len(conn.SendBuf) == 0 && conn.CloseWhenDrain {
			*toClose = append(*toClose, fd)
		}
	}
}

// closeConnections dedups and closes everything queued for teardown,
// per spec.md §4.5 step 5.
func (l *Loop) closeConnections(fds []int) {
	seen := make(map[int]bool, len(fds))
	for _, fd := range fds {
		if seen[fd] {
			continue
		}
		seen[fd] = true
		conn, ok := l.conns[fd]
		if !ok {
			continue
		}
		if conn.CGI != nil {
			// read the pipe fd before Kill closes it; Fd() on a closed
			// file returns -1.
			pipeFD := int(conn.CGI.ReadFD.Fd())
			conn.CGI.Kill()
			delete(l.cgis, pipeFD)
		}
		_ = l.epollDel(fd)
		_ = unix.Close(fd)
		delete(l.conns, fd)
		l.connSem.Release(1)
	}
}

func (l *Loop) closeAll() {
	for fd := range l.conns {
		if conn := l.conns[fd]; conn.CGI != nil {
			conn.CGI.Kill()
		}
		_ = unix.Close(fd)
	}
	for _, ln := range l.listeners {
		_ = unix.Close(ln.FD)
	}
	_ = unix.Close(l.epfd)
}

func (l *Loop) epollAdd(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (l *Loop) epollDel(fd int) error {
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}
