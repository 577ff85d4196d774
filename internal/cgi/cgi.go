// Package cgi implements the CGI/1.1 engine from spec.md §4.4: spawning
// a language interpreter as a child process, streaming the request body
// in through a temporary file, and capturing standard output through a
// non-blocking pipe polled by the connection manager's event loop.
//
// The child-spawn plumbing is grounded in the teacher's fastcgi
// middleware (middleware/fastcgi/fcgiclient.go), adapted from a
// persistent FastCGI client to a one-shot fork/exec-per-request model,
// the way the original C++ implementation's CgiHandler does it.
package cgi

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Timeout is the wall-clock deadline a CGI child is given before it is
// killed, per spec.md §4.4 "Timeout".
const Timeout = 5 * time.Second

// interpreters maps a script's file extension to the interpreter binary
// that runs it, per spec.md §4.4 "Start protocol".
var interpreters = map[string]string{
	".py":  "python3",
	".php": "php-cgi",
	".bla": "./cgi_tester",
}

// Interpreter returns the interpreter binary for scriptPath's extension,
// defaulting to python3 the way the original implementation's
// CgiHandler does (it falls back to /usr/bin/python3 for anything it
// doesn't recognize).
func Interpreter(scriptPath string) string {
	for ext, bin := range interpreters {
		if strings.HasSuffix(scriptPath, ext) {
			return bin
		}
	}
	return "python3"
}

// State is the lifecycle stage of a Session, per spec.md §4.4 "State
// machine".
type State int

const (
	Started State = iota
	ReadingOutput
	FinishedOK
	FinishedChildError
	FinishedTimeout
)

// Request bundles everything the dispatcher hands to the CGI engine to
// start a session.
type Request struct {
	ScriptPath string
	Method     string
	Query      string
	Body       []byte
	Headers    map[string]string
}

// Session is a single in-flight CGI invocation. The connection manager
// polls ReadFD for readiness and calls Poll; it owns no synchronization
// since the whole server is single-threaded.
type Session struct {
	ID      string
	Cmd     *exec.Cmd
	ReadFD  *os.File
	Started time.Time

	State State
	out   []byte
	tmp   *os.File
}

// Start builds the environment, spawns the interpreter, and returns a
// Session whose ReadFD is registered with the event loop's read set.
// The body is written to a temp file first (step 1 of spec.md §4.4)
// specifically to avoid the pipe deadlock a direct stdin pipe would
// risk for large bodies.
func Start(req Request) (*Session, error) {
	tmp, err := os.CreateTemp("", "webserv-cgi-in-*")
	if err != nil {
		return nil, fmt.Errorf("cgi: create temp stdin: %w", err)
	}
	if len(req.Body) > 0 {
		if _, err := tmp.Write(req.Body); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("cgi: write temp stdin: %w", err)
		}
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("cgi: rewind temp stdin: %w", err)
	}

	readEnd, writeEnd, err := os.Pipe()
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("cgi: create pipe: %w", err)
	}

	interp := Interpreter(req.ScriptPath)
	cmd := exec.Command(interp, req.ScriptPath)
	cmd.Stdin = tmp
	cmd.Stdout = writeEnd
	cmd.Stderr = nil
	cmd.Env = buildEnv(req)

	if err := cmd.Start(); err != nil {
		writeEnd.Close()
		readEnd.Close()
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("cgi: start %s: %w", interp, err)
	}

	// the parent's copy of the write end must close so readEnd sees
	// EOF once the child exits.
	writeEnd.Close()
	tmp.Close()
	os.Remove(tmp.Name())

	if err := syscall.SetNonblock(int(readEnd.Fd()), true); err != nil {
		readEnd.Close()
		return nil, fmt.Errorf("cgi: set pipe nonblocking: %w", err)
	}

	return &Session{
		ID:      uuid.NewString(),
		Cmd:     cmd,
		ReadFD:  readEnd,
		Started: time.Now(),
		State:   ReadingOutput,
	}, nil
}

// buildEnv constructs the CGI/1.1 environment per spec.md §4.4.
func buildEnv(req Request) []string {
	contentLength := req.Headers["content-length"]
	if contentLength == "" {
		contentLength = "0"
	}

	env := []string{
		"REQUEST_METHOD=" + req.Method,
		"QUERY_STRING=" + req.Query,
		"CONTENT_LENGTH=" + contentLength,
		"CONTENT_TYPE=" + req.Headers["content-type"],
		"SCRIPT_FILENAME=" + req.ScriptPath,
		"SCRIPT_NAME=" + req.ScriptPath,
		"PATH_INFO=" + req.ScriptPath,
		"PATH_TRANSLATED=" + req.ScriptPath,
		"REQUEST_URI=" + req.ScriptPath,
		"REDIRECT_STATUS=200",
		"SERVER_PROTOCOL=HTTP/1.1",
		"GATEWAY_INTERFACE=CGI/1.1",
	}

	for key, val := range req.Headers {
		env = append(env, "HTTP_"+headerEnvKey(key)+"="+val)
	}
	return env
}

// headerEnvKey upper-cases a header key and replaces hyphens with
// underscores, e.g. "user-agent" -> "USER_AGENT".
func headerEnvKey(key string) string {
	b := []byte(strings.ToUpper(key))
	for i, c := range b {
		if c == '-' {
			b[i] = '_'
		}
	}
	return string(b)
}

// Poll reads available output from the session's pipe. Callers should
// invoke it once per readiness notification; it never blocks since
// ReadFD is non-blocking.
//
// This reads the raw descriptor via unix.Read rather than s.ReadFD.Read:
// Go's runtime netpoller treats a pipe's *os.File as pollable and parks
// the calling goroutine in Read until data arrives instead of surfacing
// EAGAIN, which would stall the whole single-threaded event loop on a
// CGI script that writes output in bursts with gaps between them
// (spec.md §5: "the single point of suspension per iteration is the
// readiness wait"). Going through unix.Read keeps this a true,
// non-blocking poll the way loop.go already does for socket fds.
func (s *Session) Poll() error {
	fd := int(s.ReadFD.Fd())
	// Fd() switches the descriptor back to blocking mode; restore
	// non-blocking mode before reading.
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			s.out = append(s.out, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// Expired reports whether the session has exceeded its wall-clock
// timeout.
func (s *Session) Expired(now time.Time) bool {
	return now.Sub(s.Started) >= Timeout
}

// Kill sends SIGKILL to the child and reaps it, used both on timeout
// and on forced connection teardown.
func (s *Session) Kill() {
	if s.Cmd.Process != nil {
		_ = s.Cmd.Process.Kill()
	}
	_ = s.Cmd.Wait()
	s.ReadFD.Close()
}

// Finish reaps the child after EOF on the pipe and returns the raw
// response bytes that Frame should turn into an HTTP response.
func (s *Session) Finish() (output []byte, childFailed bool) {
	err := s.Cmd.Wait()
	s.ReadFD.Close()
	if err != nil {
		s.State = FinishedChildError
		return s.out, true
	}
	s.State = FinishedOK
	return s.out, false
}
