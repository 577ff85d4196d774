// Package dispatch implements the request dispatcher from spec.md
// §4.3: it turns one framed request into a response, following a fixed
// precedence chain (redirect, body-size cap, method gating, directory
// handling, CGI, DELETE, GET, generic POST, 501).
package dispatch

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/webserv/webserv/config"
	"github.com/webserv/webserv/internal/cgi"
	"github.com/webserv/webserv/internal/dirlist"
	"github.com/webserv/webserv/internal/httpparse"
	"github.com/webserv/webserv/internal/routing"
	"github.com/webserv/webserv/internal/util"
)

// Result is what the dispatcher hands back to the connection manager:
// bytes to append to the send buffer, an optional CGI session to start,
// and whether the connection should stay open afterward.
type Result struct {
	Response  []byte
	StartCGI  *cgi.Request
	KeepAlive bool
}

// Dispatch processes one framed request against srv, implementing the
// precedence chain from spec.md §4.3.
func Dispatch(srv *config.Server, req *httpparse.Request) Result {
	keepAlive := keepAliveFor(req)
	loc := routing.Resolve(srv, req.Path, req.Method)

	// 1. Redirect
	if loc != nil && loc.HasRedirect {
		return errResult(redirectResponse(loc.RedirectCode, loc.RedirectURL), false)
	}

	// 2. Body-size enforcement. httpparse.Parse has already decoded a
	// chunked body by this point, so len(req.Body) reflects the actual
	// payload size regardless of transfer encoding; a request whose
	// Content-Length header understates the body (or that has none, as
	// chunked requests normally don't) is still caught.
	if srv.MaxSize > 0 {
		size := int64(len(req.Body))
		if cl, ok := contentLength(req); ok && cl > size {
			size = cl
		}
		if size > srv.MaxSize {
			return errResult(errorResponse(srv, 413, "request body exceeds maximum size"), false)
		}
	}

	// 3. Method gating
	if loc == nil || !loc.Allows(req.Method) {
		return errResult(errorResponse(srv, 405, "method not allowed"), false)
	}

	target := routing.Target(srv, loc, req.Path)

	info, statErr := os.Stat(target)
	isDir := statErr == nil && info.IsDir()

	// 4. Directory handling
	if isDir {
		index := routing.EffectiveIndex(srv, loc)
		indexPath := strings.TrimRight(target, "/") + "/" + index
		if idxInfo, err := os.Stat(indexPath); err == nil && !idxInfo.IsDir() {
			target = indexPath
			isDir = false
		} else if loc.Autoindex {
			return keepAliveResult(serveAutoindex(target, req.Path), keepAlive)
		} else {
			return errResult(errorResponse(srv, 404, "not found"), keepAlive)
		}
	}

	// 5. CGI
	if !isDir && matchesCGIExtension(loc, target) {
		_, existsErr := os.Stat(target)
		scriptMissing := existsErr != nil
		if req.Method == "POST" && scriptMissing {
			// fall through to generic POST
		} else if req.Method == "DELETE" {
			// fall through to DELETE
		} else {
			return Result{
				StartCGI: &cgi.Request{
					ScriptPath: target,
					Method:     req.Method,
					Query:      req.Query,
					Body:       req.Body,
					Headers:    req.Headers,
				},
				KeepAlive: keepAlive,
			}
		}
	}

	switch req.Method {
	case "DELETE":
		return keepAliveResult(handleDelete(srv, target), keepAlive)
	case "GET":
		return keepAliveResult(handleGet(srv, target), keepAlive)
	case "POST":
		return keepAliveResult(handlePost(srv, loc, req, target), keepAlive)
	default:
		return errResult(errorResponse(srv, 501, "method not implemented"), false)
	}
}

func errResult(resp []byte, keepAlive bool) Result {
	return Result{Response: resp, KeepAlive: keepAlive}
}

func keepAliveResult(resp []byte, keepAlive bool) Result {
	return Result{Response: resp, KeepAlive: keepAlive}
}

func matchesCGIExtension(loc *config.Location, target string) bool {
	for _, ext := range loc.CGIExtensions {
		if strings.HasSuffix(target, ext) {
			return true
		}
	}
	return false
}

func handleDelete(srv *config.Server, target string) []byte {
	err := os.Remove(target)
	switch {
	case err == nil:
		return simpleResponse(204, "No Content", "")
	case errors.Is(err, os.ErrNotExist):
		return errorResponse(srv, 404, "not found")
	case errors.Is(err, os.ErrPermission):
		return errorResponse(srv, 403, "forbidden")
	default:
		return errorResponse(srv, 404, "not found")
	}
}

func handleGet(srv *config.Server, target string) []byte {
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return errorResponse(srv, 403, "forbidden")
		}
		return errorResponse(srv, 404, "not found")
	}
	contentType := util.ContentType(target)
	head := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: %s\r\nContent-Length: %d\r\n\r\n", contentType, len(data))
	return append([]byte(head), data...)
}

func handlePost(srv *config.Server, loc *config.Location, req *httpparse.Request, target string) []byte {
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return errorResponse(srv, 405, "cannot POST to a directory")
	}

	dest := target
	created := false
	if loc.UploadDir != "" {
		dest = strings.TrimRight(loc.UploadDir, "/") + "/" + path.Base(req.Path)
		created = true
	}

	if err := os.WriteFile(dest, req.Body, 0o644); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return errorResponse(srv, 403, "forbidden")
		}
		return errorResponse(srv, 404, "not found")
	}

	if created {
		return simpleResponse(201, "Created", "")
	}
	return simpleResponse(200, "OK", "")
}

func serveAutoindex(dirPath, urlPath string) []byte {
	entries, err := dirlist.Build(dirPath)
	if err != nil {
		return simpleResponse(404, "Not Found", "")
	}
	body := dirlist.Render(urlPath, entries)
	head := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: %d\r\n\r\n", len(body))
	return append([]byte(head), body...)
}

func redirectResponse(code int, url string) []byte {
	return []byte(fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nLocation: %s\r\nContent-Length: 0\r\nConnection: close\r\n\r\n",
		code, httpparse.StatusText(code), url))
}

func errorResponse(srv *config.Server, code int, message string) []byte {
	if srv != nil {
		if page, ok := srv.ErrorPages[code]; ok {
			if data, err := os.ReadFile(strings.TrimRight(srv.Root, "/") + "/" + page); err == nil {
				head := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Type: text/html\r\nContent-Length: %d\r\n\r\n",
					code, httpparse.StatusText(code), len(data))
				return append([]byte(head), data...)
			}
		}
	}
	return httpparse.ErrorResponse(code, message)
}

func simpleResponse(code int, statusText, body string) []byte {
	return []byte(fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Length: %d\r\nConnection: keep-alive\r\n\r\n%s",
		code, statusText, len(body), body))
}

func contentLength(req *httpparse.Request) (int64, bool) {
	v := req.Headers.Get("content-length")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// keepAliveFor computes the keep-alive decision from spec.md §4.3
// "Keep-alive computation".
func keepAliveFor(req *httpparse.Request) bool {
	conn := req.Headers.Get("connection")
	if req.Version == "HTTP/1.0" {
		return strings.EqualFold(conn, "keep-alive")
	}
	return !strings.EqualFold(conn, "close")
}
