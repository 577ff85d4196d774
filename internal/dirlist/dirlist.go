// Package dirlist generates the autoindex HTML listing emitted when a
// request resolves to a directory with no index file and the matched
// Location has autoindex enabled (spec.md §4.3 step 4).
package dirlist

import (
	"fmt"
	"html"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// Entry is one row of a directory listing.
type Entry struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime string
}

// HumanSize renders Size the way the teacher's file-server browse page
// does, in IEC (base-1024) units.
func (e Entry) HumanSize() string {
	if e.IsDir {
		return "-"
	}
	return humanize.IBytes(uint64(e.Size))
}

// Build reads dirPath and returns its entries sorted directories-first,
// then by name, mirroring byNameDirFirst from the teacher's fileserver
// browse listing.
func Build(dirPath string) ([]Entry, error) {
	f, err := os.Open(dirPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	infos, err := f.Readdir(-1)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, Entry{
			Name:    fi.Name(),
			IsDir:   fi.IsDir(),
			Size:    fi.Size(),
			ModTime: fi.ModTime().Format("2006-01-02 15:04"),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})

	return entries, nil
}

// Render builds the full HTML page for an autoindex listing of
// urlPath, whose filesystem entries are entries. The markup deliberately
// stays plain (a table, no JS, no external assets) since this is served
// straight out of the dispatcher with no template engine dependency.
func Render(urlPath string, entries []Entry) []byte {
	var b strings.Builder

	title := html.EscapeString(urlPath)
	fmt.Fprintf(&b, "<!DOCTYPE html>\n<html>\n<head><title>Index of %s</title></head>\n<body>\n", title)
	fmt.Fprintf(&b, "<h1>Index of %s</h1>\n<hr>\n<table>\n", title)
	b.WriteString("<tr><th>Name</th><th>Size</th><th>Modified</th></tr>\n")

	if urlPath != "/" {
		parent := path.Dir(strings.TrimSuffix(urlPath, "/"))
		if !strings.HasSuffix(parent, "/") {
			parent += "/"
		}
		fmt.Fprintf(&b, "<tr><td><a href=\"%s\">../</a></td><td>-</td><td></td></tr>\n", html.EscapeString(parent))
	}

	for _, e := range entries {
		name := e.Name
		href := url.PathEscape(name)
		if e.IsDir {
			name += "/"
			href += "/"
		}
		fmt.Fprintf(&b, "<tr><td><a href=\"%s\">%s</a></td><td>%s</td><td>%s</td></tr>\n",
			href, html.EscapeString(name), e.HumanSize(), e.ModTime)
	}

	b.WriteString("</table>\n<hr>\n</body>\n</html>")
	return []byte(b.String())
}
