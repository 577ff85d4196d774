package util

import (
	"path/filepath"
	"strings"
)

// mimeTypes is the fixed extension-to-Content-Type table from spec.md
// §4.3. Anything not listed falls back to text/html, matching the
// original implementation's default (most static assets in the test
// suite this was distilled from are HTML fragments).
var mimeTypes = map[string]string{
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".ico":  "image/x-icon",
}

// ContentType returns the MIME type to use for a static file response
// based on its extension.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := mimeTypes[ext]; ok {
		return ct
	}
	return "text/html"
}
