package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConf(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadBasicServer(t *testing.T) {
	path := writeConf(t, `
server {
	listen 127.0.0.1:8080;
	host 127.0.0.1;
	server_name example.test;
	root /srv/www;
	index index.html;
	max_size 1m;
	error_page 404 /errors/404.html;

	location / {
		methods GET POST;
		autoindex on;
	}

	location *.py {
		methods GET POST;
		cgi_extension .py;
	}

	location /upload {
		methods POST;
		upload_path /srv/uploads;
	}
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 1)

	srv := cfg.Servers[0]
	require.Equal(t, "127.0.0.1", srv.Host)
	require.Equal(t, 8080, srv.Port)
	require.Equal(t, "example.test", srv.Name)
	require.Equal(t, "/srv/www", srv.Root)
	require.Equal(t, int64(1<<20), srv.MaxSize)
	require.Equal(t, "/errors/404.html", srv.ErrorPages[404])
	require.Len(t, srv.Locations, 3)

	root := srv.Locations[0]
	require.True(t, root.Allows("GET"))
	require.True(t, root.Autoindex)

	cgi := srv.Locations[1]
	require.True(t, cgi.IsSuffix())
	require.Equal(t, ".py", cgi.Suffix())
	require.Contains(t, cgi.CGIExtensions, ".py")

	upload := srv.Locations[2]
	require.False(t, upload.Allows("GET"))
	require.Equal(t, "/srv/uploads", upload.UploadDir)
}

func TestLoadRejectsNonConfExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	require.NoError(t, os.WriteFile(path, []byte("server {}"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRequiresAtLeastOneLocation(t *testing.T) {
	path := writeConf(t, `
server {
	listen 8080;
	host 0.0.0.0;
	server_name example.test;
	root /srv/www;
	index index.html;
	max_size 1m;
}
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsBadPort(t *testing.T) {
	path := writeConf(t, `
server {
	listen 99999;
	host 0.0.0.0;
	server_name example.test;
	root /srv/www;
	index index.html;
	max_size 1m;
	location / { methods GET; }
}
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestRedirectLocation(t *testing.T) {
	path := writeConf(t, `
server {
	listen 8080;
	host 0.0.0.0;
	server_name example.test;
	root /srv/www;
	index index.html;
	max_size 1m;
	location /old {
		return 301 /new;
	}
}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	loc := cfg.Servers[0].Locations[0]
	require.True(t, loc.HasRedirect)
	require.Equal(t, 301, loc.RedirectCode)
	require.Equal(t, "/new", loc.RedirectURL)
}
