package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizreg/internal/importer/dump/dumptest"
	"bizreg/internal/importer/models"
)

func readAll(t *testing.T, o Opener) string {
	t.Helper()
	rc, err := o.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestHTTPOpenerDecompresses(t *testing.T) {
	dump := dumptest.Standard()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = w.Write(dump.Gzip())
	}))
	defer srv.Close()

	assert.Equal(t, dump.String(), readAll(t, NewHTTPOpener(srv.URL, 0)))
}

func TestHTTPOpenerFollowsRedirects(t *testing.T) {
	dump := dumptest.Standard()
	mux := http.NewServeMux()
	mux.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dump.gz", http.StatusFound)
	})
	mux.HandleFunc("/dump.gz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(dump.Gzip())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	assert.Equal(t, dump.String(), readAll(t, NewHTTPOpener(srv.URL+"/latest", 0)))
}

func TestHTTPOpenerRedirectLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	_, err := NewHTTPOpener(srv.URL+"/a", 0).Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyRedirects)
	assert.ErrorIs(t, err, models.ErrTransientNetwork)
}

func TestHTTPOpenerRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPOpener(srv.URL, 0).Open(context.Background())
	assert.ErrorIs(t, err, models.ErrTransientNetwork)
}

func TestHTTPOpenerTruncatedTransferIsTransient(t *testing.T) {
	body := dumptest.Standard().Gzip()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		conn, buf, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = fmt.Fprintf(buf, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\nConnection: close\r\n\r\n", len(body))
		_, _ = buf.Write(body[:len(body)/2])
		_ = buf.Flush()
	}))
	defer srv.Close()

	rc, err := NewHTTPOpener(srv.URL, 0).Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	_, err = io.ReadAll(rc)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTransientNetwork)
}

func TestTransferReader(t *testing.T) {
	cause := errors.New("connection reset by peer")
	_, err := transferReader{iotest.ErrReader(cause)}.Read(make([]byte, 8))
	assert.ErrorIs(t, err, models.ErrTransientNetwork)
	assert.ErrorIs(t, err, cause)

	n, err := transferReader{strings.NewReader("")}.Read(make([]byte, 8))
	assert.Zero(t, n)
	assert.Equal(t, io.EOF, err, "clean end of body is not an error")

	_, err = transferReader{transferReader{iotest.ErrReader(cause)}}.Read(make([]byte, 8))
	assert.Equal(t, 1, strings.Count(err.Error(), "read dump body"), "already tagged errors pass through")
}

func TestFileOpenerDetectsCompression(t *testing.T) {
	dump := dumptest.Standard()
	dir := t.TempDir()
	gz := filepath.Join(dir, "dump.sql.gz")
	plain := filepath.Join(dir, "dump.sql")
	require.NoError(t, os.WriteFile(gz, dump.Gzip(), 0o600))
	require.NoError(t, os.WriteFile(plain, []byte(dump.String()), 0o600))

	assert.Equal(t, dump.String(), readAll(t, FileOpener{Path: gz}))
	assert.Equal(t, dump.String(), readAll(t, FileOpener{Path: plain}))
}

func TestFileOpenerMissingFile(t *testing.T) {
	_, err := FileOpener{Path: filepath.Join(t.TempDir(), "missing")}.Open(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
