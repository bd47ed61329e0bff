// Package source opens the registry dump and yields its decompressed bytes.
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"

	"bizreg/internal/importer/models"
)

// MaxRedirects caps how many redirects a download may follow.
const MaxRedirects = 5

// ErrTooManyRedirects is returned when the dump URL redirects more than
// MaxRedirects times.
var ErrTooManyRedirects = errors.New("too many redirects")

// Opener yields the decompressed dump. Callers must close the reader.
type Opener interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// HTTPOpener downloads a gzip dump. Downloads are not resumed; a failed
// transfer fails the run.
type HTTPOpener struct {
	url    string
	client *http.Client
}

// NewHTTPOpener builds an opener for url. timeout bounds the whole transfer;
// zero disables it.
func NewHTTPOpener(url string, timeout time.Duration) *HTTPOpener {
	return &HTTPOpener{
		url: url,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) > MaxRedirects {
					return ErrTooManyRedirects
				}
				return nil
			},
		},
	}
}

func (o *HTTPOpener) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build dump request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrTransientNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %d", models.ErrTransientNetwork, resp.StatusCode)
	}
	zr, err := gzip.NewReader(transferReader{resp.Body})
	if err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: open gzip stream: %w", models.ErrTransientNetwork, err)
	}
	// the outer wrapper catches a transfer cut short, which gzip reports as
	// io.ErrUnexpectedEOF
	return &stack{Reader: transferReader{zr}, closers: []io.Closer{zr, resp.Body}}, nil
}

// transferReader tags read failures of a download as transient network errors.
type transferReader struct {
	r io.Reader
}

func (t transferReader) Read(b []byte) (int, error) {
	n, err := t.r.Read(b)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, models.ErrTransientNetwork) {
		err = fmt.Errorf("%w: read dump body: %w", models.ErrTransientNetwork, err)
	}
	return n, err
}

// FileOpener reads a local dump, gzip-compressed or plain.
type FileOpener struct {
	Path string
}

func (o FileOpener) Open(_ context.Context) (io.ReadCloser, error) {
	f, err := os.Open(o.Path)
	if err != nil {
		return nil, fmt.Errorf("open dump file: %w", err)
	}
	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open gzip dump: %w", err)
		}
		return &stack{Reader: zr, closers: []io.Closer{zr, f}}, nil
	}
	return &stack{Reader: br, closers: []io.Closer{f}}, nil
}

// stack closes the decompressor before the underlying stream.
type stack struct {
	io.Reader
	closers []io.Closer
}

func (s *stack) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
