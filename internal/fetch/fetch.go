// Package fetch opens remote sources as streams.
package fetch

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/stefando/streamupload/internal/config"
	"github.com/stefando/streamupload/internal/errs"
)

// ErrIdleTimeout is reported when the source stops sending data for longer
// than the configured timeout.
var ErrIdleTimeout = errors.New("source stalled")

// Response is an open source stream. The caller must close Body.
type Response struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64 // -1 when unknown
}

// Client performs streaming GET requests.
type Client struct {
	http      *http.Client
	userAgent string
	timeout   time.Duration
	log       zerolog.Logger
}

// New creates a client from the upload settings in cfg.
func New(cfg *config.Config, log zerolog.Logger) *Client {
	return NewClient(cfg.UserAgent, cfg.FetchTimeout, log)
}

// NewClient creates a client sending userAgent. timeout bounds connecting,
// the TLS handshake, waiting for response headers and every body read. It
// does not bound the whole transfer.
func NewClient(userAgent string, timeout time.Duration, log zerolog.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout

	return &Client{
		http:      &http.Client{Transport: transport},
		userAgent: userAgent,
		timeout:   timeout,
		log:       log.With().Str("component", "fetch").Logger(),
	}
}

// Open issues a GET for rawURL and returns the body as a stream. Any non-2xx
// status is a fetch error carrying the status code.
func (c *Client) Open(ctx context.Context, rawURL string) (*Response, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, errs.Fetch("get", rawURL, 0, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, errs.Fetch("get", rawURL, 0, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()
		return nil, errs.Fetch("get", rawURL, resp.StatusCode, errors.Newf("unexpected status %q", resp.Status))
	}

	c.log.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int64("content_length", resp.ContentLength).
		Msg("source opened")

	return &Response{
		Body:          newIdleReader(resp.Body, rawURL, c.timeout, cancel),
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

// idleReader cancels the request when a single Read makes no progress
// within timeout. Each Read arms its own timer tagged with a generation so a
// timer that fires after its Read returned is ignored.
type idleReader struct {
	rc      io.ReadCloser
	url     string
	timeout time.Duration
	cancel  context.CancelFunc

	mu      sync.Mutex
	gen     uint64
	expired bool
}

func newIdleReader(rc io.ReadCloser, url string, timeout time.Duration, cancel context.CancelFunc) *idleReader {
	return &idleReader{rc: rc, url: url, timeout: timeout, cancel: cancel}
}

// begin opens a read window and returns its generation.
func (r *idleReader) begin() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	return r.gen
}

// end closes the current read window and reports whether the request was
// cancelled for idleness.
func (r *idleReader) end() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	return r.expired
}

// expire cancels the request if the read window gen is still open.
func (r *idleReader) expire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return
	}
	r.expired = true
	r.cancel()
}

func (r *idleReader) Read(p []byte) (int, error) {
	var timer *time.Timer
	if r.timeout > 0 {
		gen := r.begin()
		timer = time.AfterFunc(r.timeout, func() { r.expire(gen) })
	}
	n, err := r.rc.Read(p)
	expired := false
	if timer != nil {
		timer.Stop()
		expired = r.end()
	}

	switch {
	case err == nil || errors.Is(err, io.EOF):
		return n, err
	case expired:
		return n, errs.Fetch("read", r.url, 0, errors.Wrapf(ErrIdleTimeout, "no data for %s", r.timeout))
	default:
		return n, errs.Fetch("read", r.url, 0, err)
	}
}

func (r *idleReader) Close() error {
	defer r.cancel()
	return r.rc.Close()
}
