package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"salesrep/logging"
	"salesrep/metrics"
)

const (
	// DefaultTimeout is the per-request timeout
	DefaultTimeout = 8 * time.Second
	// MaxBodyBytes caps any single response (25MB, catalogs ship as large ZIPs)
	MaxBodyBytes = int64(25 * 1024 * 1024)

	// Fetch kinds, used as metric labels
	KindPage     = "page"
	KindDocument = "document"
	KindImage    = "image"
)

// BrowserUserAgent is sent on every request. The origin answers default Go and
// bot-looking clients with 403.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Result is the typed outcome of one GET. Err is set for transport errors,
// timeouts and any non-200 status; callers skip such results and carry on.
type Result struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
	Err         error
}

// OK reports whether the result carries usable data.
func (r Result) OK() bool {
	return r.Err == nil && r.StatusCode == http.StatusOK
}

// Fetcher performs browser-like GET requests against the business site.
type Fetcher struct {
	client   *http.Client
	referer  string
	maxBytes int64
	log      logging.Logger
	metrics  *metrics.Metrics
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the underlying client; its Timeout is left untouched.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithMetrics records fetch outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithMaxBytes overrides MaxBodyBytes.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// NewFetcher creates a fetcher. referer is the site origin sent with image requests.
func NewFetcher(timeout time.Duration, referer string, log logging.Logger, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &Fetcher{
		client:   &http.Client{Timeout: timeout},
		referer:  referer,
		maxBytes: MaxBodyBytes,
		log:      log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch GETs a page or a downloadable file.
func (f *Fetcher) Fetch(ctx context.Context, url string) Result {
	return f.do(ctx, url, KindPage, func(req *http.Request) {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	})
}

// FetchDocument GETs a PDF or ZIP.
func (f *Fetcher) FetchDocument(ctx context.Context, url string) Result {
	return f.do(ctx, url, KindDocument, func(req *http.Request) {
		req.Header.Set("Accept", "application/pdf,application/zip,application/octet-stream,*/*;q=0.8")
	})
}

// FetchImage GETs an image with a same-site Referer so hotlink protection lets it through.
func (f *Fetcher) FetchImage(ctx context.Context, url string) Result {
	return f.do(ctx, url, KindImage, func(req *http.Request) {
		req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
		if f.referer != "" {
			req.Header.Set("Referer", f.referer+"/")
		}
	})
}

// FetchAll fetches each URL in order. A failed URL yields a failed Result and
// never stops the rest of the batch.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []Result {
	results := make([]Result, 0, len(urls))
	for _, u := range urls {
		results = append(results, f.Fetch(ctx, u))
	}
	return results
}

func (f *Fetcher) do(ctx context.Context, url, kind string, decorate func(*http.Request)) (res Result) {
	res.URL = url
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		f.metrics.ObserveFetch(kind, res.OK())
		entry := f.log.WithFields(logging.Fields{
			"kind":     kind,
			"url":      url,
			"status":   res.StatusCode,
			"duration": res.Duration.Milliseconds(),
		})
		if res.Err != nil {
			entry.WithError(res.Err).Warn("fetch failed, skipping")
		} else {
			entry.Debug("fetched")
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		res.Err = fmt.Errorf("failed to create request: %w", err)
		return res
	}
	req.Header.Set("User-Agent", BrowserUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,es;q=0.8")
	decorate(req)

	resp, err := f.client.Do(req)
	if err != nil {
		res.Err = fmt.Errorf("failed to fetch URL: %w", err)
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	res.ContentType = resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		res.Err = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		return res
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		res.Err = fmt.Errorf("failed to read response: %w", err)
		return res
	}
	if int64(len(body)) > f.maxBytes {
		res.Err = fmt.Errorf("response exceeds %d bytes", f.maxBytes)
		return res
	}
	res.Body = body
	return res
}
