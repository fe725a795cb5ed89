// Package fetcher retrieves marketplace pages over HTTP with retries,
// per-host rate limiting and anti-bot detection.
package fetcher

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"

	"github.com/sells-group/reel-importer/internal/resilience"
)

const maxBodyBytes = 8 << 20

// HTMLFetcher returns the decoded HTML of a page. ok is false when the page
// could not be read after retries; callers treat that as a missing quote.
type HTMLFetcher interface {
	FetchHTML(ctx context.Context, rawURL string) (html string, ok bool)
}

// Downloader saves a remote resource to disk.
type Downloader interface {
	DownloadToFile(ctx context.Context, rawURL, path string) (int64, error)
}

// Options configures an HTTPFetcher.
type Options struct {
	UserAgent       string
	Timeout         time.Duration
	MaxRetries      int
	MinBackoff      time.Duration
	MaxBackoff      time.Duration
	RatePerSecond   float64
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
}

// HTTPFetcher implements HTMLFetcher and Downloader.
type HTTPFetcher struct {
	client    *retryablehttp.Client
	userAgent string
	rps       rate.Limit
	burst     int
	breakers  *resilience.Breakers

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates an HTTPFetcher.
func New(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}

	c := retryablehttp.NewClient()
	c.RetryMax = opts.MaxRetries
	c.RetryWaitMin = opts.MinBackoff
	c.RetryWaitMax = opts.MaxBackoff
	c.HTTPClient.Timeout = opts.Timeout
	c.Logger = zapLeveled{s: zap.S().Named("fetcher")}
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler

	rps := rate.Inf
	if opts.RatePerSecond > 0 {
		rps = rate.Limit(opts.RatePerSecond)
	}

	return &HTTPFetcher{
		client:    c,
		userAgent: opts.UserAgent,
		rps:       rps,
		burst:     opts.Burst,
		breakers:  resilience.NewBreakers(opts.BreakerFailures, opts.BreakerCooldown),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// FetchHTML implements HTMLFetcher.
func (f *HTTPFetcher) FetchHTML(ctx context.Context, rawURL string) (string, bool) {
	log := zap.L().With(zap.String("url", rawURL))

	resp, host, err := f.get(ctx, rawURL)
	if err != nil {
		log.Warn("fetcher: request failed", zap.Error(err))
		return "", false
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.breakers.Record(host, eris.Errorf("status %d", resp.StatusCode))
		log.Warn("fetcher: non-2xx response", zap.Int("status", resp.StatusCode))
		return "", false
	}

	body, err := decodeBody(resp)
	if err != nil {
		f.breakers.Record(host, err)
		log.Warn("fetcher: read body", zap.Error(err))
		return "", false
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		f.breakers.Record(host, eris.Errorf("blocked: %s", kind))
		log.Warn("fetcher: anti-bot page", zap.String("block", string(kind)))
		return "", false
	}

	f.breakers.Record(host, nil)
	return body, true
}

// DownloadToFile implements Downloader.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	resp, host, err := f.get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.breakers.Record(host, eris.Errorf("status %d", resp.StatusCode))
		return 0, eris.Errorf("fetcher: download %s: status %d", rawURL, resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "fetcher: create %s", path)
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, eris.Wrapf(err, "fetcher: write %s", path)
	}
	f.breakers.Record(host, nil)
	return n, nil
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (*http.Response, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, "", eris.Errorf("fetcher: invalid url %q", rawURL)
	}
	host := u.Hostname()

	if err := f.breakers.Allow(host); err != nil {
		return nil, host, err
	}
	if err := f.limiter(host).Wait(ctx); err != nil {
		return nil, host, eris.Wrap(err, "fetcher: rate limit wait")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, host, eris.Wrap(err, "fetcher: build request")
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close() //nolint:errcheck
		}
		f.breakers.Record(host, err)
		return nil, host, eris.Wrapf(err, "fetcher: get %s", rawURL)
	}
	return resp, host, nil
}

func (f *HTTPFetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(f.rps, f.burst)
		f.limiters[host] = l
	}
	return l
}

// decodeBody reads the response and converts it to UTF-8 using the charset
// declared in Content-Type.
func decodeBody(resp *http.Response) (string, error) {
	var r io.Reader = io.LimitReader(resp.Body, maxBodyBytes)

	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		if cs := strings.ToLower(params["charset"]); cs != "" && cs != "utf-8" && cs != "utf8" {
			if enc, err := htmlindex.Get(cs); err == nil {
				r = transform.NewReader(r, enc.NewDecoder())
			}
		}
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: read body")
	}
	return string(b), nil
}

// zapLeveled adapts zap to retryablehttp's LeveledLogger.
type zapLeveled struct {
	s *zap.SugaredLogger
}

func (l zapLeveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l zapLeveled) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l zapLeveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l zapLeveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
