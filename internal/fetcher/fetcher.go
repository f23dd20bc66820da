// Package fetcher turns URLs into raw HTML under politeness constraints:
// a shared rate limit, robots.txt compliance, and bounded retries.
package fetcher

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samvad-hq/rubric-harvester/internal/logger"
	"github.com/samvad-hq/rubric-harvester/pkg/httpclient"
)

const (
	defaultMaxBodyBytes = 5 << 20
	defaultBaseDelay    = 500 * time.Millisecond
	defaultMaxDelay     = 10 * time.Second
)

// Config controls politeness and retry behaviour.
type Config struct {
	UserAgent      string
	Headers        map[string]string
	RequestDelay   time.Duration
	RateLimitScope string
	RespectRobots  bool
	RetryBudget    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	MaxBodyBytes   int64
}

// Page is a successfully fetched document.
type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Attempts    int
}

// Fetcher is safe for concurrent use. Its only shared state is the rate
// limiter and the robots cache.
type Fetcher struct {
	client   httpclient.Client
	cfg      Config
	limiter  *Limiter
	robots   *robotsCache
	log      logger.Logger
	attempts atomic.Int64
	sleep    func(ctx context.Context, d time.Duration) error
}

// New builds a Fetcher on top of client.
func New(client httpclient.Client, cfg Config, log logger.Logger) *Fetcher {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultBaseDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = defaultMaxDelay
	}
	if cfg.RetryBudget < 0 {
		cfg.RetryBudget = 0
	}
	log = logger.Ensure(log)
	limiter := NewLimiter(cfg.RequestDelay, cfg.RateLimitScope)

	f := &Fetcher{
		client:  client,
		cfg:     cfg,
		limiter: limiter,
		log:     log,
		sleep:   sleepWithContext,
	}
	if cfg.RespectRobots {
		f.robots = newRobotsCache(client, limiter, cfg.UserAgent, cfg.Headers, log)
	}
	return f
}

// Prime loads robots.txt for every distinct host among urls.
func (f *Fetcher) Prime(ctx context.Context, urls []string) {
	if f.robots == nil {
		return
	}
	seen := make(map[string]struct{})
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		if _, ok := seen[u.Host]; ok {
			continue
		}
		seen[u.Host] = struct{}{}
		f.robots.Allowed(ctx, raw)
	}
}

// Attempts returns the total number of HTTP attempts made so far.
func (f *Fetcher) Attempts() int64 { return f.attempts.Load() }

// Fetch retrieves rawURL. Transient failures are retried up to the retry
// budget with exponential backoff; robots refusals and 4xx (other than 429)
// fail immediately. Failures are returned as *FetchError unless the context
// ended first.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	if f.robots != nil && !f.robots.Allowed(ctx, rawURL) {
		return Page{}, &FetchError{Kind: KindRobotsDisallowed, URL: rawURL}
	}

	maxAttempts := f.cfg.RetryBudget + 1
	var lastErr *FetchError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return Page{}, err
		}

		page, retryAfter, ferr := f.attempt(ctx, rawURL)
		if ferr == nil {
			page.Attempts = attempt
			return page, nil
		}
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		ferr.Attempts = attempt
		lastErr = ferr

		if !ferr.Transient() || attempt == maxAttempts {
			break
		}

		wait := f.backoff(attempt)
		if retryAfter > wait {
			wait = min(retryAfter, f.cfg.RetryMaxDelay)
		}
		f.log.DebugObj("fetch retry scheduled", "fetch_retry", map[string]any{
			"url":     rawURL,
			"attempt": attempt,
			"kind":    string(ferr.Kind),
			"status":  ferr.StatusCode,
			"wait_ms": wait.Milliseconds(),
		})
		if err := f.sleep(ctx, wait); err != nil {
			return Page{}, err
		}
	}
	return Page{}, lastErr
}

// attempt performs one GET and classifies the outcome.
func (f *Fetcher) attempt(ctx context.Context, rawURL string) (Page, time.Duration, *FetchError) {
	f.attempts.Add(1)
	resp, err := f.client.Get(ctx, rawURL, f.cfg.Headers)
	if err != nil {
		kind := KindNetwork
		if isTimeout(err) {
			kind = KindTimeout
		}
		return Page{}, 0, &FetchError{Kind: kind, URL: rawURL, Err: err}
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return Page{}, parseRetryAfter(resp.Header("Retry-After")), &FetchError{
			Kind:       KindHTTPStatus,
			URL:        rawURL,
			StatusCode: status,
		}
	}

	// Clients without a read cap still yield at most MaxBodyBytes.
	body := resp.Body()
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		body = body[:f.cfg.MaxBodyBytes]
	}
	return Page{
		URL:         rawURL,
		StatusCode:  status,
		ContentType: resp.Header("Content-Type"),
		Body:        body,
	}, 0, nil
}

// backoff returns base*2^(attempt-1), capped, with the upper half jittered.
func (f *Fetcher) backoff(attempt int) time.Duration {
	delay := float64(f.cfg.RetryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(f.cfg.RetryMaxDelay) {
		delay = float64(f.cfg.RetryMaxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
