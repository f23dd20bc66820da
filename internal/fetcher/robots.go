package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/samvad-hq/rubric-harvester/internal/logger"
	"github.com/samvad-hq/rubric-harvester/pkg/httpclient"
	"github.com/temoto/robotstxt"
)

// robotsCache loads robots.txt once per host and answers path checks.
type robotsCache struct {
	client    httpclient.Client
	limiter   *Limiter
	userAgent string
	headers   map[string]string
	log       logger.Logger

	mu    sync.Mutex
	hosts map[string]*hostRobots
}

// hostRobots is loaded at most once successfully; a load abandoned by a
// cancelled context is retried by the next caller.
type hostRobots struct {
	mu     sync.Mutex
	loaded bool
	group  *robotstxt.Group
}

func newRobotsCache(client httpclient.Client, limiter *Limiter, userAgent string, headers map[string]string, log logger.Logger) *robotsCache {
	return &robotsCache{
		client:    client,
		limiter:   limiter,
		userAgent: userAgent,
		headers:   headers,
		log:       logger.Ensure(log),
		hosts:     make(map[string]*hostRobots),
	}
}

// Allowed reports whether rawURL may be fetched. Hosts whose robots.txt
// cannot be retrieved are allowed.
func (r *robotsCache) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return true
	}
	group := r.group(ctx, r.entry(parsed), parsed)
	if group == nil {
		return true
	}
	target := parsed.EscapedPath()
	if target == "" {
		target = "/"
	}
	if parsed.RawQuery != "" {
		target += "?" + parsed.RawQuery
	}
	return group.Test(target)
}

func (r *robotsCache) group(ctx context.Context, entry *hostRobots, parsed *url.URL) *robotstxt.Group {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.loaded {
		return entry.group
	}
	group := r.load(ctx, parsed)
	if ctx.Err() != nil {
		return group
	}
	entry.group = group
	entry.loaded = true
	return group
}

func (r *robotsCache) entry(parsed *url.URL) *hostRobots {
	key := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.hosts[key]
	if !ok {
		entry = &hostRobots{}
		r.hosts[key] = entry
	}
	return entry
}

func (r *robotsCache) load(ctx context.Context, parsed *url.URL) *robotstxt.Group {
	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	data, err := r.fetch(ctx, robotsURL.String())
	if err != nil {
		r.log.WarnObj("robots fetch failed; allowing host", "robots_error", map[string]any{
			"host":  parsed.Host,
			"error": err.Error(),
		})
		return nil
	}
	r.log.DebugObj("robots loaded", "robots_meta", map[string]any{
		"host": parsed.Host,
	})
	return data.FindGroup(r.userAgent)
}

func (r *robotsCache) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	if err := r.limiter.Wait(ctx, robotsURL); err != nil {
		return nil, err
	}
	resp, err := r.client.Get(ctx, robotsURL, r.headers)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	// robotstxt reads 5xx as disallow-all; an unavailable robots.txt allows.
	if resp.StatusCode() >= 500 {
		return nil, fmt.Errorf("fetch robots: status %d", resp.StatusCode())
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode(), resp.Body())
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}
