package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ScopeGlobal = "global"
	ScopeHost   = "host"
)

// Limiter spaces outgoing requests by a minimum interval, either across the
// whole run or per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	perHost  bool
}

// NewLimiter builds a limiter allowing one request per interval. A zero
// interval disables throttling.
func NewLimiter(interval time.Duration, scope string) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		every:    limit,
		perHost:  strings.EqualFold(scope, ScopeHost),
	}
}

// Wait blocks until the next request to rawURL may start.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil {
		return nil
	}
	key := "*"
	if l.perHost {
		key = "unknown"
		if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
			key = strings.ToLower(u.Host)
		}
	}

	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.every, 1)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
