// Package frontier owns pending crawl requests and the set of URLs already
// admitted during a run.
package frontier

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/rubric-harvester/internal/domain"
)

const defaultIdleTimeout = time.Minute

// Options tunes frontier blocking behaviour.
type Options struct {
	// IdleTimeout bounds how long Next waits for in-flight work to produce
	// new requests before reporting the frontier as drained.
	IdleTimeout time.Duration
}

// Stats is a point-in-time view of the frontier.
type Stats struct {
	Queued   int `json:"queued"`
	InFlight int `json:"in_flight"`
	Seen     int `json:"seen"`
}

// Frontier is a FIFO of pending requests with at-most-once admission per URL.
// Queue, visited set and in-flight counter share a single mutex.
type Frontier struct {
	mu       sync.Mutex
	queue    []domain.Request
	seen     map[string]struct{}
	inFlight int
	wake     chan struct{}
	idle     time.Duration
}

// New creates an empty frontier.
func New(opts Options) *Frontier {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	return &Frontier{
		seen: make(map[string]struct{}),
		wake: make(chan struct{}),
		idle: opts.IdleTimeout,
	}
}

// Seed enqueues one listing request per (rubric, page) pair for pages
// 1..maxPages and returns how many were admitted.
func (f *Frontier) Seed(rubrics []domain.Rubric, maxPages, pageSize int) int {
	admitted := 0
	for _, r := range rubrics {
		for page := 1; page <= maxPages; page++ {
			req := domain.Request{
				Kind:     domain.KindListing,
				URL:      ListingURL(r.URL, page, pageSize),
				RubricID: r.ID,
				PageNum:  page,
			}
			if f.Offer(req) {
				admitted++
			}
		}
	}
	return admitted
}

// Offer admits req unless its URL was already admitted as a listing or an
// article during this run. It is the only admission path.
func (f *Frontier) Offer(req domain.Request) bool {
	if strings.TrimSpace(req.URL) == "" {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.seen[req.URL]; ok {
		return false
	}
	f.seen[req.URL] = struct{}{}
	f.queue = append(f.queue, req)
	f.broadcastLocked()
	return true
}

// Next pops the oldest pending request and marks it in flight. When the
// queue is empty it waits while other requests are in flight; it returns
// false once nothing is queued or in flight, the context ends, or no Offer
// or Done happens for a whole idle timeout.
func (f *Frontier) Next(ctx context.Context) (domain.Request, bool) {
	timer := time.NewTimer(f.idle)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return domain.Request{}, false
		}

		f.mu.Lock()
		if len(f.queue) > 0 {
			req := f.queue[0]
			f.queue[0] = domain.Request{}
			f.queue = f.queue[1:]
			f.inFlight++
			f.mu.Unlock()
			return req, true
		}
		if f.inFlight == 0 {
			f.mu.Unlock()
			return domain.Request{}, false
		}
		wake := f.wake
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.Request{}, false
		case <-timer.C:
			return domain.Request{}, false
		case <-wake:
			// Progress elsewhere restarts the idle window.
			timer.Reset(f.idle)
		}
	}
}

// Done releases the in-flight slot taken by Next. Requests derived from the
// finished one must be offered before calling Done.
func (f *Frontier) Done(domain.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
	f.broadcastLocked()
}

// Stats reports queue depth, in-flight count and visited-set size.
func (f *Frontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{Queued: len(f.queue), InFlight: f.inFlight, Seen: len(f.seen)}
}

// broadcastLocked wakes every goroutine blocked in Next.
func (f *Frontier) broadcastLocked() {
	close(f.wake)
	f.wake = make(chan struct{})
}
