package crawler

import (
	"sync"
	"sync/atomic"
	"time"
)

// Drop reasons recorded when a request produces no output.
const (
	DropTimeout          = "timeout"
	DropHTTPStatus       = "http_status"
	DropNetwork          = "network"
	DropRobotsDisallowed = "robots_disallowed"
	DropParseError       = "parse_error"
	DropSinkError        = "sink_error"
	DropCanceled         = "canceled"
)

// Summary describes one completed run.
type Summary struct {
	Requests            int64
	Fetched             int64
	Listings            int64
	Articles            int64
	Discovered          int64
	Duplicates          int64
	PreviouslyHarvested int64
	Emitted             int64
	Attempts            int64
	Dropped             map[string]int64
	Elapsed             time.Duration
}

// TotalDropped sums every drop reason.
func (s Summary) TotalDropped() int64 {
	var n int64
	for _, v := range s.Dropped {
		n += v
	}
	return n
}

// Fields renders the summary for structured logging.
func (s Summary) Fields() map[string]any {
	return map[string]any{
		"requests":             s.Requests,
		"fetched":              s.Fetched,
		"listings":             s.Listings,
		"articles":             s.Articles,
		"discovered":           s.Discovered,
		"duplicates":           s.Duplicates,
		"previously_harvested": s.PreviouslyHarvested,
		"emitted":              s.Emitted,
		"attempts":             s.Attempts,
		"dropped":              s.Dropped,
		"elapsed_ms":           s.Elapsed.Milliseconds(),
	}
}

// tally is the concurrent accumulator behind Summary.
type tally struct {
	requests            atomic.Int64
	fetched             atomic.Int64
	listings            atomic.Int64
	articles            atomic.Int64
	discovered          atomic.Int64
	duplicates          atomic.Int64
	previouslyHarvested atomic.Int64
	emitted             atomic.Int64
	attempts            atomic.Int64

	mu      sync.Mutex
	dropped map[string]int64
}

func newTally() *tally {
	return &tally{dropped: make(map[string]int64)}
}

func (t *tally) drop(reason string) {
	t.mu.Lock()
	t.dropped[reason]++
	t.mu.Unlock()
}

func (t *tally) snapshot(elapsed time.Duration) Summary {
	t.mu.Lock()
	dropped := make(map[string]int64, len(t.dropped))
	for k, v := range t.dropped {
		dropped[k] = v
	}
	t.mu.Unlock()

	return Summary{
		Requests:            t.requests.Load(),
		Fetched:             t.fetched.Load(),
		Listings:            t.listings.Load(),
		Articles:            t.articles.Load(),
		Discovered:          t.discovered.Load(),
		Duplicates:          t.duplicates.Load(),
		PreviouslyHarvested: t.previouslyHarvested.Load(),
		Emitted:             t.emitted.Load(),
		Attempts:            t.attempts.Load(),
		Dropped:             dropped,
		Elapsed:             elapsed,
	}
}
