// Package crawler drives a harvest run: workers pull requests from the
// frontier, fetch and extract them, feed discovered article links back and
// hand finished records to the sink.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samvad-hq/rubric-harvester/internal/domain"
	"github.com/samvad-hq/rubric-harvester/internal/fetcher"
	"github.com/samvad-hq/rubric-harvester/internal/logger"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 8

// Options tunes an Engine. Ledger and Observer are optional.
type Options struct {
	Workers  int
	Ledger   Ledger
	Observer Observer
}

// Engine coordinates one run over a seeded frontier.
type Engine struct {
	frontier  Frontier
	fetcher   PageFetcher
	extractor PageExtractor
	sink      RecordWriter
	ledger    Ledger
	observer  Observer
	workers   int
	log       logger.Logger
}

// NewEngine wires the run components together.
func NewEngine(fr Frontier, f PageFetcher, ex PageExtractor, sink RecordWriter, opts Options, log logger.Logger) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Engine{
		frontier:  fr,
		fetcher:   f,
		extractor: ex,
		sink:      sink,
		ledger:    opts.Ledger,
		observer:  opts.Observer,
		workers:   opts.Workers,
		log:       logger.Ensure(log),
	}
}

// Run processes requests until the frontier drains or ctx ends. Individual
// request failures are counted in the summary and never abort the run; the
// returned error is non-nil only when ctx ended first.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	if e == nil || e.frontier == nil || e.fetcher == nil || e.extractor == nil || e.sink == nil {
		return Summary{}, fmt.Errorf("crawler engine is not initialized")
	}

	start := time.Now()
	t := newTally()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.workers; i++ {
		g.Go(func() error {
			e.work(gctx, t)
			return nil
		})
	}
	_ = g.Wait()

	summary := t.snapshot(time.Since(start))
	e.log.InfoObj("harvest run finished", "harvest_summary", summary.Fields())
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (e *Engine) work(ctx context.Context, t *tally) {
	for {
		req, ok := e.frontier.Next(ctx)
		if !ok {
			return
		}
		e.process(ctx, t, req)
		e.frontier.Done(req)
	}
}

func (e *Engine) process(ctx context.Context, t *tally, req domain.Request) {
	t.requests.Add(1)
	e.observer.ObserveRequest(string(req.Kind))

	page, err := e.fetcher.Fetch(ctx, req.URL)
	e.countAttempts(t, page, err)
	if err != nil {
		e.drop(t, req, fetchDropReason(ctx, err), err)
		return
	}
	t.fetched.Add(1)

	switch req.Kind {
	case domain.KindListing:
		e.processListing(t, req, page)
	case domain.KindArticle:
		e.processArticle(ctx, t, req, page)
	default:
		e.log.WarnObj("unknown request kind", "request", map[string]any{"url": req.URL, "kind": string(req.Kind)})
	}
}

func (e *Engine) processListing(t *tally, req domain.Request, page fetcher.Page) {
	links, err := e.extractor.ExtractLinks(page.Body, req.URL)
	if err != nil {
		e.drop(t, req, DropParseError, err)
		return
	}
	t.listings.Add(1)

	var discovered, duplicates, previous int
	for _, link := range links {
		if e.harvestedBefore(link) {
			previous++
			continue
		}
		admitted := e.frontier.Offer(domain.Request{
			Kind:     domain.KindArticle,
			URL:      link,
			RubricID: req.RubricID,
			PageNum:  req.PageNum,
		})
		if admitted {
			discovered++
		} else {
			duplicates++
		}
	}

	t.discovered.Add(int64(discovered))
	t.duplicates.Add(int64(duplicates))
	t.previouslyHarvested.Add(int64(previous))
	e.observer.ObserveLinks(discovered, duplicates, previous)
	e.log.DebugObj("listing page processed", "listing", map[string]any{
		"url":                  req.URL,
		"rubrique_id":          req.RubricID,
		"page_num":             req.PageNum,
		"links":                len(links),
		"discovered":           discovered,
		"duplicates":           duplicates,
		"previously_harvested": previous,
	})
}

func (e *Engine) processArticle(ctx context.Context, t *tally, req domain.Request, page fetcher.Page) {
	rec, err := e.extractor.ExtractArticle(page.Body, req.URL)
	if err != nil {
		e.drop(t, req, DropParseError, err)
		return
	}
	t.articles.Add(1)

	rec.URL = req.URL
	rec.RubricID = req.RubricID
	rec.PageNum = req.PageNum

	// A fully extracted record is written even when shutdown has begun.
	if err := e.sink.Write(context.WithoutCancel(ctx), rec.Normalize()); err != nil {
		e.drop(t, req, DropSinkError, err)
		return
	}
	t.emitted.Add(1)
	e.observer.ObserveEmitted()

	if e.ledger != nil {
		if err := e.ledger.MarkArticle(req.URL); err != nil {
			e.log.WarnObj("harvest ledger update failed", "ledger_error", map[string]any{
				"url":   req.URL,
				"error": err.Error(),
			})
		}
	}
}

func (e *Engine) harvestedBefore(url string) bool {
	if e.ledger == nil {
		return false
	}
	seen, err := e.ledger.SeenArticle(url)
	if err != nil {
		e.log.WarnObj("harvest ledger lookup failed", "ledger_error", map[string]any{
			"url":   url,
			"error": err.Error(),
		})
		return false
	}
	return seen
}

func (e *Engine) countAttempts(t *tally, page fetcher.Page, err error) {
	n := page.Attempts
	var fe *fetcher.FetchError
	if errors.As(err, &fe) {
		n = fe.Attempts
	}
	if n > 0 {
		t.attempts.Add(int64(n))
		e.observer.ObserveAttempts(n)
	}
}

func (e *Engine) drop(t *tally, req domain.Request, reason string, err error) {
	t.drop(reason)
	e.observer.ObserveDrop(reason)
	fields := map[string]any{
		"url":         req.URL,
		"kind":        string(req.Kind),
		"rubrique_id": req.RubricID,
		"page_num":    req.PageNum,
		"reason":      reason,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	var fe *fetcher.FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		fields["status"] = fe.StatusCode
	}
	if reason == DropCanceled {
		e.log.DebugObj("request abandoned", "request_dropped", fields)
		return
	}
	e.log.WarnObj("request dropped", "request_dropped", fields)
}

// fetchDropReason maps a fetch failure onto a drop reason.
func fetchDropReason(ctx context.Context, err error) string {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return DropCanceled
	}
	switch fetcher.KindOf(err) {
	case fetcher.KindTimeout:
		return DropTimeout
	case fetcher.KindHTTPStatus:
		return DropHTTPStatus
	case fetcher.KindRobotsDisallowed:
		return DropRobotsDisallowed
	default:
		return DropNetwork
	}
}
