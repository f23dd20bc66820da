package crawler

import (
	"context"

	"github.com/samvad-hq/rubric-harvester/internal/domain"
	"github.com/samvad-hq/rubric-harvester/internal/fetcher"
)

// Frontier hands out pending requests and admits newly discovered ones.
type Frontier interface {
	Offer(req domain.Request) bool
	Next(ctx context.Context) (domain.Request, bool)
	Done(req domain.Request)
}

// PageFetcher retrieves raw pages.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (fetcher.Page, error)
}

// PageExtractor interprets fetched pages.
type PageExtractor interface {
	ExtractLinks(body []byte, pageURL string) ([]string, error)
	ExtractArticle(body []byte, pageURL string) (domain.ArticleRecord, error)
}

// RecordWriter persists finished article records.
type RecordWriter interface {
	Write(ctx context.Context, rec domain.ArticleRecord) error
}

// Ledger remembers articles emitted by earlier runs.
type Ledger interface {
	SeenArticle(url string) (bool, error)
	MarkArticle(url string) error
}

// Observer mirrors run counters into an external metrics system.
type Observer interface {
	ObserveRequest(kind string)
	ObserveAttempts(n int)
	ObserveDrop(reason string)
	ObserveEmitted()
	ObserveLinks(discovered, duplicates, previouslyHarvested int)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string)      {}
func (nopObserver) ObserveAttempts(int)        {}
func (nopObserver) ObserveDrop(string)         {}
func (nopObserver) ObserveEmitted()            {}
func (nopObserver) ObserveLinks(int, int, int) {}
