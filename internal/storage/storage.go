// Package storage keeps the harvest ledger: article URLs already emitted by
// earlier runs, so that repeated runs appending to the same sink skip them.
package storage

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Store records harvested article URLs.
type Store interface {
	Close() error
	SeenArticle(url string) (bool, error)
	MarkArticle(url string) error
}

// Options controls retention for concrete store implementations.
type Options struct {
	ArticleTTL      time.Duration
	CleanupInterval time.Duration
}

const (
	TypeNone  = "none"
	TypeBbolt = "bbolt"

	defaultArticleTTL      = 30 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore creates the configured ledger backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", TypeNone, "disabled":
		return noopStore{}, nil
	case TypeBbolt:
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		store, err := openBolt(path, opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.ArticleTTL <= 0 {
		opts.ArticleTTL = defaultArticleTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

// urlKey maps an article URL to a fixed-width key. Fragments are part of the
// identity, matching the frontier's exact-string dedup.
func urlKey(url string) []byte {
	sum := sha1.Sum([]byte(strings.TrimSpace(url)))
	return []byte(hex.EncodeToString(sum[:]))
}

type noopStore struct{}

func (noopStore) Close() error                     { return nil }
func (noopStore) SeenArticle(string) (bool, error) { return false, nil }
func (noopStore) MarkArticle(string) error         { return nil }
