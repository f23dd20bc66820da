package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/samvad-hq/rubric-harvester/internal/config"
	"github.com/samvad-hq/rubric-harvester/internal/domain"
	"github.com/samvad-hq/rubric-harvester/internal/logger"
	"github.com/samvad-hq/rubric-harvester/pkg/rubrics"
)

// Inspect fetches one page through the same politeness stack as a harvest
// and writes what the extractor sees as indented JSON: the article links of
// a listing page, or the record of an article page. Nothing reaches a sink.
func Inspect(ctx context.Context, cfg *config.Config, log logger.Logger, kind domain.RequestKind, rawURL string, out io.Writer) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)

	ex, err := newExtractor(cfg.SelectorsFile)
	if err != nil {
		return err
	}
	f := newFetcher(cfg, log)
	page, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	var result any
	switch kind {
	case domain.KindListing:
		links, err := ex.ExtractLinks(page.Body, rawURL)
		if err != nil {
			return err
		}
		result = map[string]any{"url": rawURL, "links": links}
	case domain.KindArticle:
		rec, err := ex.ExtractArticle(page.Body, rawURL)
		if err != nil {
			return err
		}
		if resolver, err := rubrics.NewResolver(cfg.RubricIDPattern); err == nil {
			rec.RubricID = resolver.DeriveID(rawURL)
		}
		result = rec
	default:
		return fmt.Errorf("unknown page kind %q", kind)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	log.DebugObj("page inspected", "inspect_meta", map[string]any{
		"url":      rawURL,
		"kind":     string(kind),
		"attempts": page.Attempts,
	})
	return nil
}
