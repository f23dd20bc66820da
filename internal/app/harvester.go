package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samvad-hq/rubric-harvester/internal/config"
	"github.com/samvad-hq/rubric-harvester/internal/crawler"
	"github.com/samvad-hq/rubric-harvester/internal/domain"
	"github.com/samvad-hq/rubric-harvester/internal/extractor"
	"github.com/samvad-hq/rubric-harvester/internal/fetcher"
	"github.com/samvad-hq/rubric-harvester/internal/frontier"
	"github.com/samvad-hq/rubric-harvester/internal/logger"
	"github.com/samvad-hq/rubric-harvester/internal/metrics"
	"github.com/samvad-hq/rubric-harvester/internal/storage"
	"github.com/samvad-hq/rubric-harvester/pkg/httpclient"
	"github.com/samvad-hq/rubric-harvester/pkg/rubrics"
	"github.com/samvad-hq/rubric-harvester/pkg/sinks"
)

// Harvester represents the rubric harvester runtime. It owns the long-lived
// components (fetcher, extractor, sinks, ledger, metrics) and builds a fresh
// frontier and engine for every run.
type Harvester struct {
	cfg           *config.Config
	rubrics       []domain.Rubric
	extractor     *extractor.Extractor
	fetcher       *fetcher.Fetcher
	fanout        *sinks.Fanout
	store         storage.Store
	recorder      *metrics.Recorder
	runID         string
	crawlInterval time.Duration
	log           logger.Logger
}

// NewHarvester builds a harvester runtime from config. Every error returned
// here is a startup failure.
func NewHarvester(ctx context.Context, cfg *config.Config, log logger.Logger) (*Harvester, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	seeds, err := loadRubrics(cfg, log)
	if err != nil {
		return nil, err
	}

	ex, err := newExtractor(cfg.SelectorsFile)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	sinkCfgs, err := sinkConfigs(cfg)
	if err != nil {
		return nil, err
	}
	built, err := sinks.BuildAll(ctx, sinks.DefaultRegistry(), sinkCfgs, sinks.Env{RunID: runID, Log: log})
	if err != nil {
		return nil, fmt.Errorf("build sinks: %w", err)
	}
	fanout := sinks.NewFanout(built, log)
	sinkSummaries := make([]map[string]string, 0, len(sinkCfgs))
	for _, sc := range sinkCfgs {
		sinkSummaries = append(sinkSummaries, map[string]string{"id": sc.ID, "type": sc.Type})
	}
	log.InfoObj("sinks registry loaded", "sinks_meta", map[string]any{
		"count":  len(sinkSummaries),
		"sinks":  sinkSummaries,
		"run_id": runID,
	})

	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storage.Options{
		ArticleTTL:      cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	})
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"article_ttl_seconds":      int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	return &Harvester{
		cfg:           cfg,
		rubrics:       seeds,
		extractor:     ex,
		fetcher:       newFetcher(cfg, log),
		fanout:        fanout,
		store:         store,
		recorder:      metrics.NewRecorder(),
		runID:         runID,
		crawlInterval: cfg.CrawlInterval,
		log:           log,
	}, nil
}

// Run performs one harvest, or repeats it every crawl interval when one is
// configured, until ctx is cancelled. A signal-driven stop is not an error.
func (h *Harvester) Run(ctx context.Context) error {
	if h == nil || h.fetcher == nil {
		return fmt.Errorf("harvester is not initialized")
	}
	defer h.close()

	if addr := strings.TrimSpace(h.cfg.MetricsAddr); addr != "" {
		if err := metrics.NewServer(addr, h.recorder, h.log).Start(ctx); err != nil {
			return fmt.Errorf("start status server: %w", err)
		}
	}

	seedURLs := make([]string, 0, len(h.rubrics))
	for _, r := range h.rubrics {
		seedURLs = append(seedURLs, r.URL)
	}
	h.fetcher.Prime(ctx, seedURLs)

	h.log.InfoObj("harvester starting", "harvester_state", map[string]any{
		"rubrics_count":  len(h.rubrics),
		"sinks_count":    h.fanout.Size(),
		"workers":        h.cfg.Workers,
		"max_pages":      h.cfg.MaxPages,
		"crawl_interval": h.crawlInterval.String(),
		"run_id":         h.runID,
	})

	if _, err := h.runOnce(ctx); err != nil {
		return stopped(ctx, h.log, err)
	}
	if h.crawlInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(h.crawlInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.log.InfoObj("harvester loop exiting", "reason", ctx.Err().Error())
			return nil
		case <-ticker.C:
			if _, err := h.runOnce(ctx); err != nil {
				return stopped(ctx, h.log, err)
			}
		}
	}
}

// runOnce seeds a fresh frontier and drives one engine run to completion.
func (h *Harvester) runOnce(ctx context.Context) (crawler.Summary, error) {
	fr := frontier.New(frontier.Options{IdleTimeout: h.cfg.FrontierIdleTimeout})
	seeded := fr.Seed(h.rubrics, h.cfg.MaxPages, h.cfg.PageSize)
	h.log.InfoObj("harvest run started", "harvest_meta", map[string]any{
		"rubrics_count": len(h.rubrics),
		"listing_seeds": seeded,
		"started_at":    time.Now().UTC(),
	})

	engine := crawler.NewEngine(fr, h.fetcher, h.extractor, h.fanout, crawler.Options{
		Workers:  h.cfg.Workers,
		Ledger:   h.store,
		Observer: h.recorder,
	}, h.log)

	summary, err := engine.Run(ctx)
	h.recorder.ObserveRun(summary.Elapsed, time.Now())
	return summary, err
}

func (h *Harvester) close() {
	if h.fanout != nil {
		if err := h.fanout.Close(); err != nil {
			h.log.ErrorObj("sink close failed", "error", err.Error())
		}
	}
	if h.store != nil {
		if err := h.store.Close(); err != nil {
			h.log.ErrorObj("storage close failed", "error", err.Error())
		}
	}
}

// stopped turns a cancellation-driven engine exit into a clean stop.
func stopped(ctx context.Context, log logger.Logger, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		log.InfoObj("harvester stopped", "reason", err.Error())
		return nil
	}
	return err
}

// loadRubrics reads the seed file and falls back to rubric_urls when the
// file is absent.
func loadRubrics(cfg *config.Config, log logger.Logger) ([]domain.Rubric, error) {
	resolver, err := rubrics.NewResolver(cfg.RubricIDPattern)
	if err != nil {
		return nil, fmt.Errorf("rubric id pattern: %w", err)
	}

	var seeds []domain.Rubric
	if path := strings.TrimSpace(cfg.RubricsFile); path != "" {
		seeds, err = resolver.LoadFile(path)
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist) && len(cfg.RubricURLs) > 0:
			log.WarnObj("rubrics file not found; using rubric_urls", "rubrics_file", path)
		default:
			return nil, fmt.Errorf("load rubrics: %w", err)
		}
	}
	if len(seeds) == 0 {
		seeds, err = resolver.FromURLs(cfg.RubricURLs)
		if err != nil {
			return nil, fmt.Errorf("load rubric urls: %w", err)
		}
	}
	if len(seeds) == 0 {
		return nil, errors.New("no rubric seeds configured")
	}

	ids := make([]string, 0, len(seeds))
	for _, r := range seeds {
		ids = append(ids, r.ID)
	}
	log.InfoObj("rubrics loaded", "rubrics_meta", map[string]any{
		"count": len(seeds),
		"ids":   ids,
	})
	return seeds, nil
}

func newExtractor(selectorsFile string) (*extractor.Extractor, error) {
	rules, err := extractor.LoadRules(selectorsFile)
	if err != nil {
		return nil, fmt.Errorf("load selectors: %w", err)
	}
	ex, err := extractor.New(rules)
	if err != nil {
		return nil, fmt.Errorf("compile selectors: %w", err)
	}
	return ex, nil
}

func sinkConfigs(cfg *config.Config) ([]sinks.SinkConfig, error) {
	path := strings.TrimSpace(cfg.SinksFile)
	if path == "" {
		reg, err := sinks.NewConfigRegistry(sinks.DefaultConfigs(cfg.OutputPath))
		if err != nil {
			return nil, fmt.Errorf("default sink: %w", err)
		}
		return reg.Enabled(), nil
	}
	reg, err := sinks.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load sinks registry: %w", err)
	}
	enabled := reg.Enabled()
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no sinks enabled in %s", path)
	}
	return enabled, nil
}

func newFetcher(cfg *config.Config, log logger.Logger) *fetcher.Fetcher {
	headers := map[string]string{"Accept": "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"}
	if cfg.AcceptLanguage != "" {
		headers["Accept-Language"] = cfg.AcceptLanguage
	}
	client := httpclient.NewRestyClient(httpclient.Options{
		Timeout:        cfg.RequestTimeout,
		UserAgent:      cfg.UserAgent,
		DefaultHeaders: headers,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})
	return fetcher.New(client, fetcher.Config{
		UserAgent:      cfg.UserAgent,
		Headers:        headers,
		RequestDelay:   cfg.RequestDelay,
		RateLimitScope: cfg.RateLimitScope,
		RespectRobots:  cfg.RespectRobots,
		RetryBudget:    cfg.RetryBudget,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	}, log)
}
