// Package crawler drives the paginated traversal of the search portal:
// Init -> ListPage(offset) -> DetailFanout -> ListPage(offset+pageSize) -> Done,
// with an absorbing error state for failures that make continuing unsafe.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	"github.com/IliaW/dip-crawler/config"
	"github.com/IliaW/dip-crawler/internal/document"
	"github.com/IliaW/dip-crawler/internal/engine"
	"github.com/IliaW/dip-crawler/internal/model"
	"github.com/IliaW/dip-crawler/internal/pipeline"
	"github.com/IliaW/dip-crawler/internal/telemetry"
	"github.com/patrickmn/go-cache"
)

// FieldExtractor turns a parsed detail page into a record.
type FieldExtractor interface {
	Extract(doc *document.Document) (*model.Record, error)
}

type Crawler struct {
	engine    *engine.Engine
	cfg       *config.CrawlerConfig
	extractor FieldExtractor
	pipeline  pipeline.ItemPipeline
	seen      *cache.Cache
	metrics   *telemetry.CrawlerMetrics
}

func NewCrawler(eng *engine.Engine, cfg *config.CrawlerConfig, extractor FieldExtractor,
	pipe pipeline.ItemPipeline, metrics *telemetry.CrawlerMetrics) *Crawler {
	return &Crawler{
		engine:    eng,
		cfg:       cfg,
		extractor: extractor,
		pipeline:  pipe,
		seen:      cache.New(cfg.DedupeTtl, cfg.DedupeTtl),
		metrics:   metrics,
	}
}

// Run executes one full crawl. List pages are strictly sequential because the
// next form state comes out of the previous response; detail pages of one list
// page are fetched concurrently, bounded by the engine's worker pool. The
// returned summary has a nil Err on success, even when single detail pages
// were skipped.
func (c *Crawler) Run(ctx context.Context) *model.CrawlSummary {
	summary := &model.CrawlSummary{}

	// Init: obtain the first search form and arm it with the search criteria
	// and the submit action.
	doc, err := c.engine.Get(ctx, c.cfg.SearchUrl)
	if err != nil {
		return c.fail(summary, fmt.Errorf("failed to load the search page: %w", err))
	}
	form, err := document.ExtractFormState(doc, c.cfg.FormQuery)
	if err != nil {
		return c.fail(summary, fmt.Errorf("failed to read the search form: %w", err))
	}
	for name, value := range c.cfg.SearchParams {
		form = form.Set(name, value)
	}
	form = form.Set(c.cfg.ActionParam, c.cfg.SubmitAction)

	pageSize := c.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	for offset := 0; ; offset += pageSize {
		if ctx.Err() != nil {
			return c.fail(summary, ctx.Err())
		}

		form = form.Set(c.cfg.OffsetParam, strconv.Itoa(offset))
		doc, err := c.engine.PostForm(ctx, c.cfg.SearchUrl, form)
		if err != nil {
			return c.fail(summary, fmt.Errorf("list page at offset %d failed: %w", offset, err))
		}
		summary.ListPages++
		c.count(func(m *telemetry.CrawlerMetrics) { m.ListPageCnt(1) })

		links, err := doc.ExtractLinks(c.cfg.LinkQuery)
		if err != nil {
			return c.fail(summary, fmt.Errorf("link extraction at offset %d failed: %w", offset, err))
		}
		if len(links) == 0 {
			slog.Info("empty result page. crawl finished.", slog.Int("offset", offset))
			break
		}
		slog.Info("processing list page.", slog.Int("offset", offset), slog.Int("links", len(links)))

		if err := c.fanout(ctx, offset, links, summary); err != nil {
			return c.fail(summary, err)
		}
		if ctx.Err() != nil {
			return c.fail(summary, ctx.Err())
		}

		// The server mutates hidden fields between pages, so the next POST has
		// to be built from this response's form, not the previous one.
		form, err = document.ExtractFormState(doc, c.cfg.FormQuery)
		if err != nil {
			return c.fail(summary, fmt.Errorf("failed to re-read the search form at offset %d: %w", offset, err))
		}
		form = form.Set(c.cfg.ActionParam, c.cfg.NextPageAction)
	}

	slog.Info("crawl done.", slog.Int("list pages", summary.ListPages),
		slog.Int("records", summary.RecordsEmitted), slog.Int("skipped", summary.SkippedDetails))
	return summary
}

// fanout fetches all detail links of one list page concurrently and delivers
// the outcomes to the pipeline in dispatch order. A failed detail page is
// reported and skipped; it never aborts its siblings. A lost session is the
// exception: continuing without it is unsafe, so it is returned as fatal.
func (c *Crawler) fanout(ctx context.Context, offset int, links []*url.URL, summary *model.CrawlSummary) error {
	results := make([]*model.DetailResult, len(links))
	wg := &sync.WaitGroup{}

	for i, link := range links {
		target := link.String()
		if _, dup := c.seen.Get(target); dup {
			slog.Debug("detail link already fetched. skipping.", slog.String("url", target))
			continue
		}
		c.seen.Set(target, struct{}{}, cache.DefaultExpiration)

		wg.Add(1)
		go func(position int, target string) {
			defer wg.Done()
			results[position] = c.fetchDetail(ctx, offset, position, target)
		}(i, target)
	}
	wg.Wait()

	var sessionLost error
	for _, result := range results {
		if result == nil {
			continue
		}
		if errors.Is(result.Err, engine.ErrSessionExpired) {
			sessionLost = result.Err
		}
		if result.Err != nil {
			summary.SkippedDetails++
			c.count(func(m *telemetry.CrawlerMetrics) { m.SkippedDetailCnt(1) })
		} else {
			summary.RecordsEmitted++
			c.count(func(m *telemetry.CrawlerMetrics) { m.RecordCnt(1) })
		}
		summary.DetailsFetched++
		c.pipeline.Submit(result)
	}
	return sessionLost
}

func (c *Crawler) fetchDetail(ctx context.Context, offset, position int, target string) *model.DetailResult {
	result := &model.DetailResult{
		SourceURL:  target,
		PageOffset: offset,
		Position:   position,
	}
	doc, err := c.engine.Get(ctx, target)
	if err != nil {
		result.Err = err
		return result
	}
	result.RawHTML = doc.HTML()

	record, err := c.extractor.Extract(doc)
	if err != nil {
		result.Err = err
		return result
	}
	result.Record = record
	return result
}

func (c *Crawler) fail(summary *model.CrawlSummary, err error) *model.CrawlSummary {
	slog.Error("crawl aborted.", slog.String("err", err.Error()))
	summary.Err = err
	return summary
}

func (c *Crawler) count(fn func(*telemetry.CrawlerMetrics)) {
	if c.metrics != nil {
		fn(c.metrics)
	}
}
