// Package pipeline is the consumer side of the crawl: the crawler hands every
// detail-page outcome (record or error) to an ItemPipeline exactly once, in
// the order the detail pages were dispatched within their list page.
package pipeline

import (
	"log/slog"

	"github.com/IliaW/dip-crawler/internal/model"
)

type ItemPipeline interface {
	Submit(result *model.DetailResult)
	Close()
}

// StdoutPipeline logs every element of the stream. Handy for local runs and
// as the default sink when no downstream is configured.
type StdoutPipeline struct{}

func NewStdoutPipeline() *StdoutPipeline {
	return &StdoutPipeline{}
}

func (p *StdoutPipeline) Submit(result *model.DetailResult) {
	if result.Err != nil {
		slog.Error("detail page failed.", slog.String("url", result.SourceURL),
			slog.Int("page_offset", result.PageOffset), slog.String("err", result.Err.Error()))
		return
	}
	slog.Info("record extracted.", slog.String("url", result.SourceURL),
		slog.Int("page_offset", result.PageOffset), slog.Int("position", result.Position),
		slog.String("summary", result.Record.Summary))
}

func (p *StdoutPipeline) Close() {}

// ChannelPipeline feeds results to the worker pool that owns the storage and
// broker sinks.
type ChannelPipeline struct {
	results chan<- *model.DetailResult
}

func NewChannelPipeline(results chan<- *model.DetailResult) *ChannelPipeline {
	return &ChannelPipeline{results: results}
}

func (p *ChannelPipeline) Submit(result *model.DetailResult) {
	p.results <- result
}

func (p *ChannelPipeline) Close() {
	close(p.results)
}
