// Package chat runs a chat turn: gather web context, build the prompt, get a
// completion and persist the exchange.
package chat

import (
	"context"

	"github.com/mohammad-safakhou/webchat/internal/helpers"
	"github.com/mohammad-safakhou/webchat/internal/logger"
	"github.com/mohammad-safakhou/webchat/internal/metrics"
	"github.com/mohammad-safakhou/webchat/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var chatTracer = otel.Tracer("webchat/internal/chat")

// SearchClassifier decides whether a question needs live web data.
type SearchClassifier interface {
	NeedsWebSearch(ctx context.Context, question string) bool
}

type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error)
}

// PageScraper scrapes pages concurrently, one result per URL in input order.
type PageScraper interface {
	ScrapeAll(ctx context.Context, urls []string) []models.ScrapedContent
}

type OrchestratorOptions struct {
	MaxResults     int
	SearchProvider string
}

// Orchestrator gathers the web context for one message. URLs in the message
// are scraped directly; otherwise the classifier may trigger a search whose
// result links are scraped.
type Orchestrator struct {
	classifier SearchClassifier
	searcher   Searcher
	scraper    PageScraper
	opts       OrchestratorOptions
	log        logger.Logger
	metrics    *metrics.Metrics
}

func NewOrchestrator(classifier SearchClassifier, searcher Searcher, scraper PageScraper, opts OrchestratorOptions, log logger.Logger, m *metrics.Metrics) *Orchestrator {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Orchestrator{
		classifier: classifier,
		searcher:   searcher,
		scraper:    scraper,
		opts:       opts,
		log:        log.With(logger.Component("orchestrator")),
		metrics:    m,
	}
}

// Gather returns the scraped context for message, failed items included.
// Events are emitted in order: searching, one searchResult per hit, then
// scraping. A message with URLs emits only scraping.
func (o *Orchestrator) Gather(ctx context.Context, message string, emit func(models.Event)) []models.ScrapedContent {
	ctx, span := chatTracer.Start(ctx, "orchestrator.Gather")
	defer span.End()

	if urls := helpers.ExtractURLs(message); len(urls) > 0 {
		span.SetAttributes(attribute.String("path", "urls"), attribute.Int("urls", len(urls)))
		o.log.Info("scraping urls from message", logger.Strings("urls", urls))
		emit(models.StatusEvent(models.StatusScraping))
		return o.scraper.ScrapeAll(ctx, urls)
	}

	if !o.classifier.NeedsWebSearch(ctx, message) {
		span.SetAttributes(attribute.String("path", "direct"))
		return nil
	}

	span.SetAttributes(attribute.String("path", "search"))
	emit(models.StatusEvent(models.StatusSearching))
	results, err := o.searcher.Search(ctx, message, o.opts.MaxResults)
	o.metrics.Search(ctx, o.opts.SearchProvider, err)
	if err != nil {
		span.RecordError(err)
		o.log.Error("web search failed", logger.Error(err))
		emit(models.StatusEvent(models.StatusSearchFailed))
		return nil
	}

	links := make([]string, 0, len(results))
	for _, r := range results {
		emit(models.SearchResultEvent(r))
		links = append(links, r.Link)
	}
	emit(models.StatusEvent(models.StatusScraping))
	if len(links) == 0 {
		return nil
	}
	return o.scraper.ScrapeAll(ctx, links)
}
