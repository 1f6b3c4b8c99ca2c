package web_fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mohammad-safakhou/webchat/config"
	"github.com/mohammad-safakhou/webchat/internal/logger"
	"github.com/mohammad-safakhou/webchat/internal/metrics"
	"github.com/mohammad-safakhou/webchat/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var scraperTracer = otel.Tracer("webchat/tools/web_fetch")

// Cache is the cache-aside store consulted before rendering.
type Cache interface {
	Get(ctx context.Context, url string) (*models.ScrapedContent, error)
	Put(ctx context.Context, url string, content models.ScrapedContent) error
}

type Options struct {
	MaxChars int
	Policy   config.ScrapePolicyConfig
}

// Scraper renders, extracts and caches pages. Scrape never fails outward:
// every error collapses into models.FailedScrape.
type Scraper struct {
	renderer Renderer
	cache    Cache
	opts     Options
	log      logger.Logger
	metrics  *metrics.Metrics
}

func NewScraper(renderer Renderer, cache Cache, opts Options, log logger.Logger, m *metrics.Metrics) *Scraper {
	if opts.MaxChars <= 0 {
		opts.MaxChars = MaxCharsDefault
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Scraper{
		renderer: renderer,
		cache:    cache,
		opts:     opts,
		log:      log.With(logger.Component("scraper")),
		metrics:  m,
	}
}

func (s *Scraper) Scrape(ctx context.Context, url string) (out models.ScrapedContent) {
	ctx, span := scraperTracer.Start(ctx, "scraper.Scrape")
	span.SetAttributes(attribute.String("url", url))
	defer span.End()
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scrape panicked", logger.String("url", url), logger.Any("panic", r))
			s.metrics.Scrape(ctx, metrics.ScrapeFailed)
			out = models.FailedScrape(url)
		}
	}()

	if s.opts.Policy.Blocks(url) {
		s.log.Info("scrape blocked by policy", logger.String("url", url))
		s.metrics.Scrape(ctx, metrics.ScrapeBlocked)
		return models.FailedScrape(url)
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, url)
		if err != nil {
			s.log.Warn("cache lookup failed, rendering", logger.String("url", url), logger.Error(err))
		} else if cached != nil {
			s.log.Debug("cache hit", logger.String("url", url))
			s.metrics.Scrape(ctx, metrics.ScrapeCacheHit)
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return *cached
		}
	}

	content, err := s.fetch(ctx, url)
	if err != nil {
		s.log.Warn("scrape failed", logger.String("url", url), logger.Error(err),
			logger.Duration("elapsed", time.Since(started)))
		s.metrics.Scrape(ctx, metrics.ScrapeFailed)
		span.RecordError(err)
		return models.FailedScrape(url)
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, url, content); err != nil {
			s.log.Warn("cache write failed", logger.String("url", url), logger.Error(err))
		}
	}
	s.metrics.Scrape(ctx, metrics.ScrapeRendered)
	s.log.Info("scraped", logger.String("url", url), logger.Int("chars", len(content.Content)),
		logger.Duration("elapsed", time.Since(started)))
	return content
}

func (s *Scraper) fetch(ctx context.Context, url string) (models.ScrapedContent, error) {
	html, err := s.renderer.Render(ctx, url)
	if err != nil {
		return models.ScrapedContent{}, fmt.Errorf("render: %w", err)
	}
	return Extract(html, url, s.opts.MaxChars)
}

// ScrapeAll scrapes every URL concurrently and returns results in input order.
// One failure never cancels its siblings.
func (s *Scraper) ScrapeAll(ctx context.Context, urls []string) []models.ScrapedContent {
	out := make([]models.ScrapedContent, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			out[i] = s.Scrape(ctx, u)
		}(i, u)
	}
	wg.Wait()
	return out
}
