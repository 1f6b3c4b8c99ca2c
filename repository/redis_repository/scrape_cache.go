package redis_repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/webchat/internal/logger"
	"github.com/mohammad-safakhou/webchat/internal/metrics"
	"github.com/mohammad-safakhou/webchat/models"
	"github.com/redis/go-redis/v9"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	scrapeKeyPrefix    = "scrape:"
	maxScrapeKeyURLLen = 200
)

const scrapedContentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["url", "title", "headings", "metaDescription", "content"],
  "properties": {
    "url": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "headings": {
      "type": "object",
      "required": ["h1", "h2"],
      "properties": {
        "h1": {"type": "string"},
        "h2": {"type": "string"}
      }
    },
    "metaDescription": {"type": "string"},
    "content": {"type": "string"},
    "error": {"type": "null"},
    "cachedAt": {"type": "integer", "minimum": 0}
  }
}`

var (
	scrapeSchemaOnce sync.Once
	scrapeSchema     *jsonschema.Schema
	scrapeSchemaErr  error
)

func compiledScrapeSchema() (*jsonschema.Schema, error) {
	scrapeSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("scraped_content.json", strings.NewReader(scrapedContentSchema)); err != nil {
			scrapeSchemaErr = err
			return
		}
		scrapeSchema, scrapeSchemaErr = c.Compile("scraped_content.json")
	})
	return scrapeSchema, scrapeSchemaErr
}

// ScrapeCacheOptions bounds what the cache keeps.
type ScrapeCacheOptions struct {
	TTL      time.Duration
	MaxBytes int
}

// ScrapeCache is a cache-aside store for extracted page content.
type ScrapeCache struct {
	client  redis.Cmdable
	opts    ScrapeCacheOptions
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewScrapeCache(client redis.Cmdable, opts ScrapeCacheOptions, log logger.Logger, m *metrics.Metrics) *ScrapeCache {
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 1024000
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ScrapeCache{
		client:  client,
		opts:    opts,
		log:     log.With(logger.Component("scrape_cache")),
		metrics: m,
		now:     time.Now,
	}
}

// ScrapeKey derives the cache key for url, bounded to keep keys well-formed.
func ScrapeKey(url string) string {
	if len(url) > maxScrapeKeyURLLen {
		url = url[:maxScrapeKeyURLLen]
	}
	return scrapeKeyPrefix + url
}

// Get returns the cached content for url, or nil on a miss. A payload that
// fails shape validation is deleted and reported as a miss; an entry stored
// for a different URL under the same truncated key is a miss.
func (c *ScrapeCache) Get(ctx context.Context, url string) (*models.ScrapedContent, error) {
	key := ScrapeKey(url)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("scrape cache get: %w", err)
	}

	content, err := decodeScrapedContent(data)
	if err != nil {
		c.log.Warn("discarding malformed cache entry", logger.String("key", key), logger.Error(err))
		c.metrics.CacheRejected(ctx, "malformed")
		if delErr := c.client.Del(ctx, key).Err(); delErr != nil {
			c.log.Warn("delete malformed cache entry", logger.String("key", key), logger.Error(delErr))
		}
		return nil, nil
	}
	if content.URL != url {
		// truncated keys can collide; the entry belongs to another page
		c.log.Debug("cache key collision", logger.String("key", key), logger.String("url", url))
		return nil, nil
	}
	return content, nil
}

func decodeScrapedContent(data []byte) (*models.ScrapedContent, error) {
	schema, err := compiledScrapeSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if err := schema.Validate(raw); err != nil {
		return nil, err
	}
	var content models.ScrapedContent
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// Put stores content for url. Failed scrapes are never cached and a payload
// larger than MaxBytes is dropped without error.
func (c *ScrapeCache) Put(ctx context.Context, url string, content models.ScrapedContent) error {
	if content.Failed() {
		return nil
	}
	content.CachedAt = c.now().UnixMilli()
	data, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("marshal scraped content: %w", err)
	}
	if len(data) > c.opts.MaxBytes {
		c.log.Info("skipping oversized cache entry",
			logger.String("url", url), logger.Int("bytes", len(data)), logger.Int("max_bytes", c.opts.MaxBytes))
		c.metrics.CacheRejected(ctx, "oversized")
		return nil
	}
	if err := c.client.Set(ctx, ScrapeKey(url), data, c.opts.TTL).Err(); err != nil {
		return fmt.Errorf("scrape cache set: %w", err)
	}
	return nil
}
