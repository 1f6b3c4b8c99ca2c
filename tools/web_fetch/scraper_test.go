package web_fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammad-safakhou/webchat/config"
	"github.com/mohammad-safakhou/webchat/models"
)

type fakeRenderer struct {
	calls atomic.Int32
	fn    func(url string) (string, error)
}

func (f *fakeRenderer) Render(_ context.Context, url string) (string, error) {
	f.calls.Add(1)
	return f.fn(url)
}

type memoryCache struct {
	mu     sync.Mutex
	items  map[string]models.ScrapedContent
	getErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string]models.ScrapedContent{}}
}

func (c *memoryCache) Get(_ context.Context, url string) (*models.ScrapedContent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	v, ok := c.items[url]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (c *memoryCache) Put(_ context.Context, url string, content models.ScrapedContent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[url] = content
	return nil
}

func pageFor(title string) string {
	return "<html><head><title>" + title + "</title></head><body><p>body of " + title + "</p></body></html>"
}

func assertFailed(t *testing.T, got models.ScrapedContent, url string) {
	t.Helper()
	if !got.Failed() || *got.Error != models.ScrapeFailedMessage {
		t.Fatalf("expected failed scrape, got %+v", got)
	}
	if got.URL != url || got.Title != "" || got.Content != "" || got.MetaDescription != "" || got.Headings != (models.Headings{}) {
		t.Fatalf("failed scrape must carry empty text fields, got %+v", got)
	}
}

func TestScrapeCacheAside(t *testing.T) {
	t.Parallel()
	renderer := &fakeRenderer{fn: func(url string) (string, error) { return pageFor("Cached"), nil }}
	cache := newMemoryCache()
	s := NewScraper(renderer, cache, Options{}, nil, nil)
	ctx := context.Background()

	first := s.Scrape(ctx, "https://example.com/a")
	if first.Failed() || first.Title != "Cached" {
		t.Fatalf("unexpected first scrape %+v", first)
	}
	second := s.Scrape(ctx, "https://example.com/a")
	if second.Title != "Cached" {
		t.Fatalf("unexpected cached scrape %+v", second)
	}
	if n := renderer.calls.Load(); n != 1 {
		t.Fatalf("expected one render, got %d", n)
	}
}

func TestScrapeIsTotal(t *testing.T) {
	t.Parallel()
	cases := map[string]Renderer{
		"render error": &fakeRenderer{fn: func(string) (string, error) { return "", errors.New("net::ERR_NAME_NOT_RESOLVED") }},
		"panic":        &fakeRenderer{fn: func(string) (string, error) { panic("browser crashed") }},
	}
	for name, r := range cases {
		r := r
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cache := newMemoryCache()
			s := NewScraper(r, cache, Options{}, nil, nil)
			got := s.Scrape(context.Background(), "https://broken.example.com")
			assertFailed(t, got, "https://broken.example.com")
			if len(cache.items) != 0 {
				t.Fatalf("failed scrapes must not be cached")
			}
		})
	}
}

func TestScrapeRendersWhenCacheErrors(t *testing.T) {
	t.Parallel()
	renderer := &fakeRenderer{fn: func(string) (string, error) { return pageFor("Live"), nil }}
	cache := newMemoryCache()
	cache.getErr = errors.New("connection refused")
	s := NewScraper(renderer, cache, Options{}, nil, nil)

	got := s.Scrape(context.Background(), "https://example.com")
	if got.Failed() || got.Title != "Live" {
		t.Fatalf("expected live render, got %+v", got)
	}
}

func TestScrapeHonoursPolicy(t *testing.T) {
	t.Parallel()
	renderer := &fakeRenderer{fn: func(string) (string, error) { return pageFor("x"), nil }}
	s := NewScraper(renderer, nil, Options{Policy: config.ScrapePolicyConfig{Disallow: []string{"blocked.example"}}}, nil, nil)

	assertFailed(t, s.Scrape(context.Background(), "https://www.blocked.example/page"), "https://www.blocked.example/page")
	if renderer.calls.Load() != 0 {
		t.Fatalf("blocked hosts must not be rendered")
	}
}

func TestScrapeAllPreservesOrderAndIsolatesFailures(t *testing.T) {
	t.Parallel()
	renderer := &fakeRenderer{fn: func(url string) (string, error) {
		switch url {
		case "https://slow.example.com":
			time.Sleep(100 * time.Millisecond)
			return pageFor("slow"), nil
		case "https://bad.example.com":
			return "", fmt.Errorf("timeout")
		default:
			return pageFor("fast"), nil
		}
	}}
	s := NewScraper(renderer, nil, Options{}, nil, nil)
	urls := []string{"https://slow.example.com", "https://bad.example.com", "https://fast.example.com"}

	got := s.ScrapeAll(context.Background(), urls)
	if len(got) != len(urls) {
		t.Fatalf("expected %d results, got %d", len(urls), len(got))
	}
	for i, u := range urls {
		if got[i].URL != u {
			t.Fatalf("result %d is for %q, want %q", i, got[i].URL, u)
		}
	}
	if got[0].Title != "slow" || got[2].Title != "fast" {
		t.Fatalf("unexpected titles %q %q", got[0].Title, got[2].Title)
	}
	assertFailed(t, got[1], "https://bad.example.com")
}

func TestScrapeAllEmpty(t *testing.T) {
	t.Parallel()
	s := NewScraper(&fakeRenderer{fn: func(string) (string, error) { return "", nil }}, nil, Options{}, nil, nil)
	if got := s.ScrapeAll(context.Background(), nil); len(got) != 0 {
		t.Fatalf("expected no results, got %d", len(got))
	}
}

func TestNewRenderer(t *testing.T) {
	t.Parallel()
	if _, err := NewRenderer(config.ScraperConfig{Renderer: "chromedp"}); err != nil {
		t.Fatalf("chromedp renderer: %v", err)
	}
	if _, err := NewRenderer(config.ScraperConfig{Renderer: "http"}); err != nil {
		t.Fatalf("http renderer: %v", err)
	}
	if _, err := NewRenderer(config.ScraperConfig{Renderer: "phantom"}); !errors.Is(err, ErrUnsupportedRenderer) {
		t.Fatalf("expected ErrUnsupportedRenderer, got %v", err)
	}
}
