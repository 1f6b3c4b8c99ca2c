package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/mohammad-safakhou/webchat/models"
	"github.com/mohammad-safakhou/webchat/provider"
)

type fixedClassifier bool

func (f fixedClassifier) NeedsWebSearch(context.Context, string) bool { return bool(f) }

type fakeSearcher struct {
	results []models.SearchResult
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) ([]models.SearchResult, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

type fakeScraper struct {
	mu   sync.Mutex
	seen [][]string
}

func (f *fakeScraper) ScrapeAll(_ context.Context, urls []string) []models.ScrapedContent {
	f.mu.Lock()
	f.seen = append(f.seen, urls)
	f.mu.Unlock()
	out := make([]models.ScrapedContent, len(urls))
	for i, u := range urls {
		if u == "https://broken.example.com" {
			out[i] = models.FailedScrape(u)
			continue
		}
		out[i] = models.ScrapedContent{URL: u, Title: "Title of " + u, Content: "content"}
	}
	return out
}

type recorder struct {
	events []models.Event
}

func (r *recorder) emit(e models.Event) { r.events = append(r.events, e) }

// sequence renders events as type or type:status for easy comparison.
func sequence(events []models.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		if e.Type == models.EventStatus {
			out = append(out, string(e.Type)+":"+e.Content.(string))
			continue
		}
		out = append(out, string(e.Type))
	}
	return out
}

type chatReply struct {
	out string
	err error
}

type scriptedChat struct {
	mu      sync.Mutex
	replies []chatReply
	calls   int
	opts    []provider.ChatOptions
}

func (s *scriptedChat) Chat(_ context.Context, _ provider.Model, _ []provider.Message, opts provider.ChatOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.opts = append(s.opts, opts)
	if len(s.replies) == 0 {
		return "", errors.New("no reply scripted")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.out, r.err
}
