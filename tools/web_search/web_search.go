package web_search

import (
	"context"
	"errors"
	"net/http"

	"github.com/mohammad-safakhou/webchat/config"
	"github.com/mohammad-safakhou/webchat/models"
	"github.com/mohammad-safakhou/webchat/tools/web_fetch"
	"github.com/mohammad-safakhou/webchat/tools/web_search/brave"
	"github.com/mohammad-safakhou/webchat/tools/web_search/google"
	"github.com/mohammad-safakhou/webchat/tools/web_search/serper"
)

const DefaultMaxResults = 5

// WebSearcher returns at most maxResults organic results for query.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error)
}

type Provider string

const (
	GoogleProvider Provider = "google"
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

// NewWebSearcher builds the configured provider. renderer is only used by the
// google provider, which loads the result page like a browser would.
func NewWebSearcher(cfg config.SearchConfig, renderer web_fetch.Renderer) (WebSearcher, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	switch Provider(cfg.Provider) {
	case GoogleProvider:
		if renderer == nil {
			return nil, errors.New("google search requires a renderer")
		}
		return google.New(renderer), nil
	case SerperProvider:
		return serper.New(cfg.APIKey, client), nil
	case BraveProvider:
		return brave.New(cfg.APIKey, client), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
