package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mohammad-safakhou/webchat/internal/helpers"
	"github.com/mohammad-safakhou/webchat/models"
)

const (
	endpoint     = "https://api.search.brave.com/res/v1/web/search"
	maxBodyBytes = 2 << 20
)

type Search struct {
	apiKey   string
	client   *http.Client
	endpoint string
}

func New(apiKey string, client *http.Client) *Search {
	if client == nil {
		client = http.DefaultClient
	}
	return &Search{apiKey: apiKey, client: client, endpoint: endpoint}
}

// WithEndpoint points the client at another base URL.
func (s *Search) WithEndpoint(u string) *Search {
	s.endpoint = u
	return s
}

type response struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			Thumbnail   struct {
				Src string `json:"src"`
			} `json:"thumbnail"`
			MetaURL struct {
				Hostname string `json:"hostname"`
			} `json:"meta_url"`
		} `json:"results"`
	} `json:"web"`
}

func (s *Search) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	// https://api.search.brave.com/app/documentation/web-search
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", strconv.Itoa(maxResults))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.apiKey)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}
	body, err := helpers.ReadAllAndClose(resp.Body, maxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("read brave response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave search: status %d", resp.StatusCode)
	}
	var raw response
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode brave response: %w", err)
	}
	var out []models.SearchResult
	for _, r := range raw.Web.Results {
		if maxResults > 0 && len(out) >= maxResults {
			break
		}
		if r.URL == "" {
			continue
		}
		src := r.MetaURL.Hostname
		if src == "" {
			src = helpers.SourceHost(r.URL)
		}
		out = append(out, models.SearchResult{
			Title:       r.Title,
			Link:        r.URL,
			Description: helpers.PlainText(r.Description),
			Thumbnail:   r.Thumbnail.Src,
			Source:      src,
		})
	}
	return out, nil
}
