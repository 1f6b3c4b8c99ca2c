package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mohammad-safakhou/webchat/internal/helpers"
	"github.com/mohammad-safakhou/webchat/models"
)

const (
	endpoint     = "https://google.serper.dev/search"
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

type request struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type response struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		ImageURL string `json:"imageUrl"`
	} `json:"organic"`
}

func (s *Search) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	// https://serper.dev/ docs
	payload, err := json.Marshal(request{Q: query, Num: maxResults})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper search: %w", err)
	}
	body, err := helpers.ReadAllAndClose(resp.Body, maxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("read serper response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper search: status %d", resp.StatusCode)
	}
	var raw response
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode serper response: %w", err)
	}
	var out []models.SearchResult
	for _, r := range raw.Organic {
		if maxResults > 0 && len(out) >= maxResults {
			break
		}
		if r.Link == "" {
			continue
		}
		out = append(out, models.SearchResult{
			Title:       r.Title,
			Link:        r.Link,
			Description: r.Snippet,
			Thumbnail:   r.ImageURL,
			Source:      helpers.SourceHost(r.Link),
		})
	}
	return out, nil
}
