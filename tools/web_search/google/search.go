// Package google reads organic results from a rendered Google result page.
package google

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mohammad-safakhou/webchat/internal/helpers"
	"github.com/mohammad-safakhou/webchat/models"
)

const baseURL = "https://www.google.com/search?q="

// Renderer loads a page and returns its HTML.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

type Search struct {
	renderer Renderer
}

func New(renderer Renderer) *Search {
	return &Search{renderer: renderer}
}

// SearchURL is the result page requested for query.
func SearchURL(query string) string {
	return baseURL + url.QueryEscape(query)
}

func (s *Search) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	html, err := s.renderer.Render(ctx, SearchURL(query))
	if err != nil {
		return nil, fmt.Errorf("render result page: %w", err)
	}
	return ParseResults(html, maxResults)
}

// ParseResults extracts up to maxResults cards from a result page. Cards
// without a link are skipped; missing optional fields stay empty.
func ParseResults(html string, maxResults int) ([]models.SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}
	out := make([]models.SearchResult, 0, max(maxResults, 0))
	doc.Find("div.g").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if maxResults > 0 && len(out) >= maxResults {
			return false
		}
		link := resolveLink(card.Find("a[href]").First().AttrOr("href", ""))
		if link == "" {
			return true
		}
		out = append(out, models.SearchResult{
			Title:       strings.TrimSpace(card.Find("h3").First().Text()),
			Link:        link,
			Description: strings.TrimSpace(card.Find("div.VwiC3b").First().Text()),
			Thumbnail:   card.Find("g-img img, img.T3HQGc").First().AttrOr("src", ""),
			Source:      source(card),
		})
		return true
	})
	return out, nil
}

func source(card *goquery.Selection) string {
	if s := strings.TrimSpace(card.Find("span.VuuXrf").First().Text()); s != "" {
		return s
	}
	cite := card.Find("cite.qLRx3b").First()
	if cite.Length() == 0 {
		return ""
	}
	text := strings.TrimSpace(cite.Text())
	if host := helpers.SourceHost(text); host != "" {
		return host
	}
	return text
}

// resolveLink makes relative hrefs absolute and unwraps /url?q= redirects.
func resolveLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return u.String()
	}
	if u.Path == "/url" {
		if target := u.Query().Get("q"); strings.HasPrefix(target, "http") {
			return target
		}
	}
	base, _ := url.Parse("https://www.google.com")
	return base.ResolveReference(u).String()
}
