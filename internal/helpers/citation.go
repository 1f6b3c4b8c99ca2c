package helpers

import (
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/webchat/models"
)

// CitationsFromScrapes builds one citation per successful scrape, in order.
// Failed scrapes are skipped because nothing from them reaches the model.
func CitationsFromScrapes(contents []models.ScrapedContent) []models.Citation {
	var out []models.Citation
	for _, c := range contents {
		if c.Failed() {
			continue
		}
		title := strings.TrimSpace(c.Title)
		if title == "" {
			title = extractDomain(c.URL)
		}
		out = append(out, models.Citation{
			URL:    c.URL,
			Title:  title,
			Source: extractDomain(c.URL),
		})
	}
	return out
}

func extractDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	return strings.TrimPrefix(host, "www.")
}
