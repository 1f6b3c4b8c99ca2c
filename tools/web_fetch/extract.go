package web_fetch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/mohammad-safakhou/webchat/internal/helpers"
	"github.com/mohammad-safakhou/webchat/models"
)

// noiseSelector lists nodes dropped before any text is read.
const noiseSelector = "script, style, noscript, iframe"

// textSelectors are swept in order to build the page body.
var textSelectors = []string{
	"p", "li", "td", "th", "blockquote", "article",
	"span", "div", "h3", "h4", "h5", "h6",
}

// Extract normalizes a rendered page into ScrapedContent. Content is the
// title, description, headings and body joined, whitespace-collapsed and cut
// to maxChars runes.
func Extract(html, pageURL string, maxChars int) (models.ScrapedContent, error) {
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.ScrapedContent{}, fmt.Errorf("parse html: %w", err)
	}
	doc.Find(noiseSelector).Remove()

	title := helpers.CleanText(doc.Find("title").Text())
	if title == "" {
		title = readabilityTitle(html, pageURL)
	}
	description := helpers.PlainText(doc.Find(`meta[name="description"]`).AttrOr("content", ""))
	h1 := joinTexts(doc.Find("h1"))
	h2 := joinTexts(doc.Find("h2"))

	var body []string
	for _, sel := range textSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				body = append(body, text)
			}
		})
	}

	combined := helpers.CleanText(strings.Join([]string{title, description, h1, h2, strings.Join(body, " ")}, " "))
	return models.ScrapedContent{
		URL:             pageURL,
		Title:           title,
		Headings:        models.Headings{H1: helpers.CleanText(h1), H2: helpers.CleanText(h2)},
		MetaDescription: description,
		Content:         helpers.TruncateRunes(combined, maxChars),
	}, nil
}

func joinTexts(sel *goquery.Selection) string {
	texts := sel.Map(func(_ int, s *goquery.Selection) string {
		return strings.TrimSpace(s.Text())
	})
	return strings.Join(texts, " ")
}

func readabilityTitle(html, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return ""
	}
	return helpers.CleanText(article.Title)
}
