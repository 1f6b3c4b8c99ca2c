// Package httpfetch renders pages with a plain HTTP GET. It is the
// lightweight alternative for sites that need no JavaScript.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

const maxBodySize = 10 << 20

type Renderer struct {
	userAgent string
	timeout   time.Duration
}

func New(userAgent string, timeout time.Duration) *Renderer {
	return &Renderer{userAgent: userAgent, timeout: timeout}
}

func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.MaxBodySize(maxBodySize),
		colly.AllowURLRevisit(),
	}
	if r.userAgent != "" {
		opts = append(opts, colly.UserAgent(r.userAgent))
	}
	c := colly.NewCollector(opts...)
	if r.timeout > 0 {
		c.SetRequestTimeout(r.timeout)
	}

	var (
		body     []byte
		fetchErr error
	)
	c.OnResponse(func(resp *colly.Response) {
		body = resp.Body
	})
	c.OnError(func(resp *colly.Response, err error) {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		fetchErr = fmt.Errorf("fetch %s (status %d): %w", url, status, err)
	})

	if err := c.Visit(url); err != nil && fetchErr == nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	c.Wait()
	if fetchErr != nil {
		return "", fetchErr
	}
	if len(body) == 0 {
		return "", errors.New("empty response body")
	}
	return string(body), nil
}
