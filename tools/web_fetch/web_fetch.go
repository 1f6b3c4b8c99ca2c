package web_fetch

import (
	"context"
	"errors"
	"time"

	"github.com/mohammad-safakhou/webchat/config"
	"github.com/mohammad-safakhou/webchat/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/webchat/tools/web_fetch/httpfetch"
)

const (
	DefaultTimeout  = 30 * time.Second
	MaxCharsDefault = 40000
)

// Renderer turns a URL into the HTML of the loaded document.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

type RendererType string

const (
	ChromedpRendererType RendererType = "chromedp"
	HTTPRendererType     RendererType = "http"
)

var ErrUnsupportedRenderer = errors.New("unsupported renderer type")

func NewRenderer(cfg config.ScraperConfig) (Renderer, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	switch RendererType(cfg.Renderer) {
	case ChromedpRendererType:
		return chromedp.New(chromedp.Options{
			UserAgent:   cfg.UserAgent,
			Timeout:     timeout,
			IdleTimeout: cfg.IdleTimeout,
			ExecPath:    cfg.ExecPath,
		}), nil
	case HTTPRendererType:
		return httpfetch.New(cfg.UserAgent, timeout), nil
	default:
		return nil, ErrUnsupportedRenderer
	}
}
