package chromedp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	viewportWidth  = 1920
	viewportHeight = 1080

	defaultTimeout     = 30 * time.Second
	defaultIdleTimeout = 5 * time.Second
)

// Options configures a headless Chrome renderer.
type Options struct {
	UserAgent   string
	Timeout     time.Duration // absolute navigation budget
	IdleTimeout time.Duration // cap on the post-load network-idle wait
	ExecPath    string        // empty uses the chromedp lookup
}

// Renderer loads pages in a fresh headless browser per call.
type Renderer struct {
	opts Options
}

func New(opts Options) *Renderer {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	return &Renderer{opts: opts}
}

func (r *Renderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.WindowSize(viewportWidth, viewportHeight),
	)
	if r.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.opts.UserAgent))
	}
	if r.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.opts.ExecPath))
	}
	return opts
}

// Render navigates to url and returns the document HTML once the network
// settles. The browser is torn down on every return path.
func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", errors.New("invalid url")
	}

	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	// start the browser outside the navigation budget
	if err := chromedp.Run(bctx); err != nil {
		return "", fmt.Errorf("launch browser: %w", err)
	}

	tracker := newNetworkTracker()
	chromedp.ListenTarget(bctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			go interceptRequest(bctx, e)
		case *network.EventRequestWillBeSent:
			tracker.start(string(e.RequestID))
		case *network.EventLoadingFinished:
			tracker.finish(string(e.RequestID))
		case *network.EventLoadingFailed:
			tracker.finish(string(e.RequestID))
		}
	})

	nctx, cancel := context.WithTimeout(bctx, r.opts.Timeout)
	defer cancel()

	var html string
	err := chromedp.Run(nctx,
		network.Enable(),
		fetch.Enable(),
		chromedp.EmulateViewport(viewportWidth, viewportHeight),
		chromedp.Navigate(url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return tracker.waitIdle(ctx, r.opts.IdleTimeout)
		}),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}

// BlockedResource reports whether a sub-resource is skipped to speed up loads.
func BlockedResource(t network.ResourceType) bool {
	switch t {
	case network.ResourceTypeImage, network.ResourceTypeStylesheet,
		network.ResourceTypeFont, network.ResourceTypeMedia:
		return true
	}
	return false
}

func interceptRequest(ctx context.Context, e *fetch.EventRequestPaused) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return
	}
	ectx := cdp.WithExecutor(ctx, c.Target)
	if BlockedResource(e.ResourceType) {
		_ = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(ectx)
		return
	}
	_ = fetch.ContinueRequest(e.RequestID).Do(ectx)
}
