package chromedp

import (
	"context"
	"sync"
	"time"
)

const (
	idleMaxInflight = 2
	idleQuietPeriod = 500 * time.Millisecond
	idlePollEvery   = 50 * time.Millisecond
)

// networkTracker counts in-flight requests for the network-idle wait.
type networkTracker struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func newNetworkTracker() *networkTracker {
	return &networkTracker{inflight: make(map[string]struct{})}
}

func (t *networkTracker) start(id string) {
	t.mu.Lock()
	t.inflight[id] = struct{}{}
	t.mu.Unlock()
}

func (t *networkTracker) finish(id string) {
	t.mu.Lock()
	delete(t.inflight, id)
	t.mu.Unlock()
}

func (t *networkTracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// waitIdle returns once at most two requests have been in flight for the
// quiet period, or when max elapses. Only ctx ending is an error; a page that
// never settles is rendered as-is.
func (t *networkTracker) waitIdle(ctx context.Context, max time.Duration) error {
	deadline := time.NewTimer(max)
	defer deadline.Stop()
	tick := time.NewTicker(idlePollEvery)
	defer tick.Stop()

	var quietSince time.Time
	for {
		if t.count() <= idleMaxInflight {
			if quietSince.IsZero() {
				quietSince = time.Now()
			}
			if time.Since(quietSince) >= idleQuietPeriod {
				return nil
			}
		} else {
			quietSince = time.Time{}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-tick.C:
		}
	}
}
