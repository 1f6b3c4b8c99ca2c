package chromedp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func TestWaitIdleReturnsAfterQuietPeriod(t *testing.T) {
	t.Parallel()
	tracker := newNetworkTracker()
	tracker.start("a")
	tracker.start("b")

	start := time.Now()
	if err := tracker.waitIdle(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("waitIdle: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < idleQuietPeriod || elapsed > 2*time.Second {
		t.Fatalf("expected to settle after the quiet period, took %s", elapsed)
	}
}

func TestWaitIdleIsBoundedByMax(t *testing.T) {
	t.Parallel()
	tracker := newNetworkTracker()
	for i := 0; i < 5; i++ {
		tracker.start(fmt.Sprintf("req-%d", i))
	}

	start := time.Now()
	if err := tracker.waitIdle(context.Background(), 200*time.Millisecond); err != nil {
		t.Fatalf("a busy page should not be an error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("wait exceeded its cap: %s", elapsed)
	}
}

func TestWaitIdleWaitsForRequestsToDrain(t *testing.T) {
	t.Parallel()
	tracker := newNetworkTracker()
	for i := 0; i < 4; i++ {
		tracker.start(fmt.Sprintf("req-%d", i))
	}
	go func() {
		time.Sleep(300 * time.Millisecond)
		tracker.finish("req-0")
		tracker.finish("req-1")
	}()

	start := time.Now()
	if err := tracker.waitIdle(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("waitIdle: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond+idleQuietPeriod {
		t.Fatalf("returned before requests drained: %s", elapsed)
	}
}

func TestWaitIdleHonoursContext(t *testing.T) {
	t.Parallel()
	tracker := newNetworkTracker()
	for i := 0; i < 3; i++ {
		tracker.start(fmt.Sprintf("req-%d", i))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := tracker.waitIdle(ctx, 5*time.Second)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestBlockedResource(t *testing.T) {
	t.Parallel()
	blocked := []network.ResourceType{
		network.ResourceTypeImage, network.ResourceTypeStylesheet,
		network.ResourceTypeFont, network.ResourceTypeMedia,
	}
	for _, rt := range blocked {
		if !BlockedResource(rt) {
			t.Fatalf("expected %s to be blocked", rt)
		}
	}
	for _, rt := range []network.ResourceType{network.ResourceTypeDocument, network.ResourceTypeScript, network.ResourceTypeXHR} {
		if BlockedResource(rt) {
			t.Fatalf("expected %s to load", rt)
		}
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()
	r := New(Options{ExecPath: "/usr/bin/chromium"})
	if r.opts.Timeout != defaultTimeout || r.opts.IdleTimeout != defaultIdleTimeout {
		t.Fatalf("unexpected defaults: %+v", r.opts)
	}
	if got := len(r.allocatorOptions()); got <= len(New(Options{}).allocatorOptions()) {
		t.Fatalf("expected ExecPath to add an allocator option")
	}
}
