// Package metrics holds the instruments recorded by the chat pipeline.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Scrape outcomes.
const (
	ScrapeCacheHit = "cache_hit"
	ScrapeRendered = "rendered"
	ScrapeFailed   = "failed"
	ScrapeBlocked  = "blocked"
)

// Metrics is safe to use as a nil pointer; every method becomes a no-op.
type Metrics struct {
	scrapes       metric.Int64Counter
	searches      metric.Int64Counter
	llmAttempts   metric.Int64Counter
	rateLimited   metric.Int64Counter
	turns         metric.Int64Counter
	turnDuration  metric.Float64Histogram
	cacheRejected metric.Int64Counter
}

// New registers every instrument on meter.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error
	if m.scrapes, err = meter.Int64Counter("webchat_scrapes_total",
		metric.WithDescription("Page scrapes by outcome")); err != nil {
		return nil, err
	}
	if m.searches, err = meter.Int64Counter("webchat_searches_total",
		metric.WithDescription("Web searches by provider and outcome")); err != nil {
		return nil, err
	}
	if m.llmAttempts, err = meter.Int64Counter("webchat_llm_attempts_total",
		metric.WithDescription("Completion attempts by provider, model and outcome")); err != nil {
		return nil, err
	}
	if m.rateLimited, err = meter.Int64Counter("webchat_rate_limited_total",
		metric.WithDescription("Requests rejected by a rate limit")); err != nil {
		return nil, err
	}
	if m.turns, err = meter.Int64Counter("webchat_chat_turns_total",
		metric.WithDescription("Chat turns by outcome")); err != nil {
		return nil, err
	}
	if m.turnDuration, err = meter.Float64Histogram("webchat_chat_turn_duration_seconds",
		metric.WithDescription("Wall time of a chat turn"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.cacheRejected, err = meter.Int64Counter("webchat_scrape_cache_rejected_total",
		metric.WithDescription("Cache entries rejected as oversized or malformed")); err != nil {
		return nil, err
	}
	return m, nil
}

// NewNop returns Metrics backed by a no-op meter.
func NewNop() *Metrics {
	m, _ := New(noop.NewMeterProvider().Meter("webchat"))
	return m
}

func (m *Metrics) Scrape(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.scrapes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) CacheRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.cacheRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) Search(ctx context.Context, provider string, err error) {
	if m == nil {
		return
	}
	m.searches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome(err)),
	))
}

func (m *Metrics) LLMAttempt(ctx context.Context, provider, model string, err error) {
	if m == nil {
		return
	}
	m.llmAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("outcome", outcome(err)),
	))
}

// RateLimited counts a rejection; scope is "requests" or "conversations".
func (m *Metrics) RateLimited(ctx context.Context, scope string) {
	if m == nil {
		return
	}
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
}

func (m *Metrics) Turn(ctx context.Context, started time.Time, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome(err)))
	m.turns.Add(ctx, 1, attrs)
	m.turnDuration.Record(ctx, time.Since(started).Seconds(), attrs)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
