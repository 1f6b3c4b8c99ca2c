package redis_repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/webchat/internal/helpers"
	"github.com/redis/go-redis/v9"
)

const (
	requestRateKeyPrefix = "rate_limit:"
	anonymousSubject     = "anonymous-user"
)

// Decision is the outcome of one rate-limited request.
type Decision struct {
	Limited    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RequestLimiter is a fixed-window counter per (session, path).
type RequestLimiter struct {
	client redis.Cmdable
	window time.Duration
	limit  int
	secret string
	now    func() time.Time
}

func NewRequestLimiter(client redis.Cmdable, window time.Duration, limit int, secret string) *RequestLimiter {
	return &RequestLimiter{client: client, window: window, limit: limit, secret: secret, now: time.Now}
}

// RequestRateKey hashes the subject so raw session ids never appear in key names.
func RequestRateKey(sid, path, secret string) string {
	if sid == "" {
		sid = anonymousSubject
	}
	return requestRateKeyPrefix + helpers.Digest(sid, path, secret)
}

// Allow counts one request by sid on path.
func (l *RequestLimiter) Allow(ctx context.Context, sid, path string) (Decision, error) {
	key := RequestRateKey(sid, path, l.secret)
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("incr request counter: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("expire request counter: %w", err)
		}
	}
	ttl, err := l.client.PTTL(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ttl request counter: %w", err)
	}
	if ttl <= 0 {
		// counter lost its expiry; restart the window
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("expire request counter: %w", err)
		}
		ttl = l.window
	}

	remaining := l.limit - int(n)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Limited:    n > int64(l.limit),
		Limit:      l.limit,
		Remaining:  remaining,
		ResetAt:    l.now().Add(ttl),
		RetryAfter: l.window,
	}, nil
}
