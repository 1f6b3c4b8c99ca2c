package repository

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/webchat/config"
	"github.com/mohammad-safakhou/webchat/internal/logger"
	"github.com/mohammad-safakhou/webchat/internal/metrics"
	"github.com/mohammad-safakhou/webchat/models"
	"github.com/mohammad-safakhou/webchat/repository/redis_repository"
	"github.com/redis/go-redis/v9"
)

// ScrapeCache stores extracted page content keyed by URL
type ScrapeCache interface {
	Get(ctx context.Context, url string) (*models.ScrapedContent, error)
	Put(ctx context.Context, url string, content models.ScrapedContent) error
}

// SessionRepository issues and refreshes anonymous sessions
type SessionRepository interface {
	CreateSession(ctx context.Context) (models.Session, error)
	GetSession(ctx context.Context, id string) (models.Session, error)
	TouchSession(ctx context.Context, id string) error
}

// ConversationRepository persists session-owned conversations and shared snapshots
type ConversationRepository interface {
	AssociateConversationWithSession(ctx context.Context, cid, sid string) (bool, error)
	SaveConversation(ctx context.Context, id string, messages []models.Message, sid string) error
	GetConversationSecure(ctx context.Context, id, sid string) ([]models.Message, error)
	GetSessionConversations(ctx context.Context, sid string) ([]models.ConversationSummary, error)
	CreateSharedConversation(ctx context.Context, id, sid string) (string, bool)
	GetSharedConversation(ctx context.Context, sharedID string) (*models.SharedConversation, error)
	CheckConversationRateLimit(ctx context.Context, sid string) (bool, error)
}

// RequestLimiter counts requests per session and path
type RequestLimiter interface {
	Allow(ctx context.Context, sid, path string) (redis_repository.Decision, error)
}

// Stores bundles every Redis-backed repository over one client.
type Stores struct {
	Client        *redis.Client
	Cache         ScrapeCache
	Sessions      SessionRepository
	Conversations ConversationRepository
	Limiter       RequestLimiter
}

// NewRedisStores connects to Redis and builds every repository from cfg.
func NewRedisStores(ctx context.Context, cfg *config.Config, log logger.Logger, m *metrics.Metrics) (*Stores, error) {
	client, err := redis_repository.Conn(ctx, cfg.Storage.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewStores(client, cfg, log, m), nil
}

// NewStores wires repositories over an existing client.
func NewStores(client *redis.Client, cfg *config.Config, log logger.Logger, m *metrics.Metrics) *Stores {
	return &Stores{
		Client: client,
		Cache: redis_repository.NewScrapeCache(client, redis_repository.ScrapeCacheOptions{
			TTL:      cfg.Scraper.CacheTTL,
			MaxBytes: cfg.Scraper.MaxCacheBytes,
		}, log, m),
		Sessions: redis_repository.NewSessionStore(client, cfg.Session.TTL),
		Conversations: redis_repository.NewConversationStore(client, redis_repository.ConversationOptions{
			TTL:        cfg.Conversation.TTL,
			SharedTTL:  cfg.Conversation.SharedTTL,
			DailyLimit: cfg.RateLimit.ConversationsPerDay,
		}, log),
		Limiter: redis_repository.NewRequestLimiter(client,
			cfg.RateLimit.Window, cfg.RateLimit.MaxRequests, cfg.RateLimit.Secret),
	}
}

func (s *Stores) Close() error {
	if s == nil || s.Client == nil {
		return nil
	}
	return s.Client.Close()
}
