package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/webchat/config"
	"github.com/mohammad-safakhou/webchat/internal/chat"
	"github.com/mohammad-safakhou/webchat/internal/logger"
	"github.com/mohammad-safakhou/webchat/internal/metrics"
	"github.com/mohammad-safakhou/webchat/internal/server"
	"github.com/mohammad-safakhou/webchat/provider"
	openai_provider "github.com/mohammad-safakhou/webchat/provider/openai"
	"github.com/mohammad-safakhou/webchat/repository"
	"github.com/mohammad-safakhou/webchat/tools/web_fetch"
	"github.com/mohammad-safakhou/webchat/tools/web_search"
)

// App is the fully wired chat service.
type App struct {
	Telemetry *Telemetry
	Metrics   *metrics.Metrics
	Stores    *repository.Stores
	Scraper   *web_fetch.Scraper
	Searcher  web_search.WebSearcher
	Chat      *chat.Service
	Server    *server.Server

	log logger.Logger
}

// BuildApp connects to Redis and constructs every component from cfg.
func BuildApp(ctx context.Context, cfg *config.Config, version string, log logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if log == nil {
		log = logger.NewNop()
	}

	tel, err := SetupTelemetry(ctx, cfg.Telemetry, TelemetryOptions{ServiceVersion: version})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	m, err := metrics.New(tel.Meter)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("metrics: %w", err)
	}

	stores, err := repository.NewRedisStores(ctx, cfg, log, m)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	app, err := assemble(cfg, tel, m, stores, log)
	if err != nil {
		_ = stores.Close()
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	return app, nil
}

func assemble(cfg *config.Config, tel *Telemetry, m *metrics.Metrics, stores *repository.Stores, log logger.Logger) (*App, error) {
	renderer, err := web_fetch.NewRenderer(cfg.Scraper)
	if err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}
	scraper := NewScraper(cfg, renderer, stores.Cache, log, m)

	searcher, err := web_search.NewWebSearcher(cfg.Search, renderer)
	if err != nil {
		return nil, fmt.Errorf("search provider %q: %w", cfg.Search.Provider, err)
	}

	primaryClient := openai_provider.NewClient(cfg.LLM.Primary)
	fallbackClient := openai_provider.NewClient(cfg.LLM.Fallback)
	llm := provider.NewClient(
		provider.TierFromConfig(cfg.LLM.Primary, primaryClient),
		provider.TierFromConfig(cfg.LLM.Fallback, fallbackClient),
		provider.Options{MaxRetries: cfg.LLM.MaxRetries, InitialRetryDelay: cfg.LLM.InitialRetryDelay},
		log, m,
	)
	classifier := chat.NewClassifier(
		fallbackClient,
		provider.ModelFromConfig(cfg.LLM.Fallback.Name, cfg.LLM.Classifier),
		chat.ClassifierOptions{MaxRetries: cfg.LLM.MaxRetries, InitialRetryDelay: cfg.LLM.InitialRetryDelay},
		log,
	)
	orchestrator := chat.NewOrchestrator(classifier, searcher, scraper, chat.OrchestratorOptions{
		MaxResults:     cfg.Search.MaxResults,
		SearchProvider: cfg.Search.Provider,
	}, log, m)
	service := chat.NewService(orchestrator, llm, stores.Conversations, log, m)

	srv := server.New(cfg, server.Deps{
		Sessions:       stores.Sessions,
		Conversations:  stores.Conversations,
		Limiter:        stores.Limiter,
		Chat:           service,
		Metrics:        m,
		MetricsHandler: tel.Handler(),
		Health: func(ctx context.Context) error {
			return stores.Client.Ping(ctx).Err()
		},
	}, log)

	return &App{
		Telemetry: tel,
		Metrics:   m,
		Stores:    stores,
		Scraper:   scraper,
		Searcher:  searcher,
		Chat:      service,
		Server:    srv,
		log:       log,
	}, nil
}

// NewScraper builds the page scraper. cache may be nil to always render.
func NewScraper(cfg *config.Config, renderer web_fetch.Renderer, cache web_fetch.Cache, log logger.Logger, m *metrics.Metrics) *web_fetch.Scraper {
	return web_fetch.NewScraper(renderer, cache, web_fetch.Options{
		MaxChars: cfg.Scraper.MaxChars,
		Policy:   cfg.Scraper.Policy.Normalize(),
	}, log, m)
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context, addr string) error {
	return a.Server.Run(ctx, addr)
}

// Close releases Redis and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Stores.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close redis: %w", err))
	}
	if err := a.Telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.log.Sync(); err != nil {
		a.log.Debug("logger sync", logger.Error(err))
	}
	return errors.Join(errs...)
}
