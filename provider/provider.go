// Package provider runs chat completions against a primary model and, when it
// fails, a cascade of fallback models with per-model retries.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/webchat/config"
	"github.com/mohammad-safakhou/webchat/internal/logger"
	"github.com/mohammad-safakhou/webchat/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("webchat/provider")

var (
	// ErrEmptyResponse marks a completion that returned no content.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrExhausted is returned once every tier, model and retry failed.
	ErrExhausted = errors.New("all models and retries exhausted")
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type Model struct {
	Provider         string
	Name             string
	MaxTokens        int
	SupportsJSONMode bool
}

type ChatOptions struct {
	JSONMode    bool
	Temperature float32
	MaxTokens   int
}

// ChatClient performs a single completion call.
type ChatClient interface {
	Chat(ctx context.Context, model Model, messages []Message, opts ChatOptions) (string, error)
}

// Tier is one provider and its ordered model list.
type Tier struct {
	Name        string
	Client      ChatClient
	Models      []Model
	Temperature float32
}

// TierFromConfig describes cfg's models as a tier served by client.
func TierFromConfig(cfg config.LLMProvider, client ChatClient) Tier {
	models := make([]Model, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		models = append(models, ModelFromConfig(cfg.Name, m))
	}
	return Tier{Name: cfg.Name, Client: client, Models: models, Temperature: cfg.Temperature}
}

func ModelFromConfig(providerName string, m config.LLMModel) Model {
	return Model{Provider: providerName, Name: m.Name, MaxTokens: m.MaxTokens, SupportsJSONMode: m.SupportsJSONMode}
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Options struct {
	MaxRetries        int
	InitialRetryDelay time.Duration
	Sleep             Sleeper
}

type Client struct {
	primary  Tier
	fallback Tier
	opts     Options
	log      logger.Logger
	metrics  *metrics.Metrics
}

func NewClient(primary, fallback Tier, opts Options, log logger.Logger, m *metrics.Metrics) *Client {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		primary:  primary,
		fallback: fallback,
		opts:     opts,
		log:      log.With(logger.Component("llm")),
		metrics:  m,
	}
}

// Complete tries the primary tier's first model once. On failure it walks the
// fallback models in order, calling each up to MaxRetries+1 times with
// exponential backoff between attempts on the same model.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	ctx, span := tracer.Start(ctx, "provider.Complete")
	defer span.End()

	if c.primary.Client != nil && len(c.primary.Models) > 0 {
		model := c.primary.Models[0]
		out, err := c.attempt(ctx, c.primary, model, messages)
		if err == nil {
			span.SetAttributes(attribute.String("llm.model", model.Name))
			return out, nil
		}
		c.log.Warn("primary provider failed, falling back",
			logger.String("provider", c.primary.Name), logger.String("model", model.Name), logger.Error(err))
	}

	if c.fallback.Client == nil {
		span.RecordError(ErrExhausted)
		return "", ErrExhausted
	}
	for _, model := range c.fallback.Models {
		for retry := 0; ; retry++ {
			out, err := c.attempt(ctx, c.fallback, model, messages)
			if err == nil {
				span.SetAttributes(attribute.String("llm.model", model.Name), attribute.Int("llm.retry", retry))
				return out, nil
			}
			c.log.Warn("completion attempt failed", logger.String("provider", c.fallback.Name),
				logger.String("model", model.Name), logger.Int("retry", retry), logger.Error(err))
			if retry >= c.opts.MaxRetries {
				break
			}
			delay := c.opts.InitialRetryDelay * time.Duration(1<<retry)
			if err := c.opts.Sleep(ctx, delay); err != nil {
				span.RecordError(err)
				return "", fmt.Errorf("wait before retry: %w", err)
			}
		}
	}
	c.log.Error("all completion attempts failed")
	span.RecordError(ErrExhausted)
	return "", ErrExhausted
}

func (c *Client) attempt(ctx context.Context, tier Tier, model Model, messages []Message) (string, error) {
	out, err := tier.Client.Chat(ctx, model, messages, ChatOptions{
		Temperature: tier.Temperature,
		MaxTokens:   model.MaxTokens,
	})
	if err == nil && strings.TrimSpace(out) == "" {
		err = ErrEmptyResponse
	}
	c.metrics.LLMAttempt(ctx, tier.Name, model.Name, err)
	if err != nil {
		return "", err
	}
	return out, nil
}
