package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/webchat/internal/helpers"
	"github.com/mohammad-safakhou/webchat/internal/logger"
	"github.com/mohammad-safakhou/webchat/provider"
)

const classifierPrompt = `You are a classifier that determines if a question requires a web search in order to be answered accurately.

Any question about real time events, current events, or anything a language model with a fixed training cutoff would not know requires a web search, so respond with true. Otherwise respond with false.

Respond with a JSON object containing:
- requires_web_search: boolean
- confidence: number between 0 and 1

Example output:
{"requires_web_search": true, "confidence": 0.95}`

type classification struct {
	RequiresWebSearch bool     `json:"requires_web_search"`
	Confidence        *float64 `json:"confidence,omitempty"`
}

// Classifier asks a small model whether a question needs live web data.
type Classifier struct {
	client     provider.ChatClient
	model      provider.Model
	maxRetries int
	delay      time.Duration
	sleep      provider.Sleeper
	log        logger.Logger
}

type ClassifierOptions struct {
	MaxRetries        int
	InitialRetryDelay time.Duration
	Sleep             provider.Sleeper
}

func NewClassifier(client provider.ChatClient, model provider.Model, opts ClassifierOptions, log logger.Logger) *Classifier {
	if opts.Sleep == nil {
		opts.Sleep = provider.SleepContext
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Classifier{
		client:     client,
		model:      model,
		maxRetries: max(opts.MaxRetries, 0),
		delay:      opts.InitialRetryDelay,
		sleep:      opts.Sleep,
		log:        log.With(logger.Component("classifier")),
	}
}

// NeedsWebSearch never fails: once retries are exhausted it answers false.
func (c *Classifier) NeedsWebSearch(ctx context.Context, question string) bool {
	messages := []provider.Message{
		{Role: provider.RoleSystem, Content: classifierPrompt},
		{Role: provider.RoleUser, Content: "Question: " + question},
	}
	for retry := 0; ; retry++ {
		res, err := c.classify(ctx, messages)
		if err == nil {
			c.log.Debug("classified question", logger.Bool("requires_web_search", res.RequiresWebSearch))
			return res.RequiresWebSearch
		}
		c.log.Warn("classification failed", logger.Int("retry", retry), logger.Error(err))
		if retry >= c.maxRetries {
			return false
		}
		if err := c.sleep(ctx, c.delay*time.Duration(1<<retry)); err != nil {
			return false
		}
	}
}

func (c *Classifier) classify(ctx context.Context, messages []provider.Message) (classification, error) {
	out, err := c.client.Chat(ctx, c.model, messages, provider.ChatOptions{JSONMode: true, MaxTokens: c.model.MaxTokens})
	if err != nil {
		return classification{}, err
	}
	raw, err := helpers.ExtractJSON(out)
	if err != nil {
		return classification{}, fmt.Errorf("classifier reply: %w", err)
	}
	var res classification
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return classification{}, fmt.Errorf("decode classifier reply: %w", err)
	}
	return res, nil
}
