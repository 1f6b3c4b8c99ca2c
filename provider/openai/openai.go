package openai_provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/webchat/config"
	"github.com/mohammad-safakhou/webchat/provider"
	"github.com/sashabaranov/go-openai"
)

// client talks to any OpenAI-compatible chat completions endpoint.
type client struct {
	api  *openai.Client
	name string
}

// NewClient builds a client for cfg's base URL and key.
func NewClient(cfg config.LLMProvider) *client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &client{api: openai.NewClientWithConfig(oc), name: cfg.Name}
}

func (c *client) Chat(ctx context.Context, model provider.Model, messages []provider.Message, opts provider.ChatOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       model.Name,
		Messages:    toChatMessages(messages),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSONMode && model.SupportsJSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", provider.ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func toChatMessages(messages []provider.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case provider.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case provider.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
