// Package refine implements the optional language-model hooks that can
// replace the heuristic plan and second-guess the validator.
package refine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/osinthunter/config"
	"github.com/mohammad-safakhou/osinthunter/internal/helpers"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrNoChoices is returned when the completion carries no message.
var ErrNoChoices = errors.New("no choices")

// Client wraps an OpenAI compatible chat completions endpoint.
type Client struct {
	api    *openai.Client
	model  string
	logger *zap.Logger
}

type clientOptions struct {
	http   *http.Client
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

// WithHTTPClient overrides the transport, mostly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		if c != nil {
			o.http = c
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *clientOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewClient builds a client from cfg. The API key is required.
func NewClient(cfg config.LLMConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm api key not configured")
	}
	o := clientOptions{
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		apiCfg.BaseURL = base
	}
	apiCfg.HTTPClient = o.http

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		model:  model,
		logger: o.logger,
	}, nil
}

// Complete sends a system and a user message and returns the first choice.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	c.logger.Debug("chat completion",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// completeJSON runs a completion and decodes the first JSON value of the answer into v.
func (c *Client) completeJSON(ctx context.Context, system, user string, v any) error {
	raw, err := c.Complete(ctx, system, user)
	if err != nil {
		return err
	}
	body, err := helpers.ExtractJSON(raw)
	if err != nil {
		return fmt.Errorf("parse completion: %w", err)
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("parse completion: %w", err)
	}
	return nil
}
