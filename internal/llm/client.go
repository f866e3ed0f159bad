// Package llm wraps the OpenAI-compatible chat API behind a single blocking
// completion call.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"binance-ai-trader/internal/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// Completer is the single call the decision engine depends on: one prompt
// in, one free-text reply out. The provider enforces no structured schema.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client talks to an OpenAI-compatible endpoint via the OpenAI SDK.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// ensure Client implements the interface
var _ Completer = (*Client)(nil)

// NewClient creates a chat client from configuration.
func NewClient(cfg *config.LLM, logger *zap.Logger) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.ApiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	clientVal := openai.NewClient(opts...)
	return &Client{
		client:  &clientVal,
		model:   cfg.Model,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		logger:  logger.Named("llm"),
	}
}

// Complete performs one blocking chat completion and returns the raw reply
// text. The call is bounded by the configured timeout so a stuck provider
// cannot stall the account's next cycle.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	reply := strings.TrimSpace(completion.Choices[0].Message.Content)
	c.logger.Debug("Model reply received",
		zap.String("model", c.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("reply_chars", len(reply)),
	)
	return reply, nil
}
