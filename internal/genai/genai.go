// Package genai provides GenAI-enhanced operations using the OpenAI API.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/aleenlabs/aleen-agents/internal/models"
)

// Defaults for model invocation.
const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-4o-mini"
	// DefaultMaxCompletionTokens bounds a single completion.
	DefaultMaxCompletionTokens = 1000
)

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey              string
	Model               string
	MaxCompletionTokens int64
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model name.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithMaxCompletionTokens bounds the completion length.
func WithMaxCompletionTokens(n int64) Option {
	return func(o *Opts) { o.MaxCompletionTokens = n }
}

// ToolCallResponse is the model's answer to a tool-enabled completion.
// Content may be empty when the model only requests tools, and ToolCalls is
// empty when the model answers directly.
type ToolCallResponse struct {
	Content   string
	ToolCalls []models.ToolCallRequest
}

// ClientInterface defines the GenAI operations used by the conversation
// flow. It exists so tests can substitute a mock client.
type ClientInterface interface {
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error)
	Ping(ctx context.Context) error
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	client    openai.Client
	model     shared.ChatModel
	maxTokens int64
}

// Ensure Client satisfies ClientInterface.
var _ ClientInterface = (*Client)(nil)

// NewClient initializes a new GenAI client based on provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		slog.Error("GenAI API key not set")
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxCompletionTokens <= 0 {
		cfg.MaxCompletionTokens = DefaultMaxCompletionTokens
	}
	slog.Debug("GenAI.NewClient: creating client", "model", cfg.Model, "max_completion_tokens", cfg.MaxCompletionTokens)
	return &Client{
		client:    openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     shared.ChatModel(cfg.Model),
		maxTokens: cfg.MaxCompletionTokens,
	}, nil
}

// isRetryable reports whether a completion error is worth one more attempt:
// provider 5xx responses and timeouts.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// complete runs a chat completion with a single retry on transient errors.
func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil && isRetryable(err) && ctx.Err() == nil {
		slog.Warn("GenAI.complete: transient completion error, retrying once", "error", err)
		resp, err = c.client.Chat.Completions.New(ctx, params)
	}
	if err != nil {
		slog.Error("GenAI.complete: chat completion failed", "error", err)
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}
	return resp, nil
}

// GenerateWithMessages generates a plain text response for the given
// conversation messages.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.complete(ctx, openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(c.maxTokens),
	})
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateWithTools generates a response with function calling enabled and
// returns both the text content and any requested tool calls.
func (c *Client) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error) {
	resp, err := c.complete(ctx, openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            messages,
		Tools:               tools,
		MaxCompletionTokens: openai.Int(c.maxTokens),
	})
	if err != nil {
		return nil, err
	}

	msg := resp.Choices[0].Message
	out := &ToolCallResponse{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCallRequest{
			ID:        tc.ID,
			Name:      models.ToolName(tc.Function.Name),
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	slog.Debug("GenAI.GenerateWithTools: completion received", "content_length", len(out.Content), "tool_calls", len(out.ToolCalls))
	return out, nil
}

// Ping verifies the API key by listing available models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return fmt.Errorf("openai ping failed: %w", err)
	}
	return nil
}
