// Package llm wraps the OpenAI-compatible chat completion and embedding APIs
// used by every workflow node.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"riskintel-assistant/internal/common/config"
	httpclient "riskintel-assistant/internal/common/http"
)

// CompletionRequest carries one chat completion call.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Client is the shared LLM client. The base URL is configurable so any
// OpenAI-compatible deployment (or a test server) can back it.
type Client struct {
	api        openai.Client
	chatModel  string
	embedModel string
	maxTokens  int
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.LLMConfig) *Client {
	hc := httpclient.NewClient(config.GetDuration(cfg.Timeout))

	api := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(hc.Underlying()),
	)

	return &Client{
		api:        api,
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbeddingModel,
		maxTokens:  cfg.MaxTokens,
	}
}

// Complete performs a single chat completion and returns the assistant text.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.chatModel),
		Messages: messages,
	}
	params.Temperature = openai.Float(req.Temperature)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed after %s: %w", time.Since(start).Round(time.Millisecond), err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding returned no data")
	}

	return resp.Data[0].Embedding, nil
}
