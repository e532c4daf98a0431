package llm

import (
	"context"
	"errors"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicClient implements LLMClient against the Anthropic Messages API,
// for roles configured with <ROLE>_LLM_PROVIDER=Anthropic.
type AnthropicClient struct {
	client   *anthropic.Client
	model    string
	endpoint string
	logger   *zap.Logger
}

// NewAnthropicClient builds an AnthropicClient from a role's RoleConfig.
func NewAnthropicClient(cfg RoleConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm: anthropic model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := anthropic.NewClient(cfg.APIKey)
	return &AnthropicClient{client: client, model: cfg.Model, endpoint: cfg.Endpoint(), logger: logger.Named("anthropic")}, nil
}

// GenerateResponse implements LLMClient.
func (c *AnthropicClient) GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64, thinking bool) (*GenerateResponseResult, error) {
	temp := float32(temperature)
	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: 4096,
		System:    systemMessage,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	}

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		c.logger.Warn("anthropic request failed", zap.Error(err))
		return nil, NewError(ErrorTypeEndpoint, "anthropic request failed", true, err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			text += *block.Text
		}
	}

	return &GenerateResponseResult{
		Content:          text,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

// CreateEmbedding is unsupported: Anthropic has no embeddings endpoint.
func (c *AnthropicClient) CreateEmbedding(_ context.Context, _, _ string) ([]float32, error) {
	return nil, fmt.Errorf("llm: anthropic provider does not support embeddings")
}

// CreateEmbeddings is unsupported: Anthropic has no embeddings endpoint.
func (c *AnthropicClient) CreateEmbeddings(_ context.Context, _ []string, _ string) ([][]float32, error) {
	return nil, fmt.Errorf("llm: anthropic provider does not support embeddings")
}

// GetModel implements LLMClient.
func (c *AnthropicClient) GetModel() string { return c.model }

// GetEndpoint implements LLMClient.
func (c *AnthropicClient) GetEndpoint() string { return c.endpoint }

var _ LLMClient = (*AnthropicClient)(nil)
