// Package ragadapter implements the RAG collaborator interface
// (orchestration.RAGCollaborator) plus the embedding clients it is built
// on: an OpenAI-compatible client (reusing pkg/llm.Client) and a small HTTP
// client for local HuggingFace-style embedding servers.
package ragadapter

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/config"
	"github.com/orchestra-run/queryweave/pkg/llm"
)

// EmbeddingClient produces vector embeddings for text.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// huggingFaceModelMarkers flags model names that must be routed to the
// HuggingFace path regardless of the configured provider.
var huggingFaceModelMarkers = []string{"t5", "frida"}

// NewEmbeddingClient builds the embedding client named by cfg.EmbeddingProvider.
// A model name containing "t5" or "frida" pointed at the "openai" provider is
// rejected with a targeted error rather than silently sent to an endpoint
// that cannot serve it.
func NewEmbeddingClient(cfg config.RAGConfig, logger *zap.Logger) (EmbeddingClient, error) {
	lowerModel := strings.ToLower(cfg.EmbeddingModel)
	isHFModel := false
	for _, marker := range huggingFaceModelMarkers {
		if strings.Contains(lowerModel, marker) {
			isHFModel = true
			break
		}
	}

	switch cfg.EmbeddingProvider {
	case "huggingface":
		return newHuggingFaceClient(cfg, logger), nil
	case "openai", "":
		if isHFModel {
			return nil, fmt.Errorf("embedding model %q looks like a HuggingFace model; set RAG_EMBEDDING_PROVIDER=huggingface instead of openai", cfg.EmbeddingModel)
		}
		return newOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported RAG_EMBEDDING_PROVIDER %q", cfg.EmbeddingProvider)
	}
}

type openAIEmbeddingClient struct {
	client *llm.Client
	model  string
}

func newOpenAIClient(cfg config.RAGConfig, logger *zap.Logger) (*openAIEmbeddingClient, error) {
	endpoint := cfg.EmbeddingEndpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	client, err := llm.NewClient(&llm.Config{
		Endpoint: endpoint,
		Model:    cfg.EmbeddingModel,
		APIKey:   cfg.EmbeddingAPIKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build openai embedding client: %w", err)
	}
	return &openAIEmbeddingClient{client: client, model: cfg.EmbeddingModel}, nil
}

func (c *openAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.client.CreateEmbedding(ctx, text, c.model)
}
