package ragadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestra-run/queryweave/pkg/config"
)

func TestNewEmbeddingClient_RejectsT5ModelOnOpenAIProvider(t *testing.T) {
	_, err := NewEmbeddingClient(config.RAGConfig{EmbeddingProvider: "openai", EmbeddingModel: "sentence-t5-base"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "huggingface")
}

func TestNewEmbeddingClient_RejectsFridaModelOnOpenAIProvider(t *testing.T) {
	_, err := NewEmbeddingClient(config.RAGConfig{EmbeddingProvider: "openai", EmbeddingModel: "ai-forever/FRIDA"}, nil)
	require.Error(t, err)
}

func TestNewEmbeddingClient_HuggingFaceProviderAcceptsT5Model(t *testing.T) {
	client, err := NewEmbeddingClient(config.RAGConfig{EmbeddingProvider: "huggingface", EmbeddingModel: "sentence-t5-base"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestNewEmbeddingClient_UnsupportedProviderRejected(t *testing.T) {
	_, err := NewEmbeddingClient(config.RAGConfig{EmbeddingProvider: "acme"}, nil)
	assert.Error(t, err)
}

func TestNewChromaStore_RejectsUnsupportedVectorStoreType(t *testing.T) {
	_, err := NewChromaStore("http://localhost:8000", config.RAGConfig{VectorStoreType: "pinecone"}, nil, nil)
	assert.Error(t, err)
}

func TestNewChromaStore_DefaultsTopK(t *testing.T) {
	store, err := NewChromaStore("http://localhost:8000", config.RAGConfig{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, store.topK)
}
